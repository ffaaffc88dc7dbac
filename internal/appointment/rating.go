package appointment

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/hackgods/consultation-scheduling/internal/auth"
	"github.com/hackgods/consultation-scheduling/internal/events"
)

const (
	MinRating        = 1
	MaxRating        = 5
	maxCommentLength = 2000
)

// Rate attaches a rating to a completed appointment. Rating again replaces
// the previous value and comment; there is at most one rating per appointment.
func (s *Service) Rate(ctx context.Context, caller auth.Caller, id uuid.UUID, value int, comment *string) (_ *Rating, err error) {
	ctx, span := s.startSpan(ctx, "appointment.Rate", attribute.String("appointment_id", id.String()))
	defer func() { endSpan(span, err) }()

	if value < MinRating || value > MaxRating {
		return nil, ErrInvalidRating
	}
	comment = normalizeComment(comment)
	if comment != nil && utf8.RuneCountInString(*comment) > maxCommentLength {
		return nil, ErrCommentTooLong.WithDetail(fmt.Sprintf("at most %d characters", maxCommentLength))
	}

	d, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := CanRate(caller, d).Err(); err != nil {
		return nil, err
	}
	if d.Status != StatusCompleted {
		return nil, ErrRatingNotAllowed.WithDetail(fmt.Sprintf("appointment is %s", d.Status))
	}

	r, err := s.repo.UpsertRating(ctx, id, value, comment)
	if err != nil {
		return nil, fmt.Errorf("upsert rating: %w", err)
	}

	s.log.Info("appointment rated", zap.Stringer("appointment_id", id), zap.Int("rating", value))
	s.emit(events.TypeRatingSubmitted, d, events.AudienceProfessional, map[string]string{
		"rating": strconv.Itoa(value),
	})

	return r, nil
}

// GetRating returns the rating of an appointment the caller can see.
func (s *Service) GetRating(ctx context.Context, caller auth.Caller, id uuid.UUID) (*Rating, error) {
	if _, err := s.Get(ctx, caller, id); err != nil {
		return nil, err
	}

	r, err := s.repo.GetRatingByAppointment(ctx, id)
	if err != nil {
		if errors.Is(err, ErrRatingNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("get rating: %w", err)
	}
	return r, nil
}

func normalizeComment(c *string) *string {
	if c == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*c)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
