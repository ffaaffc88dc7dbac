package appointment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/hackgods/consultation-scheduling/internal/auth"
	"github.com/hackgods/consultation-scheduling/internal/events"
	"github.com/hackgods/consultation-scheduling/internal/slot"
)

type CreateRequest struct {
	ProfessionalID uuid.UUID
	ScheduledAt    string // ISO-8601 instant
}

func parseInstant(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, ErrInvalidScheduledAt.WithDetail(fmt.Sprintf("%q", s))
	}
	return t.UTC().Truncate(time.Microsecond), nil
}

// Create books a slot for the calling patient. Cheap checks run before any
// transaction is opened; the conflict check and the insert then run in one
// transaction holding the professional's row lock, so of several concurrent
// requests for overlapping slots exactly one commits.
func (s *Service) Create(ctx context.Context, caller auth.Caller, req CreateRequest) (_ *AppointmentDetail, err error) {
	ctx, span := s.startSpan(ctx, "appointment.Create",
		attribute.String("professional_id", req.ProfessionalID.String()),
	)
	defer func() { endSpan(span, err) }()

	if err := CanBook(caller).Err(); err != nil {
		return nil, err
	}

	at, err := parseInstant(req.ScheduledAt)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	if s.policy.InPast(now, at) {
		return nil, ErrBookingInPast
	}
	if !s.policy.HasLeadTime(now, at) {
		return nil, ErrInsufficientLeadTime.WithDetail(fmt.Sprintf("slots must start at least %s from now", s.policy.LeadTime))
	}

	patient, err := s.repo.GetPatientByUserID(ctx, caller.UserID)
	if err != nil {
		if errors.Is(err, ErrPatientNotFound) {
			return nil, ErrProfileIncomplete
		}
		return nil, fmt.Errorf("load patient: %w", err)
	}

	pro, err := s.repo.GetProfessionalByID(ctx, req.ProfessionalID)
	if err != nil {
		if errors.Is(err, ErrProfessionalNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load professional: %w", err)
	}
	if !pro.Active {
		return nil, ErrProfessionalInactive
	}

	appt, err := s.book(ctx, patient.ID, pro.ID, at, now)
	if err != nil {
		s.log.Debug("booking rejected",
			zap.Stringer("professional_id", pro.ID),
			zap.Time("scheduled_at", at),
			zap.String("code", CodeOf(err)),
		)
		return nil, err
	}

	detail := &AppointmentDetail{
		Appointment:  *appt,
		Patient:      Party{ID: patient.ID, UserID: patient.UserID, Name: patient.Name},
		Professional: Party{ID: pro.ID, UserID: pro.UserID, Name: pro.Name},
	}

	s.log.Info("appointment booked",
		zap.Stringer("appointment_id", appt.ID),
		zap.Stringer("professional_id", pro.ID),
		zap.Time("scheduled_at", at),
	)
	s.emit(events.TypeAppointmentCreated, detail, events.AudiencePatient, map[string]string{
		"price": appt.Price.StringFixed(2),
	})

	return detail, nil
}

func (s *Service) book(ctx context.Context, patientID, professionalID uuid.UUID, at, now time.Time) (*Appointment, error) {
	txCtx, cancel := context.WithTimeout(ctx, s.txTimeout)
	defer cancel()

	var created *Appointment

	err := s.repo.WithinBookingTx(txCtx, func(tx BookingTx) error {
		// Re-read under lock: the professional may have been deactivated since
		// the precondition check.
		pro, err := tx.LockProfessional(txCtx, professionalID)
		if err != nil {
			return err
		}
		if !pro.Active {
			return ErrProfessionalInactive
		}

		conflict, err := s.detector.HasConflict(txCtx, tx, professionalID, at)
		if err != nil {
			return err
		}
		if conflict {
			return ErrSlotTaken
		}

		appt := &Appointment{
			ID:             uuid.New(),
			PatientID:      patientID,
			ProfessionalID: professionalID,
			ScheduledAt:    at,
			Status:         StatusPendingPayment,
			Price:          pro.HourlyPrice,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := tx.InsertAppointment(txCtx, appt); err != nil {
			return err
		}

		created = appt
		return nil
	})

	if err != nil {
		var appErr *Error
		if errors.As(err, &appErr) {
			return nil, err
		}
		if errors.Is(txCtx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
			return nil, ErrBookingTimeout.WithDetail(fmt.Sprintf("exceeded %s", s.txTimeout))
		}
		return nil, fmt.Errorf("booking transaction: %w", err)
	}

	return created, nil
}

// HasConflict reports whether a slot starting at start overlaps an existing
// non-canceled appointment of the professional. It only reads.
func (s *Service) HasConflict(ctx context.Context, professionalID uuid.UUID, start time.Time) (bool, error) {
	return s.detector.HasConflict(ctx, s.repo, professionalID, start)
}

type Availability struct {
	ProfessionalID uuid.UUID
	Window         slot.Window
	Available      bool
	Reason         string
}

// CheckSlot is a read-only probe of whether a slot could be booked right now.
// A positive answer is not a reservation.
func (s *Service) CheckSlot(ctx context.Context, professionalID uuid.UUID, scheduledAt string) (_ *Availability, err error) {
	ctx, span := s.startSpan(ctx, "appointment.CheckSlot",
		attribute.String("professional_id", professionalID.String()),
	)
	defer func() { endSpan(span, err) }()

	at, err := parseInstant(scheduledAt)
	if err != nil {
		return nil, err
	}

	pro, err := s.repo.GetProfessionalByID(ctx, professionalID)
	if err != nil {
		if errors.Is(err, ErrProfessionalNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load professional: %w", err)
	}

	av := &Availability{ProfessionalID: pro.ID, Window: slot.At(at, s.policy.Duration)}
	now := s.clock.Now()

	switch {
	case !pro.Active:
		av.Reason = ErrProfessionalInactive.Reason
	case s.policy.InPast(now, at):
		av.Reason = ErrBookingInPast.Reason
	case !s.policy.HasLeadTime(now, at):
		av.Reason = ErrInsufficientLeadTime.Reason
	default:
		conflict, err := s.HasConflict(ctx, pro.ID, at)
		if err != nil {
			return nil, err
		}
		if conflict {
			av.Reason = ErrSlotTaken.Reason
		} else {
			av.Available = true
		}
	}

	return av, nil
}
