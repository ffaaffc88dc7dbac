package appointment

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/hackgods/consultation-scheduling/internal/auth"
	"github.com/hackgods/consultation-scheduling/internal/events"
)

// transition describes one edge of the appointment state machine.
type transition struct {
	verb     string
	from     []Status
	to       Status
	allow    func(auth.Caller, *AppointmentDetail) Decision
	event    events.Type
	audience events.Audience
}

var (
	cancelTransition = transition{
		verb:     "cancel",
		from:     CancelableStatuses,
		to:       StatusCanceled,
		allow:    CanCancel,
		event:    events.TypeAppointmentCanceled,
		audience: events.AudiencePatient,
	}
	completeTransition = transition{
		verb:     "complete",
		from:     ActiveStatuses,
		to:       StatusCompleted,
		allow:    CanComplete,
		event:    events.TypeAppointmentCompleted,
		audience: events.AudiencePatient,
	}
	confirmTransition = transition{
		verb:     "confirm",
		from:     []Status{StatusPendingPayment},
		to:       StatusScheduled,
		allow:    CanConfirm,
		event:    events.TypeAppointmentConfirmed,
		audience: events.AudiencePatient,
	}
	startTransition = transition{
		verb:     "start",
		from:     []Status{StatusScheduled},
		to:       StatusInProgress,
		allow:    CanStart,
		event:    events.TypeAppointmentStarted,
		audience: events.AudiencePatient,
	}
)

// Cancel sets a pending or scheduled appointment to CANCELED. Rows are never
// deleted, so the slot simply stops counting as taken.
func (s *Service) Cancel(ctx context.Context, caller auth.Caller, id uuid.UUID) (*AppointmentDetail, error) {
	return s.apply(ctx, caller, id, cancelTransition)
}

// Complete marks the consultation finished so the patient can rate it.
func (s *Service) Complete(ctx context.Context, caller auth.Caller, id uuid.UUID) (*AppointmentDetail, error) {
	return s.apply(ctx, caller, id, completeTransition)
}

// Confirm records captured payment: PENDING_PAYMENT -> SCHEDULED.
func (s *Service) Confirm(ctx context.Context, caller auth.Caller, id uuid.UUID) (*AppointmentDetail, error) {
	return s.apply(ctx, caller, id, confirmTransition)
}

// Start opens the consultation: SCHEDULED -> IN_PROGRESS.
func (s *Service) Start(ctx context.Context, caller auth.Caller, id uuid.UUID) (*AppointmentDetail, error) {
	return s.apply(ctx, caller, id, startTransition)
}

func (s *Service) apply(ctx context.Context, caller auth.Caller, id uuid.UUID, t transition) (_ *AppointmentDetail, err error) {
	ctx, span := s.startSpan(ctx, "appointment."+t.verb,
		attribute.String("appointment_id", id.String()),
		attribute.String("caller_role", string(caller.Role)),
	)
	defer func() { endSpan(span, err) }()

	d, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := t.allow(caller, d).Err(); err != nil {
		return nil, err
	}
	if !d.Status.In(t.from) {
		return nil, ErrInvalidStatusTransition.WithDetail(fmt.Sprintf("cannot %s an appointment that is %s", t.verb, d.Status))
	}

	updated, err := s.repo.UpdateAppointmentStatus(ctx, id, t.from, t.to)
	if err != nil {
		if errors.Is(err, ErrStatusChanged) || errors.Is(err, ErrAppointmentNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%s appointment: %w", t.verb, err)
	}
	d.Appointment = *updated

	s.log.Info("appointment status changed",
		zap.Stringer("appointment_id", id),
		zap.String("to", string(t.to)),
		zap.String("by", caller.String()),
	)
	s.emit(t.event, d, t.audience, map[string]string{"status": string(t.to)})

	return d, nil
}

const maxVideoRoomURLLength = 2048

// AttachVideoRoom stores the opaque meeting url produced by the video
// collaborator on an active appointment.
func (s *Service) AttachVideoRoom(ctx context.Context, caller auth.Caller, id uuid.UUID, rawURL string) (_ *AppointmentDetail, err error) {
	ctx, span := s.startSpan(ctx, "appointment.AttachVideoRoom", attribute.String("appointment_id", id.String()))
	defer func() { endSpan(span, err) }()

	rawURL = strings.TrimSpace(rawURL)
	u, perr := url.Parse(rawURL)
	if perr != nil || len(rawURL) > maxVideoRoomURLLength || (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
		return nil, ErrInvalidVideoRoomURL
	}

	d, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := CanAttachVideoRoom(caller, d).Err(); err != nil {
		return nil, err
	}
	if d.Status.Terminal() {
		return nil, ErrInvalidStatusTransition.WithDetail(fmt.Sprintf("appointment is %s", d.Status))
	}

	updated, err := s.repo.SetVideoRoomURL(ctx, id, rawURL, ActiveStatuses)
	if err != nil {
		if errors.Is(err, ErrStatusChanged) || errors.Is(err, ErrAppointmentNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("attach video room: %w", err)
	}
	d.Appointment = *updated

	return d, nil
}

func (s *Service) load(ctx context.Context, id uuid.UUID) (*AppointmentDetail, error) {
	d, err := s.repo.GetAppointmentDetail(ctx, id)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load appointment: %w", err)
	}
	return d, nil
}
