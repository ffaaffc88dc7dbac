package appointment

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/hackgods/consultation-scheduling/internal/auth"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// Get returns one appointment the caller is allowed to see.
func (s *Service) Get(ctx context.Context, caller auth.Caller, id uuid.UUID) (_ *AppointmentDetail, err error) {
	ctx, span := s.startSpan(ctx, "appointment.Get", attribute.String("appointment_id", id.String()))
	defer func() { endSpan(span, err) }()

	d, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := CanView(caller, d).Err(); err != nil {
		return nil, err
	}
	return d, nil
}

// List returns the caller's appointments, newest slot first. Admins see all.
func (s *Service) List(ctx context.Context, caller auth.Caller, f ListFilter) (_ []AppointmentDetail, err error) {
	ctx, span := s.startSpan(ctx, "appointment.List", attribute.String("caller_role", string(caller.Role)))
	defer func() { endSpan(span, err) }()

	out, err := s.repo.ListAppointments(ctx, Scope(caller, f.Paged()))
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	return out, nil
}

// Paged returns f with the limit defaulted and capped and a non-negative
// offset.
func (f ListFilter) Paged() ListFilter {
	if f.Limit <= 0 {
		f.Limit = defaultListLimit
	}
	if f.Limit > maxListLimit {
		f.Limit = maxListLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}
