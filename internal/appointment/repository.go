package appointment

import (
	"context"
	"time"

	"github.com/google/uuid"
)

var (
	ErrPatientNotFound      = newError(KindNotFound, "patient_not_found", "patient not found")
	ErrProfessionalNotFound = newError(KindNotFound, "professional_not_found", "professional not found")
	ErrAppointmentNotFound  = newError(KindNotFound, "appointment_not_found", "appointment not found")
	ErrRatingNotFound       = newError(KindNotFound, "rating_not_found", "rating not found")
)

// WindowReader lists the start instants of non-canceled appointments of one
// professional whose start lies in [from, to].
type WindowReader interface {
	ListActiveStarts(ctx context.Context, professionalID uuid.UUID, from, to time.Time) ([]time.Time, error)
}

// BookingTx is the unit of work the booking coordinator runs atomically.
type BookingTx interface {
	WindowReader

	// LockProfessional reads the professional row and holds a row lock on it
	// until the transaction ends, serializing bookings per professional.
	LockProfessional(ctx context.Context, id uuid.UUID) (*Professional, error)
	InsertAppointment(ctx context.Context, a *Appointment) error
}

// Repository contains all store interactions needed by the service.
type Repository interface {
	WindowReader

	GetPatientByUserID(ctx context.Context, userID uuid.UUID) (*Patient, error)
	GetProfessionalByID(ctx context.Context, id uuid.UUID) (*Professional, error)

	// WithinBookingTx runs fn in one transaction, committing when fn returns
	// nil and rolling back otherwise.
	WithinBookingTx(ctx context.Context, fn func(tx BookingTx) error) error

	GetAppointmentDetail(ctx context.Context, id uuid.UUID) (*AppointmentDetail, error)
	ListAppointments(ctx context.Context, f ListFilter) ([]AppointmentDetail, error)

	// UpdateAppointmentStatus moves the appointment to `to` only if its current
	// status is one of from. It returns ErrStatusChanged when the row exists
	// but no longer matches.
	UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from []Status, to Status) (*Appointment, error)
	SetVideoRoomURL(ctx context.Context, id uuid.UUID, url string, allowed []Status) (*Appointment, error)

	// Ratings
	UpsertRating(ctx context.Context, appointmentID uuid.UUID, value int, comment *string) (*Rating, error)
	GetRatingByAppointment(ctx context.Context, appointmentID uuid.UUID) (*Rating, error)

	// Event logging
	InsertEvent(ctx context.Context, ev EventLog) error

	Ping(ctx context.Context) error
}
