package appointment

import (
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/hackgods/consultation-scheduling/internal/slot"
)

type Status string

const (
	StatusPendingPayment Status = "PENDING_PAYMENT"
	StatusScheduled      Status = "SCHEDULED"
	StatusInProgress     Status = "IN_PROGRESS"
	StatusCompleted      Status = "COMPLETED"
	StatusCanceled       Status = "CANCELED"
)

var (
	// ActiveStatuses are every non-terminal status.
	ActiveStatuses = []Status{StatusPendingPayment, StatusScheduled, StatusInProgress}
	// CancelableStatuses excludes IN_PROGRESS: a running consultation cannot be canceled.
	CancelableStatuses = []Status{StatusPendingPayment, StatusScheduled}
)

func ParseStatus(s string) (Status, bool) {
	st := Status(s)
	switch st {
	case StatusPendingPayment, StatusScheduled, StatusInProgress, StatusCompleted, StatusCanceled:
		return st, true
	}
	return "", false
}

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCanceled
}

func (s Status) In(set []Status) bool {
	return slices.Contains(set, s)
}

type Patient struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Name      string
	Email     *string
	CreatedAt time.Time
}

type Professional struct {
	ID          uuid.UUID
	UserID      uuid.UUID
	Name        string
	HourlyPrice decimal.Decimal
	Active      bool
	Specialties []string
	CreatedAt   time.Time
}

type Appointment struct {
	ID             uuid.UUID
	PatientID      uuid.UUID
	ProfessionalID uuid.UUID
	ScheduledAt    time.Time
	Status         Status
	Price          decimal.Decimal
	VideoRoomURL   *string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (a Appointment) Window(d time.Duration) slot.Window {
	return slot.At(a.ScheduledAt, d)
}

// Party is the display summary of one side of an appointment.
type Party struct {
	ID     uuid.UUID
	UserID uuid.UUID
	Name   string
}

type AppointmentDetail struct {
	Appointment
	Patient      Party
	Professional Party
}

type Rating struct {
	ID            uuid.UUID
	AppointmentID uuid.UUID
	Value         int
	Comment       *string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}

// ListFilter scopes an appointment listing. Nil user ids mean "any".
type ListFilter struct {
	PatientUserID      *uuid.UUID
	ProfessionalUserID *uuid.UUID
	Status             *Status
	Limit              int
	Offset             int
}
