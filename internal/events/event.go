package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Type string

const (
	TypeAppointmentCreated   Type = "appointment.created"
	TypeAppointmentConfirmed Type = "appointment.confirmed"
	TypeAppointmentStarted   Type = "appointment.started"
	TypeAppointmentCanceled  Type = "appointment.canceled"
	TypeAppointmentCompleted Type = "appointment.completed"
	TypeRatingSubmitted      Type = "rating.submitted"
)

// Audience says which side of the appointment an event is addressed to.
type Audience string

const (
	AudiencePatient      Audience = "patient"
	AudienceProfessional Audience = "professional"
)

type Event struct {
	ID              uuid.UUID         `json:"id"`
	Type            Type              `json:"type"`
	AppointmentID   uuid.UUID         `json:"appointment_id"`
	RecipientUserID uuid.UUID         `json:"recipient_user_id"`
	Audience        Audience          `json:"audience"`
	OccurredAt      time.Time         `json:"occurred_at"`
	Data            map[string]string `json:"data,omitempty"`
}

func New(t Type, appointmentID, recipient uuid.UUID, audience Audience, data map[string]string) Event {
	return Event{
		ID:              uuid.New(),
		Type:            t,
		AppointmentID:   appointmentID,
		RecipientUserID: recipient,
		Audience:        audience,
		OccurredAt:      time.Now().UTC(),
		Data:            data,
	}
}

func (e Event) Encode() ([]byte, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode event %s: %w", e.Type, err)
	}
	return b, nil
}

func Decode(b []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(b, &e); err != nil {
		return Event{}, fmt.Errorf("decode event: %w", err)
	}
	return e, nil
}

// Publisher hands an event to one outbound transport.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}
