package notify

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/hackgods/consultation-scheduling/internal/events"
)

// Message is the rendered notification for one recipient.
type Message struct {
	RecipientUserID string
	Subject         string
	Body            string
}

// Dispatcher delivers a rendered notification. Channel providers (email,
// push) plug in here.
type Dispatcher interface {
	Dispatch(ctx context.Context, ev events.Event, msg Message) error
}

// Render turns an event into a human readable message.
func Render(ev events.Event) Message {
	when := ev.Data["scheduled_at"]
	pro := ev.Data["professional_name"]
	patient := ev.Data["patient_name"]

	msg := Message{RecipientUserID: ev.RecipientUserID.String()}

	switch ev.Type {
	case events.TypeAppointmentCreated:
		msg.Subject = "Appointment requested"
		msg.Body = fmt.Sprintf("Your consultation with %s at %s is reserved. Price: %s. Complete payment to confirm it.", pro, when, ev.Data["price"])
	case events.TypeAppointmentConfirmed:
		msg.Subject = "Appointment confirmed"
		msg.Body = fmt.Sprintf("Your consultation with %s at %s is confirmed.", pro, when)
	case events.TypeAppointmentStarted:
		msg.Subject = "Consultation started"
		msg.Body = fmt.Sprintf("%s has started your consultation.", pro)
	case events.TypeAppointmentCanceled:
		msg.Subject = "Appointment canceled"
		msg.Body = fmt.Sprintf("Your consultation with %s at %s was canceled.", pro, when)
	case events.TypeAppointmentCompleted:
		msg.Subject = "Consultation completed"
		msg.Body = fmt.Sprintf("Your consultation with %s is complete. You can now rate it.", pro)
	case events.TypeRatingSubmitted:
		msg.Subject = "New rating"
		msg.Body = fmt.Sprintf("%s rated the consultation at %s with %s/5.", patient, when, ev.Data["rating"])
	default:
		msg.Subject = string(ev.Type)
		msg.Body = fmt.Sprintf("Update on appointment %s.", ev.AppointmentID)
	}
	return msg
}

// LogDispatcher writes notifications to the log instead of delivering them.
type LogDispatcher struct {
	log *zap.Logger
}

func NewLogDispatcher(log *zap.Logger) *LogDispatcher {
	return &LogDispatcher{log: log}
}

func (d *LogDispatcher) Dispatch(_ context.Context, ev events.Event, msg Message) error {
	d.log.Info("notification",
		zap.String("event_type", string(ev.Type)),
		zap.Stringer("appointment_id", ev.AppointmentID),
		zap.String("recipient_user_id", msg.RecipientUserID),
		zap.String("subject", msg.Subject),
		zap.String("body", msg.Body),
	)
	return nil
}
