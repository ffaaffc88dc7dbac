package appointment

import (
	"context"

	"github.com/hackgods/consultation-scheduling/internal/events"
)

// EventLogPublisher records every emitted event in the event_logs table.
type EventLogPublisher struct {
	repo Repository
}

func NewEventLogPublisher(repo Repository) *EventLogPublisher {
	return &EventLogPublisher{repo: repo}
}

func (p *EventLogPublisher) Publish(ctx context.Context, ev events.Event) error {
	payload, err := ev.Encode()
	if err != nil {
		return err
	}

	apptID := ev.AppointmentID
	return p.repo.InsertEvent(ctx, EventLog{
		EventType:     string(ev.Type),
		AppointmentID: &apptID,
		Payload:       payload,
		CreatedAt:     ev.OccurredAt,
	})
}

func (p *EventLogPublisher) Close() error { return nil }
