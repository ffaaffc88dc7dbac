package events

import (
	"context"

	"go.uber.org/zap"
)

// LogPublisher only logs events. Used for local runs without a broker.
type LogPublisher struct {
	log *zap.Logger
}

func NewLogPublisher(log *zap.Logger) *LogPublisher {
	return &LogPublisher{log: log}
}

func (p *LogPublisher) Publish(_ context.Context, ev Event) error {
	p.log.Info("event",
		zap.String("event_type", string(ev.Type)),
		zap.Stringer("appointment_id", ev.AppointmentID),
		zap.Stringer("recipient_user_id", ev.RecipientUserID),
		zap.String("audience", string(ev.Audience)),
	)
	return nil
}

func (p *LogPublisher) Close() error { return nil }
