package events

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Emitter fans events out to its publishers in the background. Emit never
// blocks on a transport and never reports a failure to its caller; failures
// are logged here and go no further.
type Emitter struct {
	sinks   []Publisher
	timeout time.Duration
	log     *zap.Logger
	wg      sync.WaitGroup
}

func NewEmitter(log *zap.Logger, timeout time.Duration, sinks ...Publisher) *Emitter {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Emitter{
		sinks:   sinks,
		timeout: timeout,
		log:     log,
	}
}

func (e *Emitter) Emit(ev Event) {
	for _, sink := range e.sinks {
		e.wg.Add(1)
		go e.publish(sink, ev)
	}
}

func (e *Emitter) publish(sink Publisher, ev Event) {
	defer e.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("event publisher panicked",
				zap.String("event_type", string(ev.Type)),
				zap.Stringer("appointment_id", ev.AppointmentID),
				zap.Any("panic", r),
			)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
	defer cancel()

	if err := sink.Publish(ctx, ev); err != nil {
		e.log.Warn("failed to publish event",
			zap.String("event_type", string(ev.Type)),
			zap.Stringer("appointment_id", ev.AppointmentID),
			zap.Error(err),
		)
	}
}

// Wait blocks until every in-flight publish has finished.
func (e *Emitter) Wait() {
	e.wg.Wait()
}

// Close drains in-flight publishes and closes every publisher.
func (e *Emitter) Close() error {
	e.Wait()

	var errs []error
	for _, sink := range e.sinks {
		if err := sink.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
