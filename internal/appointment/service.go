package appointment

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/hackgods/consultation-scheduling/internal/config"
	"github.com/hackgods/consultation-scheduling/internal/events"
	"github.com/hackgods/consultation-scheduling/internal/slot"
)

const defaultBookingTxTimeout = 10 * time.Second

// Notifier receives booking events. Implementations must not block and must
// not report delivery failures back to the service.
type Notifier interface {
	Emit(ev events.Event)
}

type nopNotifier struct{}

func (nopNotifier) Emit(events.Event) {}

type Service struct {
	repo      Repository
	notifier  Notifier
	policy    slot.Policy
	detector  ConflictDetector
	txTimeout time.Duration
	clock     slot.Clock
	log       *zap.Logger
	tracer    trace.Tracer
}

type Option func(*Service)

func WithClock(c slot.Clock) Option {
	return func(s *Service) { s.clock = c }
}

func NewService(repo Repository, notifier Notifier, cfg config.Config, log *zap.Logger, opts ...Option) *Service {
	policy := slot.DefaultPolicy()
	if cfg.SlotDuration > 0 {
		policy.Duration = cfg.SlotDuration
	}
	if cfg.BookingLeadTime > 0 {
		policy.LeadTime = cfg.BookingLeadTime
	}
	if cfg.ConflictPrefilter > 0 {
		policy.Prefilter = cfg.ConflictPrefilter
	}

	txTimeout := cfg.BookingTxTimeout
	if txTimeout <= 0 {
		txTimeout = defaultBookingTxTimeout
	}
	if notifier == nil {
		notifier = nopNotifier{}
	}
	if log == nil {
		log = zap.NewNop()
	}

	s := &Service{
		repo:      repo,
		notifier:  notifier,
		policy:    policy,
		detector:  NewConflictDetector(policy),
		txTimeout: txTimeout,
		clock:     slot.SystemClock{},
		log:       log,
		tracer:    otel.Tracer("github.com/hackgods/consultation-scheduling/internal/appointment"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Policy() slot.Policy { return s.policy }

func (s *Service) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(KindOf(err)))
	}
	span.End()
}

// emit hands an event for one side of the appointment to the notifier.
func (s *Service) emit(t events.Type, d *AppointmentDetail, audience events.Audience, data map[string]string) {
	recipient := d.Patient.UserID
	if audience == events.AudienceProfessional {
		recipient = d.Professional.UserID
	}
	if data == nil {
		data = make(map[string]string, 3)
	}
	data["scheduled_at"] = d.ScheduledAt.UTC().Format(time.RFC3339)
	data["professional_name"] = d.Professional.Name
	data["patient_name"] = d.Patient.Name

	s.notifier.Emit(events.New(t, d.ID, recipient, audience, data))
}
