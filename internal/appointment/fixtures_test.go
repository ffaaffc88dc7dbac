package appointment

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/hackgods/consultation-scheduling/internal/auth"
	"github.com/hackgods/consultation-scheduling/internal/config"
	"github.com/hackgods/consultation-scheduling/internal/db"
	"github.com/hackgods/consultation-scheduling/internal/events"
	"github.com/hackgods/consultation-scheduling/internal/slot"
)

// baseNow is the fixed "current time" used by service tests.
var baseNow = time.Date(2030, 3, 4, 8, 0, 0, 0, time.UTC)

type recordingNotifier struct {
	mu     sync.Mutex
	events []events.Event
}

func (n *recordingNotifier) Emit(ev events.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
}

func (n *recordingNotifier) types() []events.Type {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]events.Type, 0, len(n.events))
	for _, ev := range n.events {
		out = append(out, ev.Type)
	}
	return out
}

type fixture struct {
	repo     *GormRepository
	svc      *Service
	notifier *recordingNotifier
	pro      *Professional
	proUser  auth.Caller
	admin    auth.Caller
}

func newGormRepo(t *testing.T) *GormRepository {
	t.Helper()

	gdb, err := db.OpenGormSQLite(filepath.Join(t.TempDir(), "appointments.db"), zap.NewNop())
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := gdb.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	repo := NewGormRepository(gdb)
	if err := repo.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return repo
}

func newFixture(t *testing.T, cfg config.Config) *fixture {
	t.Helper()

	repo := newGormRepo(t)
	notifier := &recordingNotifier{}
	clock := slot.ClockFunc(func() time.Time { return baseNow })

	f := &fixture{
		repo:     repo,
		svc:      NewService(repo, notifier, cfg, zap.NewNop(), WithClock(clock)),
		notifier: notifier,
		admin:    auth.Caller{UserID: uuid.New(), Role: auth.RoleAdmin},
	}
	f.pro = f.addProfessional(t, true)
	f.proUser = auth.Caller{UserID: f.pro.UserID, Role: auth.RoleProfessional}
	return f
}

func (f *fixture) addPatient(t *testing.T) auth.Caller {
	t.Helper()

	email := gofakeit.Email()
	p := &Patient{UserID: uuid.New(), Name: gofakeit.Name(), Email: &email}
	if err := f.repo.CreatePatient(context.Background(), p); err != nil {
		t.Fatalf("create patient: %v", err)
	}
	return auth.Caller{UserID: p.UserID, Role: auth.RolePatient}
}

func (f *fixture) addProfessional(t *testing.T, active bool) *Professional {
	t.Helper()

	p := &Professional{
		UserID:      uuid.New(),
		Name:        gofakeit.Name(),
		HourlyPrice: decimal.RequireFromString("150.50"),
		Active:      active,
		Specialties: []string{"psychology", "nutrition"},
	}
	if err := f.repo.CreateProfessional(context.Background(), p); err != nil {
		t.Fatalf("create professional: %v", err)
	}
	return p
}

func (f *fixture) book(t *testing.T, patient auth.Caller, at time.Time) *AppointmentDetail {
	t.Helper()

	d, err := f.svc.Create(context.Background(), patient, CreateRequest{
		ProfessionalID: f.pro.ID,
		ScheduledAt:    at.Format(time.RFC3339),
	})
	if err != nil {
		t.Fatalf("create at %s: %v", at.Format(time.RFC3339), err)
	}
	return d
}
