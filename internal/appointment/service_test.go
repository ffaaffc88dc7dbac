package appointment

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/hackgods/consultation-scheduling/internal/auth"
	"github.com/hackgods/consultation-scheduling/internal/config"
	"github.com/hackgods/consultation-scheduling/internal/events"
	"github.com/hackgods/consultation-scheduling/internal/slot"
)

func TestCreate_SnapshotsPriceAndStartsPending(t *testing.T) {
	f := newFixture(t, config.Config{})
	patient := f.addPatient(t)

	d := f.book(t, patient, baseNow.Add(3*time.Hour))

	if d.Status != StatusPendingPayment {
		t.Fatalf("expected PENDING_PAYMENT, got %s", d.Status)
	}
	if !d.Price.Equal(decimal.RequireFromString("150.50")) {
		t.Fatalf("expected price 150.50, got %s", d.Price)
	}
	if d.Patient.UserID != patient.UserID || d.Professional.ID != f.pro.ID {
		t.Fatalf("unexpected parties: %+v", d)
	}

	got, err := f.svc.Get(context.Background(), patient, d.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !got.ScheduledAt.Equal(baseNow.Add(3 * time.Hour)) {
		t.Fatalf("scheduled_at = %s", got.ScheduledAt)
	}

	if types := f.notifier.types(); len(types) != 1 || types[0] != events.TypeAppointmentCreated {
		t.Fatalf("expected one created event, got %v", types)
	}
}

func TestCreate_ConcurrentOverlappingRequestsHaveOneWinner(t *testing.T) {
	f := newFixture(t, config.Config{})
	base := baseNow.Add(4 * time.Hour)

	const n = 6
	patients := make([]auth.Caller, n)
	for i := range patients {
		patients[i] = f.addPatient(t)
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		winners   int
		conflicts int
		others    []error
	)
	start := make(chan struct{})

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start

			// Every start lies within 25 minutes of the others, so all
			// requested windows pairwise overlap.
			at := base.Add(time.Duration(i*5) * time.Minute)
			_, err := f.svc.Create(context.Background(), patients[i], CreateRequest{
				ProfessionalID: f.pro.ID,
				ScheduledAt:    at.Format(time.RFC3339),
			})

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				winners++
			case errors.Is(err, ErrSlotTaken):
				conflicts++
			default:
				others = append(others, err)
			}
		}(i)
	}
	close(start)
	wg.Wait()

	if len(others) > 0 {
		t.Fatalf("unexpected errors: %v", others)
	}
	if winners != 1 || conflicts != n-1 {
		t.Fatalf("expected 1 winner and %d conflicts, got %d and %d", n-1, winners, conflicts)
	}

	starts, err := f.repo.ListActiveStarts(context.Background(), f.pro.ID, base.Add(-time.Hour), base.Add(time.Hour))
	if err != nil {
		t.Fatalf("list starts: %v", err)
	}
	if len(starts) != 1 {
		t.Fatalf("expected one stored appointment, got %d", len(starts))
	}
}

func TestCreate_AdjacentSlotsDoNotConflict(t *testing.T) {
	f := newFixture(t, config.Config{})
	at := baseNow.Add(5 * time.Hour)

	f.book(t, f.addPatient(t), at)
	f.book(t, f.addPatient(t), at.Add(30*time.Minute))
	f.book(t, f.addPatient(t), at.Add(-30*time.Minute))

	_, err := f.svc.Create(context.Background(), f.addPatient(t), CreateRequest{
		ProfessionalID: f.pro.ID,
		ScheduledAt:    at.Add(29 * time.Minute).Format(time.RFC3339),
	})
	if !errors.Is(err, ErrSlotTaken) {
		t.Fatalf("expected slot taken for overlapping start, got %v", err)
	}
}

func TestCreate_OtherProfessionalsAreIndependent(t *testing.T) {
	f := newFixture(t, config.Config{})
	other := f.addProfessional(t, true)
	at := baseNow.Add(3 * time.Hour)

	f.book(t, f.addPatient(t), at)

	_, err := f.svc.Create(context.Background(), f.addPatient(t), CreateRequest{
		ProfessionalID: other.ID,
		ScheduledAt:    at.Format(time.RFC3339),
	})
	if err != nil {
		t.Fatalf("same slot with another professional: %v", err)
	}
}

func TestCreate_LeadTimeBoundary(t *testing.T) {
	f := newFixture(t, config.Config{})
	patient := f.addPatient(t)

	tests := []struct {
		name string
		at   time.Time
		want error
	}{
		{"past", baseNow.Add(-time.Minute), ErrBookingInPast},
		{"now", baseNow, ErrBookingInPast},
		{"119 minutes", baseNow.Add(119 * time.Minute), ErrInsufficientLeadTime},
		{"120 minutes", baseNow.Add(120 * time.Minute), nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Create(context.Background(), patient, CreateRequest{
				ProfessionalID: f.pro.ID,
				ScheduledAt:    tt.at.Format(time.RFC3339),
			})
			if tt.want == nil {
				if err != nil {
					t.Fatalf("expected success, got %v", err)
				}
				return
			}
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestCreate_RejectsBadInput(t *testing.T) {
	f := newFixture(t, config.Config{})
	patient := f.addPatient(t)
	inactive := f.addProfessional(t, false)
	at := baseNow.Add(3 * time.Hour).Format(time.RFC3339)

	tests := []struct {
		name   string
		caller auth.Caller
		req    CreateRequest
		want   error
	}{
		{"professional caller", f.proUser, CreateRequest{ProfessionalID: f.pro.ID, ScheduledAt: at}, ErrForbidden},
		{"missing patient profile", auth.Caller{UserID: uuid.New(), Role: auth.RolePatient}, CreateRequest{ProfessionalID: f.pro.ID, ScheduledAt: at}, ErrProfileIncomplete},
		{"garbage instant", patient, CreateRequest{ProfessionalID: f.pro.ID, ScheduledAt: "tomorrow"}, ErrInvalidScheduledAt},
		{"unknown professional", patient, CreateRequest{ProfessionalID: uuid.New(), ScheduledAt: at}, ErrProfessionalNotFound},
		{"inactive professional", patient, CreateRequest{ProfessionalID: inactive.ID, ScheduledAt: at}, ErrProfessionalInactive},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Create(context.Background(), tt.caller, tt.req)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestCancel_FreesSlotForRebooking(t *testing.T) {
	f := newFixture(t, config.Config{})
	first := f.addPatient(t)
	at := baseNow.Add(6 * time.Hour)

	d := f.book(t, first, at)

	canceled, err := f.svc.Cancel(context.Background(), first, d.ID)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if canceled.Status != StatusCanceled {
		t.Fatalf("expected CANCELED, got %s", canceled.Status)
	}

	f.book(t, f.addPatient(t), at)

	// The canceled row is kept.
	if _, err := f.svc.Get(context.Background(), first, d.ID); err != nil {
		t.Fatalf("canceled appointment should remain readable: %v", err)
	}
}

func TestLifecycle_FullPath(t *testing.T) {
	f := newFixture(t, config.Config{})
	patient := f.addPatient(t)
	ctx := context.Background()

	d := f.book(t, patient, baseNow.Add(3*time.Hour))

	if _, err := f.svc.Start(ctx, f.proUser, d.ID); !errors.Is(err, ErrInvalidStatusTransition) {
		t.Fatalf("start before confirm: expected invalid transition, got %v", err)
	}
	if _, err := f.svc.Confirm(ctx, patient, d.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("patient confirm: expected forbidden, got %v", err)
	}

	steps := []struct {
		name string
		run  func() (*AppointmentDetail, error)
		want Status
	}{
		{"confirm", func() (*AppointmentDetail, error) { return f.svc.Confirm(ctx, f.admin, d.ID) }, StatusScheduled},
		{"start", func() (*AppointmentDetail, error) { return f.svc.Start(ctx, f.proUser, d.ID) }, StatusInProgress},
		{"complete", func() (*AppointmentDetail, error) { return f.svc.Complete(ctx, f.proUser, d.ID) }, StatusCompleted},
	}
	for _, step := range steps {
		got, err := step.run()
		if err != nil {
			t.Fatalf("%s: %v", step.name, err)
		}
		if got.Status != step.want {
			t.Fatalf("%s: expected %s, got %s", step.name, step.want, got.Status)
		}
	}

	// Terminal states are closed.
	if _, err := f.svc.Cancel(ctx, patient, d.ID); !errors.Is(err, ErrInvalidStatusTransition) {
		t.Fatalf("cancel completed: expected invalid transition, got %v", err)
	}
	if _, err := f.svc.Complete(ctx, f.proUser, d.ID); !errors.Is(err, ErrInvalidStatusTransition) {
		t.Fatalf("complete twice: expected invalid transition, got %v", err)
	}
}

func TestCancel_InProgressIsRejected(t *testing.T) {
	f := newFixture(t, config.Config{})
	patient := f.addPatient(t)
	ctx := context.Background()

	d := f.book(t, patient, baseNow.Add(3*time.Hour))
	if _, err := f.svc.Confirm(ctx, f.admin, d.ID); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if _, err := f.svc.Start(ctx, f.proUser, d.ID); err != nil {
		t.Fatalf("start: %v", err)
	}

	if _, err := f.svc.Cancel(ctx, patient, d.ID); !errors.Is(err, ErrInvalidStatusTransition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}
}

func TestCancel_CanceledIsTerminal(t *testing.T) {
	f := newFixture(t, config.Config{})
	patient := f.addPatient(t)
	ctx := context.Background()

	d := f.book(t, patient, baseNow.Add(3*time.Hour))
	if _, err := f.svc.Cancel(ctx, patient, d.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	if _, err := f.svc.Cancel(ctx, patient, d.ID); !errors.Is(err, ErrInvalidStatusTransition) {
		t.Fatalf("cancel twice: expected invalid transition, got %v", err)
	}
	if _, err := f.svc.Complete(ctx, f.proUser, d.ID); !errors.Is(err, ErrInvalidStatusTransition) {
		t.Fatalf("complete canceled: expected invalid transition, got %v", err)
	}
	if !errors.Is(ErrInvalidStatusTransition, ErrInvalidState) {
		t.Fatalf("invalid transition must be an invalid state error")
	}
}

func TestLifecycle_PermissionsAndMissing(t *testing.T) {
	f := newFixture(t, config.Config{})
	owner := f.addPatient(t)
	stranger := f.addPatient(t)
	ctx := context.Background()

	d := f.book(t, owner, baseNow.Add(3*time.Hour))

	if _, err := f.svc.Cancel(ctx, stranger, d.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("stranger cancel: expected forbidden, got %v", err)
	}
	if _, err := f.svc.Get(ctx, stranger, d.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("stranger get: expected forbidden, got %v", err)
	}
	if _, err := f.svc.Complete(ctx, owner, d.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("patient complete: expected forbidden, got %v", err)
	}
	if _, err := f.svc.Cancel(ctx, owner, uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing appointment: expected not found, got %v", err)
	}

	if _, err := f.svc.Cancel(ctx, f.proUser, d.ID); err != nil {
		t.Fatalf("professional cancel: %v", err)
	}
}

func TestAttachVideoRoom(t *testing.T) {
	f := newFixture(t, config.Config{})
	patient := f.addPatient(t)
	ctx := context.Background()

	d := f.book(t, patient, baseNow.Add(3*time.Hour))

	if _, err := f.svc.AttachVideoRoom(ctx, patient, d.ID, "https://video.example.com/r/1"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("patient attach: expected forbidden, got %v", err)
	}
	if _, err := f.svc.AttachVideoRoom(ctx, f.admin, d.ID, "ftp://nope"); !errors.Is(err, ErrInvalidVideoRoomURL) {
		t.Fatalf("bad url: expected invalid url, got %v", err)
	}

	got, err := f.svc.AttachVideoRoom(ctx, f.admin, d.ID, "https://video.example.com/r/1")
	if err != nil {
		t.Fatalf("attach: %v", err)
	}
	if got.VideoRoomURL == nil || *got.VideoRoomURL != "https://video.example.com/r/1" {
		t.Fatalf("video room not stored: %+v", got.VideoRoomURL)
	}
}

func TestRate_OnlyCompletedAndIdempotent(t *testing.T) {
	f := newFixture(t, config.Config{})
	patient := f.addPatient(t)
	ctx := context.Background()

	d := f.book(t, patient, baseNow.Add(3*time.Hour))

	if _, err := f.svc.Rate(ctx, patient, d.ID, 5, nil); !errors.Is(err, ErrRatingNotAllowed) {
		t.Fatalf("rate pending: expected not allowed, got %v", err)
	}
	if _, err := f.svc.Complete(ctx, f.proUser, d.ID); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if _, err := f.svc.Rate(ctx, patient, d.ID, 6, nil); !errors.Is(err, ErrInvalidRating) {
		t.Fatalf("rate 6: expected invalid rating, got %v", err)
	}
	if _, err := f.svc.Rate(ctx, f.proUser, d.ID, 5, nil); !errors.Is(err, ErrForbidden) {
		t.Fatalf("professional rate: expected forbidden, got %v", err)
	}

	comment := "  helpful  "
	first, err := f.svc.Rate(ctx, patient, d.ID, 3, &comment)
	if err != nil {
		t.Fatalf("first rating: %v", err)
	}
	if first.Comment == nil || *first.Comment != "helpful" {
		t.Fatalf("comment not trimmed: %v", first.Comment)
	}

	second, err := f.svc.Rate(ctx, patient, d.ID, 5, nil)
	if err != nil {
		t.Fatalf("second rating: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("rating replaced instead of updated: %s vs %s", first.ID, second.ID)
	}
	if second.Value != 5 || second.Comment != nil {
		t.Fatalf("unexpected rating after update: %+v", second)
	}

	stored, err := f.svc.GetRating(ctx, f.proUser, d.ID)
	if err != nil {
		t.Fatalf("get rating: %v", err)
	}
	if stored.Value != 5 {
		t.Fatalf("expected stored value 5, got %d", stored.Value)
	}
}

func TestList_ScopesToCaller(t *testing.T) {
	f := newFixture(t, config.Config{})
	a := f.addPatient(t)
	b := f.addPatient(t)
	ctx := context.Background()

	f.book(t, a, baseNow.Add(3*time.Hour))
	f.book(t, a, baseNow.Add(4*time.Hour))
	f.book(t, b, baseNow.Add(5*time.Hour))

	mine, err := f.svc.List(ctx, a, ListFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(mine) != 2 {
		t.Fatalf("patient a should see 2, got %d", len(mine))
	}
	if !mine[0].ScheduledAt.After(mine[1].ScheduledAt) {
		t.Fatalf("expected newest first")
	}

	// A patient cannot widen the scope through the filter.
	other := b.UserID
	scoped, err := f.svc.List(ctx, a, ListFilter{PatientUserID: &other})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(scoped) != 2 {
		t.Fatalf("filter override leaked: got %d", len(scoped))
	}

	all, err := f.svc.List(ctx, f.proUser, ListFilter{Limit: 2})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("limit not applied: got %d", len(all))
	}
}

func TestCheckSlot(t *testing.T) {
	f := newFixture(t, config.Config{})
	at := baseNow.Add(3 * time.Hour)
	f.book(t, f.addPatient(t), at)

	taken, err := f.svc.CheckSlot(context.Background(), f.pro.ID, at.Add(10*time.Minute).Format(time.RFC3339))
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if taken.Available || taken.Reason != ErrSlotTaken.Reason {
		t.Fatalf("expected taken, got %+v", taken)
	}

	free, err := f.svc.CheckSlot(context.Background(), f.pro.ID, at.Add(30*time.Minute).Format(time.RFC3339))
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !free.Available {
		t.Fatalf("expected available, got %+v", free)
	}
}

// stallingRepo holds the booking transaction open after the insert until the
// context gives up.
type stallingRepo struct {
	*GormRepository
}

type stallingTx struct {
	BookingTx
}

func (r stallingRepo) WithinBookingTx(ctx context.Context, fn func(tx BookingTx) error) error {
	return r.GormRepository.WithinBookingTx(ctx, func(tx BookingTx) error {
		return fn(stallingTx{tx})
	})
}

func (tx stallingTx) InsertAppointment(ctx context.Context, a *Appointment) error {
	if err := tx.BookingTx.InsertAppointment(ctx, a); err != nil {
		return err
	}
	<-ctx.Done()
	return ctx.Err()
}

func TestCreate_TimeoutRollsBack(t *testing.T) {
	f := newFixture(t, config.Config{})
	patient := f.addPatient(t)
	at := baseNow.Add(3 * time.Hour)

	clock := slot.ClockFunc(func() time.Time { return baseNow })
	svc := NewService(stallingRepo{f.repo}, nil, config.Config{BookingTxTimeout: 50 * time.Millisecond}, zap.NewNop(), WithClock(clock))

	_, err := svc.Create(context.Background(), patient, CreateRequest{
		ProfessionalID: f.pro.ID,
		ScheduledAt:    at.Format(time.RFC3339),
	})
	if !errors.Is(err, ErrBookingTimeout) {
		t.Fatalf("expected booking timeout, got %v", err)
	}

	starts, err := f.repo.ListActiveStarts(context.Background(), f.pro.ID, at.Add(-time.Hour), at.Add(time.Hour))
	if err != nil {
		t.Fatalf("list starts: %v", err)
	}
	if len(starts) != 0 {
		t.Fatalf("timed out booking left %d rows behind", len(starts))
	}

	// The slot is still bookable.
	f.book(t, patient, at)
}

type failingPublisher struct{}

func (failingPublisher) Publish(context.Context, events.Event) error {
	return errors.New("broker down")
}

func (failingPublisher) Close() error { return nil }

func TestCreate_NotificationFailureDoesNotFailBooking(t *testing.T) {
	f := newFixture(t, config.Config{})
	patient := f.addPatient(t)

	emitter := events.NewEmitter(zap.NewNop(), time.Second, failingPublisher{})
	clock := slot.ClockFunc(func() time.Time { return baseNow })
	svc := NewService(f.repo, emitter, config.Config{}, zap.NewNop(), WithClock(clock))

	d, err := svc.Create(context.Background(), patient, CreateRequest{
		ProfessionalID: f.pro.ID,
		ScheduledAt:    baseNow.Add(3 * time.Hour).Format(time.RFC3339),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	emitter.Wait()

	if _, err := svc.Get(context.Background(), patient, d.ID); err != nil {
		t.Fatalf("booking should be persisted: %v", err)
	}
}

func TestEventLogPublisher_PersistsEvents(t *testing.T) {
	f := newFixture(t, config.Config{})
	patient := f.addPatient(t)

	emitter := events.NewEmitter(zap.NewNop(), time.Second, NewEventLogPublisher(f.repo))
	clock := slot.ClockFunc(func() time.Time { return baseNow })
	svc := NewService(f.repo, emitter, config.Config{}, zap.NewNop(), WithClock(clock))

	d, err := svc.Create(context.Background(), patient, CreateRequest{
		ProfessionalID: f.pro.ID,
		ScheduledAt:    baseNow.Add(3 * time.Hour).Format(time.RFC3339),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	emitter.Wait()

	var count int64
	if err := f.repo.db.Model(&eventLogRow{}).Where("appointment_id = ?", d.ID).Count(&count).Error; err != nil {
		t.Fatalf("count events: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 event log row, got %d", count)
	}
}

func TestScenario_ConflictCancelRetry(t *testing.T) {
	f := newFixture(t, config.Config{})
	first := f.addPatient(t)
	second := f.addPatient(t)
	ctx := context.Background()

	d := f.book(t, first, baseNow.Add(3*time.Hour))

	retry := CreateRequest{
		ProfessionalID: f.pro.ID,
		ScheduledAt:    baseNow.Add(3*time.Hour + 15*time.Minute).Format(time.RFC3339),
	}
	if _, err := f.svc.Create(ctx, second, retry); !errors.Is(err, ErrSlotTaken) {
		t.Fatalf("expected slot taken, got %v", err)
	}

	if _, err := f.svc.Cancel(ctx, first, d.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	got, err := f.svc.Create(ctx, second, retry)
	if err != nil {
		t.Fatalf("retry after cancel: %v", err)
	}
	if got.Status != StatusPendingPayment {
		t.Fatalf("expected PENDING_PAYMENT, got %s", got.Status)
	}
}

func TestScenario_CompleteThenReviseRating(t *testing.T) {
	f := newFixture(t, config.Config{})
	patient := f.addPatient(t)
	ctx := context.Background()

	d := f.book(t, patient, baseNow.Add(3*time.Hour))
	if _, err := f.svc.Confirm(ctx, f.admin, d.ID); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if _, err := f.svc.Complete(ctx, f.proUser, d.ID); err != nil {
		t.Fatalf("complete scheduled: %v", err)
	}

	great, revised := "great", "revised"
	first, err := f.svc.Rate(ctx, patient, d.ID, 5, &great)
	if err != nil {
		t.Fatalf("rate: %v", err)
	}
	second, err := f.svc.Rate(ctx, patient, d.ID, 3, &revised)
	if err != nil {
		t.Fatalf("revise: %v", err)
	}

	if second.ID != first.ID || second.Value != 3 || second.Comment == nil || *second.Comment != "revised" {
		t.Fatalf("unexpected revised rating: %+v", second)
	}

	var count int64
	if err := f.repo.db.Model(&ratingRow{}).Where("appointment_id = ?", d.ID).Count(&count).Error; err != nil {
		t.Fatalf("count ratings: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected one rating row, got %d", count)
	}

	types := f.notifier.types()
	if last := types[len(types)-1]; last != events.TypeRatingSubmitted {
		t.Fatalf("expected rating event last, got %s", last)
	}
}
