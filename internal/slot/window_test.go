package slot

import (
	"testing"
	"time"
)

func mustTime(t *testing.T, hour, min int) time.Time {
	t.Helper()
	return time.Date(2026, 3, 2, hour, min, 0, 0, time.UTC)
}

func TestWindowOverlaps(t *testing.T) {
	cases := []struct {
		name string
		a, b Window
		want bool
	}{
		{"adjacent after", At(mustTime(t, 9, 0), DefaultDuration), At(mustTime(t, 9, 30), DefaultDuration), false},
		{"adjacent before", At(mustTime(t, 9, 30), DefaultDuration), At(mustTime(t, 9, 0), DefaultDuration), false},
		{"partial", At(mustTime(t, 9, 15), DefaultDuration), At(mustTime(t, 9, 0), DefaultDuration), true},
		{"identical", At(mustTime(t, 9, 0), DefaultDuration), At(mustTime(t, 9, 0), DefaultDuration), true},
		{"one minute early", At(mustTime(t, 8, 31), DefaultDuration), At(mustTime(t, 9, 0), DefaultDuration), true},
		{"far apart", At(mustTime(t, 7, 0), DefaultDuration), At(mustTime(t, 9, 0), DefaultDuration), false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.a.Overlaps(tc.b); got != tc.want {
				t.Fatalf("Overlaps(%v, %v) = %v, want %v", tc.a, tc.b, got, tc.want)
			}
		})
	}
}

func TestAtNormalizesToUTC(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*60*60)
	w := At(time.Date(2026, 3, 2, 12, 0, 0, 0, loc), DefaultDuration)

	if w.Start.Location() != time.UTC {
		t.Fatalf("expected UTC start, got %v", w.Start.Location())
	}
	if !w.Start.Equal(mustTime(t, 9, 0)) {
		t.Fatalf("expected 09:00 UTC, got %v", w.Start)
	}
	if w.Duration() != DefaultDuration {
		t.Fatalf("expected duration %v, got %v", DefaultDuration, w.Duration())
	}
}

func TestAnyOverlap(t *testing.T) {
	candidate := At(mustTime(t, 9, 30), DefaultDuration)

	if AnyOverlap(candidate, []time.Time{mustTime(t, 9, 0), mustTime(t, 10, 0)}, DefaultDuration) {
		t.Fatalf("expected no overlap with neighbouring slots")
	}
	if !AnyOverlap(candidate, []time.Time{mustTime(t, 8, 0), mustTime(t, 9, 45)}, DefaultDuration) {
		t.Fatalf("expected overlap with 09:45 slot")
	}
	if AnyOverlap(candidate, nil, DefaultDuration) {
		t.Fatalf("expected no overlap with empty schedule")
	}
}

func TestPolicyLeadTime(t *testing.T) {
	p := DefaultPolicy()
	now := mustTime(t, 8, 0)

	if p.HasLeadTime(now, now.Add(119*time.Minute)) {
		t.Fatalf("119 minutes must be rejected")
	}
	if !p.HasLeadTime(now, now.Add(120*time.Minute)) {
		t.Fatalf("120 minutes must be accepted")
	}
	if !p.InPast(now, now) {
		t.Fatalf("now must count as past")
	}
	if p.InPast(now, now.Add(time.Second)) {
		t.Fatalf("one second ahead must not count as past")
	}
}

func TestPolicySearchRange(t *testing.T) {
	candidate := At(mustTime(t, 9, 0), DefaultDuration)

	from, to := DefaultPolicy().SearchRange(candidate)
	if !from.Equal(mustTime(t, 8, 30)) || !to.Equal(mustTime(t, 10, 0)) {
		t.Fatalf("unexpected default range %v - %v", from, to)
	}

	narrow := Policy{Duration: time.Hour, Prefilter: 10 * time.Minute}
	from, _ = narrow.SearchRange(At(mustTime(t, 9, 0), time.Hour))
	if !from.Equal(mustTime(t, 8, 0)) {
		t.Fatalf("lower bound must cover one full slot, got %v", from)
	}
}
