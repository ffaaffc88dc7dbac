package slot

import "time"

// Clock abstracts the current instant so booking rules can be evaluated
// against a fixed time.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

// SystemClock reports wall-clock time in UTC.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// Policy holds the timing rules applied to every booking.
type Policy struct {
	Duration  time.Duration
	LeadTime  time.Duration
	Prefilter time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		Duration:  DefaultDuration,
		LeadTime:  DefaultLeadTime,
		Prefilter: DefaultPrefilter,
	}
}

// InPast reports whether start is not strictly after now.
func (p Policy) InPast(now, start time.Time) bool {
	return !start.After(now)
}

// HasLeadTime reports whether start is at least LeadTime after now. The
// boundary itself is bookable.
func (p Policy) HasLeadTime(now, start time.Time) bool {
	return !start.Before(now.Add(p.LeadTime))
}

// SearchRange is the range of slot starts that must be inspected to find every
// window overlapping candidate. The lower bound never shrinks below one slot
// duration, whatever the configured prefilter.
func (p Policy) SearchRange(candidate Window) (from, to time.Time) {
	before := p.Prefilter
	if before < p.Duration {
		before = p.Duration
	}
	r := candidate.Expand(before, p.Prefilter)
	return r.Start, r.End
}
