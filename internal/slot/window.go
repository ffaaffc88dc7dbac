package slot

import "time"

const (
	// DefaultDuration is the length of every consultation slot.
	DefaultDuration = 30 * time.Minute
	// DefaultLeadTime is the minimum gap between now and a bookable slot start.
	DefaultLeadTime = 2 * time.Hour
	// DefaultPrefilter widens the conflict query around a candidate window.
	DefaultPrefilter = 30 * time.Minute
)

// Window is the half-open interval [Start, End) an appointment occupies.
type Window struct {
	Start time.Time
	End   time.Time
}

// At returns the window starting at start and lasting d.
func At(start time.Time, d time.Duration) Window {
	start = start.UTC()
	return Window{Start: start, End: start.Add(d)}
}

// Overlaps reports whether w and o share any instant. Windows that only touch
// at an edge do not overlap.
func (w Window) Overlaps(o Window) bool {
	return w.Start.Before(o.End) && w.End.After(o.Start)
}

// Expand grows the window by before at the start and after at the end.
func (w Window) Expand(before, after time.Duration) Window {
	return Window{Start: w.Start.Add(-before), End: w.End.Add(after)}
}

func (w Window) Duration() time.Duration {
	return w.End.Sub(w.Start)
}

// AnyOverlap reports whether candidate overlaps any window of length d that
// starts at one of starts.
func AnyOverlap(candidate Window, starts []time.Time, d time.Duration) bool {
	for _, s := range starts {
		if candidate.Overlaps(At(s, d)) {
			return true
		}
	}
	return false
}
