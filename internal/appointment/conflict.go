package appointment

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/consultation-scheduling/internal/slot"
)

// ConflictDetector decides whether a candidate slot collides with an existing
// non-canceled appointment of the same professional. The store query is only a
// pre-filter; the decision is the exact half-open overlap test.
type ConflictDetector struct {
	policy slot.Policy
}

func NewConflictDetector(p slot.Policy) ConflictDetector {
	return ConflictDetector{policy: p}
}

func (d ConflictDetector) HasConflict(ctx context.Context, r WindowReader, professionalID uuid.UUID, start time.Time) (bool, error) {
	candidate := slot.At(start, d.policy.Duration)
	from, to := d.policy.SearchRange(candidate)

	starts, err := r.ListActiveStarts(ctx, professionalID, from, to)
	if err != nil {
		return false, fmt.Errorf("list active appointments: %w", err)
	}

	return slot.AnyOverlap(candidate, starts, d.policy.Duration), nil
}
