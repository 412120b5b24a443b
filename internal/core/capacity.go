package core

import (
	"fmt"
	"strings"
	"time"
)

// WeekConflict describes one week where an admission would push a resource
// past the capacity ceiling.
type WeekConflict struct {
	WeekMonday time.Time `json:"week_monday"`
	Label      string    `json:"label"`
	Current    float64   `json:"current"`
	Attempted  float64   `json:"new"`
}

// CapacityError rejects an allocation attempt. It carries every offending
// week so callers can render all conflicts at once instead of just the first.
type CapacityError struct {
	ResourceID int64
	Weeks      []WeekConflict
}

func (e *CapacityError) Error() string {
	labels := make([]string, len(e.Weeks))
	for i, w := range e.Weeks {
		labels[i] = w.WeekMonday.Format("2006-01-02")
	}
	return fmt.Sprintf("resource %d over capacity in weeks: %s", e.ResourceID, strings.Join(labels, ", "))
}

// ExceedsCapacity reports whether adding pct to the current committed total
// breaks the ceiling, within the floating tolerance.
func ExceedsCapacity(current, pct float64) bool {
	return current+pct > CapacityCeiling+CapacityEpsilon
}
