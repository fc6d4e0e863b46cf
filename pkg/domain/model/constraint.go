package model

import (
	"time"
)

// ActivityConstraint is the static rule set limiting how often one
// activity may run. Zero values mean "no limit".
type ActivityConstraint struct {
	// MaxPerDay caps executions per calendar day (local time).
	// 0 means unlimited.
	MaxPerDay int

	// CooldownAfter requires a minimum elapsed time since the most
	// recent execution of another (or the same) activity.
	CooldownAfter map[string]time.Duration
}

// ConstraintSet maps activity names to their constraints. Activities
// without an entry are always eligible. Read-only at runtime.
type ConstraintSet map[string]ActivityConstraint

// For returns the constraint for the named activity, if any
func (c ConstraintSet) For(name string) (ActivityConstraint, bool) {
	constraint, ok := c[name]
	return constraint, ok
}
