package scheduler

import (
	"context"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/pippin/pkg/domain/model"
	"github.com/secmon-lab/pippin/pkg/service/episode"
)

// ConstraintEngine answers "may this activity run right now?" from the
// static constraint table and the append-only activity log. Activities
// without constraints (including unknown names) are always eligible.
type ConstraintEngine struct {
	constraints model.ConstraintSet
	episodes    *episode.Service
	now         func() time.Time
}

type ConstraintOption func(*ConstraintEngine)

// WithClock overrides the wall clock, for tests
func WithClock(now func() time.Time) ConstraintOption {
	return func(e *ConstraintEngine) {
		e.now = now
	}
}

func NewConstraintEngine(constraints model.ConstraintSet, episodes *episode.Service, opts ...ConstraintOption) *ConstraintEngine {
	e := &ConstraintEngine{
		constraints: constraints,
		episodes:    episodes,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// IsAllowed checks every constraint of the activity (AND semantics).
// Store errors propagate to the caller; the scheduler aborts the
// selection cycle on them rather than deciding from a stale view.
func (e *ConstraintEngine) IsAllowed(ctx context.Context, activity string) (bool, error) {
	constraint, ok := e.constraints.For(activity)
	if !ok {
		return true, nil
	}

	now := e.now()

	if constraint.MaxPerDay > 0 {
		startOfDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
		count, err := e.episodes.CountSince(ctx, activity, startOfDay)
		if err != nil {
			return false, goerr.Wrap(err, "failed to check daily frequency cap", goerr.V("activity", activity))
		}
		if count >= constraint.MaxPerDay {
			return false, nil
		}
	}

	for other, cooldown := range constraint.CooldownAfter {
		last, err := e.episodes.LastTime(ctx, other)
		if err != nil {
			return false, goerr.Wrap(err, "failed to check cooldown",
				goerr.V("activity", activity), goerr.V("after", other))
		}
		// No prior occurrence: the cooldown is vacuously satisfied
		if last == nil {
			continue
		}
		if now.Sub(*last) < cooldown {
			return false, nil
		}
	}

	return true, nil
}

// Eligible filters the registry down to activities currently allowed to
// run, preserving registration order.
func (e *ConstraintEngine) Eligible(ctx context.Context, registry *model.Registry) ([]model.Activity, error) {
	eligible := make([]model.Activity, 0, registry.Len())
	for _, act := range registry.List() {
		allowed, err := e.IsAllowed(ctx, act.Name)
		if err != nil {
			return nil, err
		}
		if allowed {
			eligible = append(eligible, act)
		}
	}
	return eligible, nil
}
