package model

import (
	"context"
	"sort"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/pippin/pkg/domain/types"
)

// RunFunc is the body of an activity. It may mutate the character state
// through CharacterState.Update and store notes through the memory
// handle. It returns a human-readable result text; a failure is an
// error, not a sentinel result.
type RunFunc func(ctx context.Context, state *CharacterState, mem MemoryHandle) (string, error)

// Activity is a named unit of behavior. Immutable once registered.
type Activity struct {
	Name     string
	Category types.Category
	Run      RunFunc
}

// MemoryHandle is the subset of the episodic memory store exposed to a
// running activity.
type MemoryHandle interface {
	// Note appends a free-form memory linked to the current execution
	Note(ctx context.Context, content string) (*ActivityRecord, error)

	// RecentByActivity returns the newest records of one activity
	RecentByActivity(ctx context.Context, activity string, limit int) ([]*ActivityRecord, error)

	// CountSince counts executions of one activity since the given time
	CountSince(ctx context.Context, activity string, since time.Time) (int, error)

	// FindSimilar ranks stored memories by similarity to the query text.
	// Returns an empty slice when no embedding backend is configured.
	FindSimilar(ctx context.Context, query string, topN int) ([]*ScoredRecord, error)
}

// Registry is the startup-time table of registered activities. The
// scheduler treats entries opaquely and iterates them in registration
// order.
type Registry struct {
	names  []string
	byName map[string]Activity
}

// NewRegistry builds a registry from the given activities. Names must
// be unique and every activity needs a Run function.
func NewRegistry(activities ...Activity) (*Registry, error) {
	r := &Registry{
		byName: make(map[string]Activity, len(activities)),
	}

	for _, act := range activities {
		if act.Name == "" {
			return nil, goerr.New("activity name is required")
		}
		if act.Run == nil {
			return nil, goerr.New("activity run function is required", goerr.V("name", act.Name))
		}
		if err := act.Category.Validate(); err != nil {
			return nil, goerr.Wrap(err, "invalid activity", goerr.V("name", act.Name))
		}
		if _, exists := r.byName[act.Name]; exists {
			return nil, goerr.New("duplicate activity name", goerr.V("name", act.Name))
		}
		r.names = append(r.names, act.Name)
		r.byName[act.Name] = act
	}

	return r, nil
}

// Get returns the activity registered under name
func (r *Registry) Get(name string) (Activity, bool) {
	act, ok := r.byName[name]
	return act, ok
}

// Names returns the registered activity names in registration order
func (r *Registry) Names() []string {
	names := make([]string, len(r.names))
	copy(names, r.names)
	return names
}

// List returns all registered activities in registration order
func (r *Registry) List() []Activity {
	activities := make([]Activity, 0, len(r.names))
	for _, name := range r.names {
		activities = append(activities, r.byName[name])
	}
	return activities
}

// Len returns the number of registered activities
func (r *Registry) Len() int {
	return len(r.names)
}

// SortedNames returns the registered activity names sorted
// alphabetically, for stable display output.
func (r *Registry) SortedNames() []string {
	names := r.Names()
	sort.Strings(names)
	return names
}
