package interfaces

import (
	"context"
	"time"

	"github.com/secmon-lab/pippin/pkg/domain/model"
	"github.com/secmon-lab/pippin/pkg/domain/types"
)

// FindSimilarOptions narrows a similarity query to one activity and/or
// record source. Zero values mean "no filter".
type FindSimilarOptions struct {
	Activity string
	Source   types.RecordSource
}

// RecordRepository is the append-only episodic memory log. Rows are
// immutable once appended; there are no update or delete operations.
// Appends must be atomic under concurrent in-process writers, and
// assigned IDs must be monotonic so that insertion order is observable.
type RecordRepository interface {
	// Append stores a record, assigns its ID (and timestamp when unset),
	// and returns the stored copy.
	Append(ctx context.Context, rec *model.ActivityRecord) (*model.ActivityRecord, error)

	// AppendSnapshot stores an independent state snapshot row
	AppendSnapshot(ctx context.Context, snap *model.StateSnapshot) error

	// LastTime returns the timestamp of the newest record (by ID) for
	// the activity, or nil when none exists.
	LastTime(ctx context.Context, activity string) (*time.Time, error)

	// CountSince counts records of one activity with timestamp >= since
	CountSince(ctx context.Context, activity string, since time.Time) (int, error)

	// ListRecent returns the newest records first, at most limit
	ListRecent(ctx context.Context, limit int) ([]*model.ActivityRecord, error)

	// ListRecentByActivity is ListRecent filtered to one activity
	ListRecentByActivity(ctx context.Context, activity string, limit int) ([]*model.ActivityRecord, error)

	// FindSimilar performs similarity search over rows with embeddings,
	// returning up to topN records ordered by descending cosine score.
	FindSimilar(ctx context.Context, embedding []float32, topN int, opts FindSimilarOptions) ([]*model.ScoredRecord, error)

	// Summary aggregates per-activity execution counts and durations
	// for records with timestamp >= since, ordered by activity name.
	Summary(ctx context.Context, since time.Time) ([]*model.ActivitySummary, error)

	// ListSnapshots returns the newest snapshots first, at most limit
	ListSnapshots(ctx context.Context, limit int) ([]*model.StateSnapshot, error)
}
