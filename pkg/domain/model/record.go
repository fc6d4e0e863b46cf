package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/secmon-lab/pippin/pkg/domain/types"
)

// EmbeddingDimension is the dimension of the embedding vector attached
// to activity records
const EmbeddingDimension = 768

// RunID identifies one execution of an activity. All records written
// during the same execution (the execution record itself plus any notes
// the activity stores) share the RunID.
type RunID string

// NewRunID generates a new UUID v4 RunID
func NewRunID() RunID {
	return RunID(uuid.New().String())
}

// ActivityRecord is one row of the append-only episodic memory log:
// either the outcome of an activity execution or a free-form note
// stored during one. Records are immutable after creation.
type ActivityRecord struct {
	ID          types.RecordID     `json:"id"`
	RunID       RunID              `json:"run_id"`
	Timestamp   time.Time          `json:"timestamp"`
	Activity    string             `json:"activity"`
	Result      string             `json:"result"`
	StartTime   time.Time          `json:"start_time,omitzero"`
	EndTime     time.Time          `json:"end_time,omitzero"`
	DurationSec float64            `json:"duration_sec"`
	StateDelta  map[string]int     `json:"state_delta,omitempty"`
	StateAfter  *State             `json:"state_after,omitempty"`
	Embedding   []float32          `json:"-"`
	Source      types.RecordSource `json:"source"`
	ParentID    *types.RecordID    `json:"parent_id,omitempty"`
}

// Clone returns a deep copy of the record
func (r *ActivityRecord) Clone() *ActivityRecord {
	copied := *r
	if r.StateDelta != nil {
		copied.StateDelta = make(map[string]int, len(r.StateDelta))
		for k, v := range r.StateDelta {
			copied.StateDelta[k] = v
		}
	}
	if r.StateAfter != nil {
		after := *r.StateAfter
		copied.StateAfter = &after
	}
	if r.Embedding != nil {
		copied.Embedding = make([]float32, len(r.Embedding))
		copy(copied.Embedding, r.Embedding)
	}
	if r.ParentID != nil {
		parent := *r.ParentID
		copied.ParentID = &parent
	}
	return &copied
}

// ScoredRecord pairs a record with its similarity score against a query
type ScoredRecord struct {
	Record *ActivityRecord `json:"record"`
	Score  float64         `json:"score"`
}

// ActivitySummary aggregates executions of one activity over a window
type ActivitySummary struct {
	Activity         string  `json:"activity"`
	Count            int     `json:"count"`
	TotalDurationSec float64 `json:"total_duration_sec"`
}

// StateSnapshot is a periodic, standalone capture of the character
// state, written by the snapshot worker on a fixed interval. It is not
// linked to any activity record.
type StateSnapshot struct {
	Timestamp time.Time `json:"timestamp"`
	Energy    int       `json:"energy"`
	Happiness int       `json:"happiness"`
	XP        int       `json:"xp"`
}
