package episode

import (
	"context"
	"time"

	"github.com/secmon-lab/pippin/pkg/domain/interfaces"
	"github.com/secmon-lab/pippin/pkg/domain/model"
	"github.com/secmon-lab/pippin/pkg/domain/types"
)

// handle is the memory interface given to a running activity. Notes it
// stores share the execution's RunID so they stay linked to the
// enclosing execution record.
type handle struct {
	svc      *Service
	activity string
	runID    model.RunID
}

var _ model.MemoryHandle = &handle{}

// HandleFor returns the memory handle for one activity execution
func (s *Service) HandleFor(activity string, runID model.RunID) model.MemoryHandle {
	return &handle{
		svc:      s,
		activity: activity,
		runID:    runID,
	}
}

func (h *handle) Note(ctx context.Context, content string) (*model.ActivityRecord, error) {
	return h.svc.RecordNote(ctx, content, h.activity, types.SourceActivity, h.runID, nil)
}

func (h *handle) RecentByActivity(ctx context.Context, activity string, limit int) ([]*model.ActivityRecord, error) {
	return h.svc.RecentByActivity(ctx, activity, limit)
}

func (h *handle) CountSince(ctx context.Context, activity string, since time.Time) (int, error) {
	return h.svc.CountSince(ctx, activity, since)
}

func (h *handle) FindSimilar(ctx context.Context, query string, topN int) ([]*model.ScoredRecord, error) {
	return h.svc.FindSimilar(ctx, query, topN, interfaces.FindSimilarOptions{})
}
