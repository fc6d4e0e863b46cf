package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/secmon-lab/pippin/pkg/domain/interfaces"
	"github.com/secmon-lab/pippin/pkg/domain/model"
	"github.com/secmon-lab/pippin/pkg/domain/types"
)

type recordRepository struct {
	mu        sync.RWMutex
	records   []*model.ActivityRecord
	snapshots []*model.StateSnapshot
	nextID    types.RecordID
}

func newRecordRepository() *recordRepository {
	return &recordRepository{
		nextID: 1,
	}
}

func (r *recordRepository) Append(ctx context.Context, rec *model.ActivityRecord) (*model.ActivityRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored := rec.Clone()
	stored.ID = r.nextID
	r.nextID++
	if stored.Timestamp.IsZero() {
		stored.Timestamp = time.Now().UTC()
	}

	r.records = append(r.records, stored)
	return stored.Clone(), nil
}

func (r *recordRepository) AppendSnapshot(ctx context.Context, snap *model.StateSnapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored := *snap
	if stored.Timestamp.IsZero() {
		stored.Timestamp = time.Now().UTC()
	}

	r.snapshots = append(r.snapshots, &stored)
	return nil
}

func (r *recordRepository) LastTime(ctx context.Context, activity string) (*time.Time, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	// Records are held in insertion order, so the last match has the
	// maximum ID.
	for i := len(r.records) - 1; i >= 0; i-- {
		if r.records[i].Activity == activity {
			ts := r.records[i].Timestamp
			return &ts, nil
		}
	}

	return nil, nil
}

func (r *recordRepository) CountSince(ctx context.Context, activity string, since time.Time) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for _, rec := range r.records {
		if rec.Activity == activity && !rec.Timestamp.Before(since) {
			count++
		}
	}

	return count, nil
}

func (r *recordRepository) ListRecent(ctx context.Context, limit int) ([]*model.ActivityRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*model.ActivityRecord, 0, limit)
	for i := len(r.records) - 1; i >= 0 && len(result) < limit; i-- {
		result = append(result, r.records[i].Clone())
	}

	return result, nil
}

func (r *recordRepository) ListRecentByActivity(ctx context.Context, activity string, limit int) ([]*model.ActivityRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*model.ActivityRecord, 0, limit)
	for i := len(r.records) - 1; i >= 0 && len(result) < limit; i-- {
		if r.records[i].Activity == activity {
			result = append(result, r.records[i].Clone())
		}
	}

	return result, nil
}

func (r *recordRepository) FindSimilar(ctx context.Context, embedding []float32, topN int, opts interfaces.FindSimilarOptions) ([]*model.ScoredRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	candidates := make([]*model.ScoredRecord, 0)
	for _, rec := range r.records {
		if len(rec.Embedding) == 0 {
			continue
		}
		if opts.Activity != "" && rec.Activity != opts.Activity {
			continue
		}
		if opts.Source != "" && rec.Source != opts.Source {
			continue
		}
		candidates = append(candidates, &model.ScoredRecord{
			Record: rec.Clone(),
			Score:  model.CosineSimilarity(embedding, rec.Embedding),
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})

	if topN < len(candidates) {
		candidates = candidates[:topN]
	}

	return candidates, nil
}

func (r *recordRepository) Summary(ctx context.Context, since time.Time) ([]*model.ActivitySummary, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	byActivity := make(map[string]*model.ActivitySummary)
	for _, rec := range r.records {
		if rec.Timestamp.Before(since) {
			continue
		}
		s, ok := byActivity[rec.Activity]
		if !ok {
			s = &model.ActivitySummary{Activity: rec.Activity}
			byActivity[rec.Activity] = s
		}
		s.Count++
		s.TotalDurationSec += rec.DurationSec
	}

	result := make([]*model.ActivitySummary, 0, len(byActivity))
	for _, s := range byActivity {
		result = append(result, s)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Activity < result[j].Activity
	})

	return result, nil
}

func (r *recordRepository) ListSnapshots(ctx context.Context, limit int) ([]*model.StateSnapshot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*model.StateSnapshot, 0, limit)
	for i := len(r.snapshots) - 1; i >= 0 && len(result) < limit; i-- {
		snap := *r.snapshots[i]
		result = append(result, &snap)
	}

	return result, nil
}
