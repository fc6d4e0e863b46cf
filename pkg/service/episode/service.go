package episode

import (
	"context"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/pippin/pkg/domain/interfaces"
	"github.com/secmon-lab/pippin/pkg/domain/model"
	"github.com/secmon-lab/pippin/pkg/domain/types"
	"github.com/secmon-lab/pippin/pkg/utils/logging"
)

// Service is the episodic memory store: it enriches appended records
// with embeddings and fronts the repository's query operations.
//
// The embedder is optional. Without one, records are appended without
// embeddings and similarity search returns empty results; appends are
// never blocked by embedding failures.
type Service struct {
	repo     interfaces.Repository
	embedder interfaces.Embedder
}

type Option func(*Service)

// WithEmbedder enables semantic similarity search
func WithEmbedder(embedder interfaces.Embedder) Option {
	return func(s *Service) {
		s.embedder = embedder
	}
}

func New(repo interfaces.Repository, opts ...Option) *Service {
	s := &Service{
		repo: repo,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// embed computes an embedding for the text, degrading to nil when no
// embedder is configured or the backend fails.
func (s *Service) embed(ctx context.Context, text string) []float32 {
	if s.embedder == nil || text == "" {
		return nil
	}

	embedding, err := s.embedder.Embed(ctx, text)
	if err != nil {
		logging.From(ctx).Warn("failed to compute embedding, storing record without one",
			"error", err.Error())
		return nil
	}

	return embedding
}

// RecordExecution appends the outcome of one activity execution
func (s *Service) RecordExecution(ctx context.Context, rec *model.ActivityRecord) (*model.ActivityRecord, error) {
	rec.Embedding = s.embed(ctx, rec.Result)

	stored, err := s.repo.Records().Append(ctx, rec)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to record execution", goerr.V("activity", rec.Activity))
	}

	return stored, nil
}

// RecordNote appends a free-form memory, optionally linked to the
// execution it was stored during (shared runID) or to an existing
// record (parentID).
func (s *Service) RecordNote(ctx context.Context, content, activity string, source types.RecordSource, runID model.RunID, parentID *types.RecordID) (*model.ActivityRecord, error) {
	if err := source.Validate(); err != nil {
		return nil, err
	}

	rec := &model.ActivityRecord{
		RunID:     runID,
		Activity:  activity,
		Result:    content,
		Embedding: s.embed(ctx, content),
		Source:    source,
		ParentID:  parentID,
	}

	stored, err := s.repo.Records().Append(ctx, rec)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to record note", goerr.V("activity", activity))
	}

	return stored, nil
}

// RecordSnapshot appends a standalone state snapshot row
func (s *Service) RecordSnapshot(ctx context.Context, state model.State) error {
	snap := state.Snapshot(time.Now().UTC())
	if err := s.repo.Records().AppendSnapshot(ctx, snap); err != nil {
		return goerr.Wrap(err, "failed to record state snapshot")
	}
	return nil
}

// LastTime returns when the activity most recently ran, nil if never
func (s *Service) LastTime(ctx context.Context, activity string) (*time.Time, error) {
	return s.repo.Records().LastTime(ctx, activity)
}

// CountSince counts executions of the activity since the given time
func (s *Service) CountSince(ctx context.Context, activity string, since time.Time) (int, error) {
	return s.repo.Records().CountSince(ctx, activity, since)
}

// Recent returns the newest records, newest first
func (s *Service) Recent(ctx context.Context, limit int) ([]*model.ActivityRecord, error) {
	return s.repo.Records().ListRecent(ctx, limit)
}

// RecentByActivity returns the newest records of one activity
func (s *Service) RecentByActivity(ctx context.Context, activity string, limit int) ([]*model.ActivityRecord, error) {
	return s.repo.Records().ListRecentByActivity(ctx, activity, limit)
}

// Summary aggregates per-activity counts and durations since the given time
func (s *Service) Summary(ctx context.Context, since time.Time) ([]*model.ActivitySummary, error) {
	return s.repo.Records().Summary(ctx, since)
}

// Snapshots returns the newest state snapshots, newest first
func (s *Service) Snapshots(ctx context.Context, limit int) ([]*model.StateSnapshot, error) {
	return s.repo.Records().ListSnapshots(ctx, limit)
}

// FindSimilar embeds the query text and ranks stored memories by cosine
// similarity. Returns an empty slice when no embedder is configured.
func (s *Service) FindSimilar(ctx context.Context, query string, topN int, opts interfaces.FindSimilarOptions) ([]*model.ScoredRecord, error) {
	if s.embedder == nil {
		return []*model.ScoredRecord{}, nil
	}

	embedding, err := s.embedder.Embed(ctx, query)
	if err != nil {
		logging.From(ctx).Warn("failed to embed similarity query, returning no results",
			"error", err.Error())
		return []*model.ScoredRecord{}, nil
	}

	return s.repo.Records().FindSimilar(ctx, embedding, topN, opts)
}
