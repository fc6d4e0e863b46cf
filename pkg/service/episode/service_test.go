package episode_test

import (
	"context"
	"testing"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/pippin/pkg/domain/interfaces"
	"github.com/secmon-lab/pippin/pkg/domain/model"
	"github.com/secmon-lab/pippin/pkg/domain/types"
	"github.com/secmon-lab/pippin/pkg/repository/memory"
	"github.com/secmon-lab/pippin/pkg/service/episode"
)

// stubEmbedder maps known texts to fixed vectors
type stubEmbedder struct {
	vectors map[string][]float32
	err     error
}

func (e *stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	if v, ok := e.vectors[text]; ok {
		return v, nil
	}
	return []float32{0, 0, 1}, nil
}

func TestRecordExecution(t *testing.T) {
	t.Run("embeds the result text", func(t *testing.T) {
		repo := memory.New()
		embedder := &stubEmbedder{vectors: map[string][]float32{
			"sketched a fox": {1, 0, 0},
		}}
		svc := episode.New(repo, episode.WithEmbedder(embedder))

		stored, err := svc.RecordExecution(context.Background(), &model.ActivityRecord{
			RunID:    model.NewRunID(),
			Activity: "draw",
			Result:   "sketched a fox",
			Source:   types.SourceCoreLoop,
		})
		gt.NoError(t, err).Required()
		gt.Array(t, stored.Embedding).Length(3)
		gt.Value(t, stored.Embedding[0]).Equal(float32(1))
	})

	t.Run("stores without embedding when no embedder is set", func(t *testing.T) {
		repo := memory.New()
		svc := episode.New(repo)

		stored, err := svc.RecordExecution(context.Background(), &model.ActivityRecord{
			RunID:    model.NewRunID(),
			Activity: "nap",
			Result:   "rested",
			Source:   types.SourceCoreLoop,
		})
		gt.NoError(t, err).Required()
		gt.Value(t, stored.Embedding).Nil()
	})

	t.Run("embedding failure does not block the append", func(t *testing.T) {
		repo := memory.New()
		embedder := &stubEmbedder{err: goerr.New("backend unavailable")}
		svc := episode.New(repo, episode.WithEmbedder(embedder))

		stored, err := svc.RecordExecution(context.Background(), &model.ActivityRecord{
			RunID:    model.NewRunID(),
			Activity: "nap",
			Result:   "rested",
			Source:   types.SourceCoreLoop,
		})
		gt.NoError(t, err).Required()
		gt.Value(t, stored.Embedding).Nil()
	})
}

func TestRecordNote(t *testing.T) {
	t.Run("rejects an unknown source", func(t *testing.T) {
		repo := memory.New()
		svc := episode.New(repo)

		_, err := svc.RecordNote(context.Background(), "note", "draw", types.RecordSource("webhook"), model.NewRunID(), nil)
		gt.Error(t, err)
	})

	t.Run("links to a parent record", func(t *testing.T) {
		repo := memory.New()
		svc := episode.New(repo)
		ctx := context.Background()

		parent, err := svc.RecordExecution(ctx, &model.ActivityRecord{
			RunID:    model.NewRunID(),
			Activity: "draw",
			Result:   "completed",
			Source:   types.SourceCoreLoop,
		})
		gt.NoError(t, err).Required()

		note, err := svc.RecordNote(ctx, "follow-up thought", "draw", types.SourceAPI, model.NewRunID(), &parent.ID)
		gt.NoError(t, err).Required()
		gt.Value(t, note.ParentID).NotNil()
		gt.Value(t, *note.ParentID).Equal(parent.ID)
	})
}

func TestHandleFor(t *testing.T) {
	repo := memory.New()
	svc := episode.New(repo)
	ctx := context.Background()

	runID := model.NewRunID()
	handle := svc.HandleFor("draw", runID)

	note, err := handle.Note(ctx, "mixing a new green")
	gt.NoError(t, err).Required()
	gt.Value(t, note.Activity).Equal("draw")
	gt.Value(t, note.RunID).Equal(runID)
	gt.Value(t, note.Source).Equal(types.SourceActivity)
	gt.Value(t, note.ParentID).Nil()

	count, err := handle.CountSince(ctx, "draw", time.Time{})
	gt.NoError(t, err).Required()
	gt.Value(t, count).Equal(1)

	recent, err := handle.RecentByActivity(ctx, "draw", 5)
	gt.NoError(t, err).Required()
	gt.Array(t, recent).Length(1)
}

func TestFindSimilar(t *testing.T) {
	t.Run("returns empty without an embedder", func(t *testing.T) {
		repo := memory.New()
		svc := episode.New(repo)

		scored, err := svc.FindSimilar(context.Background(), "fox", 5, interfaces.FindSimilarOptions{})
		gt.NoError(t, err).Required()
		gt.Array(t, scored).Length(0)
	})

	t.Run("returns empty when the query embedding fails", func(t *testing.T) {
		repo := memory.New()
		svc := episode.New(repo, episode.WithEmbedder(&stubEmbedder{err: goerr.New("backend unavailable")}))

		scored, err := svc.FindSimilar(context.Background(), "fox", 5, interfaces.FindSimilarOptions{})
		gt.NoError(t, err).Required()
		gt.Array(t, scored).Length(0)
	})

	t.Run("ranks stored memories against the query", func(t *testing.T) {
		repo := memory.New()
		embedder := &stubEmbedder{vectors: map[string][]float32{
			"a red fox":   {1, 0, 0},
			"rainy day":   {0, 1, 0},
			"fox at dusk": {0.9, 0.1, 0},
			"fox":         {1, 0, 0},
		}}
		svc := episode.New(repo, episode.WithEmbedder(embedder))
		ctx := context.Background()

		for _, text := range []string{"a red fox", "rainy day", "fox at dusk"} {
			_, err := svc.RecordNote(ctx, text, "draw", types.SourceActivity, model.NewRunID(), nil)
			gt.NoError(t, err).Required()
		}

		scored, err := svc.FindSimilar(ctx, "fox", 2, interfaces.FindSimilarOptions{})
		gt.NoError(t, err).Required()
		gt.Array(t, scored).Length(2)
		gt.Value(t, scored[0].Record.Result).Equal("a red fox")
		gt.Value(t, scored[1].Record.Result).Equal("fox at dusk")
	})
}

func TestRecordSnapshot(t *testing.T) {
	repo := memory.New()
	svc := episode.New(repo)
	ctx := context.Background()

	err := svc.RecordSnapshot(ctx, model.State{Energy: 80, Happiness: 55, XP: 7})
	gt.NoError(t, err).Required()

	snaps, err := svc.Snapshots(ctx, 10)
	gt.NoError(t, err).Required()
	gt.Array(t, snaps).Length(1)
	gt.Value(t, snaps[0].Energy).Equal(80)
	gt.Value(t, snaps[0].Happiness).Equal(55)
	gt.Value(t, snaps[0].XP).Equal(7)
	gt.Bool(t, snaps[0].Timestamp.IsZero()).False()
}
