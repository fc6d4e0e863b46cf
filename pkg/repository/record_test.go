package repository_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/pippin/pkg/domain/interfaces"
	"github.com/secmon-lab/pippin/pkg/domain/model"
	"github.com/secmon-lab/pippin/pkg/domain/types"
	"github.com/secmon-lab/pippin/pkg/repository/firestore"
	"github.com/secmon-lab/pippin/pkg/repository/memory"
	"github.com/secmon-lab/pippin/pkg/repository/sqlite"
)

// vec builds a full-dimension embedding carrying its signal in the
// first three components, so the same fixture works against backends
// with a fixed vector index dimension.
func vec(x, y, z float32) []float32 {
	v := make([]float32, model.EmbeddingDimension)
	v[0], v[1], v[2] = x, y, z
	return v
}

func newRecord(activity, result string) *model.ActivityRecord {
	return &model.ActivityRecord{
		RunID:    model.NewRunID(),
		Activity: activity,
		Result:   result,
		Source:   types.SourceCoreLoop,
	}
}

func runRecordRepositoryTest(t *testing.T, newRepo func(t *testing.T) interfaces.Repository) {
	t.Helper()

	t.Run("Append assigns monotonic IDs and preserves fields", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		after := model.State{Energy: 90, Happiness: 60, XP: 5}
		rec := &model.ActivityRecord{
			RunID:       model.NewRunID(),
			Activity:    "draw",
			Result:      "completed",
			DurationSec: 2.5,
			StateDelta:  map[string]int{"energy": 90, "xp": 5},
			StateAfter:  &after,
			Embedding:   vec(1, 0, 0),
			Source:      types.SourceCoreLoop,
		}

		first, err := repo.Records().Append(ctx, rec)
		gt.NoError(t, err).Required()
		gt.Bool(t, first.ID > 0).True()
		gt.Value(t, first.Activity).Equal("draw")
		gt.Value(t, first.Result).Equal("completed")
		gt.Value(t, first.DurationSec).Equal(2.5)
		gt.Value(t, first.StateDelta["xp"]).Equal(5)
		gt.Value(t, first.StateAfter.Energy).Equal(90)
		gt.Value(t, first.Source).Equal(types.SourceCoreLoop)
		gt.Bool(t, first.Timestamp.IsZero()).False()

		second, err := repo.Records().Append(ctx, newRecord("nap", "completed"))
		gt.NoError(t, err).Required()
		gt.Bool(t, second.ID > first.ID).True()
	})

	t.Run("Append keeps an explicit timestamp", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		ts := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
		rec := newRecord("nap", "completed")
		rec.Timestamp = ts

		stored, err := repo.Records().Append(ctx, rec)
		gt.NoError(t, err).Required()
		gt.Bool(t, stored.Timestamp.Equal(ts)).True()
	})

	t.Run("LastTime returns nil when no record exists", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		last, err := repo.Records().LastTime(ctx, "draw")
		gt.NoError(t, err).Required()
		gt.Value(t, last).Nil()
	})

	t.Run("LastTime follows insertion order, not timestamps", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		older := newRecord("draw", "completed")
		older.Timestamp = time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
		_, err := repo.Records().Append(ctx, older)
		gt.NoError(t, err).Required()

		// Appended later but with an earlier wall-clock timestamp
		newer := newRecord("draw", "completed")
		newer.Timestamp = time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
		_, err = repo.Records().Append(ctx, newer)
		gt.NoError(t, err).Required()

		last, err := repo.Records().LastTime(ctx, "draw")
		gt.NoError(t, err).Required()
		gt.Value(t, last).NotNil()
		gt.Bool(t, last.Equal(newer.Timestamp)).True()
	})

	t.Run("CountSince filters by activity and window", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
		for i := 0; i < 3; i++ {
			rec := newRecord("draw", "completed")
			rec.Timestamp = base.Add(time.Duration(i) * time.Hour)
			_, err := repo.Records().Append(ctx, rec)
			gt.NoError(t, err).Required()
		}
		other := newRecord("nap", "completed")
		other.Timestamp = base.Add(time.Hour)
		_, err := repo.Records().Append(ctx, other)
		gt.NoError(t, err).Required()

		count, err := repo.Records().CountSince(ctx, "draw", base)
		gt.NoError(t, err).Required()
		gt.Value(t, count).Equal(3)

		// since is inclusive
		count, err = repo.Records().CountSince(ctx, "draw", base.Add(time.Hour))
		gt.NoError(t, err).Required()
		gt.Value(t, count).Equal(2)

		count, err = repo.Records().CountSince(ctx, "draw", base.Add(24*time.Hour))
		gt.NoError(t, err).Required()
		gt.Value(t, count).Equal(0)
	})

	t.Run("ListRecent returns newest first with limit", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		for i := 0; i < 5; i++ {
			_, err := repo.Records().Append(ctx, newRecord(fmt.Sprintf("act-%d", i), "completed"))
			gt.NoError(t, err).Required()
		}

		records, err := repo.Records().ListRecent(ctx, 3)
		gt.NoError(t, err).Required()
		gt.Array(t, records).Length(3)
		gt.Value(t, records[0].Activity).Equal("act-4")
		gt.Value(t, records[1].Activity).Equal("act-3")
		gt.Value(t, records[2].Activity).Equal("act-2")
	})

	t.Run("ListRecentByActivity filters to one activity", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		for i := 0; i < 3; i++ {
			_, err := repo.Records().Append(ctx, newRecord("draw", fmt.Sprintf("sketch %d", i)))
			gt.NoError(t, err).Required()
			_, err = repo.Records().Append(ctx, newRecord("nap", "completed"))
			gt.NoError(t, err).Required()
		}

		records, err := repo.Records().ListRecentByActivity(ctx, "draw", 2)
		gt.NoError(t, err).Required()
		gt.Array(t, records).Length(2)
		gt.Value(t, records[0].Result).Equal("sketch 2")
		gt.Value(t, records[1].Result).Equal("sketch 1")
	})

	t.Run("FindSimilar ranks by cosine score", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		exact := newRecord("draw", "a red fox")
		exact.Embedding = vec(1, 0, 0)
		_, err := repo.Records().Append(ctx, exact)
		gt.NoError(t, err).Required()

		partial := newRecord("draw", "a fox at dusk")
		partial.Embedding = vec(0.7, 0.7, 0)
		_, err = repo.Records().Append(ctx, partial)
		gt.NoError(t, err).Required()

		unrelated := newRecord("draw", "rain on the window")
		unrelated.Embedding = vec(0, 1, 0)
		_, err = repo.Records().Append(ctx, unrelated)
		gt.NoError(t, err).Required()

		// No embedding, must never appear in results
		_, err = repo.Records().Append(ctx, newRecord("nap", "completed"))
		gt.NoError(t, err).Required()

		scored, err := repo.Records().FindSimilar(ctx, vec(1, 0, 0), 2, interfaces.FindSimilarOptions{})
		gt.NoError(t, err).Required()
		gt.Array(t, scored).Length(2)
		gt.Value(t, scored[0].Record.Result).Equal("a red fox")
		gt.Value(t, scored[1].Record.Result).Equal("a fox at dusk")
		gt.Bool(t, scored[0].Score > scored[1].Score).True()
	})

	t.Run("FindSimilar honors activity and source filters", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		drawNote := newRecord("draw", "sketched a fox")
		drawNote.Source = types.SourceActivity
		drawNote.Embedding = vec(1, 0, 0)
		_, err := repo.Records().Append(ctx, drawNote)
		gt.NoError(t, err).Required()

		walkNote := newRecord("take_a_walk", "saw a fox")
		walkNote.Source = types.SourceActivity
		walkNote.Embedding = vec(1, 0, 0)
		_, err = repo.Records().Append(ctx, walkNote)
		gt.NoError(t, err).Required()

		execution := newRecord("draw", "completed")
		execution.Embedding = vec(1, 0, 0)
		_, err = repo.Records().Append(ctx, execution)
		gt.NoError(t, err).Required()

		scored, err := repo.Records().FindSimilar(ctx, vec(1, 0, 0), 10, interfaces.FindSimilarOptions{
			Activity: "draw",
			Source:   types.SourceActivity,
		})
		gt.NoError(t, err).Required()
		gt.Array(t, scored).Length(1)
		gt.Value(t, scored[0].Record.Result).Equal("sketched a fox")
	})

	t.Run("Summary aggregates per activity over the window", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

		for i := 0; i < 2; i++ {
			rec := newRecord("draw", "completed")
			rec.Timestamp = base.Add(time.Duration(i) * time.Hour)
			rec.DurationSec = 3
			_, err := repo.Records().Append(ctx, rec)
			gt.NoError(t, err).Required()
		}
		nap := newRecord("nap", "completed")
		nap.Timestamp = base
		nap.DurationSec = 10
		_, err := repo.Records().Append(ctx, nap)
		gt.NoError(t, err).Required()

		// Outside the window
		stale := newRecord("draw", "completed")
		stale.Timestamp = base.Add(-48 * time.Hour)
		stale.DurationSec = 100
		_, err = repo.Records().Append(ctx, stale)
		gt.NoError(t, err).Required()

		summary, err := repo.Records().Summary(ctx, base)
		gt.NoError(t, err).Required()
		gt.Array(t, summary).Length(2)
		gt.Value(t, summary[0].Activity).Equal("draw")
		gt.Value(t, summary[0].Count).Equal(2)
		gt.Value(t, summary[0].TotalDurationSec).Equal(6.0)
		gt.Value(t, summary[1].Activity).Equal("nap")
		gt.Value(t, summary[1].Count).Equal(1)
		gt.Value(t, summary[1].TotalDurationSec).Equal(10.0)
	})

	t.Run("Snapshots are stored and listed newest first", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
		for i := 0; i < 3; i++ {
			err := repo.Records().AppendSnapshot(ctx, &model.StateSnapshot{
				Timestamp: base.Add(time.Duration(i) * time.Minute),
				Energy:    100 - i,
				Happiness: 50,
				XP:        i,
			})
			gt.NoError(t, err).Required()
		}

		snaps, err := repo.Records().ListSnapshots(ctx, 2)
		gt.NoError(t, err).Required()
		gt.Array(t, snaps).Length(2)
		gt.Value(t, snaps[0].Energy).Equal(98)
		gt.Value(t, snaps[0].XP).Equal(2)
		gt.Value(t, snaps[1].Energy).Equal(99)
	})
}

func newSQLiteRepository(t *testing.T) interfaces.Repository {
	t.Helper()

	repo, err := sqlite.New(filepath.Join(t.TempDir(), "pippin.db"))
	gt.NoError(t, err).Required()
	t.Cleanup(func() {
		gt.NoError(t, repo.Close())
	})
	return repo
}

func newFirestoreRepository(t *testing.T) interfaces.Repository {
	t.Helper()

	projectID := os.Getenv("TEST_FIRESTORE_PROJECT_ID")
	if projectID == "" {
		t.Skip("TEST_FIRESTORE_PROJECT_ID not set")
	}

	databaseID := os.Getenv("TEST_FIRESTORE_DATABASE_ID")
	if databaseID == "" {
		t.Skip("TEST_FIRESTORE_DATABASE_ID not set")
	}

	ctx := context.Background()
	prefix := fmt.Sprintf("test_%d", time.Now().UnixNano())
	repo, err := firestore.New(ctx, projectID, databaseID, firestore.WithCollectionPrefix(prefix))
	gt.NoError(t, err).Required()
	t.Cleanup(func() {
		gt.NoError(t, repo.Close())
	})
	return repo
}

func TestMemoryRecordRepository(t *testing.T) {
	runRecordRepositoryTest(t, func(t *testing.T) interfaces.Repository {
		return memory.New()
	})
}

func TestSQLiteRecordRepository(t *testing.T) {
	runRecordRepositoryTest(t, newSQLiteRepository)
}

func TestFirestoreRecordRepository(t *testing.T) {
	runRecordRepositoryTest(t, newFirestoreRepository)
}
