package usecase_test

import (
	"context"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/pippin/pkg/domain/model"
	"github.com/secmon-lab/pippin/pkg/domain/types"
	"github.com/secmon-lab/pippin/pkg/repository/memory"
	"github.com/secmon-lab/pippin/pkg/service/episode"
	"github.com/secmon-lab/pippin/pkg/usecase"
)

type fixedCurrent struct {
	current *model.CurrentActivity
}

func (f *fixedCurrent) Current() *model.CurrentActivity {
	return f.current
}

func seedRecords(t *testing.T, repo *memory.Memory, n int) {
	t.Helper()

	now := time.Now().UTC()
	for i := 0; i < n; i++ {
		_, err := repo.Records().Append(context.Background(), &model.ActivityRecord{
			RunID:       model.NewRunID(),
			Timestamp:   now.Add(-time.Duration(n-i) * time.Minute),
			Activity:    "draw",
			Result:      "completed",
			DurationSec: 2,
			Source:      types.SourceCoreLoop,
		})
		gt.NoError(t, err).Required()
	}
}

func TestStatusFeed(t *testing.T) {
	repo := memory.New()
	episodes := episode.New(repo)
	state := model.NewCharacterState()
	seedRecords(t, repo, 15)

	current := &fixedCurrent{current: &model.CurrentActivity{
		Name:      "draw",
		StartedAt: time.Now().UTC(),
	}}

	uc := usecase.New(episodes, state, usecase.WithCurrentProvider(current))

	feed, err := uc.Status.Feed(context.Background())
	gt.NoError(t, err).Required()

	// History is capped at 10, newest first
	gt.Array(t, feed.History).Length(10)
	gt.Bool(t, feed.History[0].ID > feed.History[1].ID).True()

	gt.Array(t, feed.Summary).Length(1)
	gt.Value(t, feed.Summary[0].Activity).Equal("draw")
	gt.Value(t, feed.Summary[0].Count).Equal(15)
	gt.Value(t, feed.Summary[0].TotalDurationSec).Equal(30.0)

	gt.Value(t, feed.State.Energy).Equal(model.InitialEnergy)
	gt.Value(t, feed.CurrentActivity).NotNil()
	gt.Value(t, feed.CurrentActivity.Name).Equal("draw")
	gt.Bool(t, feed.Timestamp.IsZero()).False()
}

func TestStatusFeedWithoutCurrentProvider(t *testing.T) {
	repo := memory.New()
	uc := usecase.New(episode.New(repo), model.NewCharacterState())

	feed, err := uc.Status.Feed(context.Background())
	gt.NoError(t, err).Required()
	gt.Value(t, feed.CurrentActivity).Nil()
	gt.Array(t, feed.History).Length(0)
}

func TestStatusHistoryLimit(t *testing.T) {
	repo := memory.New()
	uc := usecase.New(episode.New(repo), model.NewCharacterState())
	seedRecords(t, repo, 15)

	ctx := context.Background()

	t.Run("explicit limit is honored", func(t *testing.T) {
		history, err := uc.Status.History(ctx, 5)
		gt.NoError(t, err).Required()
		gt.Array(t, history).Length(5)
	})

	t.Run("non-positive limit falls back to the default", func(t *testing.T) {
		history, err := uc.Status.History(ctx, 0)
		gt.NoError(t, err).Required()
		gt.Array(t, history).Length(10)
	})

	t.Run("oversized limit falls back to the default", func(t *testing.T) {
		history, err := uc.Status.History(ctx, 5000)
		gt.NoError(t, err).Required()
		gt.Array(t, history).Length(10)
	})
}
