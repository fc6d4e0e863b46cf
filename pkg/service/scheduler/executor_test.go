package scheduler_test

import (
	"context"
	"strings"
	"testing"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/pippin/pkg/domain/model"
	"github.com/secmon-lab/pippin/pkg/domain/types"
	"github.com/secmon-lab/pippin/pkg/repository/memory"
	"github.com/secmon-lab/pippin/pkg/service/episode"
	"github.com/secmon-lab/pippin/pkg/service/scheduler"
)

func TestExecutorSuccess(t *testing.T) {
	repo := memory.New()
	executor := scheduler.NewExecutor(episode.New(repo))
	state := model.NewCharacterState()

	act := model.Activity{
		Name:     "nap",
		Category: types.CategoryRestorative,
		Run: func(ctx context.Context, state *model.CharacterState, mem model.MemoryHandle) (string, error) {
			state.Update(func(s *model.State) {
				s.Energy -= 15
				s.XP += 5
			})
			return "rested well", nil
		},
	}

	rec, err := executor.Execute(context.Background(), act, state)
	gt.NoError(t, err).Required()

	gt.Value(t, rec.Activity).Equal("nap")
	gt.Value(t, rec.Result).Equal("rested well")
	gt.Value(t, rec.Source).Equal(types.SourceCoreLoop)
	gt.Bool(t, rec.ID > 0).True()
	gt.Bool(t, rec.RunID != "").True()
	gt.Bool(t, rec.DurationSec >= 0).True()

	// Delta carries the new values of the changed fields only
	gt.Value(t, len(rec.StateDelta)).Equal(2)
	gt.Value(t, rec.StateDelta["energy"]).Equal(85)
	gt.Value(t, rec.StateDelta["xp"]).Equal(5)
	gt.Value(t, rec.StateAfter.Energy).Equal(85)

	// The record landed in the store
	stored, err := repo.Records().ListRecent(context.Background(), 10)
	gt.NoError(t, err).Required()
	gt.Array(t, stored).Length(1)
}

func TestExecutorEmptyResult(t *testing.T) {
	repo := memory.New()
	executor := scheduler.NewExecutor(episode.New(repo))
	state := model.NewCharacterState()

	act := model.Activity{
		Name:     "play",
		Category: types.CategoryModerate,
		Run:      noopRun,
	}

	rec, err := executor.Execute(context.Background(), act, state)
	gt.NoError(t, err).Required()
	gt.Value(t, rec.Result).Equal(scheduler.ResultCompleted)
	gt.Value(t, len(rec.StateDelta)).Equal(0)
}

func TestExecutorClampsState(t *testing.T) {
	repo := memory.New()
	executor := scheduler.NewExecutor(episode.New(repo))
	state := model.NewCharacterState()

	act := model.Activity{
		Name:     "nap",
		Category: types.CategoryRestorative,
		Run: func(ctx context.Context, state *model.CharacterState, mem model.MemoryHandle) (string, error) {
			state.Update(func(s *model.State) { s.Energy += 50 })
			return "", nil
		},
	}

	rec, err := executor.Execute(context.Background(), act, state)
	gt.NoError(t, err).Required()

	// Energy was already full, so the clamped update changes nothing
	gt.Value(t, state.Get().Energy).Equal(100)
	gt.Value(t, len(rec.StateDelta)).Equal(0)
}

func TestExecutorFailure(t *testing.T) {
	repo := memory.New()
	executor := scheduler.NewExecutor(episode.New(repo))
	state := model.NewCharacterState()

	act := model.Activity{
		Name:     "draw",
		Category: types.CategoryCreative,
		Run: func(ctx context.Context, state *model.CharacterState, mem model.MemoryHandle) (string, error) {
			// Partial mutation before the failure is kept
			state.Update(func(s *model.State) { s.Energy -= 10 })
			return "", goerr.New("out of ink")
		},
	}

	rec, err := executor.Execute(context.Background(), act, state)
	gt.NoError(t, err).Required()

	gt.Bool(t, strings.HasPrefix(rec.Result, "failed: ")).True()
	gt.Bool(t, strings.Contains(rec.Result, "out of ink")).True()
	gt.Value(t, rec.StateDelta["energy"]).Equal(90)
	gt.Value(t, state.Get().Energy).Equal(90)
}

func TestExecutorPanicRecovery(t *testing.T) {
	repo := memory.New()
	executor := scheduler.NewExecutor(episode.New(repo))
	state := model.NewCharacterState()

	act := model.Activity{
		Name:     "draw",
		Category: types.CategoryCreative,
		Run: func(ctx context.Context, state *model.CharacterState, mem model.MemoryHandle) (string, error) {
			panic("canvas tipped over")
		},
	}

	rec, err := executor.Execute(context.Background(), act, state)
	gt.NoError(t, err).Required()
	gt.Bool(t, strings.HasPrefix(rec.Result, "failed: ")).True()

	// A failed execution still produces exactly one record
	stored, err := repo.Records().ListRecent(context.Background(), 10)
	gt.NoError(t, err).Required()
	gt.Array(t, stored).Length(1)
}

func TestExecutorNotesShareRunID(t *testing.T) {
	repo := memory.New()
	executor := scheduler.NewExecutor(episode.New(repo))
	state := model.NewCharacterState()

	act := model.Activity{
		Name:     "take_a_walk",
		Category: types.CategoryOutdoor,
		Run: func(ctx context.Context, state *model.CharacterState, mem model.MemoryHandle) (string, error) {
			_, err := mem.Note(ctx, "saw a heron by the pond")
			return "walked the long loop", err
		},
	}

	_, err := executor.Execute(context.Background(), act, state)
	gt.NoError(t, err).Required()

	stored, err := repo.Records().ListRecent(context.Background(), 10)
	gt.NoError(t, err).Required()
	gt.Array(t, stored).Length(2)

	// Newest first: the execution record follows the note
	execution, note := stored[0], stored[1]
	gt.Value(t, execution.Source).Equal(types.SourceCoreLoop)
	gt.Value(t, execution.Result).Equal("walked the long loop")
	gt.Value(t, note.Source).Equal(types.SourceActivity)
	gt.Value(t, note.Result).Equal("saw a heron by the pond")
	gt.Value(t, note.RunID).Equal(execution.RunID)
	gt.Value(t, note.ParentID).Nil()
}
