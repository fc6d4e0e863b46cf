package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/pippin/pkg/domain/model"
	"github.com/secmon-lab/pippin/pkg/domain/types"
	"github.com/secmon-lab/pippin/pkg/service/episode"
	"github.com/secmon-lab/pippin/pkg/utils/logging"
)

// ResultCompleted is recorded when an activity returns no result text
const ResultCompleted = "completed"

// Executor surrounds one activity invocation: it snapshots the state
// before and after, measures duration, diffs the state, and appends
// exactly one execution record.
//
// Activity failures (errors and panics) are caught here and recorded as
// failed executions; they never reach the scheduler loop. There is no
// rollback: partial state mutations made before a failure are kept.
// Only a store failure is returned to the caller.
type Executor struct {
	episodes *episode.Service
}

func NewExecutor(episodes *episode.Service) *Executor {
	return &Executor{episodes: episodes}
}

// Execute runs the activity and appends its execution record
func (e *Executor) Execute(ctx context.Context, act model.Activity, state *model.CharacterState) (*model.ActivityRecord, error) {
	runID := model.NewRunID()
	before := state.Get()
	startTime := time.Now()

	mem := e.episodes.HandleFor(act.Name, runID)
	result, runErr := runActivity(ctx, act, state, mem)

	endTime := time.Now()
	after := state.Get()

	switch {
	case runErr != nil:
		logging.From(ctx).Error("activity failed",
			"activity", act.Name,
			"error", runErr.Error())
		result = fmt.Sprintf("failed: %s", runErr.Error())
	case result == "":
		result = ResultCompleted
	}

	rec := &model.ActivityRecord{
		RunID:       runID,
		Activity:    act.Name,
		Result:      result,
		StartTime:   startTime,
		EndTime:     endTime,
		DurationSec: endTime.Sub(startTime).Seconds(),
		StateDelta:  after.Diff(before),
		StateAfter:  &after,
		Source:      types.SourceCoreLoop,
	}

	stored, err := e.episodes.RecordExecution(ctx, rec)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to store execution record", goerr.V("activity", act.Name))
	}

	return stored, nil
}

// runActivity invokes the activity body, converting a panic into an
// error so a misbehaving activity cannot take down the loop.
func runActivity(ctx context.Context, act model.Activity, state *model.CharacterState, mem model.MemoryHandle) (result string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = goerr.New("activity panicked", goerr.V("activity", act.Name), goerr.V("panic", r))
		}
	}()

	return act.Run(ctx, state, mem)
}
