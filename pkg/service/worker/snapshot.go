package worker

import (
	"context"
	"time"

	"github.com/secmon-lab/pippin/pkg/domain/model"
	"github.com/secmon-lab/pippin/pkg/service/episode"
	"github.com/secmon-lab/pippin/pkg/utils/logging"
)

// StateSnapshotWorker periodically captures the character state into
// the snapshot table. It only reads the state and appends rows; it
// never mutates state and never blocks the scheduler loop.
type StateSnapshotWorker struct {
	episodes *episode.Service
	state    *model.CharacterState
	interval time.Duration
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewStateSnapshotWorker creates a new worker snapshotting on the given interval
func NewStateSnapshotWorker(episodes *episode.Service, state *model.CharacterState, interval time.Duration) *StateSnapshotWorker {
	return &StateSnapshotWorker{
		episodes: episodes,
		state:    state,
		interval: interval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start begins the background snapshot loop; it does not block startup
func (w *StateSnapshotWorker) Start(ctx context.Context) error {
	logging.From(ctx).Info("state snapshot worker starting",
		"interval", w.interval.String())

	go w.run(ctx)

	return nil
}

// Stop signals the worker to stop and waits for completion
func (w *StateSnapshotWorker) Stop() {
	logging.Default().Info("state snapshot worker stopping")
	close(w.stopCh)
	<-w.doneCh
	logging.Default().Info("state snapshot worker stopped")
}

func (w *StateSnapshotWorker) run(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := w.episodes.RecordSnapshot(ctx, w.state.Get()); err != nil {
				// Log error but continue worker
				logging.From(ctx).Error("state snapshot failed (will retry next interval)",
					"error", err.Error())
			}

		case <-w.stopCh:
			logging.From(ctx).Info("state snapshot worker received stop signal")
			return

		case <-ctx.Done():
			logging.From(ctx).Info("state snapshot worker context cancelled")
			return
		}
	}
}
