package usecase

import (
	"context"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/pippin/pkg/domain/model"
	"github.com/secmon-lab/pippin/pkg/service/episode"
	"golang.org/x/sync/errgroup"
)

const (
	// historyLimit is how many recent records the status feed carries
	historyLimit = 10

	// summaryWindow is the rolling window of the activity summary
	summaryWindow = 24 * time.Hour
)

// CurrentProvider exposes the scheduler's current-activity marker
type CurrentProvider interface {
	Current() *model.CurrentActivity
}

// StateProvider exposes a read-only copy of the character state
type StateProvider interface {
	Get() model.State
}

// StatusUseCase assembles the read-only live view for observers: the
// current activity, the character state, recent history, and a rolling
// 24-hour activity summary.
type StatusUseCase struct {
	episodes *episode.Service
	state    StateProvider
	current  CurrentProvider
}

func NewStatusUseCase(episodes *episode.Service, state StateProvider) *StatusUseCase {
	return &StatusUseCase{
		episodes: episodes,
		state:    state,
	}
}

// Feed builds one status feed snapshot
func (u *StatusUseCase) Feed(ctx context.Context) (*model.StatusFeed, error) {
	now := time.Now().UTC()

	var history []*model.ActivityRecord
	var summary []*model.ActivitySummary

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		records, err := u.episodes.Recent(egCtx, historyLimit)
		if err != nil {
			return goerr.Wrap(err, "failed to load recent history")
		}
		history = records
		return nil
	})
	eg.Go(func() error {
		rows, err := u.episodes.Summary(egCtx, now.Add(-summaryWindow))
		if err != nil {
			return goerr.Wrap(err, "failed to load activity summary")
		}
		summary = rows
		return nil
	})
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	feed := &model.StatusFeed{
		Timestamp: now,
		State:     u.state.Get(),
		History:   history,
		Summary:   summary,
	}
	if u.current != nil {
		feed.CurrentActivity = u.current.Current()
	}

	return feed, nil
}

// History returns up to limit recent records, newest first
func (u *StatusUseCase) History(ctx context.Context, limit int) ([]*model.ActivityRecord, error) {
	if limit <= 0 || limit > 100 {
		limit = historyLimit
	}
	return u.episodes.Recent(ctx, limit)
}

// Summary returns the rolling 24-hour per-activity summary
func (u *StatusUseCase) Summary(ctx context.Context) ([]*model.ActivitySummary, error) {
	return u.episodes.Summary(ctx, time.Now().UTC().Add(-summaryWindow))
}
