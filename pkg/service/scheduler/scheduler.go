package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/secmon-lab/pippin/pkg/domain/model"
	"github.com/secmon-lab/pippin/pkg/utils/errutil"
	"github.com/secmon-lab/pippin/pkg/utils/logging"
)

const (
	// DefaultPacing is the idle pause between cycles, preventing a
	// tight spin when cycles are short.
	DefaultPacing = 1 * time.Second

	// DefaultBackoff is the pause after a failed cycle (no eligible
	// activity, or a store error).
	DefaultBackoff = 10 * time.Second

	// recentHistorySize bounds the in-process execution history
	recentHistorySize = 100
)

// Scheduler is the perpetual control loop: select an eligible activity,
// execute it, record the outcome, pace, repeat. Activities run strictly
// one at a time on the loop goroutine; the "current activity" marker is
// readable concurrently by the status feed.
//
// Architecture assumptions:
// - Single server instance (no distributed locking)
// - Only the executing activity writes the character state
type Scheduler struct {
	registry *model.Registry
	state    *model.CharacterState
	engine   *ConstraintEngine
	selector *Selector
	executor *Executor

	pacing  time.Duration
	backoff time.Duration

	mu      sync.RWMutex
	current *model.CurrentActivity
	recent  []*model.ActivityRecord

	stopCh chan struct{}
	doneCh chan struct{}
}

type Option func(*Scheduler)

// WithPacing overrides the idle pause between cycles
func WithPacing(d time.Duration) Option {
	return func(s *Scheduler) {
		s.pacing = d
	}
}

// WithBackoff overrides the pause after a failed cycle
func WithBackoff(d time.Duration) Option {
	return func(s *Scheduler) {
		s.backoff = d
	}
}

func New(registry *model.Registry, state *model.CharacterState, engine *ConstraintEngine, selector *Selector, executor *Executor, opts ...Option) *Scheduler {
	s := &Scheduler{
		registry: registry,
		state:    state,
		engine:   engine,
		selector: selector,
		executor: executor,
		pacing:   DefaultPacing,
		backoff:  DefaultBackoff,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start begins the scheduling loop in a background goroutine
func (s *Scheduler) Start(ctx context.Context) error {
	logging.From(ctx).Info("scheduler starting",
		"activities", s.registry.Names(),
		"pacing", s.pacing.String())

	go s.run(ctx)

	return nil
}

// Stop signals the loop to stop and waits for the in-flight cycle to
// complete. Activities are never cancelled mid-run.
func (s *Scheduler) Stop() {
	logging.Default().Info("scheduler stopping")
	close(s.stopCh)
	<-s.doneCh
	logging.Default().Info("scheduler stopped")
}

// Current returns the globally observable "what is running now" marker,
// nil while the loop is idle or selecting.
func (s *Scheduler) Current() *model.CurrentActivity {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.current == nil {
		return nil
	}
	current := *s.current
	return &current
}

// Recent returns the most recent execution records held in process,
// newest first.
func (s *Scheduler) Recent() []*model.ActivityRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*model.ActivityRecord, len(s.recent))
	for i, rec := range s.recent {
		result[len(s.recent)-1-i] = rec.Clone()
	}
	return result
}

func (s *Scheduler) run(ctx context.Context) {
	defer close(s.doneCh)

	for {
		select {
		case <-s.stopCh:
			logging.From(ctx).Info("scheduler received stop signal")
			return
		case <-ctx.Done():
			logging.From(ctx).Info("scheduler context cancelled")
			return
		default:
		}

		pause := s.cycle(ctx)
		if !s.sleep(ctx, pause) {
			return
		}
	}
}

// cycle runs one Selecting→Executing pass and returns how long to stay
// idle afterwards.
func (s *Scheduler) cycle(ctx context.Context) time.Duration {
	eligible, err := s.engine.Eligible(ctx, s.registry)
	if err != nil {
		// Constraint correctness depends on the store; retry with a
		// fresh view instead of proceeding.
		_ = errutil.Handle(ctx, err, "eligibility check failed, backing off")
		return s.backoff
	}

	act, err := s.selector.Select(s.state.Get(), eligible)
	if err != nil {
		if errors.Is(err, ErrNoEligibleActivity) {
			logging.From(ctx).Info("no eligible activity, backing off",
				"registered", s.registry.Len())
		} else {
			_ = errutil.Handle(ctx, err, "activity selection failed, backing off")
		}
		return s.backoff
	}

	s.setCurrent(act.Name)
	logging.From(ctx).Info("starting activity", "activity", act.Name)

	rec, err := s.executor.Execute(ctx, act, s.state)

	s.clearCurrent()

	if err != nil {
		_ = errutil.Handle(ctx, err, "failed to store execution record, backing off")
		return s.backoff
	}

	s.pushRecent(rec)

	state := s.state.Get()
	logging.From(ctx).Info("activity completed",
		"activity", act.Name,
		"duration_sec", rec.DurationSec,
		"energy", state.Energy,
		"happiness", state.Happiness,
		"xp", state.XP)

	return s.pacing
}

func (s *Scheduler) setCurrent(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = &model.CurrentActivity{
		Name:      name,
		StartedAt: time.Now().UTC(),
	}
}

func (s *Scheduler) clearCurrent() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = nil
}

func (s *Scheduler) pushRecent(rec *model.ActivityRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.recent = append(s.recent, rec)
	if len(s.recent) > recentHistorySize {
		s.recent = s.recent[len(s.recent)-recentHistorySize:]
	}
}

// sleep waits for d, returning false when the scheduler is stopping
func (s *Scheduler) sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-s.stopCh:
		logging.From(ctx).Info("scheduler received stop signal")
		return false
	case <-ctx.Done():
		logging.From(ctx).Info("scheduler context cancelled")
		return false
	}
}
