package usecase

import (
	"github.com/secmon-lab/pippin/pkg/service/episode"
)

// UseCases bundles the application's use cases
type UseCases struct {
	episodes *episode.Service
	Status   *StatusUseCase
}

type Option func(*UseCases)

// WithCurrentProvider wires the scheduler's current-activity marker
// into the status feed.
func WithCurrentProvider(provider CurrentProvider) Option {
	return func(uc *UseCases) {
		uc.Status.current = provider
	}
}

func New(episodes *episode.Service, state StateProvider, opts ...Option) *UseCases {
	uc := &UseCases{
		episodes: episodes,
		Status:   NewStatusUseCase(episodes, state),
	}

	for _, opt := range opts {
		opt(uc)
	}

	return uc
}
