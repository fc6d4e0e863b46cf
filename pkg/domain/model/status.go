package model

import (
	"time"
)

// CurrentActivity is the globally observable "what is running now"
// marker, nil when the scheduler is idle.
type CurrentActivity struct {
	Name      string    `json:"name"`
	StartedAt time.Time `json:"started_at"`
}

// StatusFeed is the read-only view served to live observers: the
// current activity, the character state, recent history and a rolling
// 24-hour summary.
type StatusFeed struct {
	Timestamp       time.Time          `json:"timestamp"`
	CurrentActivity *CurrentActivity   `json:"current_activity"`
	State           State              `json:"state"`
	History         []*ActivityRecord  `json:"history"`
	Summary         []*ActivitySummary `json:"summary"`
}
