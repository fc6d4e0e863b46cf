package model

import (
	"sync"
	"time"
)

const (
	// StateMin and StateMax bound the energy and happiness gauges
	StateMin = 0
	StateMax = 100

	// InitialEnergy and InitialHappiness are the gauges of a freshly
	// started character
	InitialEnergy    = 100
	InitialHappiness = 50
)

// State is the character's numeric state vector. It is a plain value;
// concurrency-safe access goes through CharacterState.
type State struct {
	Energy    int `json:"energy"`
	Happiness int `json:"happiness"`
	XP        int `json:"xp"`
}

// Clamp forces energy and happiness back into [StateMin, StateMax]
func (s *State) Clamp() {
	s.Energy = clamp(s.Energy)
	s.Happiness = clamp(s.Happiness)
	if s.XP < 0 {
		s.XP = 0
	}
}

func clamp(v int) int {
	if v < StateMin {
		return StateMin
	}
	if v > StateMax {
		return StateMax
	}
	return v
}

// Diff returns the fields that differ from before, keyed by field name
// with the current (new) value.
func (s State) Diff(before State) map[string]int {
	changes := make(map[string]int)
	if s.Energy != before.Energy {
		changes["energy"] = s.Energy
	}
	if s.Happiness != before.Happiness {
		changes["happiness"] = s.Happiness
	}
	if s.XP != before.XP {
		changes["xp"] = s.XP
	}
	return changes
}

// Snapshot converts the state into a timestamped snapshot row
func (s State) Snapshot(now time.Time) *StateSnapshot {
	return &StateSnapshot{
		Timestamp: now,
		Energy:    s.Energy,
		Happiness: s.Happiness,
		XP:        s.XP,
	}
}

// CharacterState is the shared holder of the character's state. The
// executing activity is the only writer (the scheduler runs activities
// serially), but the snapshot worker and status feed read concurrently,
// so access is guarded.
//
// Invariants enforced on every update: energy and happiness stay within
// [0,100], and XP never decreases.
type CharacterState struct {
	mu sync.RWMutex
	s  State
}

// NewCharacterState returns a character state with the initial gauges
func NewCharacterState() *CharacterState {
	return &CharacterState{
		s: State{
			Energy:    InitialEnergy,
			Happiness: InitialHappiness,
			XP:        0,
		},
	}
}

// Get returns a copy of the current state
func (c *CharacterState) Get() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.s
}

// Update applies fn to the state under the write lock. The result is
// clamped, and an XP decrease is discarded.
func (c *CharacterState) Update(fn func(s *State)) {
	c.mu.Lock()
	defer c.mu.Unlock()

	prevXP := c.s.XP
	fn(&c.s)
	c.s.Clamp()
	if c.s.XP < prevXP {
		c.s.XP = prevXP
	}
}
