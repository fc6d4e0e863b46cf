package types

import (
	"github.com/m-mizutani/goerr/v2"
)

// RecordID is the store-assigned monotonic identifier of an activity record.
// IDs reflect insertion order and are the tie-break for "most recent" queries.
type RecordID int64

// RecordSource identifies which path appended an activity record
type RecordSource string

const (
	// SourceCoreLoop marks records written by the scheduler loop itself
	SourceCoreLoop RecordSource = "core_loop"
	// SourceActivity marks notes written by an activity during its execution
	SourceActivity RecordSource = "activity"
	// SourceAPI marks records written through the external API
	SourceAPI RecordSource = "api"
)

// Validate checks if the RecordSource is a known value
func (s RecordSource) Validate() error {
	switch s {
	case SourceCoreLoop, SourceActivity, SourceAPI:
		return nil
	default:
		return goerr.New("invalid record source", goerr.V("source", s))
	}
}

// String returns the string representation of RecordSource
func (s RecordSource) String() string {
	return string(s)
}
