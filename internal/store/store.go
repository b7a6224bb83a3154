// ABOUTME: RunStore interface and Run record for the gateway's run log
// ABOUTME: Shared by the SQLite implementation and the in-memory mock

package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested run does not exist
var ErrNotFound = errors.New("not found")

// Run status values
const (
	RunStatusComplete = "complete"
	RunStatusPartial  = "partial"
	RunStatusError    = "error"
)

// Run is one delivered pipeline execution
type Run struct {
	ID          string
	RunID       string // session run id; shared by every round of a stream
	AppName     string
	UserID      string
	Pipeline    string
	Status      string
	FailedStage string
	Source      string // "pipeline" or "direct"
	Request     json.RawMessage
	Response    json.RawMessage
	CreatedAt   time.Time
}

// RunFilter narrows ListRuns. Zero values match everything.
type RunFilter struct {
	RunID    string
	Pipeline string
	Limit    int
}

// RunStore persists runs.
type RunStore interface {
	RecordRun(ctx context.Context, run *Run) error
	GetRun(ctx context.Context, id string) (*Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]*Run, error)
	PruneRuns(ctx context.Context, before time.Time) (int64, error)
	Close() error
}

const (
	defaultListLimit = 100
	maxListLimit     = 1000
)

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}
