// Package adapter defines the notification boundary for finished archive runs.
//
// Adapters publish one completion event per run to a downstream system.
// The runtime owns adapter lifecycle; users provide configuration only.
// Publish failures never fail the archive run itself.
package adapter

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pithecene-io/suipack/types"
)

// EventTypeArchiveCompleted is the event_type of every completion event.
const EventTypeArchiveCompleted = "archive_completed"

// DefaultBackoff is the delay before the first retry. Each further retry
// doubles it.
const DefaultBackoff = 500 * time.Millisecond

// ArchiveCompletedEvent is the payload published when a run finishes.
type ArchiveCompletedEvent struct {
	ContractVersion  string `json:"contract_version"`
	EventType        string `json:"event_type"`
	EventID          string `json:"event_id"`
	RunID            string `json:"run_id"`
	Source           string `json:"source"`
	Outcome          string `json:"outcome"`
	Packages         int    `json:"packages"`
	ArtifactsWritten int    `json:"artifacts_written"`
	ArtifactsSkipped int    `json:"artifacts_skipped"`
	MaxCheckpoint    uint64 `json:"max_checkpoint"`
	DurationMs       int64  `json:"duration_ms"`
	Error            string `json:"error,omitempty"`
	Timestamp        string `json:"timestamp"` // RFC 3339
}

// RunSummary is what the runtime knows about a finished run.
type RunSummary struct {
	Meta          *types.RunMeta
	Packages      int
	Written       int
	Skipped       int
	MaxCheckpoint uint64
	Duration      time.Duration
	Err           error
}

// NewArchiveCompletedEvent builds the event for a finished run with a
// fresh event id.
func NewArchiveCompletedEvent(s RunSummary, now time.Time) *ArchiveCompletedEvent {
	e := &ArchiveCompletedEvent{
		ContractVersion:  types.ContractVersion,
		EventType:        EventTypeArchiveCompleted,
		EventID:          uuid.NewString(),
		RunID:            s.Meta.RunID,
		Source:           string(s.Meta.Source),
		Outcome:          string(types.OutcomeFor(s.Err)),
		Packages:         s.Packages,
		ArtifactsWritten: s.Written,
		ArtifactsSkipped: s.Skipped,
		MaxCheckpoint:    s.MaxCheckpoint,
		DurationMs:       s.Duration.Milliseconds(),
		Timestamp:        now.UTC().Format(time.RFC3339),
	}
	if s.Err != nil {
		e.Error = s.Err.Error()
	}
	return e
}

// Adapter publishes archive completion events to a downstream system.
// Implementations must be safe for single-use per run.
type Adapter interface {
	// Publish sends a completion event to the downstream system.
	// Must respect context cancellation and deadlines.
	Publish(ctx context.Context, event *ArchiveCompletedEvent) error

	// Close releases adapter resources.
	Close() error
}

// Retry calls fn up to 1+retries times with exponential backoff between
// attempts. It stops early when fn succeeds, when stop reports the error
// as permanent, or when ctx is done.
func Retry(ctx context.Context, retries int, backoff time.Duration, fn func(context.Context) error, stop func(error) bool) error {
	if backoff <= 0 {
		backoff = DefaultBackoff
	}
	attempts := 1 + retries

	var lastErr error
	for i := range attempts {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("context canceled: %w", err)
		}
		if i > 0 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("context canceled during backoff: %w", ctx.Err())
			case <-time.After(backoff << uint(i-1)):
			}
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if stop != nil && stop(lastErr) {
			return fmt.Errorf("non-retriable error: %w", lastErr)
		}
	}
	return fmt.Errorf("failed after %d attempts: %w", attempts, lastErr)
}
