// Package eventstore records how fetch runs settled and keeps a per-resource
// summary of that history.
package eventstore

import (
	"context"
	"time"
)

// Event is one settled fetch run.
type Event struct {
	ID         int64             `json:"id"`
	EventID    string            `json:"event_id"`
	Resource   string            `json:"resource"`
	Generation uint64            `json:"generation"`
	Class      string            `json:"class"`
	Message    string            `json:"message,omitempty"`
	Duration   time.Duration     `json:"duration"`
	At         time.Time         `json:"at"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// Store persists events.
type Store interface {
	// Append stores e. Empty EventID and zero At are filled in.
	Append(ctx context.Context, e Event) error

	// Recent returns up to limit events, newest first. An empty resource
	// matches every resource.
	Recent(ctx context.Context, resource string, limit int) ([]Event, error)

	// Range returns events with start <= At <= end in insertion order.
	Range(ctx context.Context, start, end time.Time) ([]Event, error)

	// Prune deletes events older than before and reports how many went.
	Prune(ctx context.Context, before time.Time) (int64, error)

	Close() error
}
