package store

import "context"

// Table identifies one of the four record collections.
type Table string

const (
	TableSessions     Table = "sessions"
	TableParticipants Table = "participants"
	TableQueueItems   Table = "queue_items"
	TableReactions    Table = "reactions"
)

// Operation is the kind of change a feed event reports.
type Operation string

const (
	OpInsert Operation = "insert"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

// Event is one change notification. Record carries the full row after the
// change (before the change for deletes) as a generic map; consumers decode
// it with DecodeRecord.
type Event struct {
	Table  Table          `json:"table"`
	Op     Operation      `json:"op"`
	Record map[string]any `json:"record"`
}

// Subscription is a live (session, table) change stream. Events arrive in
// the store's commit order. Close releases the server-side subscription
// slot; the events channel is closed afterwards.
type Subscription interface {
	Events() <-chan Event
	Close()
}

// Feed delivers ordered change notifications, one independent subscription
// per (session, table) pair.
type Feed interface {
	Subscribe(ctx context.Context, sessionID string, table Table) (Subscription, error)
}
