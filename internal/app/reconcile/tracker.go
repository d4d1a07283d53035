// Package reconcile merges a client's own optimistic mutations with the
// authoritative change feed. Each locally-originated write stages a pending
// command keyed by the record's logical key; when the feed later delivers the
// matching row the command is resolved in place instead of re-applied, so the
// origin client never sees its own writes flicker.
package reconcile

import (
	"sync"

	"github.com/soundslot/jamsession/internal/store"
)

// Key is the logical identity of a record: table plus record id. Matching is
// done by key, never by event timing.
type Key struct {
	Table store.Table
	ID    string
}

// Outcome tells the caller how to treat an incoming feed event.
type Outcome int

const (
	// OutcomeApply: authoritative record from another client, overwrite
	// local state. Last authoritative write always wins.
	OutcomeApply Outcome = iota
	// OutcomePromoted: the event echoes a pending local mutation; the
	// optimistic copy is promoted to authoritative in place.
	OutcomePromoted
	// OutcomeRemove: the record was deleted, drop it from local state.
	OutcomeRemove
)

type command struct {
	localID  string
	origin   string
	expected any
}

// Tracker is the in-memory pending-command table for one client.
type Tracker struct {
	mu      sync.Mutex
	origin  string
	pending map[Key]command
}

// New creates a tracker for the client identified by the given participant
// id. The id is used for self-echo detection in Resolve.
func New(origin string) *Tracker {
	return &Tracker{
		origin:  origin,
		pending: make(map[Key]command),
	}
}

// Stage records an in-flight optimistic mutation for key. The expected value
// is the locally applied shape; it stays pending until the feed confirms or
// the caller forgets it.
func (t *Tracker) Stage(key Key, expected any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pending[key] = command{localID: key.ID, origin: t.origin, expected: expected}
}

// Forget drops a pending command without resolution, e.g. when the durable
// write failed and the caller surfaces the error instead.
func (t *Tracker) Forget(key Key) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.pending, key)
}

// PendingCount returns the number of unresolved commands.
func (t *Tracker) PendingCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}

// Resolve matches an incoming feed event against the pending table.
// recordOrigin is the originating participant id carried by the record, or
// empty when the row type does not record its mutator.
func (t *Tracker) Resolve(key Key, op store.Operation, recordOrigin string) Outcome {
	t.mu.Lock()
	defer t.mu.Unlock()

	if op == store.OpDelete {
		delete(t.pending, key)
		return OutcomeRemove
	}

	cmd, ok := t.pending[key]
	if !ok {
		return OutcomeApply
	}
	if recordOrigin != "" && recordOrigin != cmd.origin {
		// Someone else's authoritative write raced ours: it wins, the
		// optimistic copy stays pending until our own echo arrives.
		return OutcomeApply
	}
	delete(t.pending, key)
	return OutcomePromoted
}
