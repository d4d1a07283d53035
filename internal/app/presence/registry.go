// Package presence tracks which participants of a session are currently
// active. Presence is optimistic: liveness comes from periodic refreshes,
// staleness is advisory, and removal only ever happens via an explicit leave.
package presence

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/soundslot/jamsession/internal/domain/jam"
	"github.com/soundslot/jamsession/internal/store"
)

// Registry is one session's participant view. Without a feed watch it reads
// through to the store; once watching it serves a locally patched cache that
// is recomputed on every participant-table event.
type Registry struct {
	store     store.Store
	sessionID string

	mu       sync.RWMutex
	rows     map[string]jam.Participant
	watching bool

	sub  store.Subscription
	done chan struct{}
}

// NewRegistry creates a registry for one session.
func NewRegistry(st store.Store, sessionID string) *Registry {
	return &Registry{
		store:     st,
		sessionID: sessionID,
		rows:      make(map[string]jam.Participant),
	}
}

// Watch loads the current participant set and keeps it patched from the
// change feed.
func (r *Registry) Watch(ctx context.Context) error {
	feed, ok := r.store.(store.Feed)
	if !ok {
		return errors.New("store does not provide a change feed")
	}

	sub, err := feed.Subscribe(ctx, r.sessionID, store.TableParticipants)
	if err != nil {
		return errors.Wrap(err, "failed to subscribe to participant feed")
	}

	rows, err := r.store.ListParticipants(ctx, r.sessionID, false)
	if err != nil {
		sub.Close()
		return errors.Wrap(err, "failed to load participants")
	}

	r.mu.Lock()
	for _, p := range rows {
		r.rows[p.ID] = p
	}
	r.watching = true
	r.sub = sub
	r.done = make(chan struct{})
	r.mu.Unlock()

	go r.loop()
	return nil
}

func (r *Registry) loop() {
	defer close(r.done)

	for ev := range r.sub.Events() {
		var p jam.Participant
		if err := store.DecodeRecord(ev.Record, &p); err != nil {
			zlog.Error().Msgf("failed to decode participant event: %v", err)
			continue
		}

		r.mu.Lock()
		switch ev.Op {
		case store.OpDelete:
			delete(r.rows, p.ID)
		default:
			r.rows[p.ID] = p
		}
		r.mu.Unlock()
	}
}

// List returns the active participants ordered by join time ascending.
func (r *Registry) List(ctx context.Context) ([]jam.Participant, error) {
	r.mu.RLock()
	if r.watching {
		result := make([]jam.Participant, 0, len(r.rows))
		for _, p := range r.rows {
			if p.IsActive {
				result = append(result, p)
			}
		}
		r.mu.RUnlock()
		sort.Slice(result, func(i, j int) bool {
			return result[i].JoinedAt.Before(result[j].JoinedAt)
		})
		return result, nil
	}
	r.mu.RUnlock()

	rows, err := r.store.ListParticipants(ctx, r.sessionID, true)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list participants")
	}
	return rows, nil
}

// Host returns the active host, or nil when the session is host-less (the
// host left and no re-election is performed).
func (r *Registry) Host(ctx context.Context) (*jam.Participant, error) {
	rows, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	for _, p := range rows {
		if p.IsHost {
			host := p
			return &host, nil
		}
	}
	return nil, nil
}

// Guests returns the active non-host participants, join order preserved.
func (r *Registry) Guests(ctx context.Context) ([]jam.Participant, error) {
	rows, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	guests := make([]jam.Participant, 0, len(rows))
	for _, p := range rows {
		if !p.IsHost {
			guests = append(guests, p)
		}
	}
	return guests, nil
}

// RefreshPresence stamps a participant's last-seen time. Clients call this
// for themselves on a fixed interval while connected.
func (r *Registry) RefreshPresence(ctx context.Context, participantID string) error {
	now := time.Now()
	if err := r.store.UpdateParticipant(ctx, participantID, store.ParticipantPatch{LastSeenAt: &now}); err != nil {
		return errors.Wrap(err, "failed to refresh presence")
	}
	return nil
}

// Close releases the feed subscription, if watching.
func (r *Registry) Close() {
	r.mu.Lock()
	sub := r.sub
	r.sub = nil
	r.watching = false
	done := r.done
	r.mu.Unlock()

	if sub != nil {
		sub.Close()
		<-done
	}
}
