// Package queue implements the crowd-ordered track queue for a session.
// All composition logic (position assignment, vote tallying, ordering) runs
// over a locally cached copy of the queue; writes go straight to the durable
// store and the cache is reconciled against the change feed. Vote increments
// and position assignment are plain read-modify-write, so concurrent clients
// can race; that staleness window is accepted by design.
package queue

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"

	"github.com/soundslot/jamsession/internal/app/reconcile"
	"github.com/soundslot/jamsession/internal/domain/jam"
	"github.com/soundslot/jamsession/internal/store"
)

var (
	// ErrUnknownItem: the queue item does not exist locally or durably.
	ErrUnknownItem = errors.New("unknown queue item")
	// ErrAlreadyPlayed: removal is only allowed before an item is played.
	ErrAlreadyPlayed = errors.New("queue item already played")
)

// Queue is one session's collaborative queue view.
type Queue struct {
	store     store.Store
	sessionID string
	tracker   *reconcile.Tracker

	mu    sync.RWMutex
	items map[string]jam.QueueItem

	sub  store.Subscription
	done chan struct{}
}

// New creates a queue for one session. The tracker carries the local
// participant id used for self-echo detection.
func New(st store.Store, sessionID string, tracker *reconcile.Tracker) *Queue {
	return &Queue{
		store:     st,
		sessionID: sessionID,
		tracker:   tracker,
		items:     make(map[string]jam.QueueItem),
	}
}

// Load fetches the current queue into the local cache.
func (q *Queue) Load(ctx context.Context) error {
	rows, err := q.store.ListQueueItems(ctx, q.sessionID)
	if err != nil {
		return errors.Wrap(err, "failed to load queue")
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = make(map[string]jam.QueueItem, len(rows))
	for _, it := range rows {
		q.items[it.ID] = it
	}
	return nil
}

// Watch subscribes to the queue-table feed and reconciles the cache on
// every event.
func (q *Queue) Watch(ctx context.Context) error {
	feed, ok := q.store.(store.Feed)
	if !ok {
		return errors.New("store does not provide a change feed")
	}

	sub, err := feed.Subscribe(ctx, q.sessionID, store.TableQueueItems)
	if err != nil {
		return errors.Wrap(err, "failed to subscribe to queue feed")
	}

	q.mu.Lock()
	q.sub = sub
	q.done = make(chan struct{})
	q.mu.Unlock()

	go q.loop(sub)
	return nil
}

func (q *Queue) loop(sub store.Subscription) {
	defer close(q.done)

	for ev := range sub.Events() {
		var it jam.QueueItem
		if err := store.DecodeRecord(ev.Record, &it); err != nil {
			zlog.Error().Msgf("failed to decode queue event: %v", err)
			continue
		}

		// Only inserts carry their originator; updates and deletes do not
		// record the mutator.
		origin := ""
		if ev.Op == store.OpInsert {
			origin = it.AddedByID
		}

		key := reconcile.Key{Table: store.TableQueueItems, ID: it.ID}
		outcome := q.tracker.Resolve(key, ev.Op, origin)

		q.mu.Lock()
		switch outcome {
		case reconcile.OutcomeRemove:
			delete(q.items, it.ID)
		case reconcile.OutcomePromoted:
			// Our own echo: the optimistic copy becomes authoritative in
			// place, no visible change.
			q.items[it.ID] = it
		default:
			q.items[it.ID] = it
		}
		q.mu.Unlock()
	}
}

// Add inserts a track at the end of the queue. The position is computed from
// the locally cached length; two concurrent adds may land on the same
// position value, which only affects tie-breaking.
func (q *Queue) Add(ctx context.Context, by *jam.Participant, trk jam.Track) (*jam.QueueItem, error) {
	q.mu.Lock()
	pending := 0
	for _, it := range q.items {
		if !it.IsPlayed {
			pending++
		}
	}

	item := jam.QueueItem{
		ID:          uuid.New().String(),
		SessionID:   q.sessionID,
		Track:       trk,
		AddedByID:   by.ID,
		AddedByName: by.Nickname,
		Votes:       0,
		Position:    pending + 1,
		CreatedAt:   time.Now(),
	}

	// optimistic local copy before the round trip
	q.items[item.ID] = item
	q.mu.Unlock()
	key := reconcile.Key{Table: store.TableQueueItems, ID: item.ID}
	q.tracker.Stage(key, item)

	if err := q.store.InsertQueueItem(ctx, &item); err != nil {
		// The write never landed, so no feed event will resolve it.
		q.mu.Lock()
		delete(q.items, item.ID)
		q.mu.Unlock()
		q.tracker.Forget(key)
		return nil, errors.Wrap(err, "failed to persist queue item")
	}

	zlog.Info().Msgf("track queued: session_id=%s item_id=%s title=%s by=%s", q.sessionID, item.ID, trk.Title, by.Nickname)
	return &item, nil
}

// Vote increments an item's vote count. This is a read-then-write over the
// cached count, not an atomic increment: a concurrent vote from another
// client can be lost. Votes are monotonic, there is no un-vote.
func (q *Queue) Vote(ctx context.Context, itemID string) error {
	it, err := q.lookup(ctx, itemID)
	if err != nil {
		return err
	}

	prev := it
	next := it.Votes + 1

	q.mu.Lock()
	it.Votes = next
	q.items[itemID] = it
	q.mu.Unlock()
	key := reconcile.Key{Table: store.TableQueueItems, ID: itemID}
	q.tracker.Stage(key, it)

	if err := q.store.UpdateQueueItem(ctx, itemID, store.QueueItemPatch{Votes: &next}); err != nil {
		q.rollback(key, prev)
		return errors.Wrap(err, "failed to persist vote")
	}
	return nil
}

// rollback restores the cached copy after a failed durable write and drops
// the pending entry so a later feed event is not misread as our echo.
func (q *Queue) rollback(key reconcile.Key, prev jam.QueueItem) {
	q.mu.Lock()
	q.items[key.ID] = prev
	q.mu.Unlock()
	q.tracker.Forget(key)
}

// Remove hard-deletes an item. Only unplayed items may be removed.
func (q *Queue) Remove(ctx context.Context, itemID string) error {
	it, err := q.lookup(ctx, itemID)
	if err != nil {
		return err
	}
	if it.IsPlayed {
		return ErrAlreadyPlayed
	}

	q.mu.Lock()
	delete(q.items, itemID)
	q.mu.Unlock()
	key := reconcile.Key{Table: store.TableQueueItems, ID: itemID}
	q.tracker.Stage(key, nil)

	if err := q.store.DeleteQueueItem(ctx, itemID); err != nil {
		q.rollback(key, it)
		return errors.Wrap(err, "failed to delete queue item")
	}
	return nil
}

// MarkPlayed retires an item after playback. Used by the queue-advance
// process when it consumes the head.
func (q *Queue) MarkPlayed(ctx context.Context, itemID string) error {
	it, err := q.lookup(ctx, itemID)
	if err != nil {
		return err
	}

	prev := it
	played := true
	q.mu.Lock()
	it.IsPlayed = true
	q.items[itemID] = it
	q.mu.Unlock()
	key := reconcile.Key{Table: store.TableQueueItems, ID: itemID}
	q.tracker.Stage(key, it)

	if err := q.store.UpdateQueueItem(ctx, itemID, store.QueueItemPatch{IsPlayed: &played}); err != nil {
		q.rollback(key, prev)
		return errors.Wrap(err, "failed to mark queue item played")
	}
	return nil
}

// lookup reads an item from the cache, falling back to the store for items
// this client has not seen yet.
func (q *Queue) lookup(ctx context.Context, itemID string) (jam.QueueItem, error) {
	q.mu.RLock()
	it, ok := q.items[itemID]
	q.mu.RUnlock()
	if ok {
		return it, nil
	}

	row, err := q.store.GetQueueItem(ctx, itemID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return jam.QueueItem{}, ErrUnknownItem
		}
		return jam.QueueItem{}, errors.Wrap(err, "failed to load queue item")
	}

	q.mu.Lock()
	q.items[itemID] = *row
	q.mu.Unlock()
	return *row, nil
}

// Ordered returns the user-visible queue order: votes descending, earlier
// insertion winning ties, played items excluded.
func (q *Queue) Ordered() []jam.QueueItem {
	q.mu.RLock()
	defer q.mu.RUnlock()

	all := make([]jam.QueueItem, 0, len(q.items))
	for _, it := range q.items {
		all = append(all, it)
	}
	// Stable input order keeps position collisions deterministic.
	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.Before(all[j].CreatedAt)
		}
		return all[i].ID < all[j].ID
	})
	return jam.OrderQueue(all)
}

// Head returns the next track to play, or nil when the queue is empty.
func (q *Queue) Head() *jam.QueueItem {
	ordered := q.Ordered()
	if len(ordered) == 0 {
		return nil
	}
	head := ordered[0]
	return &head
}

// Close releases the feed subscription, if watching.
func (q *Queue) Close() {
	q.mu.Lock()
	sub := q.sub
	q.sub = nil
	done := q.done
	q.mu.Unlock()

	if sub != nil {
		sub.Close()
		<-done
	}
}
