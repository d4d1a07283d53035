package session

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/soundslot/jamsession/internal/domain/jam"
	"github.com/soundslot/jamsession/internal/store"
)

// Watcher holds one client's snapshot of its session row and keeps it
// current from the change feed. The snapshot is replaced wholesale on every
// authoritative update; there is no merging.
type Watcher struct {
	mu      sync.RWMutex
	session jam.Session
	sub     store.Subscription
	done    chan struct{}
}

// Watch subscribes to the session-table feed and returns a watcher seeded
// with the given snapshot.
func Watch(ctx context.Context, feed store.Feed, initial *jam.Session) (*Watcher, error) {
	sub, err := feed.Subscribe(ctx, initial.ID, store.TableSessions)
	if err != nil {
		return nil, errors.Wrap(err, "failed to subscribe to session feed")
	}

	w := &Watcher{
		session: *initial,
		sub:     sub,
		done:    make(chan struct{}),
	}
	go w.loop()
	return w, nil
}

func (w *Watcher) loop() {
	defer close(w.done)

	for ev := range w.sub.Events() {
		if ev.Op == store.OpDelete {
			continue
		}
		var sess jam.Session
		if err := store.DecodeRecord(ev.Record, &sess); err != nil {
			zlog.Error().Msgf("failed to decode session event: %v", err)
			continue
		}

		w.mu.Lock()
		if sess.ID == w.session.ID {
			w.session = sess
		}
		w.mu.Unlock()

		if !sess.IsActive {
			zlog.Info().Msgf("session deactivated: session_id=%s", sess.ID)
		}
	}
}

// Session returns the current snapshot.
func (w *Watcher) Session() jam.Session {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.session
}

// Active reports whether the session is still running.
func (w *Watcher) Active() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.session.IsActive
}

// Close releases the feed subscription.
func (w *Watcher) Close() {
	w.sub.Close()
	<-w.done
}
