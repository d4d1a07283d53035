// Package controller assembles the per-session client state: the watched
// session snapshot, presence registry, collaborative queue, and reaction
// broadcaster, all reconciled against the store's change feed.
package controller

import (
	"context"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/soundslot/jamsession/internal/app/presence"
	"github.com/soundslot/jamsession/internal/app/queue"
	"github.com/soundslot/jamsession/internal/app/reaction"
	"github.com/soundslot/jamsession/internal/app/reconcile"
	"github.com/soundslot/jamsession/internal/app/session"
	"github.com/soundslot/jamsession/internal/domain/jam"
	"github.com/soundslot/jamsession/internal/store"
)

// Options configures how a controller attaches to a session.
type Options struct {
	Reaction reaction.Config
	Renderer reaction.Renderer
}

// Controller is one participant's live view of a session. Create or Join
// builds it; Close releases every feed subscription it holds.
type Controller struct {
	store    store.Store
	manager  *session.Manager
	self     *jam.Participant
	watcher  *session.Watcher
	registry *presence.Registry
	queue    *queue.Queue
	reactor  *reaction.Broadcaster
}

// Create starts a new session with the caller as host and attaches to it.
func Create(ctx context.Context, st store.Store, name, nickname string, privacy jam.Privacy, maxParticipants int, opts Options) (*Controller, error) {
	m := session.NewManager(st, 0)
	sess, host, err := m.Create(ctx, name, nickname, privacy, maxParticipants)
	if err != nil {
		return nil, err
	}
	return attach(ctx, st, m, sess, host, opts)
}

// Join attaches to an existing session by its join code.
func Join(ctx context.Context, st store.Store, code, nickname, accessCode string, opts Options) (*Controller, error) {
	m := session.NewManager(st, 0)
	sess, p, err := m.Join(ctx, code, nickname, accessCode)
	if err != nil {
		return nil, err
	}
	return attach(ctx, st, m, sess, p, opts)
}

func attach(ctx context.Context, st store.Store, m *session.Manager, sess *jam.Session, self *jam.Participant, opts Options) (*Controller, error) {
	feed, ok := st.(store.Feed)
	if !ok {
		return nil, errors.New("store does not provide a change feed")
	}

	c := &Controller{store: st, manager: m, self: self}

	watcher, err := session.Watch(ctx, feed, sess)
	if err != nil {
		return nil, err
	}
	c.watcher = watcher

	c.registry = presence.NewRegistry(st, sess.ID)
	if err := c.registry.Watch(ctx); err != nil {
		c.Close()
		return nil, err
	}

	c.queue = queue.New(st, sess.ID, reconcile.New(self.ID))
	if err := c.queue.Load(ctx); err != nil {
		c.Close()
		return nil, err
	}
	if err := c.queue.Watch(ctx); err != nil {
		c.Close()
		return nil, err
	}

	c.reactor = reaction.New(st, self.ID, opts.Reaction, nil, opts.Renderer)
	if err := c.reactor.Watch(ctx, sess.ID); err != nil {
		c.Close()
		return nil, err
	}

	zlog.Info().Msgf("attached to session: session_id=%s code=%s participant=%s host=%t",
		sess.ID, sess.Code, self.Nickname, self.IsHost)
	return c, nil
}

// Self returns the local participant.
func (c *Controller) Self() *jam.Participant { return c.self }

// Session returns the live session snapshot.
func (c *Controller) Session() jam.Session { return c.watcher.Session() }

// Active reports whether the session is still running.
func (c *Controller) Active() bool { return c.watcher.Active() }

// Participants lists the active members, host first by join order.
func (c *Controller) Participants(ctx context.Context) ([]jam.Participant, error) {
	return c.registry.List(ctx)
}

// Heartbeat records that the local participant is still here.
func (c *Controller) Heartbeat(ctx context.Context) error {
	return c.registry.RefreshPresence(ctx, c.self.ID)
}

// Queue exposes the collaborative queue.
func (c *Controller) Queue() *queue.Queue { return c.queue }

// AddTrack queues a track on behalf of the local participant.
func (c *Controller) AddTrack(ctx context.Context, trk jam.Track) (*jam.QueueItem, error) {
	return c.queue.Add(ctx, c.self, trk)
}

// React sends an emoji reaction attributed to the local participant.
func (c *Controller) React(emoji string) error {
	trackID := ""
	if cur := c.watcher.Session().CurrentTrack; cur != nil {
		trackID = cur.ID
	}
	return c.reactor.Send(c.self, emoji, trackID)
}

// Reactions exposes the reaction broadcaster.
func (c *Controller) Reactions() *reaction.Broadcaster { return c.reactor }

// Leave marks the local participant inactive and detaches. Hosts leaving do
// not end the session and no replacement host is chosen.
func (c *Controller) Leave(ctx context.Context) error {
	err := c.manager.Leave(ctx, c.self.ID)
	c.Close()
	return err
}

// End deactivates the session. Only meaningful for the host; the server does
// not enforce that here, the surface calling it does.
func (c *Controller) End(ctx context.Context) error {
	return c.manager.End(ctx, c.watcher.Session().ID)
}

// Close releases every subscription without touching the session state.
func (c *Controller) Close() {
	if c.reactor != nil {
		c.reactor.Close()
	}
	if c.queue != nil {
		c.queue.Close()
	}
	if c.registry != nil {
		c.registry.Close()
	}
	if c.watcher != nil {
		c.watcher.Close()
	}
}
