// Package reaction fans short-lived emoji reactions out to every client in a
// session and keeps a rolling popularity tally per emoji.
package reaction

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"

	"github.com/soundslot/jamsession/internal/domain/jam"
	"github.com/soundslot/jamsession/internal/store"
)

var ErrUnknownEmoji = errors.New("unknown emoji")

// Config tunes the reaction timing windows. Zero fields fall back to the
// defaults below.
type Config struct {
	Cooldown      time.Duration
	DisplayWindow time.Duration
	ResetInterval time.Duration
}

const (
	defaultCooldown      = 1500 * time.Millisecond
	defaultDisplayWindow = 3000 * time.Millisecond
	defaultResetInterval = 30 * time.Second
)

func (c *Config) fill() {
	if c.Cooldown == 0 {
		c.Cooldown = defaultCooldown
	}
	if c.DisplayWindow == 0 {
		c.DisplayWindow = defaultDisplayWindow
	}
	if c.ResetInterval == 0 {
		c.ResetInterval = defaultResetInterval
	}
}

// Rendered is a reaction placed on screen. X and Y are fractions of the
// viewport in [0, 1).
type Rendered struct {
	jam.Reaction
	X float64
	Y float64
}

// Renderer receives reactions as they appear and disappear. Implementations
// must not block; calls may come from timer goroutines.
type Renderer interface {
	Show(r Rendered)
	Remove(id string)
}

// Throttle enforces the reaction cooldown per (sender, emoji) pair: a repeat
// of the same emoji inside the window is rejected, a different emoji passes.
// It is shared between the broadcaster and the HTTP layer so both paths
// rate-limit identically.
type Throttle struct {
	mu       sync.Mutex
	cooldown time.Duration
	lastSent map[string]time.Time
}

func NewThrottle(cooldown time.Duration) *Throttle {
	if cooldown == 0 {
		cooldown = defaultCooldown
	}
	return &Throttle{cooldown: cooldown, lastSent: map[string]time.Time{}}
}

// Allow reports whether the sender may send this emoji now, and records the
// attempt when it may. Rejected attempts do not extend the cooldown.
func (t *Throttle) Allow(senderID, emoji string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	key := senderID + "|" + emoji
	now := time.Now()
	if last, ok := t.lastSent[key]; ok && now.Sub(last) < t.cooldown {
		return false
	}
	t.lastSent[key] = now
	return true
}

// Broadcaster shows local reactions immediately, persists them in the
// background, and mirrors reactions from other participants off the feed.
type Broadcaster struct {
	store    store.Store
	selfID   string
	cfg      Config
	throttle *Throttle
	renderer Renderer

	mu         sync.Mutex
	popularity map[string]int
	timers     map[string]*time.Timer

	sub    store.Subscription
	cancel context.CancelFunc
	done   chan struct{}
	closed bool
}

func New(st store.Store, selfID string, cfg Config, throttle *Throttle, renderer Renderer) *Broadcaster {
	cfg.fill()
	if throttle == nil {
		throttle = NewThrottle(cfg.Cooldown)
	}
	return &Broadcaster{
		store:      st,
		selfID:     selfID,
		cfg:        cfg,
		throttle:   throttle,
		renderer:   renderer,
		popularity: map[string]int{},
		timers:     map[string]*time.Timer{},
	}
}

// Send validates and dispatches a reaction from the local participant. A
// reaction inside the cooldown window is dropped silently. The view updates
// before the write completes; a failed write only logs, the reaction has
// already been seen.
func (b *Broadcaster) Send(p *jam.Participant, emoji string, trackID string) error {
	if !jam.ValidEmoji(emoji) {
		return errors.Wrapf(ErrUnknownEmoji, "emoji=%q", emoji)
	}
	if !b.throttle.Allow(p.ID, emoji) {
		return nil
	}

	r := jam.Reaction{
		ID:            uuid.New().String(),
		SessionID:     p.SessionID,
		ParticipantID: p.ID,
		Nickname:      p.Nickname,
		Emoji:         emoji,
		TrackID:       trackID,
		CreatedAt:     time.Now().UTC(),
	}
	b.show(r)

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := b.store.InsertReaction(ctx, &r); err != nil {
			zlog.Warn().Msgf("failed to persist reaction: session_id=%s emoji=%s err=%v", r.SessionID, r.Emoji, err)
		}
	}()
	return nil
}

// Watch mirrors reactions from other participants in the session. The local
// participant's own reactions are already on screen and are skipped.
func (b *Broadcaster) Watch(ctx context.Context, sessionID string) error {
	feed, ok := b.store.(store.Feed)
	if !ok {
		return errors.New("store does not provide a change feed")
	}
	wctx, cancel := context.WithCancel(ctx)
	sub, err := feed.Subscribe(wctx, sessionID, store.TableReactions)
	if err != nil {
		cancel()
		return err
	}
	b.cancel = cancel
	b.sub = sub
	b.done = make(chan struct{})
	go b.loop(wctx, sub)
	return nil
}

func (b *Broadcaster) loop(ctx context.Context, sub store.Subscription) {
	defer close(b.done)
	ticker := time.NewTicker(b.cfg.ResetInterval)
	defer ticker.Stop()
	for {
		select {
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			if ev.Op != store.OpInsert {
				continue
			}
			var r jam.Reaction
			if err := store.DecodeRecord(ev.Record, &r); err != nil {
				zlog.Error().Msgf("failed to decode reaction event: %v", err)
				continue
			}
			if r.ParticipantID == b.selfID {
				continue
			}
			b.show(r)
		case <-ticker.C:
			b.resetPopularity()
		case <-ctx.Done():
			return
		}
	}
}

func (b *Broadcaster) show(r jam.Reaction) {
	rendered := Rendered{
		Reaction: r,
		X:        0.1 + rand.Float64()*0.8,
		Y:        0.6 + rand.Float64()*0.3,
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.popularity[r.Emoji]++
	if b.renderer != nil {
		b.timers[r.ID] = time.AfterFunc(b.cfg.DisplayWindow, func() {
			b.mu.Lock()
			delete(b.timers, r.ID)
			b.mu.Unlock()
			b.renderer.Remove(r.ID)
		})
	}
	b.mu.Unlock()

	if b.renderer != nil {
		b.renderer.Show(rendered)
	}
}

// Popularity returns the per-emoji counts accumulated since the last reset.
func (b *Broadcaster) Popularity() map[string]int {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[string]int, len(b.popularity))
	for emoji, n := range b.popularity {
		out[emoji] = n
	}
	return out
}

func (b *Broadcaster) resetPopularity() {
	b.mu.Lock()
	b.popularity = map[string]int{}
	b.mu.Unlock()
}

func (b *Broadcaster) Close() {
	b.mu.Lock()
	b.closed = true
	for id, timer := range b.timers {
		timer.Stop()
		delete(b.timers, id)
	}
	b.mu.Unlock()

	if b.cancel != nil {
		b.cancel()
	}
	if b.sub != nil {
		b.sub.Close()
		<-b.done
	}
}
