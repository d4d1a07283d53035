// Package memstore provides an in-memory Store and Feed with loopback
// change delivery. It backs the test suite and the CLI's standalone mode.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"

	"github.com/soundslot/jamsession/internal/domain/jam"
	"github.com/soundslot/jamsession/internal/store"
)

const subscriptionBuffer = 256

type subKey struct {
	sessionID string
	table     store.Table
}

type subscription struct {
	key    subKey
	events chan store.Event
	store  *Store
	once   sync.Once
}

func (s *subscription) Events() <-chan store.Event { return s.events }

func (s *subscription) Close() {
	s.once.Do(func() {
		s.store.unsubscribe(s)
		close(s.events)
	})
}

// Store is an in-memory durable store with a loopback change feed.
// Feed events are published in commit order while the write lock is held,
// so every subscription observes writes in the same order they landed.
type Store struct {
	mu           sync.RWMutex
	sessions     map[string]jam.Session
	participants map[string]jam.Participant
	queueItems   map[string]jam.QueueItem
	subs         map[subKey]map[*subscription]struct{}
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		sessions:     make(map[string]jam.Session),
		participants: make(map[string]jam.Participant),
		queueItems:   make(map[string]jam.QueueItem),
		subs:         make(map[subKey]map[*subscription]struct{}),
	}
}

var _ store.Store = (*Store)(nil)
var _ store.Feed = (*Store)(nil)

// Subscribe opens a change stream for one (session, table) pair.
func (s *Store) Subscribe(_ context.Context, sessionID string, table store.Table) (store.Subscription, error) {
	sub := &subscription{
		key:    subKey{sessionID: sessionID, table: table},
		events: make(chan store.Event, subscriptionBuffer),
		store:  s,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.subs[sub.key] == nil {
		s.subs[sub.key] = make(map[*subscription]struct{})
	}
	s.subs[sub.key][sub] = struct{}{}
	return sub, nil
}

func (s *Store) unsubscribe(sub *subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if set, ok := s.subs[sub.key]; ok {
		delete(set, sub)
	}
}

// publishLocked fans an event out to the pair's subscribers. Caller must
// hold the write lock; that is what keeps delivery in commit order.
func (s *Store) publishLocked(sessionID string, table store.Table, op store.Operation, row any) {
	set := s.subs[subKey{sessionID: sessionID, table: table}]
	if len(set) == 0 {
		return
	}

	rec, err := store.EncodeRecord(row)
	if err != nil {
		zlog.Error().Msgf("failed to encode feed record: %v", err)
		return
	}

	ev := store.Event{Table: table, Op: op, Record: rec}
	for sub := range set {
		select {
		case sub.events <- ev:
		default:
			// Slow consumer: drop rather than stall every other client.
			zlog.Warn().Msgf("dropping feed event: session_id=%s table=%s", sessionID, table)
		}
	}
}

// --- sessions ---

func (s *Store) InsertSession(_ context.Context, sess *jam.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess.ID == "" {
		sess.ID = uuid.New().String()
	}
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = time.Now()
	}
	s.sessions[sess.ID] = *sess
	s.publishLocked(sess.ID, store.TableSessions, store.OpInsert, *sess)
	return nil
}

func (s *Store) GetSession(_ context.Context, id string) (*jam.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &sess, nil
}

func (s *Store) FindActiveSessionByCode(_ context.Context, code string) (*jam.Session, error) {
	code = jam.NormalizeCode(code)

	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sess := range s.sessions {
		if sess.IsActive && sess.Code == code {
			found := sess
			return &found, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) UpdateSession(_ context.Context, id string, patch store.SessionPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return store.ErrNotFound
	}
	if patch.IsActive != nil {
		sess.IsActive = *patch.IsActive
	}
	if patch.CurrentTrack != nil {
		trk := *patch.CurrentTrack
		sess.CurrentTrack = &trk
	}
	if patch.Playback != nil {
		sess.Playback = *patch.Playback
	}
	s.sessions[id] = sess
	s.publishLocked(id, store.TableSessions, store.OpUpdate, sess)
	return nil
}

// --- participants ---

func (s *Store) InsertParticipant(_ context.Context, p *jam.Participant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	now := time.Now()
	if p.JoinedAt.IsZero() {
		p.JoinedAt = now
	}
	if p.LastSeenAt.IsZero() {
		p.LastSeenAt = now
	}
	s.participants[p.ID] = *p
	s.publishLocked(p.SessionID, store.TableParticipants, store.OpInsert, *p)
	return nil
}

func (s *Store) GetParticipant(_ context.Context, id string) (*jam.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.participants[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &p, nil
}

func (s *Store) ListParticipants(_ context.Context, sessionID string, activeOnly bool) ([]jam.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []jam.Participant
	for _, p := range s.participants {
		if p.SessionID != sessionID {
			continue
		}
		if activeOnly && !p.IsActive {
			continue
		}
		result = append(result, p)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].JoinedAt.Before(result[j].JoinedAt)
	})
	return result, nil
}

func (s *Store) UpdateParticipant(_ context.Context, id string, patch store.ParticipantPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.participants[id]
	if !ok {
		return store.ErrNotFound
	}
	if patch.IsActive != nil {
		p.IsActive = *patch.IsActive
	}
	if patch.LastSeenAt != nil {
		p.LastSeenAt = *patch.LastSeenAt
	}
	s.participants[id] = p
	s.publishLocked(p.SessionID, store.TableParticipants, store.OpUpdate, p)
	return nil
}

// --- queue items ---

func (s *Store) InsertQueueItem(_ context.Context, it *jam.QueueItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if it.ID == "" {
		it.ID = uuid.New().String()
	}
	if it.CreatedAt.IsZero() {
		it.CreatedAt = time.Now()
	}
	s.queueItems[it.ID] = *it
	s.publishLocked(it.SessionID, store.TableQueueItems, store.OpInsert, *it)
	return nil
}

func (s *Store) GetQueueItem(_ context.Context, id string) (*jam.QueueItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	it, ok := s.queueItems[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &it, nil
}

func (s *Store) ListQueueItems(_ context.Context, sessionID string) ([]jam.QueueItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []jam.QueueItem
	for _, it := range s.queueItems {
		if it.SessionID == sessionID {
			result = append(result, it)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Position < result[j].Position
	})
	return result, nil
}

func (s *Store) UpdateQueueItem(_ context.Context, id string, patch store.QueueItemPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	it, ok := s.queueItems[id]
	if !ok {
		return store.ErrNotFound
	}
	if patch.Votes != nil {
		it.Votes = *patch.Votes
	}
	if patch.IsPlayed != nil {
		it.IsPlayed = *patch.IsPlayed
	}
	s.queueItems[id] = it
	s.publishLocked(it.SessionID, store.TableQueueItems, store.OpUpdate, it)
	return nil
}

func (s *Store) DeleteQueueItem(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	it, ok := s.queueItems[id]
	if !ok {
		return store.ErrNotFound
	}
	delete(s.queueItems, id)
	s.publishLocked(it.SessionID, store.TableQueueItems, store.OpDelete, it)
	return nil
}

// --- reactions ---

func (s *Store) InsertReaction(_ context.Context, r *jam.Reaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	// Reactions are not retained: the row exists to be fanned out once.
	s.publishLocked(r.SessionID, store.TableReactions, store.OpInsert, *r)
	return nil
}
