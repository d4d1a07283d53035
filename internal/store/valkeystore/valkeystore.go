// Package valkeystore implements the durable store and change feed over
// Valkey. Rows are JSON blobs under jam:* keys with per-session member sets;
// every committed write is published on the matching per-(session, table)
// pub/sub channel, which is the change feed clients subscribe to.
package valkeystore

import (
	"context"
	"fmt"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"
	"github.com/segmentio/encoding/json"
	"github.com/valkey-io/valkey-go"

	"github.com/soundslot/jamsession/internal/domain/jam"
	"github.com/soundslot/jamsession/internal/store"
)

// reactionTTL bounds how long write-only reaction rows linger in the
// keyspace. They are never read back.
const reactionTTL = time.Minute

// Store is a Valkey-backed durable store and change feed.
type Store struct {
	client valkey.Client
}

// New wraps an existing Valkey client.
func New(client valkey.Client) *Store {
	return &Store{client: client}
}

var _ store.Store = (*Store)(nil)
var _ store.Feed = (*Store)(nil)

func sessionKey(id string) string      { return "jam:session:" + id }
func codeKey(code string) string       { return "jam:code:" + jam.NormalizeCode(code) }
func participantKey(id string) string  { return "jam:participant:" + id }
func queueItemKey(id string) string    { return "jam:queue:" + id }
func reactionKey(id string) string     { return "jam:reaction:" + id }
func participantSet(sid string) string { return "jam:session:" + sid + ":participants" }
func queueSet(sid string) string       { return "jam:session:" + sid + ":queue" }

func feedChannel(sessionID string, table store.Table) string {
	return fmt.Sprintf("jam:feed:%s:%s", sessionID, table)
}

func (s *Store) setJSON(ctx context.Context, key string, row any, ttl time.Duration) error {
	data, err := json.Marshal(row)
	if err != nil {
		return errors.Wrap(err, "failed to marshal row")
	}
	b := s.client.B().Set().Key(key).Value(string(data))
	if ttl > 0 {
		return s.client.Do(ctx, b.Ex(ttl).Build()).Error()
	}
	return s.client.Do(ctx, b.Build()).Error()
}

func (s *Store) getJSON(ctx context.Context, key string, out any) error {
	raw, err := s.client.Do(ctx, s.client.B().Get().Key(key).Build()).ToString()
	if err != nil {
		if valkey.IsValkeyNil(err) {
			return store.ErrNotFound
		}
		return errors.Wrap(err, "failed to read row")
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return errors.Wrap(err, "failed to unmarshal row")
	}
	return nil
}

// publish emits a feed event for a committed write. Publish failures are
// logged, not propagated: the write itself already landed.
func (s *Store) publish(ctx context.Context, sessionID string, table store.Table, op store.Operation, row any) {
	rec, err := store.EncodeRecord(row)
	if err != nil {
		zlog.Error().Msgf("failed to encode feed record: %v", err)
		return
	}
	payload, err := json.Marshal(store.Event{Table: table, Op: op, Record: rec})
	if err != nil {
		zlog.Error().Msgf("failed to marshal feed event: %v", err)
		return
	}
	cmd := s.client.B().Publish().Channel(feedChannel(sessionID, table)).Message(string(payload)).Build()
	if err := s.client.Do(ctx, cmd).Error(); err != nil {
		zlog.Error().Msgf("failed to publish feed event: session_id=%s table=%s err=%v", sessionID, table, err)
	}
}

// --- sessions ---

func (s *Store) InsertSession(ctx context.Context, sess *jam.Session) error {
	if sess.ID == "" {
		sess.ID = uuid.New().String()
	}
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = time.Now()
	}
	if err := s.setJSON(ctx, sessionKey(sess.ID), sess, 0); err != nil {
		return err
	}
	cmd := s.client.B().Set().Key(codeKey(sess.Code)).Value(sess.ID).Build()
	if err := s.client.Do(ctx, cmd).Error(); err != nil {
		return errors.Wrap(err, "failed to index join code")
	}
	s.publish(ctx, sess.ID, store.TableSessions, store.OpInsert, *sess)
	return nil
}

func (s *Store) GetSession(ctx context.Context, id string) (*jam.Session, error) {
	var sess jam.Session
	if err := s.getJSON(ctx, sessionKey(id), &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

func (s *Store) FindActiveSessionByCode(ctx context.Context, code string) (*jam.Session, error) {
	id, err := s.client.Do(ctx, s.client.B().Get().Key(codeKey(code)).Build()).ToString()
	if err != nil {
		if valkey.IsValkeyNil(err) {
			return nil, store.ErrNotFound
		}
		return nil, errors.Wrap(err, "failed to resolve join code")
	}
	sess, err := s.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if !sess.IsActive {
		return nil, store.ErrNotFound
	}
	return sess, nil
}

func (s *Store) UpdateSession(ctx context.Context, id string, patch store.SessionPatch) error {
	sess, err := s.GetSession(ctx, id)
	if err != nil {
		return err
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
	if err := s.setJSON(ctx, sessionKey(id), sess, 0); err != nil {
		return err
	}
	if patch.IsActive != nil && !*patch.IsActive {
		// Ended sessions release their join code for reuse.
		if err := s.client.Do(ctx, s.client.B().Del().Key(codeKey(sess.Code)).Build()).Error(); err != nil {
			zlog.Warn().Msgf("failed to release join code: code=%s err=%v", sess.Code, err)
		}
	}
	s.publish(ctx, id, store.TableSessions, store.OpUpdate, *sess)
	return nil
}

// --- participants ---

func (s *Store) InsertParticipant(ctx context.Context, p *jam.Participant) error {
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
	if err := s.setJSON(ctx, participantKey(p.ID), p, 0); err != nil {
		return err
	}
	cmd := s.client.B().Sadd().Key(participantSet(p.SessionID)).Member(p.ID).Build()
	if err := s.client.Do(ctx, cmd).Error(); err != nil {
		return errors.Wrap(err, "failed to index participant")
	}
	s.publish(ctx, p.SessionID, store.TableParticipants, store.OpInsert, *p)
	return nil
}

func (s *Store) GetParticipant(ctx context.Context, id string) (*jam.Participant, error) {
	var p jam.Participant
	if err := s.getJSON(ctx, participantKey(id), &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) ListParticipants(ctx context.Context, sessionID string, activeOnly bool) ([]jam.Participant, error) {
	ids, err := s.client.Do(ctx, s.client.B().Smembers().Key(participantSet(sessionID)).Build()).AsStrSlice()
	if err != nil {
		return nil, errors.Wrap(err, "failed to list participants")
	}

	result := make([]jam.Participant, 0, len(ids))
	for _, id := range ids {
		p, err := s.GetParticipant(ctx, id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			return nil, err
		}
		if activeOnly && !p.IsActive {
			continue
		}
		result = append(result, *p)
	}
	sortParticipants(result)
	return result, nil
}

func (s *Store) UpdateParticipant(ctx context.Context, id string, patch store.ParticipantPatch) error {
	p, err := s.GetParticipant(ctx, id)
	if err != nil {
		return err
	}
	if patch.IsActive != nil {
		p.IsActive = *patch.IsActive
	}
	if patch.LastSeenAt != nil {
		p.LastSeenAt = *patch.LastSeenAt
	}
	if err := s.setJSON(ctx, participantKey(id), p, 0); err != nil {
		return err
	}
	s.publish(ctx, p.SessionID, store.TableParticipants, store.OpUpdate, *p)
	return nil
}

// --- queue items ---

func (s *Store) InsertQueueItem(ctx context.Context, it *jam.QueueItem) error {
	if it.ID == "" {
		it.ID = uuid.New().String()
	}
	if it.CreatedAt.IsZero() {
		it.CreatedAt = time.Now()
	}
	if err := s.setJSON(ctx, queueItemKey(it.ID), it, 0); err != nil {
		return err
	}
	cmd := s.client.B().Sadd().Key(queueSet(it.SessionID)).Member(it.ID).Build()
	if err := s.client.Do(ctx, cmd).Error(); err != nil {
		return errors.Wrap(err, "failed to index queue item")
	}
	s.publish(ctx, it.SessionID, store.TableQueueItems, store.OpInsert, *it)
	return nil
}

func (s *Store) GetQueueItem(ctx context.Context, id string) (*jam.QueueItem, error) {
	var it jam.QueueItem
	if err := s.getJSON(ctx, queueItemKey(id), &it); err != nil {
		return nil, err
	}
	return &it, nil
}

func (s *Store) ListQueueItems(ctx context.Context, sessionID string) ([]jam.QueueItem, error) {
	ids, err := s.client.Do(ctx, s.client.B().Smembers().Key(queueSet(sessionID)).Build()).AsStrSlice()
	if err != nil {
		return nil, errors.Wrap(err, "failed to list queue items")
	}

	result := make([]jam.QueueItem, 0, len(ids))
	for _, id := range ids {
		it, err := s.GetQueueItem(ctx, id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			return nil, err
		}
		result = append(result, *it)
	}
	sortQueueItems(result)
	return result, nil
}

func (s *Store) UpdateQueueItem(ctx context.Context, id string, patch store.QueueItemPatch) error {
	it, err := s.GetQueueItem(ctx, id)
	if err != nil {
		return err
	}
	if patch.Votes != nil {
		it.Votes = *patch.Votes
	}
	if patch.IsPlayed != nil {
		it.IsPlayed = *patch.IsPlayed
	}
	if err := s.setJSON(ctx, queueItemKey(id), it, 0); err != nil {
		return err
	}
	s.publish(ctx, it.SessionID, store.TableQueueItems, store.OpUpdate, *it)
	return nil
}

func (s *Store) DeleteQueueItem(ctx context.Context, id string) error {
	it, err := s.GetQueueItem(ctx, id)
	if err != nil {
		return err
	}
	if err := s.client.Do(ctx, s.client.B().Del().Key(queueItemKey(id)).Build()).Error(); err != nil {
		return errors.Wrap(err, "failed to delete queue item")
	}
	cmd := s.client.B().Srem().Key(queueSet(it.SessionID)).Member(id).Build()
	if err := s.client.Do(ctx, cmd).Error(); err != nil {
		return errors.Wrap(err, "failed to unindex queue item")
	}
	s.publish(ctx, it.SessionID, store.TableQueueItems, store.OpDelete, *it)
	return nil
}

// --- reactions ---

func (s *Store) InsertReaction(ctx context.Context, r *jam.Reaction) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	if err := s.setJSON(ctx, reactionKey(r.ID), r, reactionTTL); err != nil {
		return err
	}
	s.publish(ctx, r.SessionID, store.TableReactions, store.OpInsert, *r)
	return nil
}
