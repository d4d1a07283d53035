// Package store defines the durable store and change feed contracts the jam
// session core runs on. Implementations provide plain CRUD plus per-session
// change notifications; all composition logic (ordering, vote tallying,
// presence views) lives client-side in the app packages.
package store

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/soundslot/jamsession/internal/domain/jam"
)

// ErrNotFound is returned by reads that match no record.
var ErrNotFound = errors.New("record not found")

// SessionPatch is a partial update of a session row. Nil fields are left
// untouched.
type SessionPatch struct {
	IsActive     *bool
	CurrentTrack *jam.Track
	Playback     *jam.PlaybackState
}

// ParticipantPatch is a partial update of a participant row.
type ParticipantPatch struct {
	IsActive   *bool
	LastSeenAt *time.Time
}

// QueueItemPatch is a partial update of a queue item row.
type QueueItemPatch struct {
	Votes    *int
	IsPlayed *bool
}

// Store is the durable store adapter. Four collections, each with insert,
// patch-by-id, delete-by-id and filtered reads. No server-side triggers or
// atomic counters are assumed; every write that succeeds is delivered to feed
// subscribers in commit order.
type Store interface {
	InsertSession(ctx context.Context, s *jam.Session) error
	GetSession(ctx context.Context, id string) (*jam.Session, error)
	// FindActiveSessionByCode resolves a normalized join code against
	// currently active sessions only.
	FindActiveSessionByCode(ctx context.Context, code string) (*jam.Session, error)
	UpdateSession(ctx context.Context, id string, patch SessionPatch) error

	InsertParticipant(ctx context.Context, p *jam.Participant) error
	GetParticipant(ctx context.Context, id string) (*jam.Participant, error)
	ListParticipants(ctx context.Context, sessionID string, activeOnly bool) ([]jam.Participant, error)
	UpdateParticipant(ctx context.Context, id string, patch ParticipantPatch) error

	InsertQueueItem(ctx context.Context, it *jam.QueueItem) error
	GetQueueItem(ctx context.Context, id string) (*jam.QueueItem, error)
	ListQueueItems(ctx context.Context, sessionID string) ([]jam.QueueItem, error)
	UpdateQueueItem(ctx context.Context, id string, patch QueueItemPatch) error
	DeleteQueueItem(ctx context.Context, id string) error

	// InsertReaction is write-only from the core's perspective: the row is
	// never read back, it only fans out through the feed.
	InsertReaction(ctx context.Context, r *jam.Reaction) error
}
