// Package session provides the session lifecycle manager: creation,
// code-based join, access gating and leave.
package session

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"

	"github.com/soundslot/jamsession/internal/domain/jam"
	"github.com/soundslot/jamsession/internal/store"
)

var (
	// ErrSessionNotFound: the join code matches no currently active session.
	ErrSessionNotFound = errors.New("session not found")
	// ErrInvalidAccessCode: private session join with a wrong or missing
	// access code.
	ErrInvalidAccessCode = errors.New("invalid access code")
	// ErrCodeGenerationExhausted: join-code uniqueness could not be
	// established within the retry budget. Fatal, not retried.
	ErrCodeGenerationExhausted = errors.New("could not generate a unique join code")
	// ErrSessionFull: the active participant count already reached the
	// session cap. Checked best-effort before insert, not atomically.
	ErrSessionFull = errors.New("session is full")
)

// maxCodeAttempts bounds join-code collision retries during creation.
const maxCodeAttempts = 5

// defaultMaxParticipants applies when neither creation nor the manager
// carries a cap.
const defaultMaxParticipants = 10

// Manager handles session lifecycle against the durable store. It holds no
// per-session state itself; per-client snapshots live in a Watcher.
type Manager struct {
	store      store.Store
	defaultMax int
}

// NewManager creates a session manager. defaultMax caps sessions created
// without an explicit participant limit; zero or negative falls back to
// the package default.
func NewManager(st store.Store, defaultMax int) *Manager {
	if defaultMax <= 0 {
		defaultMax = defaultMaxParticipants
	}
	return &Manager{store: st, defaultMax: defaultMax}
}

// Create starts a new session. The caller becomes host. A private session
// gets a generated access code; the join code is retried on collision
// against active sessions and creation fails once the retry budget is spent.
func (m *Manager) Create(ctx context.Context, name, nickname string, privacy jam.Privacy, maxParticipants int) (*jam.Session, *jam.Participant, error) {
	if !privacy.Valid() {
		privacy = jam.PrivacyPublic
	}
	if maxParticipants <= 0 {
		maxParticipants = m.defaultMax
	}

	code, err := m.uniqueCode(ctx)
	if err != nil {
		return nil, nil, err
	}

	sess := &jam.Session{
		ID:              uuid.New().String(),
		Code:            code,
		Name:            name,
		Privacy:         privacy,
		MaxParticipants: maxParticipants,
		IsActive:        true,
	}
	if privacy == jam.PrivacyPrivate {
		sess.AccessCode = jam.GenerateCode()
	}

	if err := m.store.InsertSession(ctx, sess); err != nil {
		return nil, nil, errors.Wrap(err, "failed to persist session")
	}

	host := &jam.Participant{
		ID:          uuid.New().String(),
		SessionID:   sess.ID,
		Nickname:    nickname,
		IsHost:      true,
		IsActive:    true,
		AvatarColor: jam.PickAvatarColor(),
	}
	if err := m.store.InsertParticipant(ctx, host); err != nil {
		return nil, nil, errors.Wrap(err, "failed to persist host participant")
	}

	zlog.Info().Msgf("session created: session_id=%s code=%s privacy=%s host=%s", sess.ID, sess.Code, sess.Privacy, nickname)
	return sess, host, nil
}

// uniqueCode draws join codes until one matches no active session.
func (m *Manager) uniqueCode(ctx context.Context) (string, error) {
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code := jam.GenerateCode()
		_, err := m.store.FindActiveSessionByCode(ctx, code)
		if errors.Is(err, store.ErrNotFound) {
			return code, nil
		}
		if err != nil {
			return "", errors.Wrap(err, "failed to check join code uniqueness")
		}
		zlog.Warn().Msgf("join code collision, retrying: code=%s attempt=%d", code, attempt+1)
	}
	return "", ErrCodeGenerationExhausted
}

// Join resolves a join code case-insensitively against active sessions and
// inserts a guest participant. The max-participant check reads the current
// count before insert; a concurrent join can transiently exceed the cap by a
// small margin, which is accepted.
func (m *Manager) Join(ctx context.Context, code, nickname, accessCode string) (*jam.Session, *jam.Participant, error) {
	sess, err := m.store.FindActiveSessionByCode(ctx, jam.NormalizeCode(code))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil, ErrSessionNotFound
		}
		return nil, nil, errors.Wrap(err, "failed to resolve join code")
	}

	if sess.RequiresAccessCode() && accessCode != sess.AccessCode {
		return nil, nil, ErrInvalidAccessCode
	}

	active, err := m.store.ListParticipants(ctx, sess.ID, true)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to count participants")
	}
	if len(active) >= sess.MaxParticipants {
		return nil, nil, ErrSessionFull
	}

	guest := &jam.Participant{
		ID:          uuid.New().String(),
		SessionID:   sess.ID,
		Nickname:    nickname,
		IsHost:      false,
		IsActive:    true,
		AvatarColor: jam.PickAvatarColor(),
	}
	if err := m.store.InsertParticipant(ctx, guest); err != nil {
		return nil, nil, errors.Wrap(err, "failed to persist participant")
	}

	zlog.Info().Msgf("participant joined: session_id=%s participant_id=%s nickname=%s", sess.ID, guest.ID, nickname)
	return sess, guest, nil
}

// Leave soft-deactivates a participant. The row is kept for auditing. If the
// host leaves, no replacement is promoted: the session runs host-less until
// ended.
func (m *Manager) Leave(ctx context.Context, participantID string) error {
	inactive := false
	if err := m.store.UpdateParticipant(ctx, participantID, store.ParticipantPatch{IsActive: &inactive}); err != nil {
		return errors.Wrap(err, "failed to deactivate participant")
	}
	zlog.Info().Msgf("participant left: participant_id=%s", participantID)
	return nil
}

// End deactivates a session. Ended sessions are terminal: joins are rejected
// and remaining participants are expected to detect the change and leave.
func (m *Manager) End(ctx context.Context, sessionID string) error {
	inactive := false
	if err := m.store.UpdateSession(ctx, sessionID, store.SessionPatch{IsActive: &inactive}); err != nil {
		return errors.Wrap(err, "failed to end session")
	}
	zlog.Info().Msgf("session ended: session_id=%s", sessionID)
	return nil
}

// Get returns a session row by id.
func (m *Manager) Get(ctx context.Context, sessionID string) (*jam.Session, error) {
	sess, err := m.store.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, errors.Wrap(err, "failed to load session")
	}
	return sess, nil
}

// UpdatePlayback stores the host's playback snapshot (and optionally the
// current track) on the session row. Invoked by host controls and by the
// queue-advance process.
func (m *Manager) UpdatePlayback(ctx context.Context, sessionID string, current *jam.Track, isPlaying bool, positionMS int64) error {
	patch := store.SessionPatch{
		Playback: &jam.PlaybackState{
			IsPlaying:  isPlaying,
			PositionMS: positionMS,
			UpdatedAt:  time.Now(),
		},
	}
	if current != nil {
		patch.CurrentTrack = current
	}
	if err := m.store.UpdateSession(ctx, sessionID, patch); err != nil {
		return errors.Wrap(err, "failed to update playback state")
	}
	return nil
}
