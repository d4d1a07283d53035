// Package jam provides the domain entities for collaborative listening sessions.
package jam

import "time"

// Privacy controls who may join a session.
type Privacy string

const (
	PrivacyPublic  Privacy = "public"
	PrivacyPrivate Privacy = "private"
)

// Valid reports whether p is a known privacy value.
func (p Privacy) Valid() bool {
	return p == PrivacyPublic || p == PrivacyPrivate
}

// PlaybackState is the session's current playback snapshot. It is advisory:
// the host's player is the actual source of position, this is the last value
// it reported.
type PlaybackState struct {
	IsPlaying  bool      `json:"is_playing"`
	PositionMS int64     `json:"position_ms"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Session is one active collaborative listening instance, shared via a short
// join code.
type Session struct {
	ID              string        `json:"id"`
	Code            string        `json:"code"`
	Name            string        `json:"name"`
	Privacy         Privacy       `json:"privacy"`
	AccessCode      string        `json:"access_code,omitempty"`
	MaxParticipants int           `json:"max_participants"`
	IsActive        bool          `json:"is_active"`
	CurrentTrack    *Track        `json:"current_track,omitempty"`
	Playback        PlaybackState `json:"playback"`
	CreatedAt       time.Time     `json:"created_at"`
}

// RequiresAccessCode reports whether joining needs an access code.
// Invariant: AccessCode is non-empty iff Privacy is private.
func (s *Session) RequiresAccessCode() bool {
	return s.Privacy == PrivacyPrivate
}
