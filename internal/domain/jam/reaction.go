package jam

import "time"

// Emojis is the fixed reaction set. Not configurable per session.
var Emojis = []string{"🔥", "❤️", "👏", "🎉", "😍", "🤘"}

// ValidEmoji reports whether e is part of the fixed reaction set.
func ValidEmoji(e string) bool {
	for _, known := range Emojis {
		if e == known {
			return true
		}
	}
	return false
}

// Reaction is a short-lived crowd reaction. The durable row is write-only:
// it exists to notify the other connected clients, never to be replayed.
type Reaction struct {
	ID            string    `json:"id"`
	SessionID     string    `json:"session_id"`
	ParticipantID string    `json:"participant_id"`
	Nickname      string    `json:"nickname"`
	Emoji         string    `json:"emoji"`
	TrackID       string    `json:"track_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}
