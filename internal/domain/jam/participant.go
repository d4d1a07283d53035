package jam

import "time"

// Participant is one connected member of a session. Rows are soft-deleted:
// leaving flips IsActive instead of removing the row, so the history of a
// session stays auditable.
type Participant struct {
	ID          string    `json:"id"`
	SessionID   string    `json:"session_id"`
	Nickname    string    `json:"nickname"`
	IsHost      bool      `json:"is_host"`
	IsActive    bool      `json:"is_active"`
	AvatarColor string    `json:"avatar_color"`
	JoinedAt    time.Time `json:"joined_at"`
	LastSeenAt  time.Time `json:"last_seen_at"`
}

// avatarPalette matches the kiosk UI's participant badge colors.
var avatarPalette = []string{
	"#f94144", "#f3722c", "#f8961e", "#f9c74f",
	"#90be6d", "#43aa8b", "#577590", "#9b5de5",
}

// PickAvatarColor returns an avatar color for a new participant.
func PickAvatarColor() string {
	return avatarPalette[randIndex(len(avatarPalette))]
}
