package jam

import (
	"sort"
	"time"
)

// QueueItem is one pending track in a session's collaborative queue.
type QueueItem struct {
	ID          string    `json:"id"`
	SessionID   string    `json:"session_id"`
	Track       Track     `json:"track"`
	AddedByID   string    `json:"added_by_id"`
	AddedByName string    `json:"added_by_name"`
	Votes       int       `json:"votes"`
	IsPlayed    bool      `json:"is_played"`
	Position    int       `json:"position"`
	CreatedAt   time.Time `json:"created_at"`
}

// OrderQueue returns the user-visible queue order: unplayed items sorted by
// votes descending, ties broken by ascending insertion position so the
// earlier add wins. The input slice is not modified.
func OrderQueue(items []QueueItem) []QueueItem {
	ordered := make([]QueueItem, 0, len(items))
	for _, it := range items {
		if !it.IsPlayed {
			ordered = append(ordered, it)
		}
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Votes != ordered[j].Votes {
			return ordered[i].Votes > ordered[j].Votes
		}
		return ordered[i].Position < ordered[j].Position
	})
	return ordered
}

// QueueHead returns the next track to play, or nil if the queue is empty.
func QueueHead(items []QueueItem) *QueueItem {
	ordered := OrderQueue(items)
	if len(ordered) == 0 {
		return nil
	}
	head := ordered[0]
	return &head
}
