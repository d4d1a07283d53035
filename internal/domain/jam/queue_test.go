package jam

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrderQueue(t *testing.T) {
	tests := []struct {
		name     string
		items    []QueueItem
		expected []string
	}{
		{
			name:     "empty queue",
			items:    []QueueItem{},
			expected: []string{},
		},
		{
			name: "votes descending",
			items: []QueueItem{
				{ID: "a", Votes: 1, Position: 1},
				{ID: "b", Votes: 3, Position: 2},
				{ID: "c", Votes: 2, Position: 3},
			},
			expected: []string{"b", "c", "a"},
		},
		{
			name: "ties broken by earlier insertion",
			items: []QueueItem{
				{ID: "a", Votes: 2, Position: 1},
				{ID: "b", Votes: 2, Position: 2},
				{ID: "c", Votes: 3, Position: 3},
			},
			expected: []string{"c", "a", "b"},
		},
		{
			name: "played items excluded",
			items: []QueueItem{
				{ID: "a", Votes: 5, Position: 1, IsPlayed: true},
				{ID: "b", Votes: 0, Position: 2},
				{ID: "c", Votes: 1, Position: 3},
			},
			expected: []string{"c", "b"},
		},
		{
			name: "position collision keeps input order",
			items: []QueueItem{
				{ID: "a", Votes: 0, Position: 2},
				{ID: "b", Votes: 0, Position: 2},
			},
			expected: []string{"a", "b"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ordered := OrderQueue(tt.items)

			ids := make([]string, 0, len(ordered))
			for _, it := range ordered {
				ids = append(ids, it.ID)
			}
			assert.Equal(t, tt.expected, ids)
		})
	}
}

func TestOrderQueue_Deterministic(t *testing.T) {
	items := []QueueItem{
		{ID: "a", Votes: 2, Position: 1},
		{ID: "b", Votes: 2, Position: 2},
		{ID: "c", Votes: 3, Position: 3},
	}

	first := OrderQueue(items)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, OrderQueue(items))
	}
	// input untouched
	assert.Equal(t, "a", items[0].ID)
}

func TestQueueHead(t *testing.T) {
	assert.Nil(t, QueueHead(nil))

	items := []QueueItem{
		{ID: "t1", Votes: 0, Position: 1},
		{ID: "t2", Votes: 1, Position: 2},
	}

	head := QueueHead(items)
	require.NotNil(t, head)
	assert.Equal(t, "t2", head.ID)

	// marking the head played advances to the next item
	items[1].IsPlayed = true
	head = QueueHead(items)
	require.NotNil(t, head)
	assert.Equal(t, "t1", head.ID)

	items[0].IsPlayed = true
	assert.Nil(t, QueueHead(items))
}
