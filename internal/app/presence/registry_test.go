package presence

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soundslot/jamsession/internal/domain/jam"
	"github.com/soundslot/jamsession/internal/store"
	"github.com/soundslot/jamsession/internal/store/memstore"
)

func seedParticipants(t *testing.T, mem *memstore.Store) {
	t.Helper()
	base := time.Now().Add(-time.Hour)
	rows := []jam.Participant{
		{ID: "alice", SessionID: "s1", Nickname: "Alice", IsHost: true, IsActive: true, JoinedAt: base},
		{ID: "bob", SessionID: "s1", Nickname: "Bob", IsActive: true, JoinedAt: base.Add(time.Minute)},
		{ID: "carol", SessionID: "s1", Nickname: "Carol", IsActive: false, JoinedAt: base.Add(2 * time.Minute)},
	}
	for i := range rows {
		require.NoError(t, mem.InsertParticipant(context.Background(), &rows[i]))
	}
}

func TestList(t *testing.T) {
	ctx := context.Background()
	mem := memstore.New()
	seedParticipants(t, mem)

	r := NewRegistry(mem, "s1")

	list, err := r.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Alice", list[0].Nickname)
	assert.Equal(t, "Bob", list[1].Nickname)

	host, err := r.Host(ctx)
	require.NoError(t, err)
	require.NotNil(t, host)
	assert.Equal(t, "alice", host.ID)

	guests, err := r.Guests(ctx)
	require.NoError(t, err)
	require.Len(t, guests, 1)
	assert.Equal(t, "bob", guests[0].ID)
}

func TestHostless(t *testing.T) {
	ctx := context.Background()
	mem := memstore.New()
	seedParticipants(t, mem)

	inactive := false
	require.NoError(t, mem.UpdateParticipant(ctx, "alice", store.ParticipantPatch{IsActive: &inactive}))

	r := NewRegistry(mem, "s1")
	host, err := r.Host(ctx)
	require.NoError(t, err)
	assert.Nil(t, host)
}

func TestRefreshPresence(t *testing.T) {
	ctx := context.Background()
	mem := memstore.New()
	seedParticipants(t, mem)

	before, err := mem.GetParticipant(ctx, "bob")
	require.NoError(t, err)

	r := NewRegistry(mem, "s1")
	time.Sleep(5 * time.Millisecond)
	require.NoError(t, r.RefreshPresence(ctx, "bob"))

	after, err := mem.GetParticipant(ctx, "bob")
	require.NoError(t, err)
	assert.True(t, after.LastSeenAt.After(before.LastSeenAt))
}

func TestWatchRecomputesOnFeedEvents(t *testing.T) {
	ctx := context.Background()
	mem := memstore.New()
	seedParticipants(t, mem)

	r := NewRegistry(mem, "s1")
	require.NoError(t, r.Watch(ctx))
	defer r.Close()

	list, err := r.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 2)

	// another client joins
	dan := jam.Participant{ID: "dan", SessionID: "s1", Nickname: "Dan", IsActive: true, JoinedAt: time.Now()}
	require.NoError(t, mem.InsertParticipant(ctx, &dan))

	assert.Eventually(t, func() bool {
		list, err := r.List(ctx)
		return err == nil && len(list) == 3
	}, time.Second, 5*time.Millisecond)

	// bob leaves (soft delete arrives as an update)
	inactive := false
	require.NoError(t, mem.UpdateParticipant(ctx, "bob", store.ParticipantPatch{IsActive: &inactive}))

	assert.Eventually(t, func() bool {
		list, err := r.List(ctx)
		if err != nil || len(list) != 2 {
			return false
		}
		for _, p := range list {
			if p.ID == "bob" {
				return false
			}
		}
		return true
	}, time.Second, 5*time.Millisecond)
}
