package controller

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soundslot/jamsession/internal/app/reaction"
	"github.com/soundslot/jamsession/internal/app/session"
	"github.com/soundslot/jamsession/internal/domain/jam"
	"github.com/soundslot/jamsession/internal/store/memstore"
)

type nullRenderer struct {
	mu    sync.Mutex
	shown int
}

func (n *nullRenderer) Show(reaction.Rendered) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.shown++
}

func (n *nullRenderer) Remove(string) {}

func (n *nullRenderer) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.shown
}

func TestCreateAndJoin(t *testing.T) {
	ctx := context.Background()
	mem := memstore.New()

	host, err := Create(ctx, mem, "Friday Night", "Alice", jam.PrivacyPublic, 0, Options{})
	require.NoError(t, err)
	defer host.Close()

	require.True(t, host.Self().IsHost)
	sess := host.Session()
	require.Len(t, sess.Code, jam.CodeLength)

	guest, err := Join(ctx, mem, sess.Code, "Bob", "", Options{})
	require.NoError(t, err)
	defer guest.Close()
	assert.False(t, guest.Self().IsHost)

	require.Eventually(t, func() bool {
		members, err := host.Participants(ctx)
		return err == nil && len(members) == 2
	}, time.Second, 5*time.Millisecond)

	members, err := host.Participants(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Alice", members[0].Nickname)
	assert.Equal(t, "Bob", members[1].Nickname)
}

func TestJoinErrors(t *testing.T) {
	ctx := context.Background()
	mem := memstore.New()

	host, err := Create(ctx, mem, "Private Party", "Alice", jam.PrivacyPrivate, 0, Options{})
	require.NoError(t, err)
	defer host.Close()

	_, err = Join(ctx, mem, "ZZZZZZ", "Bob", "", Options{})
	assert.ErrorIs(t, err, session.ErrSessionNotFound)

	_, err = Join(ctx, mem, host.Session().Code, "Bob", "WRONG1", Options{})
	assert.ErrorIs(t, err, session.ErrInvalidAccessCode)
}

func TestQueuePropagatesBetweenControllers(t *testing.T) {
	ctx := context.Background()
	mem := memstore.New()

	host, err := Create(ctx, mem, "Jam", "Alice", jam.PrivacyPublic, 0, Options{})
	require.NoError(t, err)
	defer host.Close()

	guest, err := Join(ctx, mem, host.Session().Code, "Bob", "", Options{})
	require.NoError(t, err)
	defer guest.Close()

	item, err := guest.AddTrack(ctx, jam.Track{ID: "t1", Title: "Song"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		head := host.Queue().Head()
		return head != nil && head.ID == item.ID
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, "Bob", host.Queue().Head().AddedByName)
}

func TestReactionsReachOtherControllers(t *testing.T) {
	ctx := context.Background()
	mem := memstore.New()

	hostRend := &nullRenderer{}
	host, err := Create(ctx, mem, "Jam", "Alice", jam.PrivacyPublic, 0, Options{Renderer: hostRend})
	require.NoError(t, err)
	defer host.Close()

	guest, err := Join(ctx, mem, host.Session().Code, "Bob", "", Options{})
	require.NoError(t, err)
	defer guest.Close()

	require.NoError(t, guest.React(jam.Emojis[0]))

	require.Eventually(t, func() bool {
		return hostRend.count() == 1
	}, time.Second, 5*time.Millisecond)
}

func TestLeaveAndEnd(t *testing.T) {
	ctx := context.Background()
	mem := memstore.New()

	host, err := Create(ctx, mem, "Jam", "Alice", jam.PrivacyPublic, 0, Options{})
	require.NoError(t, err)

	guest, err := Join(ctx, mem, host.Session().Code, "Bob", "", Options{})
	require.NoError(t, err)
	require.NoError(t, guest.Leave(ctx))

	require.Eventually(t, func() bool {
		members, err := host.Participants(ctx)
		return err == nil && len(members) == 1
	}, time.Second, 5*time.Millisecond)

	code := host.Session().Code
	require.NoError(t, host.End(ctx))
	require.Eventually(t, func() bool { return !host.Active() }, time.Second, 5*time.Millisecond)
	host.Close()

	_, err = Join(ctx, mem, code, "Carol", "", Options{})
	assert.ErrorIs(t, err, session.ErrSessionNotFound)
}
