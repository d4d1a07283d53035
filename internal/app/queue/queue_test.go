package queue

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soundslot/jamsession/internal/app/reconcile"
	"github.com/soundslot/jamsession/internal/domain/jam"
	"github.com/soundslot/jamsession/internal/store"
	"github.com/soundslot/jamsession/internal/store/memstore"
)

var (
	alice = &jam.Participant{ID: "alice", SessionID: "s1", Nickname: "Alice", IsHost: true, IsActive: true}
	bob   = &jam.Participant{ID: "bob", SessionID: "s1", Nickname: "Bob", IsActive: true}
)

func newQueue(t *testing.T) (*Queue, *memstore.Store) {
	t.Helper()
	mem := memstore.New()
	q := New(mem, "s1", reconcile.New(alice.ID))
	require.NoError(t, q.Load(context.Background()))
	return q, mem
}

func TestAdd_AssignsPositions(t *testing.T) {
	ctx := context.Background()
	q, mem := newQueue(t)

	first, err := q.Add(ctx, alice, jam.Track{ID: "t1", Title: "One"})
	require.NoError(t, err)
	assert.Equal(t, 1, first.Position)
	assert.Equal(t, 0, first.Votes)
	assert.False(t, first.IsPlayed)

	second, err := q.Add(ctx, bob, jam.Track{ID: "t2", Title: "Two"})
	require.NoError(t, err)
	assert.Equal(t, 2, second.Position)

	// played items do not count toward the queue length
	require.NoError(t, q.MarkPlayed(ctx, first.ID))
	third, err := q.Add(ctx, alice, jam.Track{ID: "t3", Title: "Three"})
	require.NoError(t, err)
	assert.Equal(t, 2, third.Position)

	rows, err := mem.ListQueueItems(ctx, "s1")
	require.NoError(t, err)
	assert.Len(t, rows, 3)
}

func TestVote(t *testing.T) {
	ctx := context.Background()
	q, mem := newQueue(t)

	it, err := q.Add(ctx, alice, jam.Track{ID: "t1"})
	require.NoError(t, err)

	require.NoError(t, q.Vote(ctx, it.ID))
	require.NoError(t, q.Vote(ctx, it.ID))

	row, err := mem.GetQueueItem(ctx, it.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, row.Votes)

	assert.ErrorIs(t, q.Vote(ctx, "missing"), ErrUnknownItem)
}

func TestRemove(t *testing.T) {
	ctx := context.Background()
	q, mem := newQueue(t)

	it, err := q.Add(ctx, alice, jam.Track{ID: "t1"})
	require.NoError(t, err)

	played, err := q.Add(ctx, alice, jam.Track{ID: "t2"})
	require.NoError(t, err)
	require.NoError(t, q.MarkPlayed(ctx, played.ID))

	assert.ErrorIs(t, q.Remove(ctx, played.ID), ErrAlreadyPlayed)

	require.NoError(t, q.Remove(ctx, it.ID))
	rows, err := mem.ListQueueItems(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, played.ID, rows[0].ID)
}

func TestOrderedAndHead(t *testing.T) {
	ctx := context.Background()
	q, _ := newQueue(t)

	a, err := q.Add(ctx, alice, jam.Track{ID: "a"})
	require.NoError(t, err)
	b, err := q.Add(ctx, bob, jam.Track{ID: "b"})
	require.NoError(t, err)
	c, err := q.Add(ctx, alice, jam.Track{ID: "c"})
	require.NoError(t, err)

	// A(votes=2,pos=1) B(votes=2,pos=2) C(votes=3,pos=3) -> C, A, B
	require.NoError(t, q.Vote(ctx, a.ID))
	require.NoError(t, q.Vote(ctx, a.ID))
	require.NoError(t, q.Vote(ctx, b.ID))
	require.NoError(t, q.Vote(ctx, b.ID))
	require.NoError(t, q.Vote(ctx, c.ID))
	require.NoError(t, q.Vote(ctx, c.ID))
	require.NoError(t, q.Vote(ctx, c.ID))

	ordered := q.Ordered()
	require.Len(t, ordered, 3)
	assert.Equal(t, c.ID, ordered[0].ID)
	assert.Equal(t, a.ID, ordered[1].ID)
	assert.Equal(t, b.ID, ordered[2].ID)

	head := q.Head()
	require.NotNil(t, head)
	assert.Equal(t, c.ID, head.ID)

	require.NoError(t, q.MarkPlayed(ctx, c.ID))
	head = q.Head()
	require.NotNil(t, head)
	assert.Equal(t, a.ID, head.ID)
	assert.Len(t, q.Ordered(), 2)
}

func TestWatch_AppliesForeignWrites(t *testing.T) {
	ctx := context.Background()
	mem := memstore.New()

	q := New(mem, "s1", reconcile.New(alice.ID))
	require.NoError(t, q.Load(ctx))
	require.NoError(t, q.Watch(ctx))
	defer q.Close()

	// a second client adds a track directly through the store
	foreign := jam.QueueItem{
		ID:        "q-foreign",
		SessionID: "s1",
		Track:     jam.Track{ID: "t9", Title: "Theirs"},
		AddedByID: bob.ID,
		Position:  1,
	}
	require.NoError(t, mem.InsertQueueItem(ctx, &foreign))

	assert.Eventually(t, func() bool {
		head := q.Head()
		return head != nil && head.ID == "q-foreign"
	}, time.Second, 5*time.Millisecond)
}

func TestWatch_PromotesOwnEcho(t *testing.T) {
	ctx := context.Background()
	mem := memstore.New()

	tracker := reconcile.New(alice.ID)
	q := New(mem, "s1", tracker)
	require.NoError(t, q.Load(ctx))
	require.NoError(t, q.Watch(ctx))
	defer q.Close()

	it, err := q.Add(ctx, alice, jam.Track{ID: "t1"})
	require.NoError(t, err)

	// the echo resolves the pending command without changing the view
	assert.Eventually(t, func() bool {
		return tracker.PendingCount() == 0
	}, time.Second, 5*time.Millisecond)

	ordered := q.Ordered()
	require.Len(t, ordered, 1)
	assert.Equal(t, it.ID, ordered[0].ID)
}

func TestEndToEndScenario(t *testing.T) {
	ctx := context.Background()
	mem := memstore.New()

	bobQ := New(mem, "s1", reconcile.New(bob.ID))
	require.NoError(t, bobQ.Load(ctx))
	aliceQ := New(mem, "s1", reconcile.New(alice.ID))
	require.NoError(t, aliceQ.Load(ctx))
	require.NoError(t, bobQ.Watch(ctx))
	require.NoError(t, aliceQ.Watch(ctx))
	defer bobQ.Close()
	defer aliceQ.Close()

	t1, err := bobQ.Add(ctx, bob, jam.Track{ID: "t1", Title: "T1"})
	require.NoError(t, err)
	assert.Equal(t, 1, t1.Position)

	// wait until Alice sees T1 so her position computation is correct
	require.Eventually(t, func() bool { return len(aliceQ.Ordered()) == 1 }, time.Second, 5*time.Millisecond)

	t2, err := aliceQ.Add(ctx, alice, jam.Track{ID: "t2", Title: "T2"})
	require.NoError(t, err)
	assert.Equal(t, 2, t2.Position)

	require.Eventually(t, func() bool { return len(bobQ.Ordered()) == 2 }, time.Second, 5*time.Millisecond)
	require.NoError(t, bobQ.Vote(ctx, t2.ID))

	require.Eventually(t, func() bool {
		ordered := aliceQ.Ordered()
		return len(ordered) == 2 && ordered[0].ID == t2.ID && ordered[0].Votes == 1
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, aliceQ.MarkPlayed(ctx, t2.ID))

	require.Eventually(t, func() bool {
		ordered := bobQ.Ordered()
		return len(ordered) == 1 && ordered[0].ID == t1.ID
	}, time.Second, 5*time.Millisecond)
}

func TestHub(t *testing.T) {
	ctx := context.Background()
	mem := memstore.New()
	hub := NewHub(mem)
	defer hub.Close()

	q1, err := hub.Get(ctx, "s1")
	require.NoError(t, err)
	q2, err := hub.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Same(t, q1, q2)

	other, err := hub.Get(ctx, "s2")
	require.NoError(t, err)
	assert.NotSame(t, q1, other)

	hub.Release("s1")
	q3, err := hub.Get(ctx, "s1")
	require.NoError(t, err)
	assert.NotSame(t, q1, q3)
}

// failingStore serves reads from the in-memory store but refuses queue
// writes once fail is set.
type failingStore struct {
	*memstore.Store
	fail bool
}

var errWriteRefused = errors.New("write refused")

func (f *failingStore) InsertQueueItem(ctx context.Context, it *jam.QueueItem) error {
	if f.fail {
		return errWriteRefused
	}
	return f.Store.InsertQueueItem(ctx, it)
}

func (f *failingStore) UpdateQueueItem(ctx context.Context, id string, p store.QueueItemPatch) error {
	if f.fail {
		return errWriteRefused
	}
	return f.Store.UpdateQueueItem(ctx, id, p)
}

func (f *failingStore) DeleteQueueItem(ctx context.Context, id string) error {
	if f.fail {
		return errWriteRefused
	}
	return f.Store.DeleteQueueItem(ctx, id)
}

func TestFailedWrite_RollsBackOptimisticState(t *testing.T) {
	ctx := context.Background()
	fs := &failingStore{Store: memstore.New()}
	tr := reconcile.New(alice.ID)
	q := New(fs, "s1", tr)
	require.NoError(t, q.Load(ctx))
	require.NoError(t, q.Watch(ctx))
	defer q.Close()

	it, err := q.Add(ctx, alice, jam.Track{ID: "t1", Title: "One"})
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return tr.PendingCount() == 0
	}, time.Second, 5*time.Millisecond)

	fs.fail = true

	_, err = q.Add(ctx, alice, jam.Track{ID: "t2", Title: "Two"})
	require.Error(t, err)
	assert.Equal(t, 0, tr.PendingCount())
	assert.Len(t, q.Ordered(), 1)

	require.Error(t, q.Vote(ctx, it.ID))
	assert.Equal(t, 0, tr.PendingCount())
	assert.Equal(t, 0, q.Ordered()[0].Votes)

	require.Error(t, q.Remove(ctx, it.ID))
	assert.Equal(t, 0, tr.PendingCount())
	assert.Len(t, q.Ordered(), 1)

	require.Error(t, q.MarkPlayed(ctx, it.ID))
	assert.Equal(t, 0, tr.PendingCount())
	assert.False(t, q.Ordered()[0].IsPlayed)
}
