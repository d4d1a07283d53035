package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/soundslot/jamsession/internal/store"
)

func TestResolve(t *testing.T) {
	key := Key{Table: store.TableQueueItems, ID: "q1"}

	tests := []struct {
		name         string
		stage        bool
		op           store.Operation
		recordOrigin string
		want         Outcome
		wantPending  int
	}{
		{
			name:         "no pending command applies authoritatively",
			stage:        false,
			op:           store.OpUpdate,
			recordOrigin: "other",
			want:         OutcomeApply,
			wantPending:  0,
		},
		{
			name:         "self echo promotes in place",
			stage:        true,
			op:           store.OpInsert,
			recordOrigin: "me",
			want:         OutcomePromoted,
			wantPending:  0,
		},
		{
			name:         "pending without record origin promotes",
			stage:        true,
			op:           store.OpUpdate,
			recordOrigin: "",
			want:         OutcomePromoted,
			wantPending:  0,
		},
		{
			name:         "foreign write over pending command applies and keeps command",
			stage:        true,
			op:           store.OpUpdate,
			recordOrigin: "other",
			want:         OutcomeApply,
			wantPending:  1,
		},
		{
			name:         "delete removes and clears pending",
			stage:        true,
			op:           store.OpDelete,
			recordOrigin: "",
			want:         OutcomeRemove,
			wantPending:  0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := New("me")
			if tt.stage {
				tr.Stage(key, nil)
			}

			got := tr.Resolve(key, tt.op, tt.recordOrigin)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantPending, tr.PendingCount())
		})
	}
}

func TestForget(t *testing.T) {
	tr := New("me")
	key := Key{Table: store.TableQueueItems, ID: "q1"}

	tr.Stage(key, nil)
	assert.Equal(t, 1, tr.PendingCount())

	tr.Forget(key)
	assert.Equal(t, 0, tr.PendingCount())
	assert.Equal(t, OutcomeApply, tr.Resolve(key, store.OpUpdate, "me"))
}
