package valkeystore

import (
	"context"
	"sort"
	"sync"

	zlog "github.com/rs/zerolog/log"
	"github.com/segmentio/encoding/json"
	"github.com/valkey-io/valkey-go"

	"github.com/soundslot/jamsession/internal/domain/jam"
	"github.com/soundslot/jamsession/internal/store"
)

const subscriptionBuffer = 256

type subscription struct {
	events chan store.Event
	cancel context.CancelFunc
	once   sync.Once
}

func (s *subscription) Events() <-chan store.Event { return s.events }

func (s *subscription) Close() {
	s.once.Do(s.cancel)
}

// Subscribe opens one pub/sub channel for a (session, table) pair. Valkey
// preserves publish order per channel, which gives subscribers the store's
// commit order. Close releases the underlying connection.
func (s *Store) Subscribe(ctx context.Context, sessionID string, table store.Table) (store.Subscription, error) {
	ctx, cancel := context.WithCancel(ctx)
	sub := &subscription{
		events: make(chan store.Event, subscriptionBuffer),
		cancel: cancel,
	}

	channel := feedChannel(sessionID, table)

	go func() {
		defer close(sub.events)

		cmd := s.client.B().Subscribe().Channel(channel).Build()
		err := s.client.Receive(ctx, cmd, func(msg valkey.PubSubMessage) {
			var ev store.Event
			if err := json.Unmarshal([]byte(msg.Message), &ev); err != nil {
				zlog.Error().Msgf("failed to decode feed event: channel=%s err=%v", channel, err)
				return
			}
			select {
			case sub.events <- ev:
			default:
				zlog.Warn().Msgf("dropping feed event: channel=%s", channel)
			}
		})
		if err != nil && ctx.Err() == nil {
			zlog.Error().Msgf("feed subscription ended: channel=%s err=%v", channel, err)
		}
	}()

	return sub, nil
}

func sortParticipants(ps []jam.Participant) {
	sort.Slice(ps, func(i, j int) bool {
		return ps[i].JoinedAt.Before(ps[j].JoinedAt)
	})
}

func sortQueueItems(items []jam.QueueItem) {
	sort.Slice(items, func(i, j int) bool {
		return items[i].Position < items[j].Position
	})
}
