// Package stream bridges the store change feed onto websocket connections
// so browser clients can reconcile their local state live.
package stream

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	zlog "github.com/rs/zerolog/log"
	"github.com/segmentio/encoding/json"

	"github.com/soundslot/jamsession/internal/store"
)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// The kiosk UI and the API are served from different origins.
	CheckOrigin: func(*http.Request) bool { return true },
}

// Frame is one change event as sent over the wire.
type Frame struct {
	Table  store.Table     `json:"table"`
	Op     store.Operation `json:"op"`
	Record map[string]any  `json:"record"`
}

// Handler upgrades requests to websocket connections fed from the store.
type Handler struct {
	feed store.Feed
}

func NewHandler(feed store.Feed) *Handler {
	return &Handler{feed: feed}
}

// Serve handles GET /ws/sessions/{id}. Every change to the session, its
// participants, queue and reactions is pushed as one JSON frame.
func (h *Handler) Serve(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		zlog.Warn().Msgf("websocket upgrade failed: session_id=%s err=%v", sessionID, err)
		return
	}

	tables := []store.Table{
		store.TableSessions,
		store.TableParticipants,
		store.TableQueueItems,
		store.TableReactions,
	}
	subs := make([]store.Subscription, 0, len(tables))
	frames := make(chan Frame, 64)
	done := make(chan struct{})
	for _, table := range tables {
		// Subscriptions outlive the request context; Close tears them down.
		sub, err := h.feed.Subscribe(context.Background(), sessionID, table)
		if err != nil {
			zlog.Error().Msgf("feed subscribe failed: session_id=%s table=%s err=%v", sessionID, table, err)
			for _, s := range subs {
				s.Close()
			}
			conn.Close()
			return
		}
		subs = append(subs, sub)
		go pump(sub, frames, done)
	}

	zlog.Info().Msgf("websocket attached: session_id=%s remote=%s", sessionID, conn.RemoteAddr())
	clientGone := make(chan struct{})
	go readLoop(conn, clientGone)
	h.writeLoop(conn, frames, subs, done, clientGone, sessionID)
}

func pump(sub store.Subscription, frames chan<- Frame, done <-chan struct{}) {
	for ev := range sub.Events() {
		select {
		case frames <- Frame{Table: ev.Table, Op: ev.Op, Record: ev.Record}:
		case <-done:
			return
		}
	}
}

func (h *Handler) writeLoop(conn *websocket.Conn, frames <-chan Frame, subs []store.Subscription, done chan struct{}, clientGone <-chan struct{}, sessionID string) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		close(done)
		for _, sub := range subs {
			sub.Close()
		}
		conn.Close()
		zlog.Info().Msgf("websocket detached: session_id=%s", sessionID)
	}()

	for {
		select {
		case frame := <-frames:
			payload, err := json.Marshal(frame)
			if err != nil {
				zlog.Error().Msgf("failed to marshal frame: %v", err)
				continue
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-clientGone:
			return
		}
	}
}

// readLoop drains client frames so pings and close messages are processed.
func readLoop(conn *websocket.Conn, clientGone chan<- struct{}) {
	defer close(clientGone)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
