// Package rest exposes the session, queue, presence and reaction operations
// over HTTP.
package rest

import (
	"context"
	"net/http"

	"github.com/cockroachdb/errors"
	"github.com/gorilla/mux"
	zlog "github.com/rs/zerolog/log"
	"github.com/segmentio/encoding/json"

	"github.com/soundslot/jamsession/internal/app/presence"
	"github.com/soundslot/jamsession/internal/app/queue"
	"github.com/soundslot/jamsession/internal/app/reaction"
	"github.com/soundslot/jamsession/internal/app/session"
	"github.com/soundslot/jamsession/internal/domain/jam"
	"github.com/soundslot/jamsession/internal/store"
)

// TrackFinder resolves track metadata from an external catalog.
type TrackFinder interface {
	GetTrack(ctx context.Context, trackID string) (*jam.Track, error)
	Search(ctx context.Context, query string, limit int) ([]jam.Track, error)
}

// Handler carries the dependencies shared by all HTTP endpoints.
type Handler struct {
	store    store.Store
	manager  *session.Manager
	queues   *queue.Hub
	throttle *reaction.Throttle
	finder   TrackFinder // nil when no catalog is configured
}

func NewHandler(st store.Store, manager *session.Manager, queues *queue.Hub, throttle *reaction.Throttle, finder TrackFinder) *Handler {
	return &Handler{
		store:    st,
		manager:  manager,
		queues:   queues,
		throttle: throttle,
		finder:   finder,
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		zlog.Error().Msgf("failed to encode response: %v", err)
	}
}

// respondError maps domain errors onto HTTP status codes.
func respondError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, session.ErrSessionNotFound),
		errors.Is(err, queue.ErrUnknownItem),
		errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, session.ErrInvalidAccessCode):
		status = http.StatusForbidden
	case errors.Is(err, session.ErrSessionFull),
		errors.Is(err, queue.ErrAlreadyPlayed):
		status = http.StatusConflict
	case errors.Is(err, reaction.ErrUnknownEmoji):
		status = http.StatusBadRequest
	case errors.Is(err, session.ErrCodeGenerationExhausted):
		status = http.StatusServiceUnavailable
	}
	if status == http.StatusInternalServerError {
		zlog.Error().Msgf("request failed: %v", err)
	}
	respondJSON(w, status, errorResponse{Error: err.Error()})
}

func decodeBody(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return errors.Wrap(err, "invalid request body")
	}
	return nil
}

type sessionResponse struct {
	Session     *jam.Session     `json:"session"`
	Participant *jam.Participant `json:"participant"`
}

type createSessionRequest struct {
	Name            string `json:"name"`
	Nickname        string `json:"nickname"`
	Privacy         string `json:"privacy"`
	MaxParticipants int    `json:"max_participants"`
}

// CreateSession handles POST /api/sessions.
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := decodeBody(r, &req); err != nil {
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	if req.Nickname == "" {
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: "nickname is required"})
		return
	}
	privacy := jam.Privacy(req.Privacy)
	if req.Privacy == "" {
		privacy = jam.PrivacyPublic
	}
	if !privacy.Valid() {
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: "privacy must be public or private"})
		return
	}

	sess, host, err := h.manager.Create(r.Context(), req.Name, req.Nickname, privacy, req.MaxParticipants)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, sessionResponse{Session: sess, Participant: host})
}

type joinSessionRequest struct {
	Code       string `json:"code"`
	Nickname   string `json:"nickname"`
	AccessCode string `json:"access_code"`
}

// JoinSession handles POST /api/sessions/join.
func (h *Handler) JoinSession(w http.ResponseWriter, r *http.Request) {
	var req joinSessionRequest
	if err := decodeBody(r, &req); err != nil {
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	if req.Nickname == "" {
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: "nickname is required"})
		return
	}

	sess, p, err := h.manager.Join(r.Context(), req.Code, req.Nickname, req.AccessCode)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, sessionResponse{Session: sess, Participant: p})
}

// GetSession handles GET /api/sessions/{id}.
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := h.manager.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, sess)
}

// EndSession handles POST /api/sessions/{id}/end.
func (h *Handler) EndSession(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]
	if err := h.manager.End(r.Context(), sessionID); err != nil {
		respondError(w, err)
		return
	}
	h.queues.Release(sessionID)
	respondJSON(w, http.StatusOK, nil)
}

type playbackRequest struct {
	Track      *jam.Track `json:"track"`
	IsPlaying  bool       `json:"is_playing"`
	PositionMS int64      `json:"position_ms"`
}

// UpdatePlayback handles PUT /api/sessions/{id}/playback.
func (h *Handler) UpdatePlayback(w http.ResponseWriter, r *http.Request) {
	var req playbackRequest
	if err := decodeBody(r, &req); err != nil {
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	if err := h.manager.UpdatePlayback(r.Context(), mux.Vars(r)["id"], req.Track, req.IsPlaying, req.PositionMS); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, nil)
}

// ListParticipants handles GET /api/sessions/{id}/participants.
func (h *Handler) ListParticipants(w http.ResponseWriter, r *http.Request) {
	reg := presence.NewRegistry(h.store, mux.Vars(r)["id"])
	members, err := reg.List(r.Context())
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, members)
}

// LeaveSession handles POST /api/participants/{id}/leave.
func (h *Handler) LeaveSession(w http.ResponseWriter, r *http.Request) {
	if err := h.manager.Leave(r.Context(), mux.Vars(r)["id"]); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, nil)
}

// Heartbeat handles POST /api/participants/{id}/presence.
func (h *Handler) Heartbeat(w http.ResponseWriter, r *http.Request) {
	participantID := mux.Vars(r)["id"]
	p, err := h.store.GetParticipant(r.Context(), participantID)
	if err != nil {
		respondError(w, err)
		return
	}
	reg := presence.NewRegistry(h.store, p.SessionID)
	if err := reg.RefreshPresence(r.Context(), participantID); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, nil)
}

// GetQueue handles GET /api/sessions/{id}/queue.
func (h *Handler) GetQueue(w http.ResponseWriter, r *http.Request) {
	q, err := h.queues.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, q.Ordered())
}

type addTrackRequest struct {
	ParticipantID string    `json:"participant_id"`
	Track         jam.Track `json:"track"`
}

// AddTrack handles POST /api/sessions/{id}/queue.
func (h *Handler) AddTrack(w http.ResponseWriter, r *http.Request) {
	var req addTrackRequest
	if err := decodeBody(r, &req); err != nil {
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	sessionID := mux.Vars(r)["id"]

	p, err := h.store.GetParticipant(r.Context(), req.ParticipantID)
	if err != nil {
		respondError(w, err)
		return
	}
	if p.SessionID != sessionID {
		respondJSON(w, http.StatusForbidden, errorResponse{Error: "participant does not belong to this session"})
		return
	}

	// The catalog fills in metadata when the client sent only an ID.
	trk := req.Track
	if trk.Title == "" && h.finder != nil && trk.ID != "" {
		if resolved, err := h.finder.GetTrack(r.Context(), trk.ID); err == nil {
			trk = *resolved
		}
	}

	q, err := h.queues.Get(r.Context(), sessionID)
	if err != nil {
		respondError(w, err)
		return
	}
	item, err := q.Add(r.Context(), p, trk)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, item)
}

// VoteTrack handles POST /api/sessions/{id}/queue/{item}/vote.
func (h *Handler) VoteTrack(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	q, err := h.queues.Get(r.Context(), vars["id"])
	if err != nil {
		respondError(w, err)
		return
	}
	if err := q.Vote(r.Context(), vars["item"]); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, nil)
}

// RemoveTrack handles DELETE /api/sessions/{id}/queue/{item}.
func (h *Handler) RemoveTrack(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	q, err := h.queues.Get(r.Context(), vars["id"])
	if err != nil {
		respondError(w, err)
		return
	}
	if err := q.Remove(r.Context(), vars["item"]); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, nil)
}

// MarkPlayed handles POST /api/sessions/{id}/queue/{item}/played.
func (h *Handler) MarkPlayed(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	q, err := h.queues.Get(r.Context(), vars["id"])
	if err != nil {
		respondError(w, err)
		return
	}
	if err := q.MarkPlayed(r.Context(), vars["item"]); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, nil)
}

type reactionRequest struct {
	ParticipantID string `json:"participant_id"`
	Emoji         string `json:"emoji"`
	TrackID       string `json:"track_id"`
}

// SendReaction handles POST /api/sessions/{id}/reactions. A sender inside
// the cooldown window gets 429; nothing is stored or broadcast.
func (h *Handler) SendReaction(w http.ResponseWriter, r *http.Request) {
	var req reactionRequest
	if err := decodeBody(r, &req); err != nil {
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	if !jam.ValidEmoji(req.Emoji) {
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: "unknown emoji"})
		return
	}
	sessionID := mux.Vars(r)["id"]

	p, err := h.store.GetParticipant(r.Context(), req.ParticipantID)
	if err != nil {
		respondError(w, err)
		return
	}
	if p.SessionID != sessionID {
		respondJSON(w, http.StatusForbidden, errorResponse{Error: "participant does not belong to this session"})
		return
	}
	if !h.throttle.Allow(p.ID, req.Emoji) {
		respondJSON(w, http.StatusTooManyRequests, errorResponse{Error: "reaction cooldown active"})
		return
	}

	reactionRow := jam.Reaction{
		SessionID:     sessionID,
		ParticipantID: p.ID,
		Nickname:      p.Nickname,
		Emoji:         req.Emoji,
		TrackID:       req.TrackID,
	}
	if err := h.store.InsertReaction(r.Context(), &reactionRow); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusAccepted, reactionRow)
}

// SearchTracks handles GET /api/tracks/search.
func (h *Handler) SearchTracks(w http.ResponseWriter, r *http.Request) {
	if h.finder == nil {
		respondJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "track catalog is not configured"})
		return
	}
	query := r.URL.Query().Get("q")
	if query == "" {
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: "query parameter q is required"})
		return
	}
	tracks, err := h.finder.Search(r.Context(), query, 20)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, tracks)
}
