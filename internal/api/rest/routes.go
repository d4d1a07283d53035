package rest

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	zlog "github.com/rs/zerolog/log"
)

// NewRouter builds the HTTP route table for the given handler.
func NewRouter(h *Handler) *mux.Router {
	r := mux.NewRouter()
	r.Use(logRequests)

	api := r.PathPrefix("/api").Subrouter()

	api.HandleFunc("/sessions", h.CreateSession).Methods(http.MethodPost)
	api.HandleFunc("/sessions/join", h.JoinSession).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{id}", h.GetSession).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{id}/end", h.EndSession).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{id}/playback", h.UpdatePlayback).Methods(http.MethodPut)
	api.HandleFunc("/sessions/{id}/participants", h.ListParticipants).Methods(http.MethodGet)

	api.HandleFunc("/participants/{id}/leave", h.LeaveSession).Methods(http.MethodPost)
	api.HandleFunc("/participants/{id}/presence", h.Heartbeat).Methods(http.MethodPost)

	api.HandleFunc("/sessions/{id}/queue", h.GetQueue).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{id}/queue", h.AddTrack).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{id}/queue/{item}/vote", h.VoteTrack).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{id}/queue/{item}", h.RemoveTrack).Methods(http.MethodDelete)
	api.HandleFunc("/sessions/{id}/queue/{item}/played", h.MarkPlayed).Methods(http.MethodPost)

	api.HandleFunc("/sessions/{id}/reactions", h.SendReaction).Methods(http.MethodPost)
	api.HandleFunc("/tracks/search", h.SearchTracks).Methods(http.MethodGet)

	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}).Methods(http.MethodGet)

	return r
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		zlog.Debug().Msgf("http request: method=%s path=%s elapsed=%s", r.Method, r.URL.Path, time.Since(start))
	})
}
