// Package httpapi serves the current board view and accepts entity
// activations over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	ws "github.com/gorilla/websocket"

	"github.com/shadowhunters/boardview/internal/cache"
	"github.com/shadowhunters/boardview/internal/channel"
	"github.com/shadowhunters/boardview/internal/dispatcher"
	"github.com/shadowhunters/boardview/internal/popup"
	"github.com/shadowhunters/boardview/internal/worker"
	"github.com/shadowhunters/boardview/pkg/core"
	"github.com/shadowhunters/boardview/pkg/streaming"
)

const (
	requestTimeout = 15 * time.Second
	streamBuffer   = 64
	writeWait      = 5 * time.Second
)

// Dispatcher is the part of the dispatcher the API needs.
type Dispatcher interface {
	DispatchWait(ctx context.Context, e dispatcher.Event) (any, error)
}

// Dependencies holds the collaborators of the HTTP API.
type Dependencies struct {
	Cache      *cache.ViewCache
	Dispatcher Dispatcher
	Feed       *channel.Fanout[core.ChangeSet]
	Logger     *slog.Logger
}

// Server exposes read endpoints over the view cache. Writes go through the
// dispatcher so they are ordered with server pushes.
type Server struct {
	deps     Dependencies
	upgrader ws.Upgrader
	http     *http.Server
}

// New creates the HTTP API.
func New(deps Dependencies) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Server{
		deps:     deps,
		upgrader: ws.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
	}
}

// Router builds the route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(requestTimeout))
		r.Get("/healthcheck", s.healthcheck)
		r.Get("/view", s.view)
		r.Get("/changes", s.changes)
		r.Get("/players", s.players)
		r.Get("/players/{id}", s.player)
		r.Get("/zones", s.zones)
		r.Get("/popups", s.popups)
		r.Get("/self", s.self)
		r.Post("/entities/{id}/activate", s.activate)
	})

	if s.deps.Feed != nil {
		r.Get("/stream", s.stream)
	}
	return r
}

// ListenAndServe serves on addr until Shutdown.
func (s *Server) ListenAndServe(addr string) error {
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.deps.Logger.Info("HTTP API listening", "address", addr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.deps.Logger.Debug("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"requestId", middleware.GetReqID(r.Context()),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// currentView writes 503 and returns false until the first board was published.
func (s *Server) currentView(w http.ResponseWriter) (core.BoardView, bool) {
	v, ok := s.deps.Cache.View()
	if !ok {
		writeError(w, http.StatusServiceUnavailable, "no board yet")
	}
	return v, ok
}

func (s *Server) healthcheck(w http.ResponseWriter, r *http.Request) {
	_, ready := s.deps.Cache.View()
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "ready": ready})
}

func (s *Server) view(w http.ResponseWriter, r *http.Request) {
	if v, ok := s.currentView(w); ok {
		writeJSON(w, http.StatusOK, v)
	}
}

func (s *Server) changes(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.currentView(w); ok {
		writeJSON(w, http.StatusOK, s.deps.Cache.LastChanges())
	}
}

func (s *Server) players(w http.ResponseWriter, r *http.Request) {
	if v, ok := s.currentView(w); ok {
		writeJSON(w, http.StatusOK, v.Players)
	}
}

func (s *Server) player(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	p, ok := s.deps.Cache.Player(id)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("player %q not found", id))
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) zones(w http.ResponseWriter, r *http.Request) {
	if v, ok := s.currentView(w); ok {
		writeJSON(w, http.StatusOK, v.Zones)
	}
}

func (s *Server) popups(w http.ResponseWriter, r *http.Request) {
	if v, ok := s.currentView(w); ok {
		writeJSON(w, http.StatusOK, v.Popups)
	}
}

func (s *Server) self(w http.ResponseWriter, r *http.Request) {
	v, ok := s.currentView(w)
	if !ok {
		return
	}
	if v.Self == nil {
		writeError(w, http.StatusNotFound, "spectating")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":    v.SelfID,
		"info":  v.Self,
		"slots": v.SelfSlots,
	})
}

func (s *Server) activate(w http.ResponseWriter, r *http.Request) {
	payload, err := json.Marshal(map[string]string{"entityId": chi.URLParam(r, "id")})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	res, err := s.deps.Dispatcher.DispatchWait(r.Context(), dispatcher.Event{
		Command: streaming.TypeActivate,
		Payload: payload,
	})
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, popup.ErrUnknownEntity):
		return http.StatusNotFound
	case errors.Is(err, worker.ErrNotInitialized):
		return http.StatusConflict
	case errors.Is(err, dispatcher.ErrQueueFull):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// stream pushes every published change set to a WebSocket client until
// either side goes away.
func (s *Server) stream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.deps.Logger.Warn("Stream upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	sub, cancel := s.deps.Feed.Subscribe(streamBuffer)
	defer cancel()

	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-gone:
			return
		case cs, ok := <-sub.Receive():
			if !ok {
				_ = conn.WriteControl(ws.CloseMessage,
					ws.FormatCloseMessage(ws.CloseGoingAway, ""), time.Now().Add(writeWait))
				return
			}
			msg, err := streaming.Marshal(streaming.TypeChangeSet, cs)
			if err != nil {
				s.deps.Logger.Error("Failed to encode change set", "error", err)
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(ws.TextMessage, msg); err != nil {
				return
			}
		}
	}
}
