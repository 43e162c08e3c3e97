// Package api exposes the query controller over HTTP: submit an input, read
// or stream the current session, list the registry.
package api

import (
	"bufio"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/piyushdaiya/nonce-checker/internal/controller"
	"github.com/piyushdaiya/nonce-checker/internal/core"
	"github.com/piyushdaiya/nonce-checker/internal/metrics"
)

// QueryController is the part of the controller the API drives.
type QueryController interface {
	Submit(raw string) controller.Session
	Current() controller.Session
	Subscribe(buffer int) (<-chan controller.Session, func())
	Ledgers() []core.LedgerDescriptor
}

type Server struct {
	ctrl     QueryController
	log      zerolog.Logger
	upgrader websocket.Upgrader
}

func New(ctrl QueryController, logger zerolog.Logger) *Server {
	return &Server{
		ctrl: ctrl,
		log:  logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Router wires every endpoint behind the request logger.
func (s *Server) Router() *mux.Router {
	router := mux.NewRouter()
	router.Use(s.requestLogger)
	router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	// Full paths on the root router; a subrouter answers a method
	// mismatch with 404 instead of 405.
	router.HandleFunc("/api/v1/query", s.handleQuery).Methods(http.MethodPost)
	router.HandleFunc("/api/v1/session", s.handleSession).Methods(http.MethodGet)
	router.HandleFunc("/api/v1/session/ws", s.handleSessionWS).Methods(http.MethodGet)
	router.HandleFunc("/api/v1/ledgers", s.handleLedgers).Methods(http.MethodGet)
	return router
}

type queryRequest struct {
	Input string `json:"input"`
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "request body must be {\"input\": \"...\"}")
		return
	}
	session := s.ctrl.Submit(req.Input)
	status := http.StatusAccepted
	if session.State == controller.StateFailed {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, session)
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.ctrl.Current())
}

func (s *Server) handleLedgers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"ledgers": s.ctrl.Ledgers()})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"ledgers": len(s.ctrl.Ledgers()),
	})
}

// handleSessionWS pushes every committed session snapshot until the client
// goes away.
func (s *Server) handleSessionWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	updates, unsubscribe := s.ctrl.Subscribe(16)
	defer unsubscribe()

	// Reads only detect the peer closing; clients send nothing.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-closed:
			return
		case session, ok := <-updates:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteJSON(session); err != nil {
				return
			}
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Hijack lets the websocket upgrade take over the connection.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// requestLogger logs and counts each request by its route template.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		path := r.URL.Path
		if route := mux.CurrentRoute(r); route != nil {
			if tmpl, err := route.GetPathTemplate(); err == nil {
				path = tmpl
			}
		}
		metrics.RecordHTTPRequest(r.Method, path, strconv.Itoa(rec.status))
		s.log.Info().
			Str("method", r.Method).
			Str("path", path).
			Int("status", rec.status).
			Dur("duration", time.Since(start)).
			Msg("http_request")
	})
}
