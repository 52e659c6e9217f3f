// Package gateway exposes the HTTP API: chat turns, the progress event
// stream, menu selection and persistence, and operational endpoints.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/haasonsaas/kondate/internal/agent"
	"github.com/haasonsaas/kondate/internal/auth"
	"github.com/haasonsaas/kondate/internal/config"
	"github.com/haasonsaas/kondate/internal/observability"
	"github.com/haasonsaas/kondate/internal/orchestrator"
	"github.com/haasonsaas/kondate/internal/progress"
	"github.com/haasonsaas/kondate/internal/sessions"
	"github.com/haasonsaas/kondate/internal/stage"
	"github.com/haasonsaas/kondate/pkg/models"
)

// Server is the HTTP front of the service.
type Server struct {
	cfg     config.ServerConfig
	orch    *orchestrator.Orchestrator
	hub     *progress.Hub
	jwt     *auth.JWTService
	metrics *observability.Metrics
	tracer  *observability.Tracer
	logger  *slog.Logger

	httpServer *http.Server
}

// NewServer wires the handlers and middleware.
func NewServer(cfg config.ServerConfig, orch *orchestrator.Orchestrator, hub *progress.Hub, jwt *auth.JWTService, metrics *observability.Metrics, tracer *observability.Tracer, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:     cfg,
		orch:    orch,
		hub:     hub,
		jwt:     jwt,
		metrics: metrics,
		tracer:  tracer,
		logger:  logger,
	}
	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.HTTPPort),
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("http server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	authed := auth.Middleware(s.jwt, s.logger)
	mux.Handle("POST /api/chat", authed(http.HandlerFunc(s.handleChat)))
	mux.Handle("GET /api/events", authed(http.HandlerFunc(s.handleEvents)))
	mux.Handle("POST /api/select", authed(http.HandlerFunc(s.handleSelect)))
	mux.Handle("POST /api/menu/save", authed(http.HandlerFunc(s.handleSave)))
	mux.Handle("GET /api/menu/history", authed(http.HandlerFunc(s.handleHistory)))
	mux.Handle("POST /api/logout", authed(http.HandlerFunc(s.handleLogout)))

	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.Handle("GET /metrics", promhttp.Handler())

	return s.instrument(mux)
}

// instrument records request latency per method/path/status and opens the
// request's trace span.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		ctx, span := s.tracer.HTTPSpan(r.Context(), r.Method, r.URL.Path)
		next.ServeHTTP(rec, r.WithContext(ctx))
		span.End()
		if s.metrics != nil {
			s.metrics.HTTPRequestDuration.
				WithLabelValues(r.Method, r.URL.Path, strconv.Itoa(rec.status)).
				Observe(time.Since(start).Seconds())
		}
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status  int
	written bool
}

func (r *statusRecorder) WriteHeader(status int) {
	if !r.written {
		r.status = status
		r.written = true
	}
	r.ResponseWriter.WriteHeader(status)
}

// Flush passes through so SSE streaming works behind the recorder.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req models.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Message == "" {
		s.writeError(w, http.StatusBadRequest, "message is required")
		return
	}
	if len([]rune(req.Message)) > models.MaxMessageLength {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("message exceeds %d characters", models.MaxMessageLength))
		return
	}

	userID := auth.UserID(r.Context())
	sessionID := req.SSESessionID
	if sessionID == "" {
		sessionID = userID
	}

	resp, err := s.orch.Chat(r.Context(), userID, sessionID, req.Message, auth.BearerToken(r), req.Confirm)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// handleEvents serves the session's progress stream over SSE. The first
// frame is a connected event; the stream ends after a terminal event's close
// or when the client disconnects.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session")
	if sessionID == "" {
		s.writeError(w, http.StatusBadRequest, "session query parameter is required")
		return
	}
	if err := s.orch.AuthorizeStream(r.Context(), auth.UserID(r.Context()), sessionID); err != nil {
		s.writeDomainError(w, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	writeEvent := func(event models.ProgressEvent) bool {
		payload, err := json.Marshal(event)
		if err != nil {
			return false
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
			return false
		}
		flusher.Flush()
		return true
	}

	if !writeEvent(models.ProgressEvent{Kind: models.EventConnected, Timestamp: time.Now()}) {
		return
	}

	events := s.hub.Subscribe(r.Context(), sessionID)
	for event := range events {
		if !writeEvent(event) {
			return
		}
	}
}

func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	var req models.SelectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	userID := auth.UserID(r.Context())
	sessionID := req.SSESessionID
	if sessionID == "" {
		sessionID = userID
	}

	resp, err := s.orch.Select(r.Context(), userID, sessionID, req.TaskID, req.SelectionIndex)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	var req models.SaveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	userID := auth.UserID(r.Context())
	sessionID := req.SSESessionID
	if sessionID == "" {
		sessionID = userID
	}

	resp, err := s.orch.Save(r.Context(), userID, sessionID, req.Recipes)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			s.writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	records, err := s.orch.History(r.Context(), auth.UserID(r.Context()), limit)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"success": true, "history": records})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := s.orch.Logout(r.Context(), auth.UserID(r.Context())); err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("response encode failed", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]any{"success": false, "error": message})
}

// writeDomainError maps pipeline errors onto HTTP statuses.
func (s *Server) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, agent.ErrBusySession):
		s.writeError(w, http.StatusConflict, "a request is already running on this session")
	case errors.Is(err, sessions.ErrOwnership):
		s.writeError(w, http.StatusForbidden, "session belongs to another user")
	case errors.Is(err, sessions.ErrNotFound):
		s.writeError(w, http.StatusNotFound, "session not found")
	case errors.Is(err, stage.ErrNoCandidates), errors.Is(err, stage.ErrIndexOutOfRange),
		errors.Is(err, stage.ErrCompleted), errors.Is(err, stage.ErrTaskMismatch):
		s.writeError(w, http.StatusBadRequest, err.Error())
	case isToolError(err):
		s.logger.Error("tool execution failed", "error", err)
		s.writeError(w, http.StatusInternalServerError, toolErrorMessage(err))
	default:
		s.logger.Error("request failed", "error", err)
		s.writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func isToolError(err error) bool {
	var toolErr *agent.ToolError
	return errors.As(err, &toolErr)
}

// toolErrorMessage is the user-facing text for a failed graph run.
func toolErrorMessage(err error) string {
	var toolErr *agent.ToolError
	if errors.As(err, &toolErr) && toolErr.Kind == agent.ToolErrorTimeout {
		return "A step took too long and was stopped. Please try again."
	}
	return "Something went wrong while handling your request. Please try again."
}
