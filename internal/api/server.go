// Package api provides the HTTP surface of the Animus daemon: heartbeat
// control, decision and external-call resolution, direct action
// execution, maintenance, and read-only status.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/animus-hq/animus/internal/actions"
	"github.com/animus-hq/animus/internal/core"
	"github.com/animus-hq/animus/internal/drives"
	"github.com/animus-hq/animus/internal/goals"
	"github.com/animus-hq/animus/internal/heartbeat"
	"github.com/animus-hq/animus/internal/ledger"
	"github.com/animus-hq/animus/internal/logging"
	"github.com/animus-hq/animus/internal/maintenance"
	"github.com/animus-hq/animus/internal/memory"
	"github.com/animus-hq/animus/internal/storage"
)

// Server is the HTTP API server.
type Server struct {
	router     *chi.Mux
	httpServer *http.Server
	wsHub      *WebSocketHub
	logger     *logging.Logger

	scheduler   *heartbeat.Scheduler
	manager     *heartbeat.Manager
	dispatcher  *actions.Dispatcher
	maintenance *maintenance.Runner

	states   *storage.StateStore
	memories *memory.Service
	goalEng  *goals.Engine
	drives   *drives.Engine
	audit    *ledger.Store
}

// Config for the server.
type Config struct {
	Port        int
	Scheduler   *heartbeat.Scheduler
	Manager     *heartbeat.Manager
	Dispatcher  *actions.Dispatcher
	Maintenance *maintenance.Runner
	States      *storage.StateStore
	Memories    *memory.Service
	Goals       *goals.Engine
	Drives      *drives.Engine
	Audit       *ledger.Store
}

// New creates the API server.
func New(cfg Config) *Server {
	s := &Server{
		wsHub:       NewWebSocketHub(),
		logger:      logging.Component("api"),
		scheduler:   cfg.Scheduler,
		manager:     cfg.Manager,
		dispatcher:  cfg.Dispatcher,
		maintenance: cfg.Maintenance,
		states:      cfg.States,
		memories:    cfg.Memories,
		goalEng:     cfg.Goals,
		drives:      cfg.Drives,
		audit:       cfg.Audit,
	}

	s.setupRouter()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// setupRouter configures all routes.
func (s *Server) setupRouter() {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", s.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Get("/actions", s.handleListActions)
		r.Get("/goals", s.handleListGoals)
		r.Get("/drives", s.handleListDrives)
		r.Get("/ledger", s.handleLedger)

		r.Post("/heartbeat/run", s.handleRunHeartbeat)
		r.Post("/heartbeat/{epochID}/decision", s.handleApplyDecision)
		r.Post("/external-calls/{callID}/result", s.handleApplyCallResult)
		r.Post("/actions/execute", s.handleExecuteAction)
		r.Post("/maintenance/run", s.handleRunMaintenance)
	})

	r.Get("/ws", s.handleWebSocket)

	s.router = r
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	go s.wsHub.Run()
	s.logger.Info("api server listening on %s", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Stop gracefully stops the server.
func (s *Server) Stop(ctx context.Context) error {
	s.wsHub.Close()
	return s.httpServer.Shutdown(ctx)
}

// Broadcast pushes an event to all WebSocket clients.
func (s *Server) Broadcast(msgType string, data interface{}) {
	s.wsHub.Broadcast(WebSocketMessage{
		Type:      msgType,
		Data:      data,
		Timestamp: time.Now().UTC(),
	})
}

// --- Response helpers ---

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}

// statusFor maps domain errors onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, core.ErrRecordNotFound),
		errors.Is(err, core.ErrNoActiveEpoch),
		errors.Is(err, core.ErrNoPendingCall):
		return http.StatusNotFound
	case errors.Is(err, core.ErrEpochMismatch),
		errors.Is(err, core.ErrCallMismatch),
		errors.Is(err, core.ErrCallOutstanding),
		errors.Is(err, core.ErrEpochInFlight):
		return http.StatusConflict
	case errors.Is(err, core.ErrTerminated),
		errors.Is(err, core.ErrPaused),
		errors.Is(err, core.ErrNotInitialized):
		return http.StatusLocked
	case actions.IsRejection(err),
		errors.Is(err, core.ErrMalformedOutput),
		errors.Is(err, core.ErrInvalidInput),
		errors.Is(err, core.ErrUnknownCallKind):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// --- Handlers ---

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.states.LoadHeartbeat()
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	memCount, err := s.memories.Count()
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	due, err := s.scheduler.ShouldRun()
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"energy":          st.CurrentEnergy,
		"max_energy":      st.MaxEnergy,
		"heartbeat_count": st.HeartbeatCount,
		"is_paused":       st.IsPaused,
		"terminated":      st.Terminated,
		"active_epoch_id": st.ActiveEpochID,
		"pending_call":    st.PendingCall,
		"affect":          st.Affect,
		"memory_count":    memCount,
		"heartbeat_due":   due,
		"last_run_at":     st.LastRunAt,
		"next_run_at":     st.NextRunAt,
	})
}

func (s *Server) handleListActions(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"actions": s.dispatcher.Registry().Names(),
	})
}

func (s *Server) handleListGoals(w http.ResponseWriter, r *http.Request) {
	open, err := s.goalEng.Open()
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"goals": open})
}

func (s *Server) handleListDrives(w http.ResponseWriter, r *http.Request) {
	list, err := s.drives.List()
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"drives": list})
}

func (s *Server) handleLedger(w http.ResponseWriter, r *http.Request) {
	entries, err := s.audit.Query(ledger.QueryOptions{Limit: 100})
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"entries": entries})
}

// handleRunHeartbeat opens an epoch when one is due and returns the
// decision call the caller must resolve. force=true skips the interval
// check but never the pause, termination, or in-flight guards.
func (s *Server) handleRunHeartbeat(w http.ResponseWriter, r *http.Request) {
	force := r.URL.Query().Get("force") == "true"
	if !force {
		due, err := s.scheduler.ShouldRun()
		if err != nil {
			s.respondError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if !due {
			s.respondError(w, http.StatusConflict, core.ErrNotDue.Error())
			return
		}
	}

	call, err := s.scheduler.Start(r.Context())
	if err != nil {
		s.respondError(w, statusFor(err), err.Error())
		return
	}

	s.Broadcast("heartbeat.started", map[string]interface{}{"epoch_id": call.EpochID})
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"decision_call": call})
}

func (s *Server) handleApplyDecision(w http.ResponseWriter, r *http.Request) {
	epochID := core.EpochID(chi.URLParam(r, "epochID"))

	var req struct {
		heartbeat.Decision
		StartIndex int `json:"start_index"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	run, err := s.manager.ApplyDecision(r.Context(), epochID, &req.Decision, req.StartIndex)
	if err != nil {
		s.respondError(w, statusFor(err), err.Error())
		return
	}

	s.Broadcast("decision.applied", map[string]interface{}{
		"epoch_id":    epochID,
		"halt_reason": run.HaltReason,
	})
	s.respondJSON(w, http.StatusOK, run)
}

func (s *Server) handleApplyCallResult(w http.ResponseWriter, r *http.Request) {
	callID := core.CallID(chi.URLParam(r, "callID"))

	var output map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&output); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	run, err := s.manager.ApplyExternalCallResult(r.Context(), callID, output)
	if err != nil {
		s.respondError(w, statusFor(err), err.Error())
		return
	}

	s.Broadcast("call.resolved", map[string]interface{}{"call_id": callID})
	s.respondJSON(w, http.StatusOK, run)
}

func (s *Server) handleExecuteAction(w http.ResponseWriter, r *http.Request) {
	var req struct {
		EpochID core.EpochID           `json:"epoch_id"`
		Name    string                 `json:"name"`
		Params  map[string]interface{} `json:"params"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" {
		s.respondError(w, http.StatusBadRequest, "action name is required")
		return
	}

	res, err := s.dispatcher.Execute(r.Context(), req.EpochID, req.Name, req.Params)
	if err != nil && !actions.IsRejection(err) {
		s.respondError(w, statusFor(err), err.Error())
		return
	}
	// Rejections carry a structured result; report them as such.
	status := http.StatusOK
	if err != nil {
		status = statusFor(err)
	}
	s.respondJSON(w, status, res)
}

func (s *Server) handleRunMaintenance(w http.ResponseWriter, r *http.Request) {
	report, err := s.maintenance.RunIfDue(r.Context())
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, report)
}
