// Package httpapi exposes a small status and control API over HTTP.
// All responses are JSON. The API carries no authentication; bind it to
// localhost.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"gametimed/internal/clock"
	"gametimed/internal/convert"
	"gametimed/internal/sched"
	"gametimed/internal/units"
	logx "gametimed/pkg/logx"
)

type Server struct {
	log    logx.Logger
	clk    clock.GameClock
	table  *units.Table
	conv   *convert.Converter
	mgr    *sched.Manager
	router chi.Router
	http   *http.Server
}

func New(addr string, clk clock.GameClock, table *units.Table, conv *convert.Converter, mgr *sched.Manager, log logx.Logger) *Server {
	s := &Server{
		log:   log,
		clk:   clk,
		table: table,
		conv:  conv,
		mgr:   mgr,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(15 * time.Second))

	r.Get("/healthz", s.handleHealth)
	r.Route("/v1", func(r chi.Router) {
		r.Get("/time", s.handleTime)
		r.Get("/schedules", s.handleListSchedules)
		r.Post("/schedules", s.handleCreateSchedule)
		r.Delete("/schedules/{id}", s.handleDeleteSchedule)
	})

	s.router = r
	s.http = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Handler returns the router; used by tests and embedding hosts.
func (s *Server) Handler() http.Handler { return s.router }

// Start serves until the listener fails. http.ErrServerClosed is swallowed.
func (s *Server) Start() error {
	s.log.Info("http api listening", logx.String("addr", s.http.Addr))
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type timeResponse struct {
	GameSeconds int64            `json:"game_seconds"`
	SpeedFactor float64          `json:"speed_factor"`
	Parts       map[string]int64 `json:"parts"`
}

func (s *Server) handleTime(w http.ResponseWriter, _ *http.Request) {
	now := s.clk.Now()
	sizes := s.table.DistinctSizesDesc()
	values := convert.Breakdown(now, sizes[:len(sizes)-1])

	// values has one entry per distinct size; the last is leftover seconds.
	parts := make(map[string]int64, len(values))
	for i, v := range values {
		parts[s.table.NameFor(sizes[i])] = v
	}

	writeJSON(w, http.StatusOK, timeResponse{
		GameSeconds: now,
		SpeedFactor: s.clk.Factor(),
		Parts:       parts,
	})
}

func (s *Server) handleListSchedules(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.mgr.Snapshot())
}

type createScheduleRequest struct {
	Handler string           `json:"handler"`
	Args    json.RawMessage  `json:"args,omitempty"`
	Target  map[string]int64 `json:"target"`
	Repeat  bool             `json:"repeat"`
}

type createScheduleResponse struct {
	ID        string  `json:"id"`
	DelaySecs float64 `json:"delay_secs"`
}

func (s *Server) handleCreateSchedule(w http.ResponseWriter, r *http.Request) {
	var req createScheduleRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Handler == "" {
		writeError(w, http.StatusBadRequest, "handler is required")
		return
	}

	id, delay, err := s.mgr.Schedule(r.Context(), req.Handler, req.Args, req.Target, req.Repeat)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, units.ErrUnknownUnit) {
			status = http.StatusUnprocessableEntity
		}
		writeError(w, status, err.Error())
		return
	}

	s.log.Debug("schedule created via api",
		logx.String("id", id), logx.String("handler", req.Handler))
	writeJSON(w, http.StatusCreated, createScheduleResponse{ID: id, DelaySecs: delay})
}

func (s *Server) handleDeleteSchedule(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !s.mgr.Cancel(id) {
		writeError(w, http.StatusNotFound, "schedule not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
