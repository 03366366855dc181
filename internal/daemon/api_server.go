package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"crucible/internal/api"
	"crucible/internal/config"
	"crucible/internal/logging"
	"crucible/internal/metrics"
	"crucible/internal/report"
	"crucible/internal/services"
	"crucible/internal/tasks"
)

type apiServer struct {
	bind   string
	logger *slog.Logger
	daemon *Daemon

	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) *apiServer {
	srv := &apiServer{
		bind:   cfg.Paths.APIBind,
		logger: logger.With(logging.String(logging.FieldComponent, "api")),
		daemon: d,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", srv.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(authMiddleware(cfg.Paths.APIToken))
		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(60 * time.Second))
			r.Post("/tasks", srv.handleSubmit)
			r.Get("/tasks", srv.handleList)
			r.Get("/tasks/{id}", srv.handleGet)
			r.Post("/tasks/{id}/start", srv.handleStart)
			r.Get("/tasks/{id}/result", srv.handleResult)
		})
		// No timeout on the event stream; it lives as long as the task.
		r.Get("/tasks/{id}/events", srv.handleEvents)
	})

	srv.server = &http.Server{
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv
}

func (s *apiServer) start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

func (s *apiServer) addr() string {
	if s.listener == nil {
		return s.bind
	}
	return s.listener.Addr().String()
}

func (s *apiServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	healthy, views := api.ConvertHealth(s.daemon.runner.Health(r.Context()))
	counts := make(map[string]int, len(tasks.AllStatuses()))
	for _, status := range tasks.AllStatuses() {
		counts[string(status)] = 0
	}
	for _, task := range s.daemon.registry.List(tasks.Filter{}) {
		counts[string(task.Status)]++
	}
	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, api.StatusResponse{
		Healthy:    healthy,
		Stages:     views,
		TaskCounts: counts,
	})
}

func (s *apiServer) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req api.SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	req.Filename = strings.TrimSpace(req.Filename)

	cfg := s.daemon.cfg
	switch {
	case req.Filename == "":
		writeError(w, http.StatusBadRequest, "filename is required")
		return
	case req.Content == "":
		writeError(w, http.StatusBadRequest, "content is required")
		return
	case !cfg.AllowsExtension(req.Filename):
		writeError(w, http.StatusUnprocessableEntity, fmt.Sprintf("extension of %q is not allowed", req.Filename))
		return
	case cfg.Intake.MaxFileBytes > 0 && int64(len(req.Content)) > cfg.Intake.MaxFileBytes:
		writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("content exceeds %d bytes", cfg.Intake.MaxFileBytes))
		return
	}

	task, err := s.daemon.registry.Create(tasks.Artifact{Name: req.Filename, Content: req.Content})
	if err != nil {
		s.writeTaskError(w, err)
		return
	}
	metrics.TasksCreated.Inc()

	ctx := services.WithRequestID(services.WithTaskID(r.Context(), task.ID), middleware.GetReqID(r.Context()))
	if _, err := s.daemon.store.SaveUpload(ctx, task.ID, req.Filename, req.Content); err != nil {
		// The task is already valid in memory; losing the durable copy is
		// logged, not fatal.
		logging.WithContext(ctx, s.logger).Error("persist upload", logging.Error(err))
	}

	if req.Start {
		if err := s.daemon.runner.Start(ctx, task.ID); err != nil {
			s.writeTaskError(w, err)
			return
		}
		if task, err = s.daemon.registry.Get(task.ID); err != nil {
			s.writeTaskError(w, err)
			return
		}
	}
	writeJSON(w, http.StatusCreated, api.ConvertTask(task))
}

func (s *apiServer) handleList(w http.ResponseWriter, r *http.Request) {
	filter := tasks.Filter{}
	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		for _, value := range strings.Split(raw, ",") {
			status, ok := tasks.ParseStatus(value)
			if !ok {
				writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown status %q", value))
				return
			}
			filter.Statuses = append(filter.Statuses, status)
		}
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		if _, err := fmt.Sscanf(raw, "%d", &filter.Limit); err != nil || filter.Limit < 0 {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid limit %q", raw))
			return
		}
	}
	writeJSON(w, http.StatusOK, api.ConvertTasks(s.daemon.registry.List(filter)))
}

func (s *apiServer) handleGet(w http.ResponseWriter, r *http.Request) {
	task, err := s.daemon.registry.Get(chi.URLParam(r, "id"))
	if err != nil {
		s.writeTaskError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, api.ConvertTask(task))
}

func (s *apiServer) handleStart(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.daemon.runner.Start(r.Context(), id); err != nil {
		s.writeTaskError(w, err)
		return
	}
	task, err := s.daemon.registry.Get(id)
	if err != nil {
		s.writeTaskError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, api.ConvertTask(task))
}

func (s *apiServer) handleResult(w http.ResponseWriter, r *http.Request) {
	task, err := s.daemon.registry.Get(chi.URLParam(r, "id"))
	if err != nil {
		s.writeTaskError(w, err)
		return
	}
	result, err := report.Assemble(task)
	if err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *apiServer) writeTaskError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, tasks.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, tasks.ErrInvalidTransition):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, services.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, api.ErrorResponse{Error: msg})
}
