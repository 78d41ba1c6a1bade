package transport

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"fixifox/app/usecase"
	"fixifox/internal/domain/entity"
	"fixifox/internal/infrastructure/metrics"
)

const (
	maxBodyBytes = 1 << 20
	writeWait    = 10 * time.Second
)

type AssistantHandler struct {
	assistant  usecase.AssistantUsecase
	jobService usecase.JobUsecase
	events     *usecase.JobEvents
	providers  []string
	logger     *slog.Logger
	upgrader   websocket.Upgrader
}

func NewAssistantHandler(
	assistant usecase.AssistantUsecase,
	jobService usecase.JobUsecase,
	events *usecase.JobEvents,
	providers []string,
	logger *slog.Logger,
) *AssistantHandler {
	return &AssistantHandler{
		assistant:  assistant,
		jobService: jobService,
		events:     events,
		providers:  providers,
		logger:     logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// withMetrics records every request under its route template.
func (h *AssistantHandler) withMetrics(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		route := r.URL.Path
		if cur := mux.CurrentRoute(r); cur != nil {
			if tpl, err := cur.GetPathTemplate(); err == nil {
				route = tpl
			}
		}

		rw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(rw, r)

		metrics.ObserveHTTPRequest(route, r.Method, strconv.Itoa(rw.status), time.Since(start))
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Hijack lets websocket upgrades pass through the recorder.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return hj.Hijack()
}

func (h *AssistantHandler) RegisterRoutes(r *mux.Router) {
	api := r.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/tasks/{task}", h.withMetrics(h.handleRunTask)).Methods(http.MethodPost)
	api.HandleFunc("/jobs", h.withMetrics(h.handleCreateJob)).Methods(http.MethodPost)
	api.HandleFunc("/jobs", h.withMetrics(h.handleListJobs)).Methods(http.MethodGet)
	api.HandleFunc("/jobs/{id}", h.withMetrics(h.handleGetJob)).Methods(http.MethodGet)
	api.HandleFunc("/jobs/{id}", h.withMetrics(h.handleDeleteJob)).Methods(http.MethodDelete)
	api.HandleFunc("/jobs/{id}/cancel", h.withMetrics(h.handleCancelJob)).Methods(http.MethodPost)
	api.HandleFunc("/jobs/{id}/artifacts", h.withMetrics(h.handleGetArtifacts)).Methods(http.MethodGet)
	api.HandleFunc("/jobs/{id}/watch", h.withMetrics(h.handleWatchJob)).Methods(http.MethodGet)
	api.HandleFunc("/health", h.withMetrics(h.handleHealth)).Methods(http.MethodGet)

	// Prometheus
	r.Handle("/metrics", metrics.Handler())
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, usecase.ErrEmptyInput), errors.Is(err, usecase.ErrUnknownTask):
		return http.StatusBadRequest
	case errors.Is(err, usecase.ErrJobNotFound):
		return http.StatusNotFound
	case errors.Is(err, usecase.ErrJobNotActive):
		return http.StatusConflict
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (h *AssistantHandler) fail(w http.ResponseWriter, msg string, err error, args ...any) {
	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		h.logger.Error(msg, append(args, "err", err)...)
	}
	writeError(w, code, err)
}

type taskReq struct {
	Task         string `json:"task,omitempty"`
	Code         string `json:"code"`
	ErrorMessage string `json:"error_message,omitempty"`
}

func decodeTask(w http.ResponseWriter, r *http.Request) (taskReq, error) {
	var req taskReq
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		return req, fmt.Errorf("bad request body: %w", err)
	}
	return req, nil
}

func parseTask(s string) (entity.Task, error) {
	task, ok := entity.ParseTask(s)
	if !ok {
		return "", fmt.Errorf("%w: %q", usecase.ErrUnknownTask, s)
	}
	return task, nil
}

// POST /api/v1/tasks/{task}
func (h *AssistantHandler) handleRunTask(w http.ResponseWriter, r *http.Request) {
	task, err := parseTask(mux.Vars(r)["task"])
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	req, err := decodeTask(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	result, err := h.assistant.Run(r.Context(), task, entity.TaskInput{Code: req.Code, ErrorMessage: req.ErrorMessage})
	if err != nil {
		h.fail(w, "run task failed", err, "task", task)
		return
	}
	if !result.Outcome.OK {
		writeJSON(w, http.StatusBadGateway, result)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// POST /api/v1/jobs
func (h *AssistantHandler) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	req, err := decodeTask(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	task, err := parseTask(req.Task)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	job, err := h.jobService.CreateJob(r.Context(), task, entity.TaskInput{Code: req.Code, ErrorMessage: req.ErrorMessage})
	if err != nil {
		h.fail(w, "create job failed", err)
		return
	}
	writeJSON(w, http.StatusCreated, job)
}

// GET /api/v1/jobs
func (h *AssistantHandler) handleListJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.jobService.ListJobs(r.Context())
	if err != nil {
		h.fail(w, "list jobs failed", err)
		return
	}
	writeJSON(w, http.StatusOK, jobs)
}

// GET /api/v1/jobs/{id}
func (h *AssistantHandler) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	job, err := h.jobService.GetJob(r.Context(), id)
	if err != nil {
		h.fail(w, "get job failed", err, "job_id", id)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// DELETE /api/v1/jobs/{id}
func (h *AssistantHandler) handleDeleteJob(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := h.jobService.DeleteJob(r.Context(), id); err != nil {
		h.fail(w, "delete job failed", err, "job_id", id)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

// POST /api/v1/jobs/{id}/cancel
func (h *AssistantHandler) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	job, err := h.jobService.CancelJob(r.Context(), id)
	if err != nil {
		h.fail(w, "cancel job failed", err, "job_id", id)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// GET /api/v1/jobs/{id}/artifacts
func (h *AssistantHandler) handleGetArtifacts(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	artifacts, err := h.jobService.JobArtifacts(r.Context(), id)
	if err != nil {
		h.fail(w, "get artifacts failed", err, "job_id", id)
		return
	}
	writeJSON(w, http.StatusOK, artifacts)
}

// GET /api/v1/jobs/{id}/watch
//
// Sends the current job state, then one JobEvent per status change, and
// closes after a terminal status.
func (h *AssistantHandler) handleWatchJob(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	events, unsubscribe := h.events.Subscribe(id)
	defer unsubscribe()

	job, err := h.jobService.GetJob(r.Context(), id)
	if err != nil {
		h.fail(w, "watch job failed", err, "job_id", id)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "job_id", id, "err", err)
		return
	}
	defer conn.Close()

	metrics.IncWSConnections()
	defer metrics.DecWSConnections()

	send := func(ev usecase.JobEvent) error {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		return conn.WriteJSON(ev)
	}
	if err := send(usecase.JobEvent{JobID: id, Status: job.Status, At: job.UpdatedAt}); err != nil || job.Status.Terminal() {
		closeWS(conn)
		return
	}

	// reader detects the client going away
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
		case <-r.Context().Done():
			return
		case <-gone:
			return
		case ev, ok := <-events:
			if !ok {
				closeWS(conn)
				return
			}
			if err := send(ev); err != nil {
				h.logger.Debug("watch write failed", "job_id", id, "err", err)
				return
			}
		}
	}
}

func closeWS(conn *websocket.Conn) {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
}

// GET /api/v1/health
func (h *AssistantHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := map[string]interface{}{
		"ok":        true,
		"ts":        time.Now().UTC(),
		"providers": h.providers,
	}
	writeJSON(w, http.StatusOK, status)
}
