package httptransport

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"article-pipeline/internal/entity"
	"article-pipeline/internal/repository"
	"article-pipeline/internal/service"
)

// QueueHandler serves the Queue Manager API.
type QueueHandler struct {
	qm *service.QueueManager
}

func NewQueueHandler(qm *service.QueueManager) *QueueHandler {
	return &QueueHandler{qm: qm}
}

type createJobDTO struct {
	Type        string          `json:"type"`
	Payload     json.RawMessage `json:"payload" swaggertype:"object"`
	Priority    *int            `json:"priority,omitempty"`
	MaxAttempts *int            `json:"max_attempts,omitempty"`
}

type createJobResp struct {
	JobID string `json:"job_id"`
}

type jobsResp struct {
	Jobs []*entity.Job `json:"jobs"`
}

type pollDTO struct {
	WorkerType string `json:"worker_type"`
	Limit      int    `json:"limit,omitempty"`
	WorkerID   string `json:"worker_id,omitempty"`
}

type claimDTO struct {
	WorkerID string `json:"worker_id,omitempty"`
}

type failDTO struct {
	Error     string `json:"error"`
	Permanent bool   `json:"permanent,omitempty"`
}

type failResp struct {
	Success  bool             `json:"success"`
	Status   entity.JobStatus `json:"status"`
	Attempts int              `json:"attempts"`
}

type cleanupResp struct {
	Success   bool  `json:"success"`
	Reclaimed int64 `json:"reclaimed"`
}

// CreateJob godoc
// @Summary Create a job
// @Description Validates the payload against the schema of its type and stores a pending job.
// @Tags jobs
// @Accept json
// @Produce json
// @Param request body createJobDTO true "job"
// @Success 201 {object} createJobResp
// @Failure 400 {object} apiError
// @Failure 500 {object} apiError
// @Router /jobs [post]
func (h *QueueHandler) CreateJob(w http.ResponseWriter, r *http.Request) {
	var dto createJobDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid json")
		return
	}
	id, err := h.qm.CreateJob(r.Context(), service.CreateJobRequest{
		Type:        dto.Type,
		Payload:     dto.Payload,
		Priority:    dto.Priority,
		MaxAttempts: dto.MaxAttempts,
	})
	if err != nil {
		writeServiceErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, createJobResp{JobID: id.String()})
}

// ListJobs godoc
// @Summary List jobs
// @Description Newest first. status accepts a comma separated list.
// @Tags jobs
// @Produce json
// @Param status query string false "pending,processing,completed,failed"
// @Param type query string false "job type"
// @Param article_id query int false "article id"
// @Param created_since query string false "RFC3339 timestamp"
// @Param limit query int false "max rows (default 50)"
// @Success 200 {object} jobsResp
// @Failure 400 {object} apiError
// @Router /jobs [get]
func (h *QueueHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	f, err := parseJobFilter(r)
	if err != nil {
		writeErr(w, http.StatusBadRequest, err.Error())
		return
	}
	jobs, err := h.qm.ListJobs(r.Context(), f)
	if err != nil {
		writeServiceErr(w, err)
		return
	}
	if jobs == nil {
		jobs = []*entity.Job{}
	}
	writeJSON(w, http.StatusOK, jobsResp{Jobs: jobs})
}

func parseJobFilter(r *http.Request) (repository.JobFilter, error) {
	var f repository.JobFilter
	q := r.URL.Query()
	if raw := q.Get("status"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			st, ok := entity.ParseJobStatus(strings.TrimSpace(part))
			if !ok {
				return f, fmt.Errorf("invalid status %q", part)
			}
			f.Statuses = append(f.Statuses, st)
		}
	}
	if raw := q.Get("type"); raw != "" {
		typ, ok := entity.ParseJobType(raw)
		if !ok {
			return f, fmt.Errorf("invalid type %q", raw)
		}
		f.Type = typ
	}
	if raw := q.Get("article_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id < 1 {
			return f, fmt.Errorf("invalid article_id %q", raw)
		}
		f.ArticleID = id
	}
	if raw := q.Get("created_since"); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return f, fmt.Errorf("invalid created_since %q", raw)
		}
		f.CreatedSince = ts
	}
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return f, fmt.Errorf("invalid limit %q", raw)
		}
		f.Limit = n
	}
	return f, nil
}

// GetJob godoc
// @Summary Get job by id
// @Tags jobs
// @Produce json
// @Param id path string true "job id (uuid)"
// @Success 200 {object} entity.Job
// @Failure 400 {object} apiError
// @Failure 404 {object} apiError
// @Router /jobs/{id} [get]
func (h *QueueHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	id, ok := jobID(w, r)
	if !ok {
		return
	}
	j, err := h.qm.GetJob(r.Context(), id)
	if err != nil {
		writeServiceErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, j)
}

// Poll godoc
// @Summary Claim jobs for a worker
// @Description Atomically leases up to limit pending jobs of worker_type.
// @Tags workers
// @Accept json
// @Produce json
// @Param request body pollDTO true "poll"
// @Success 200 {object} jobsResp
// @Failure 400 {object} apiError
// @Router /workers/poll [post]
func (h *QueueHandler) Poll(w http.ResponseWriter, r *http.Request) {
	var dto pollDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid json")
		return
	}
	jobs, err := h.qm.ClaimJobsForWorker(r.Context(), entity.JobType(dto.WorkerType), dto.Limit, dto.WorkerID)
	if err != nil {
		writeServiceErr(w, err)
		return
	}
	if jobs == nil {
		jobs = []*entity.Job{}
	}
	writeJSON(w, http.StatusOK, jobsResp{Jobs: jobs})
}

// ClaimJob godoc
// @Summary Claim one pending job
// @Tags jobs
// @Accept json
// @Produce json
// @Param id path string true "job id (uuid)"
// @Param request body claimDTO false "claim"
// @Success 200 {object} entity.Job
// @Failure 404 {object} apiError
// @Failure 409 {object} apiError
// @Router /jobs/{id}/claim [post]
func (h *QueueHandler) ClaimJob(w http.ResponseWriter, r *http.Request) {
	id, ok := jobID(w, r)
	if !ok {
		return
	}
	var dto claimDTO
	if err := decodeJSON(r, &dto); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid json")
		return
	}
	j, err := h.qm.ClaimJob(r.Context(), id, dto.WorkerID)
	if err != nil {
		writeServiceErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, j)
}

// CompleteJob godoc
// @Summary Mark a job completed
// @Tags jobs
// @Produce json
// @Param id path string true "job id (uuid)"
// @Success 200 {object} successResp
// @Failure 404 {object} apiError
// @Failure 409 {object} apiError
// @Router /jobs/{id}/complete [post]
func (h *QueueHandler) CompleteJob(w http.ResponseWriter, r *http.Request) {
	id, ok := jobID(w, r)
	if !ok {
		return
	}
	if err := h.qm.CompleteJob(r.Context(), id); err != nil {
		writeServiceErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, successResp{Success: true})
}

// FailJob godoc
// @Summary Record a failed attempt
// @Description Back to pending while attempts remain, failed otherwise or when permanent.
// @Tags jobs
// @Accept json
// @Produce json
// @Param id path string true "job id (uuid)"
// @Param request body failDTO true "failure"
// @Success 200 {object} failResp
// @Failure 404 {object} apiError
// @Failure 409 {object} apiError
// @Router /jobs/{id}/fail [post]
func (h *QueueHandler) FailJob(w http.ResponseWriter, r *http.Request) {
	id, ok := jobID(w, r)
	if !ok {
		return
	}
	var dto failDTO
	if err := decodeJSON(r, &dto); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid json")
		return
	}
	res, err := h.qm.FailJob(r.Context(), id, dto.Error, dto.Permanent)
	if err != nil {
		writeServiceErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, failResp{Success: true, Status: res.Status, Attempts: res.Attempts})
}

// RetryJob godoc
// @Summary Reset a job to pending
// @Description Manual retry: attempts are cleared. Refused while the job is processing.
// @Tags jobs
// @Produce json
// @Param id path string true "job id (uuid)"
// @Success 200 {object} successResp
// @Failure 404 {object} apiError
// @Failure 409 {object} apiError
// @Router /jobs/{id}/retry [post]
func (h *QueueHandler) RetryJob(w http.ResponseWriter, r *http.Request) {
	id, ok := jobID(w, r)
	if !ok {
		return
	}
	if err := h.qm.RetryJob(r.Context(), id); err != nil {
		writeServiceErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, successResp{Success: true})
}

// Cleanup godoc
// @Summary Reclaim expired leases
// @Tags maintenance
// @Produce json
// @Success 200 {object} cleanupResp
// @Failure 500 {object} apiError
// @Router /cleanup [post]
func (h *QueueHandler) Cleanup(w http.ResponseWriter, r *http.Request) {
	n, err := h.qm.Cleanup(r.Context())
	if err != nil {
		writeServiceErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cleanupResp{Success: true, Reclaimed: n})
}

// Stats godoc
// @Summary Job counters
// @Tags maintenance
// @Produce json
// @Success 200 {object} service.Stats
// @Failure 500 {object} apiError
// @Router /stats [get]
func (h *QueueHandler) Stats(w http.ResponseWriter, r *http.Request) {
	s, err := h.qm.Stats(r.Context())
	if err != nil {
		writeServiceErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func jobID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeErr(w, http.StatusBadRequest, "invalid id")
		return uuid.Nil, false
	}
	return id, true
}
