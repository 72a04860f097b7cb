package server

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/jonathan/content-pipeline/internal/jobstore"
)

// maxWebhookBody bounds intake payload size.
const maxWebhookBody = 2 << 20

// WebhookRequest is the intake payload shape checked at the door. The full
// document is stored verbatim; only the fields needed for admission are
// decoded here.
type WebhookRequest struct {
	ClientName  string          `json:"client_name" validate:"required,min=1"`
	Metadata    map[string]any  `json:"metadata"`
	UserData    map[string]any  `json:"user_data"`
	SitemapData json.RawMessage `json:"sitemap_data,omitempty"`
}

// WebhookResponse represents the response for /webhook/content-request
type WebhookResponse struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

// JobSummary is one row of the queue listing.
type JobSummary struct {
	JobID    string         `json:"job_id"`
	Status   string         `json:"status"`
	Progress map[string]any `json:"progress,omitempty"`
}

// JobDetail is the full view of one job.
type JobDetail struct {
	JobID    string          `json:"job_id"`
	Status   string          `json:"status"`
	Progress map[string]any  `json:"progress,omitempty"`
	Result   json.RawMessage `json:"result,omitempty"`
	LogTail  []string        `json:"log_tail"`
}

// handleWebhook registers a new generation job and queues it.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Failed to read request body")
		return
	}

	var req WebhookRequest
	if err := json.Unmarshal(body, &req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if err := validator.New().Struct(req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "client_name is required")
		return
	}

	jobID := uuid.New().String()
	if err := s.jobs.Register(jobID); err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "Failed to register job: "+err.Error())
		return
	}
	if err := s.jobs.SetPayload(jobID, body); err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "Failed to store payload: "+err.Error())
		return
	}
	if err := s.jobs.SetStatus(jobID, jobstore.StatusQueued); err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "Failed to queue job: "+err.Error())
		return
	}

	s.jsonResponse(w, http.StatusAccepted, WebhookResponse{
		JobID:  jobID,
		Status: jobstore.StatusQueued,
	})
}

// handleResult returns the terminal result payload for a job.
func (s *Server) handleResult(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("job_id")

	status, err := s.jobs.Status(jobID)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "Failed to load status: "+err.Error())
		return
	}
	if status == "" {
		s.errorResponse(w, http.StatusNotFound, "Job not found")
		return
	}

	result, err := s.jobs.Result(jobID)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "Failed to load result: "+err.Error())
		return
	}

	s.jsonResponse(w, http.StatusOK, map[string]any{
		"job_id": jobID,
		"status": status,
		"result": result,
	})
}

// handleListJobs returns queue-ordered job summaries.
func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			s.errorResponse(w, http.StatusBadRequest, "Invalid limit parameter")
			return
		}
		limit = n
	}
	newest := r.URL.Query().Get("newest") == "true"

	ids, err := s.jobs.List(limit, newest)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "Failed to list jobs: "+err.Error())
		return
	}

	summaries := make([]JobSummary, 0, len(ids))
	for _, id := range ids {
		status, err := s.jobs.Status(id)
		if err != nil {
			s.errorResponse(w, http.StatusInternalServerError, "Failed to load status: "+err.Error())
			return
		}
		progress, err := s.jobs.Progress(id)
		if err != nil {
			s.errorResponse(w, http.StatusInternalServerError, "Failed to load progress: "+err.Error())
			return
		}
		summaries = append(summaries, JobSummary{JobID: id, Status: status, Progress: progress})
	}

	s.jsonResponse(w, http.StatusOK, map[string]any{
		"jobs":  summaries,
		"count": len(summaries),
	})
}

// handleGetJob returns status, progress and the recent log tail for a job.
func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")

	status, err := s.jobs.Status(jobID)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "Failed to load status: "+err.Error())
		return
	}
	if status == "" {
		s.errorResponse(w, http.StatusNotFound, "Job not found")
		return
	}

	progress, err := s.jobs.Progress(jobID)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "Failed to load progress: "+err.Error())
		return
	}
	result, err := s.jobs.Result(jobID)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "Failed to load result: "+err.Error())
		return
	}
	tail, err := s.jobs.LogTail(jobID, 100)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "Failed to load logs: "+err.Error())
		return
	}
	if tail == nil {
		tail = []string{}
	}

	s.jsonResponse(w, http.StatusOK, JobDetail{
		JobID:    jobID,
		Status:   status,
		Progress: progress,
		Result:   result,
		LogTail:  tail,
	})
}

// control applies one queue transition and maps a refusal to 409.
func (s *Server) control(w http.ResponseWriter, jobID, action string, apply func(string) (bool, error)) {
	ok, err := apply(jobID)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "Failed to "+action+" job: "+err.Error())
		return
	}
	if !ok {
		status, _ := s.jobs.Status(jobID)
		if status == "" {
			s.errorResponse(w, http.StatusNotFound, "Job not found")
			return
		}
		s.errorResponse(w, http.StatusConflict, "Cannot "+action+" job in status "+status)
		return
	}

	status, err := s.jobs.Status(jobID)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "Failed to load status: "+err.Error())
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]string{
		"job_id": jobID,
		"status": status,
	})
}

func (s *Server) handlePauseJob(w http.ResponseWriter, r *http.Request) {
	s.control(w, r.PathValue("id"), "pause", s.jobs.Pause)
}

func (s *Server) handleResumeJob(w http.ResponseWriter, r *http.Request) {
	s.control(w, r.PathValue("id"), "resume", s.jobs.Resume)
}

func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	s.control(w, r.PathValue("id"), "cancel", s.jobs.Cancel)
}

// ReorderRequest represents the request body for /jobs/{id}/reorder
type ReorderRequest struct {
	Direction string `json:"direction" validate:"required,oneof=top up down bottom"`
}

// handleReorderJob moves a queued job within the queue.
func (s *Server) handleReorderJob(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")

	var req ReorderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if err := validator.New().Struct(req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "direction must be one of top, up, down, bottom")
		return
	}

	ok, err := s.jobs.Reorder(jobID, req.Direction)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "Failed to reorder job: "+err.Error())
		return
	}
	if !ok {
		s.errorResponse(w, http.StatusConflict, "Job cannot be reordered in its current status")
		return
	}

	s.jsonResponse(w, http.StatusOK, map[string]string{
		"job_id":    jobID,
		"direction": req.Direction,
	})
}
