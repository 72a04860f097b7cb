package server

import (
	"net/http"
	"regexp"

	"github.com/jonathan/content-pipeline/internal/copystore"
)

// handleListCopies returns stored copies, optionally filtered by client name.
func (s *Server) handleListCopies(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := pagination(r)
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Invalid pagination parameters")
		return
	}

	copies, err := s.copies.ListCopies(r.Context(), r.URL.Query().Get("client"), limit, offset)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "Failed to list copies: "+err.Error())
		return
	}

	s.jsonResponse(w, http.StatusOK, map[string]any{
		"copies": copies,
		"count":  len(copies),
	})
}

// handleGetCopy returns the compiled copy document for one job.
func (s *Server) handleGetCopy(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("job_id")

	c, err := s.copies.GetCopy(r.Context(), jobID)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "Failed to load copy: "+err.Error())
		return
	}
	if c == nil {
		s.errorResponse(w, http.StatusNotFound, "Copy not found")
		return
	}

	s.jsonResponse(w, http.StatusOK, c)
}

// handleDeleteCopy soft-deletes a copy into the recently-deleted holding area.
func (s *Server) handleDeleteCopy(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("job_id")

	deleted, err := s.copies.DeleteCopy(r.Context(), jobID, copystore.DefaultDeleteHold)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "Failed to delete copy: "+err.Error())
		return
	}
	if !deleted {
		s.errorResponse(w, http.StatusNotFound, "Copy not found")
		return
	}

	s.jsonResponse(w, http.StatusOK, map[string]string{
		"job_id": jobID,
		"status": "deleted",
	})
}

// handleRestoreCopy moves a recently deleted copy back into the store.
func (s *Server) handleRestoreCopy(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("job_id")

	restored, err := s.copies.RestoreCopy(r.Context(), jobID)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "Failed to restore copy: "+err.Error())
		return
	}
	if !restored {
		s.errorResponse(w, http.StatusNotFound, "Copy not found in recently deleted")
		return
	}

	s.jsonResponse(w, http.StatusOK, map[string]string{
		"job_id": jobID,
		"status": "restored",
	})
}

// handleListDeletedCopies returns copies still inside the recovery hold.
func (s *Server) handleListDeletedCopies(w http.ResponseWriter, r *http.Request) {
	limit, _, err := pagination(r)
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Invalid pagination parameters")
		return
	}

	deleted, err := s.copies.ListDeleted(r.Context(), limit)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "Failed to list deleted copies: "+err.Error())
		return
	}

	s.jsonResponse(w, http.StatusOK, map[string]any{
		"copies": deleted,
		"count":  len(deleted),
	})
}

var monthPattern = regexp.MustCompile(`^\d{4}-\d{2}$`)

// handleQueueLogs returns the archived snapshots for one month.
func (s *Server) handleQueueLogs(w http.ResponseWriter, r *http.Request) {
	month := r.PathValue("month")
	if !monthPattern.MatchString(month) {
		s.errorResponse(w, http.StatusBadRequest, "Month must be formatted YYYY-MM")
		return
	}

	snapshots, err := s.jobs.MonthlySnapshots(month)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "Failed to load queue logs: "+err.Error())
		return
	}

	s.jsonResponse(w, http.StatusOK, map[string]any{
		"month":     month,
		"snapshots": snapshots,
		"count":     len(snapshots),
	})
}
