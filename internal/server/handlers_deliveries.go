package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/jonathan/content-pipeline/internal/outbox"
)

const defaultPageSize = 20

var errBadPage = errors.New("invalid pagination parameters")

// pagination reads page/page_size query parameters into limit and offset.
func pagination(r *http.Request) (limit, offset int, err error) {
	page := 1
	size := defaultPageSize
	if v := r.URL.Query().Get("page"); v != "" {
		if page, err = strconv.Atoi(v); err != nil || page < 1 {
			return 0, 0, errBadPage
		}
	}
	if v := r.URL.Query().Get("page_size"); v != "" {
		if size, err = strconv.Atoi(v); err != nil || size < 1 || size > 100 {
			return 0, 0, errBadPage
		}
	}
	return size, (page - 1) * size, nil
}

// deliveryID parses the {id} path segment.
func deliveryID(r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	return id, err == nil
}

// handleListDeliveries returns outbox records, optionally filtered by status.
func (s *Server) handleListDeliveries(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := pagination(r)
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Invalid pagination parameters")
		return
	}

	deliveries, err := s.deliveries.List(r.Context(), outbox.Filters{
		Status: r.URL.Query().Get("status"),
		Client: r.URL.Query().Get("client"),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "Failed to list deliveries: "+err.Error())
		return
	}

	s.jsonResponse(w, http.StatusOK, map[string]any{
		"deliveries": deliveries,
		"count":      len(deliveries),
	})
}

// handleGetDelivery returns one outbox record.
func (s *Server) handleGetDelivery(w http.ResponseWriter, r *http.Request) {
	id, ok := deliveryID(r)
	if !ok {
		s.errorResponse(w, http.StatusBadRequest, "Invalid delivery ID")
		return
	}

	d, err := s.deliveries.Get(r.Context(), id)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "Failed to load delivery: "+err.Error())
		return
	}
	if d == nil {
		s.errorResponse(w, http.StatusNotFound, "Delivery not found")
		return
	}

	s.jsonResponse(w, http.StatusOK, d)
}

// OverrideURLRequest represents the request body for /deliveries/{id}/override-url
type OverrideURLRequest struct {
	URL string `json:"url"`
}

// handleOverrideURL sets or clears the per-delivery target override.
func (s *Server) handleOverrideURL(w http.ResponseWriter, r *http.Request) {
	id, ok := deliveryID(r)
	if !ok {
		s.errorResponse(w, http.StatusBadRequest, "Invalid delivery ID")
		return
	}

	var req OverrideURLRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	if err := s.deliveries.SetOverrideURL(r.Context(), id, req.URL); err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "Failed to set override URL: "+err.Error())
		return
	}

	d, err := s.deliveries.Get(r.Context(), id)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "Failed to load delivery: "+err.Error())
		return
	}
	if d == nil {
		s.errorResponse(w, http.StatusNotFound, "Delivery not found")
		return
	}
	s.jsonResponse(w, http.StatusOK, d)
}

// handleSendNow claims the delivery and pushes it immediately.
func (s *Server) handleSendNow(w http.ResponseWriter, r *http.Request) {
	id, ok := deliveryID(r)
	if !ok {
		s.errorResponse(w, http.StatusBadRequest, "Invalid delivery ID")
		return
	}

	outcome, won, err := s.sender.Send(r.Context(), id)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "Send failed: "+err.Error())
		return
	}
	if !won {
		s.errorResponse(w, http.StatusConflict, "Delivery is not in a sendable status")
		return
	}

	d, err := s.deliveries.Get(r.Context(), id)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "Failed to load delivery: "+err.Error())
		return
	}

	s.jsonResponse(w, http.StatusOK, map[string]any{
		"delivery": d,
		"outcome":  outcome,
	})
}

// handleMarkReady promotes a delivery into the sendable pool.
func (s *Server) handleMarkReady(w http.ResponseWriter, r *http.Request) {
	id, ok := deliveryID(r)
	if !ok {
		s.errorResponse(w, http.StatusBadRequest, "Invalid delivery ID")
		return
	}

	marked, err := s.deliveries.MarkReady(r.Context(), id)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "Failed to mark ready: "+err.Error())
		return
	}
	if !marked {
		s.errorResponse(w, http.StatusConflict, "Delivery cannot be marked ready from its current status")
		return
	}

	s.jsonResponse(w, http.StatusOK, map[string]string{
		"id":     id.String(),
		"status": outbox.StatusReadyToSend,
	})
}

// ScheduleRequest represents the request body for /deliveries/{id}/schedule.
// A null or absent scheduled_for clears the hold.
type ScheduleRequest struct {
	ScheduledFor *time.Time `json:"scheduled_for"`
}

// handleSchedule sets or clears the earliest send time for a delivery.
func (s *Server) handleSchedule(w http.ResponseWriter, r *http.Request) {
	id, ok := deliveryID(r)
	if !ok {
		s.errorResponse(w, http.StatusBadRequest, "Invalid delivery ID")
		return
	}

	var req ScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	if err := s.deliveries.Schedule(r.Context(), id, req.ScheduledFor); err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "Failed to schedule delivery: "+err.Error())
		return
	}

	d, err := s.deliveries.Get(r.Context(), id)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "Failed to load delivery: "+err.Error())
		return
	}
	if d == nil {
		s.errorResponse(w, http.StatusNotFound, "Delivery not found")
		return
	}
	s.jsonResponse(w, http.StatusOK, d)
}
