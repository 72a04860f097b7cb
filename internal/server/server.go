// Package server provides the HTTP REST API for the content pipeline.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/jonathan/content-pipeline/internal/config"
	"github.com/jonathan/content-pipeline/internal/copystore"
	"github.com/jonathan/content-pipeline/internal/delivery"
	"github.com/jonathan/content-pipeline/internal/jobstore"
	"github.com/jonathan/content-pipeline/internal/outbox"
)

// DeliveryStore is the slice of the outbox the API needs.
type DeliveryStore interface {
	List(ctx context.Context, filters outbox.Filters) ([]*outbox.Delivery, error)
	Get(ctx context.Context, id uuid.UUID) (*outbox.Delivery, error)
	SetOverrideURL(ctx context.Context, id uuid.UUID, url string) error
	MarkReady(ctx context.Context, id uuid.UUID) (bool, error)
	Schedule(ctx context.Context, id uuid.UUID, at *time.Time) error
}

// DeliverySender pushes one claimed delivery to its target.
type DeliverySender interface {
	Send(ctx context.Context, id uuid.UUID) (string, bool, error)
}

// CopyStore is the slice of the copy store the API needs.
type CopyStore interface {
	ListCopies(ctx context.Context, client string, limit, offset int) ([]*copystore.Copy, error)
	GetCopy(ctx context.Context, jobID string) (*copystore.Copy, error)
	DeleteCopy(ctx context.Context, jobID string, hold time.Duration) (bool, error)
	RestoreCopy(ctx context.Context, jobID string) (bool, error)
	ListDeleted(ctx context.Context, limit int) ([]*copystore.DeletedCopy, error)
}

// Server represents the HTTP server
type Server struct {
	httpServer *http.Server
	jobs       *jobstore.Store
	deliveries DeliveryStore
	copies     CopyStore
	sender     DeliverySender

	apiToken   string
	adminHash  string
	passwords  *config.PasswordConfig
	jwtService *JWTService
}

// Config holds server configuration
type Config struct {
	Port              int
	APIBearerToken    string
	AdminPasswordHash string
}

// New wires a server from already-connected stores.
func New(cfg Config, jobs *jobstore.Store, deliveries *outbox.Store, copies *copystore.Store) (*Server, error) {
	passwordConfig, err := config.NewPasswordConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to create password config: %w", err)
	}

	jwtConfig, err := config.NewJWTConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to create JWT config: %w", err)
	}

	s := newServer(cfg, jobs, deliveries, copies, delivery.NewSender(deliveries, copies))
	s.passwords = passwordConfig
	s.jwtService = NewJWTService(jwtConfig)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s, nil
}

// newServer builds the handler wiring without touching the environment.
func newServer(cfg Config, jobs *jobstore.Store, deliveries DeliveryStore, copies CopyStore, sender DeliverySender) *Server {
	return &Server{
		jobs:       jobs,
		deliveries: deliveries,
		copies:     copies,
		sender:     sender,
		apiToken:   cfg.APIBearerToken,
		adminHash:  cfg.AdminPasswordHash,
	}
}

// Handler builds the full route table with middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Intake and result surface, guarded by the static API token
	mux.HandleFunc("POST /webhook/content-request", s.withAPIToken(s.handleWebhook))
	mux.HandleFunc("GET /result/{job_id}", s.withAPIToken(s.handleResult))
	mux.HandleFunc("GET /healthz", s.handleHealth)

	// Operator login
	mux.HandleFunc("POST /auth/login", s.handleLogin)

	// Queue control surface
	mux.HandleFunc("GET /jobs", s.withJWT(s.handleListJobs))
	mux.HandleFunc("GET /jobs/{id}", s.withJWT(s.handleGetJob))
	mux.HandleFunc("POST /jobs/{id}/pause", s.withJWT(s.handlePauseJob))
	mux.HandleFunc("POST /jobs/{id}/resume", s.withJWT(s.handleResumeJob))
	mux.HandleFunc("POST /jobs/{id}/cancel", s.withJWT(s.handleCancelJob))
	mux.HandleFunc("POST /jobs/{id}/reorder", s.withJWT(s.handleReorderJob))

	// Delivery outbox surface
	mux.HandleFunc("GET /deliveries", s.withJWT(s.handleListDeliveries))
	mux.HandleFunc("GET /deliveries/{id}", s.withJWT(s.handleGetDelivery))
	mux.HandleFunc("POST /deliveries/{id}/override-url", s.withJWT(s.handleOverrideURL))
	mux.HandleFunc("POST /deliveries/{id}/send-now", s.withJWT(s.handleSendNow))
	mux.HandleFunc("POST /deliveries/{id}/mark-ready", s.withJWT(s.handleMarkReady))
	mux.HandleFunc("POST /deliveries/{id}/schedule", s.withJWT(s.handleSchedule))

	// Stored copy surface
	// Note: in Go 1.22+ ServeMux the route /copies/recently-deleted would
	// conflict with /copies/{job_id} for GET, so the literal segment must be
	// registered too; the mux prefers the more specific pattern.
	mux.HandleFunc("GET /copies", s.withJWT(s.handleListCopies))
	mux.HandleFunc("GET /copies/recently-deleted", s.withJWT(s.handleListDeletedCopies))
	mux.HandleFunc("GET /copies/{job_id}", s.withJWT(s.handleGetCopy))
	mux.HandleFunc("DELETE /copies/{job_id}", s.withJWT(s.handleDeleteCopy))
	mux.HandleFunc("POST /copies/{job_id}/restore", s.withJWT(s.handleRestoreCopy))

	// Monthly queue log snapshots
	mux.HandleFunc("GET /queue-logs/{month}", s.withJWT(s.handleQueueLogs))

	return s.withLogging(s.withCORS(mux))
}

// Start begins listening for requests
func (s *Server) Start() error {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Printf("Server starting on %s", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-stop
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	log.Println("Server stopped")
	return nil
}

// withCORS adds CORS headers
func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// withLogging adds request logging
func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		log.Printf("[%s] %s %s", r.Method, r.URL.Path, r.RemoteAddr)
		next.ServeHTTP(w, r)
		log.Printf("[%s] %s completed in %v", r.Method, r.URL.Path, time.Since(start))
	})
}

// handleHealth returns server health status
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	if err := s.jobs.Ping(); err != nil {
		s.errorResponse(w, http.StatusServiceUnavailable, "job store unreachable: "+err.Error())
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

// jsonResponse writes a JSON response
func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("Error encoding JSON response: %v", err)
	}
}

// errorResponse writes an error JSON response
func (s *Server) errorResponse(w http.ResponseWriter, status int, message string) {
	s.jsonResponse(w, status, map[string]string{"error": message})
}
