package api

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"farmpulse/database"
	"farmpulse/handlers"
	"farmpulse/notifications"
	"farmpulse/realtime"
)

// JobFunc triggers one job run and returns its report for the response
// body. The app wires the nightly and backfill jobs in as closures, which
// keeps this package free of a dependency on the jobs themselves.
type JobFunc func(ctx context.Context, now time.Time) (interface{}, error)

// Server handles HTTP API requests
type Server struct {
	repo           *database.StatRepository
	webhookMgr     *notifications.WebhookManager
	broker         *realtime.Broker
	orderHandler   *handlers.OrderEventHandler
	harvestHandler *handlers.HarvestEventHandler
	runNightly     JobFunc
	runBackfill    JobFunc
}

// NewServer creates a new API server instance
func NewServer(repo *database.StatRepository, webhookMgr *notifications.WebhookManager, broker *realtime.Broker,
	orderHandler *handlers.OrderEventHandler, harvestHandler *handlers.HarvestEventHandler,
	runNightly, runBackfill JobFunc) *Server {
	return &Server{
		repo:           repo,
		webhookMgr:     webhookMgr,
		broker:         broker,
		orderHandler:   orderHandler,
		harvestHandler: harvestHandler,
		runNightly:     runNightly,
		runBackfill:    runBackfill,
	}
}

// Start starts the HTTP server on the specified port
func (s *Server) Start(port string) error {
	mux := http.NewServeMux()

	// Register routes
	mux.Handle("GET /api/events", s.broker) // SSE Endpoint

	// Statistics Routes
	mux.HandleFunc("GET /api/stats", s.handleListStats)
	mux.HandleFunc("GET /api/stats/{key}", s.handleGetStat)
	mux.HandleFunc("GET /api/yield-profiles", s.handleListYieldProfiles)

	// Alert Routes
	mux.HandleFunc("GET /api/alerts", s.handleGetAlerts)
	mux.HandleFunc("POST /api/alerts/dismiss", s.handleDismissAlerts)

	// Rollup Routes
	mux.HandleFunc("GET /api/dashboard", s.handleGetDashboard)
	mux.HandleFunc("GET /api/summaries", s.handleGetMonthlySummaries)
	mux.HandleFunc("GET /api/system/state", s.handleGetSystemState)

	// Job Routes
	mux.HandleFunc("POST /api/jobs/nightly", s.handleRunNightly)
	mux.HandleFunc("POST /api/jobs/backfill", s.handleRunBackfill)

	// Manual Event Injection Routes
	mux.HandleFunc("POST /api/events/order", s.handleInjectOrder)
	mux.HandleFunc("POST /api/events/harvest", s.handleInjectHarvest)

	// Webhook Management Routes
	mux.HandleFunc("GET /api/config/webhooks", s.handleGetWebhooks)
	mux.HandleFunc("POST /api/config/webhooks", s.handleCreateWebhook)
	mux.HandleFunc("PUT /api/config/webhooks/{id}", s.handleUpdateWebhook)
	mux.HandleFunc("DELETE /api/config/webhooks/{id}", s.handleDeleteWebhook)

	mux.HandleFunc("GET /health", s.handleHealth)

	// Serve Static Files (Public UI)
	fs := http.FileServer(http.Dir("./public"))
	mux.Handle("GET /", fs)

	// Add middleware
	handler := s.corsMiddleware(s.loggingMiddleware(mux))

	serverAddr := fmt.Sprintf("0.0.0.0:%s", port)
	log.Printf("🚀 API Server starting on %s", serverAddr)
	return http.ListenAndServe(serverAddr, handler)
}

// Middleware
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("%s %s %v", r.Method, r.URL.Path, time.Since(start))
	})
}

// Handlers are distributed across multiple files:
// - handlers_stats.go: Customer-crop stats and yield profiles
// - handlers_alerts.go: Alert feed and dismissal
// - handlers_dashboard.go: Dashboard snapshot, monthly summaries, system state
// - handlers_jobs.go: Manual job triggers and event injection
// - handlers_config.go: Webhooks, health check
