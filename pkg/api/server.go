// Package api exposes the operational HTTP surface: a health endpoint over
// the database pool and the queue workers. All chat traffic goes through
// Socket Mode; this server is for orchestrators and humans.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/droverhq/drover/pkg/database"
	"github.com/droverhq/drover/pkg/queue"
	"github.com/droverhq/drover/pkg/version"
)

const (
	healthStatusHealthy   = "healthy"
	healthStatusUnhealthy = "unhealthy"
)

// QueueInspector reports the current number of live queue rows.
type QueueInspector interface {
	QueueDepth(ctx context.Context) (int64, error)
}

// Server is the operational HTTP server.
type Server struct {
	db    *database.Client
	pool  *queue.Pool
	store QueueInspector
	http  *http.Server
}

// NewServer wires the health endpoint over the database client, the worker
// pool, and the queue store.
func NewServer(db *database.Client, pool *queue.Pool, store QueueInspector) *Server {
	s := &Server{db: db, pool: pool, store: store}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.GET("/health", s.Health)

	s.http = &http.Server{Handler: router}
	return s
}

// Health handles GET /health. It checks only drover's own components so an
// orchestrator never restarts the process over an external outage.
func (s *Server) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	status := healthStatusHealthy
	checks := gin.H{}

	dbHealth, err := s.db.Health(ctx)
	if err != nil {
		status = healthStatusUnhealthy
		checks["database"] = gin.H{"status": healthStatusUnhealthy, "message": err.Error()}
	} else {
		checks["database"] = gin.H{"status": healthStatusHealthy, "pool": dbHealth}
	}

	poolHealth := s.pool.Health()
	workerStatus := healthStatusHealthy
	if !poolHealth.Started {
		workerStatus = healthStatusUnhealthy
		status = healthStatusUnhealthy
	}
	checks["worker_pool"] = gin.H{"status": workerStatus, "workers": poolHealth.TotalWorkers}

	if depth, err := s.store.QueueDepth(ctx); err == nil {
		checks["queue_depth"] = depth
	}

	httpStatus := http.StatusOK
	if status == healthStatusUnhealthy {
		httpStatus = http.StatusServiceUnavailable
	}

	c.JSON(httpStatus, gin.H{
		"status":  status,
		"version": version.GitCommit,
		"checks":  checks,
	})
}

// Start listens on addr and serves until Shutdown. Blocks.
func (s *Server) Start(addr string) error {
	s.http.Addr = addr
	return s.http.ListenAndServe()
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
