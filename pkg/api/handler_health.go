package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/sentra-sec/sentra/pkg/version"
)

const (
	healthStatusHealthy   = "healthy"
	healthStatusDegraded  = "degraded"
	healthStatusUnhealthy = "unhealthy"
)

// healthCheck is one named dependency probe result.
type healthCheck struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// healthResponse is returned by GET /health.
type healthResponse struct {
	Status  string                 `json:"status"`
	Version string                 `json:"version"`
	Checks  map[string]healthCheck `json:"checks"`
}

// healthHandler handles GET /health. An unreachable event store makes the
// service unhealthy; an unreachable vector store only degrades it, because
// the pipeline keeps answering through the fallback and fail-open paths.
func (s *Server) healthHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]healthCheck)
	status := healthStatusHealthy

	if s.db != nil {
		dbHealth, err := s.db.Health(ctx)
		if err != nil {
			status = healthStatusUnhealthy
			checks["database"] = healthCheck{Status: healthStatusUnhealthy, Message: err.Error()}
		} else {
			checks["database"] = healthCheck{Status: dbHealth.Status}
		}
	}

	if s.vector != nil {
		if err := s.vector.Ping(ctx); err != nil {
			if status == healthStatusHealthy {
				status = healthStatusDegraded
			}
			checks["vector_store"] = healthCheck{Status: healthStatusDegraded, Message: err.Error()}
		} else {
			checks["vector_store"] = healthCheck{Status: healthStatusHealthy}
		}
	}

	httpStatus := http.StatusOK
	if status == healthStatusUnhealthy {
		httpStatus = http.StatusServiceUnavailable
	}
	c.JSON(httpStatus, healthResponse{
		Status:  status,
		Version: version.GitCommit,
		Checks:  checks,
	})
}

// readyHandler handles GET /ready. The router only exists once configuration
// loaded and the pipeline was wired, so reaching this handler is the check.
func (s *Server) readyHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ready", "version": version.Full()})
}
