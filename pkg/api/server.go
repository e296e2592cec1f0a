// Package api exposes the HTTP ingress: the analyze endpoint consumed by the
// interception extension plus the health and readiness probes.
package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sentra-sec/sentra/pkg/database"
	"github.com/sentra-sec/sentra/pkg/models"
	"github.com/sentra-sec/sentra/pkg/orchestrator"
)

// Analyzer runs one envelope through the detection pipeline.
type Analyzer interface {
	Analyze(ctx context.Context, env models.InputEnvelope) orchestrator.Outcome
}

// DBChecker reports event-store health.
type DBChecker interface {
	Health(ctx context.Context) (*database.HealthStatus, error)
}

// VectorPinger reports vector-store reachability.
type VectorPinger interface {
	Ping(ctx context.Context) error
}

// Server is the HTTP ingress. The db and vector dependencies may be nil when
// the corresponding backend is not configured; the health probe then skips
// that check.
type Server struct {
	orch   Analyzer
	db     DBChecker
	vector VectorPinger
	logger *slog.Logger
	engine *gin.Engine
}

// NewServer builds the router with all routes and middleware attached.
func NewServer(orch Analyzer, db DBChecker, vector VectorPinger, logger *slog.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	s := &Server{
		orch:   orch,
		db:     db,
		vector: vector,
		logger: logger.With("component", "api"),
	}

	engine := gin.New()
	engine.Use(gin.Recovery(), requestID(), securityHeaders())
	engine.POST("/analyze", s.analyzeHandler)
	engine.GET("/health", s.healthHandler)
	engine.GET("/ready", s.readyHandler)
	s.engine = engine
	return s
}

// Handler returns the root http.Handler for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.engine
}
