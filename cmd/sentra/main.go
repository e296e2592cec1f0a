// Sentra prompt-firewall server: normalizes intercepted prompts, runs the
// three detection branches concurrently, fuses their verdicts and redacts
// sensitive data before the prompt leaves the network.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/sentra-sec/sentra/pkg/api"
	"github.com/sentra-sec/sentra/pkg/config"
	"github.com/sentra-sec/sentra/pkg/database"
	"github.com/sentra-sec/sentra/pkg/events"
	"github.com/sentra-sec/sentra/pkg/heuristics"
	"github.com/sentra-sec/sentra/pkg/models"
	"github.com/sentra-sec/sentra/pkg/orchestrator"
	"github.com/sentra-sec/sentra/pkg/pii"
	"github.com/sentra-sec/sentra/pkg/safetynlp"
	"github.com/sentra-sec/sentra/pkg/semantic"
	"github.com/sentra-sec/sentra/pkg/semantic/vectorstore"
	"github.com/sentra-sec/sentra/pkg/version"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	configDir := flag.String("config-dir",
		getEnv("CONFIG_DIR", "./deploy/config"),
		"Path to configuration directory")
	flag.Parse()

	// Load .env from the config directory. Secrets travel through the
	// environment only; they never appear in flags or log lines.
	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		slog.Warn("Could not load .env file, continuing with existing environment",
			"path", envPath, "error", err)
	} else {
		slog.Info("Loaded environment", "path", envPath)
	}

	slog.Info("Starting sentra", "version", version.Full(), "config_dir", *configDir)

	ctx := context.Background()
	logger := slog.Default()

	// 1. Configuration. A load or validation failure here is fatal.
	store, err := config.NewStore(*configDir)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	cfg := store.Snapshot()

	// 2. Event store.
	dbClient, err := database.NewClient(ctx, cfg.Database)
	if err != nil {
		slog.Error("Failed to connect to event store", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			slog.Error("Error closing event store client", "error", err)
		}
	}()
	slog.Info("Connected to PostgreSQL event store")

	sink := events.NewSink(events.NewPostgresStore(dbClient.DB()), cfg.Events, logger)

	// 3. Detection branches.
	branchA, err := heuristics.NewBranch(cfg.Branches.Heuristics.CataloguePath)
	if err != nil {
		slog.Error("Failed to load heuristics catalogue",
			"path", cfg.Branches.Heuristics.CataloguePath, "error", err)
		os.Exit(1)
	}

	embedder := semantic.NewHTTPEmbedder(
		cfg.Branches.Semantic.EmbedderEndpoint, cfg.Branches.Semantic.MaxTokens)
	vectorClient := vectorstore.New(cfg.Branches.Semantic.VectorStore)
	// Thresholds are read through the store so a SIGHUP reload reaches the
	// branches; only the sidecar endpoints are pinned at boot.
	branchB := semantic.NewBranch(embedder, vectorClient, func() config.TwoPhaseConfig {
		return store.Snapshot().Branches.Semantic.Thresholds
	}, logger)

	branchC := safetynlp.NewBranchFromStore(store, logger)

	branches := map[models.BranchID]orchestrator.DetectionBranch{
		models.BranchHeuristics: branchA,
		models.BranchSemantic:   branchB,
		models.BranchSafetyNLP:  branchC,
	}

	// 4. Redaction. The NER sidecar is optional; without it the detector
	// runs on patterns and validators alone.
	var recognizer pii.EntityRecognizer
	if cfg.PII.NEREndpoint != "" {
		recognizer = pii.NewHTTPRecognizer(cfg.PII.NEREndpoint)
	}
	detector := pii.NewDetector(recognizer, cfg.PII, logger)

	// 5. Pipeline and HTTP ingress.
	orch := orchestrator.New(store, branches, detector, sink, logger, version.Full())
	server := api.NewServer(orch, dbClient, vectorClient, logger)

	httpServer := &http.Server{
		Addr:              ":" + cfg.Server.HTTPPort,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			errCh <- err
		}
	}()

	// 6. SIGHUP reloads the config snapshot and the Branch A catalogue.
	// Running requests keep the snapshot they started with.
	hupCh := make(chan os.Signal, 1)
	signal.Notify(hupCh, syscall.SIGHUP)
	go func() {
		for range hupCh {
			if err := store.Reload(); err != nil {
				continue
			}
			if err := branchA.Reload(); err != nil {
				slog.Error("Catalogue reload rejected, keeping previous catalogue", "error", err)
			}
		}
	}()

	slog.Info("Sentra started successfully", "http_port", cfg.Server.HTTPPort)

	// 7. Wait for shutdown signal or server error.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		slog.Error("Server error triggered shutdown", "error", err)
	}

	// 8. Graceful shutdown: stop accepting requests, then drain the sink.
	// The database client closes last via the deferred Close above.
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	sink.Close()
	if dropped := sink.Dropped(); dropped > 0 {
		slog.Warn("Event records dropped during lifetime", "dropped", dropped)
	}

	slog.Info("Shutdown complete")
}
