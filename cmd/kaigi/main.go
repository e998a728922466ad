package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/ashita-ai/kaigi/api"
	"github.com/ashita-ai/kaigi/internal/agent"
	"github.com/ashita-ai/kaigi/internal/config"
	"github.com/ashita-ai/kaigi/internal/mcp"
	"github.com/ashita-ai/kaigi/internal/ratelimit"
	"github.com/ashita-ai/kaigi/internal/search"
	"github.com/ashita-ai/kaigi/internal/server"
	"github.com/ashita-ai/kaigi/internal/service/agentflow"
	"github.com/ashita-ai/kaigi/internal/service/calendar"
	"github.com/ashita-ai/kaigi/internal/service/embedding"
	"github.com/ashita-ai/kaigi/internal/service/meetings"
	"github.com/ashita-ai/kaigi/internal/service/notes"
	"github.com/ashita-ai/kaigi/internal/service/summarize"
	"github.com/ashita-ai/kaigi/internal/storage"
	"github.com/ashita-ai/kaigi/internal/telemetry"
	"github.com/ashita-ai/kaigi/migrations"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run0())
}

func run0() int {
	level := slog.LevelInfo
	if os.Getenv("KAIGI_LOG_LEVEL") == "debug" {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, logger); err != nil {
		slog.Error("fatal error", "error", err)
		return 1
	}
	return 0
}

func run(ctx context.Context, logger *slog.Logger) error {
	// Load .env file if present (non-fatal; production won't have one).
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	slog.Info("kaigi starting", "version", version, "port", cfg.Port)

	// Initialize OpenTelemetry.
	otelShutdown, err := telemetry.Init(ctx, cfg.OTELEndpoint, cfg.ServiceName, version, cfg.OTELInsecure)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() { _ = otelShutdown(context.Background()) }()

	// Connect to database and apply migrations. RunMigrations tracks
	// applied files in schema_migrations and skips duplicates, so errors
	// here indicate real failures.
	db, err := storage.New(ctx, cfg.DatabaseURL, cfg.NotifyURL, logger)
	if err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	defer db.Close(ctx)

	if err := db.RunMigrations(ctx, migrations.FS); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}

	// Verify critical tables exist after migration. If the pgvector
	// extension is missing, migrations fail and the server would start
	// with no tables. Catch this early.
	var schemaOK bool
	if err := db.Pool().QueryRow(ctx,
		`SELECT EXISTS (SELECT FROM information_schema.tables WHERE table_schema = 'public' AND table_name = 'agent_events')`,
	).Scan(&schemaOK); err != nil {
		return fmt.Errorf("schema verification: %w", err)
	}
	if !schemaOK {
		return fmt.Errorf("critical table 'agent_events' does not exist after migration — check that the pgvector extension is installed")
	}

	// Create embedding provider.
	embedder := newEmbeddingProvider(cfg, logger)

	// Initialize Qdrant search index and outbox worker (optional —
	// disabled if QDRANT_URL is empty; note search falls back to pgvector).
	var searcher search.Searcher
	var outboxWorker *search.OutboxWorker
	if cfg.QdrantURL != "" {
		qdrantIndex, err := search.NewQdrantIndex(search.QdrantConfig{
			URL:        cfg.QdrantURL,
			APIKey:     cfg.QdrantAPIKey,
			Collection: cfg.QdrantCollection,
			Dims:       uint64(cfg.EmbeddingDimensions), //nolint:gosec // validated positive in config.Validate
		}, logger)
		if err != nil {
			return fmt.Errorf("qdrant: %w", err)
		}
		defer func() { _ = qdrantIndex.Close() }()

		if err := qdrantIndex.EnsureCollection(ctx); err != nil {
			return fmt.Errorf("qdrant ensure collection: %w", err)
		}

		searcher = qdrantIndex
		outboxWorker = search.NewOutboxWorker(db.Pool(), qdrantIndex, logger, cfg.OutboxPollInterval, cfg.OutboxBatchSize)
		outboxWorker.Start(ctx)
		logger.Info("qdrant: enabled", "collection", cfg.QdrantCollection)
	} else {
		logger.Info("qdrant: disabled (no QDRANT_URL)")
	}

	// Calendar bridge: a real HTTP client when configured, a logging fake
	// otherwise, so SchedulerAgent confirms still work in dev.
	var cal calendar.Client
	if cfg.CalendarURL != "" {
		cal = calendar.NewHTTPClient(cfg.CalendarURL, cfg.CalendarAPIKey)
		logger.Info("calendar: http bridge", "url", cfg.CalendarURL)
	} else {
		cal = calendar.NewLogClient(logger)
		logger.Info("calendar: log-only (no KAIGI_CALENDAR_URL)")
	}

	// Services shared by HTTP and MCP handlers.
	summarizer := summarize.New()
	router := agent.DefaultRouter(cal, summarizer)
	flowSvc := agentflow.New(db, router, logger)
	noteSvc := notes.New(db, embedder, searcher, logger)
	meetingSvc := meetings.New(db, noteSvc, summarizer, logger)

	// Create MCP server (mounted at /mcp on the HTTP server).
	mcpSrv := mcp.New(flowSvc, noteSvc, meetingSvc, logger)

	// Create SSE broker (requires LISTEN/NOTIFY connection).
	var broker *server.Broker
	if db.NotifyConn() != nil {
		broker = server.NewBroker(db, logger)
		go broker.Start(ctx)
	} else {
		logger.Info("SSE broker: disabled (no notify connection)")
	}

	// Create rate limiter for the proposal endpoint.
	var limiter ratelimit.Limiter
	if cfg.RateLimitEnabled {
		limiter = ratelimit.NewMemoryLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
		defer func() { _ = limiter.Close() }()
		logger.Info("rate limiting: memory (in-process token bucket)",
			"rps", cfg.RateLimitRPS, "burst", cfg.RateLimitBurst)
	} else {
		limiter = ratelimit.NoopLimiter{}
		logger.Info("rate limiting: disabled")
	}

	srv := server.New(server.ServerConfig{
		DB:                  db,
		FlowSvc:             flowSvc,
		NoteSvc:             noteSvc,
		MeetingSvc:          meetingSvc,
		Broker:              broker,
		Searcher:            searcher,
		Limiter:             limiter,
		MCPServer:           mcpSrv.MCPServer(),
		Logger:              logger,
		Port:                cfg.Port,
		ReadTimeout:         cfg.ReadTimeout,
		WriteTimeout:        cfg.WriteTimeout,
		Version:             version,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
		OpenAPISpec:         api.OpenAPISpec,
	})

	// Start HTTP server in background.
	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Wait for shutdown signal or server error.
	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	// Graceful shutdown. Each phase gets its own timeout so early
	// completion doesn't steal budget from later phases. Order: (1) stop
	// accepting HTTP requests and drain in-flight (they may still enqueue
	// outbox entries), (2) sync remaining outbox entries to Qdrant.
	slog.Info("kaigi shutting down")

	httpCtx, httpCancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := srv.Shutdown(httpCtx); err != nil {
		slog.Error("http shutdown error", "error", err)
	}
	httpCancel()

	if outboxWorker != nil {
		outboxCtx, outboxCancel := context.WithTimeout(context.Background(), 10*time.Second)
		outboxWorker.Drain(outboxCtx)
		outboxCancel()
	}

	slog.Info("kaigi stopped")
	return nil
}

// newEmbeddingProvider creates an embedding provider based on configuration.
// Provider selection: "ollama", "openai", "noop", or "auto" (default).
// Auto mode tries Ollama if reachable, then OpenAI if a key is present,
// else noop. Ollama is preferred: embeddings stay on-premises with no
// external API costs.
func newEmbeddingProvider(cfg config.Config, logger *slog.Logger) embedding.Provider {
	dims := cfg.EmbeddingDimensions

	switch cfg.EmbeddingProvider {
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			logger.Error("OPENAI_API_KEY required when KAIGI_EMBEDDING_PROVIDER=openai")
			return embedding.NewNoopProvider(dims)
		}
		logger.Info("embedding provider: openai", "model", cfg.EmbeddingModel, "dimensions", dims)
		return embedding.NewOpenAIProvider(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, cfg.EmbeddingModel)

	case "ollama":
		logger.Info("embedding provider: ollama", "url", cfg.OllamaURL, "model", cfg.OllamaModel, "dimensions", dims)
		return embedding.NewOllamaProvider(cfg.OllamaURL, cfg.OllamaModel, dims)

	case "noop":
		logger.Info("embedding provider: noop (semantic search disabled)")
		return embedding.NewNoopProvider(dims)

	case "auto":
		fallthrough
	default:
		if ollamaReachable(cfg.OllamaURL) {
			logger.Info("embedding provider: ollama (auto-detected)", "url", cfg.OllamaURL, "model", cfg.OllamaModel, "dimensions", dims)
			return embedding.NewOllamaProvider(cfg.OllamaURL, cfg.OllamaModel, dims)
		}
		if cfg.OpenAIAPIKey != "" {
			logger.Info("embedding provider: openai (auto-detected)", "model", cfg.EmbeddingModel, "dimensions", dims)
			return embedding.NewOpenAIProvider(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, cfg.EmbeddingModel)
		}
		logger.Warn("no embedding provider available, using noop (semantic search disabled)")
		return embedding.NewNoopProvider(dims)
	}
}

// ollamaReachable checks if an Ollama server is responding.
func ollamaReachable(baseURL string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return false
	}
	_ = resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}
