// Package main implements the CoursePilot API server: document upload,
// collection introspection, background ingestion jobs, and WebSocket chat.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/CoursePilotAI/coursepilot-mvp/engine/ingest"
	"github.com/CoursePilotAI/coursepilot-mvp/engine/jobs"
	"github.com/CoursePilotAI/coursepilot-mvp/engine/rag"
	"github.com/CoursePilotAI/coursepilot-mvp/engine/semantic"
	"github.com/CoursePilotAI/coursepilot-mvp/pkg/gemini"
	"github.com/CoursePilotAI/coursepilot-mvp/pkg/metrics"
	"github.com/CoursePilotAI/coursepilot-mvp/pkg/mid"
	"github.com/CoursePilotAI/coursepilot-mvp/pkg/ollama"
	"github.com/CoursePilotAI/coursepilot-mvp/pkg/resilience"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := loadConfig()
	if err != nil {
		logger.Error("config", "err", err)
		os.Exit(1)
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited with error", "err", err)
		os.Exit(1)
	}
}

func run(cfg Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := os.MkdirAll(cfg.UploadDir, 0o755); err != nil {
		return fmt.Errorf("upload dir: %w", err)
	}

	// --- Connect to Qdrant ---
	vectorStore, err := semantic.New(cfg.QdrantURL, cfg.Collection)
	if err != nil {
		return fmt.Errorf("qdrant connect: %w", err)
	}
	defer vectorStore.Close()

	if err := vectorStore.EnsureCollection(ctx, cfg.EmbedDim); err != nil {
		return fmt.Errorf("ensure collection: %w", err)
	}

	// --- Connect to NATS ---
	nc, err := nats.Connect(cfg.NATSURL)
	if err != nil {
		return fmt.Errorf("nats connect: %w", err)
	}
	defer nc.Drain()

	// --- Model clients ---
	embedder := ollama.NewEmbedClient(cfg.OllamaURL, cfg.OllamaModel)

	gem := gemini.New("", cfg.GeminiModel, cfg.GeminiKey)
	if !gem.Configured() {
		logger.Warn("GEMINI_API_KEY missing or placeholder; chat will return the uninitialized fallback")
	}
	breaker := resilience.NewBreaker(resilience.DefaultBreakerOpts)
	generator := &guardedGenerator{breaker: breaker, inner: gem}

	// --- RAG service + ingestion jobs ---
	ragSvc := rag.New(embedder, generator, vectorStore, rag.DefaultOptions(), logger)

	pipeline := ingest.New(embedder, vectorStore, ingest.DefaultOptions(), logger)
	queue := jobs.NewQueue(nc, pipeline, logger)
	sub, err := queue.StartConsumer()
	if err != nil {
		return fmt.Errorf("start consumer: %w", err)
	}
	defer sub.Unsubscribe()

	// --- HTTP server ---
	reg := metrics.New()
	manager := newConnManager(logger, reg)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      buildHandler(cfg, vectorStore, queue, ragSvc, manager, reg, logger),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server starting", "port", cfg.Port, "collection", cfg.Collection)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	manager.closeAll()
	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutCtx)
}

func buildHandler(
	cfg Config,
	store *semantic.VectorStore,
	queue *jobs.Queue,
	ragSvc *rag.Service,
	manager *connManager,
	reg *metrics.Registry,
	logger *slog.Logger,
) http.Handler {
	s := &server{
		cfg:     cfg,
		store:   store,
		queue:   queue,
		rag:     ragSvc,
		manager: manager,
		reg:     reg,
		logger:  logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("POST /api/data/upload", s.handleUpload)
	mux.HandleFunc("GET /api/data/collections", s.handleCollections)
	mux.HandleFunc("GET /api/jobs/{id}", s.handleJobStatus)
	mux.HandleFunc("GET /ws", s.handleWS)
	mux.Handle("GET /metrics", reg.Handler())

	return mid.Chain(mux,
		mid.Recover(logger),
		mid.OTel("coursepilot-api"),
		mid.Logger(logger),
		mid.Metrics(reg),
		mid.CORS(cfg.CORSOrigin),
		mid.MaxBytes(maxUploadBytes),
	)
}

// guardedGenerator runs generation calls through a circuit breaker so a
// failing upstream API sheds load quickly instead of queueing chat requests.
type guardedGenerator struct {
	breaker *resilience.Breaker
	inner   *gemini.Client
}

func (g *guardedGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	var out string
	err := g.breaker.Call(ctx, func(ctx context.Context) error {
		var err error
		out, err = g.inner.Generate(ctx, prompt)
		return err
	})
	return out, err
}
