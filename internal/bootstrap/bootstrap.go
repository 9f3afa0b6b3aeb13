package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"path"
	"path/filepath"
	"strings"

	"github.com/kirillkom/readmate-rag/internal/config"
	"github.com/kirillkom/readmate-rag/internal/core/ports"
	"github.com/kirillkom/readmate-rag/internal/core/usecase"
	"github.com/kirillkom/readmate-rag/internal/infrastructure/bundle"
	"github.com/kirillkom/readmate-rag/internal/infrastructure/chunking"
	"github.com/kirillkom/readmate-rag/internal/infrastructure/embedding"
	"github.com/kirillkom/readmate-rag/internal/infrastructure/extractor"
	"github.com/kirillkom/readmate-rag/internal/infrastructure/llm/ollama"
	"github.com/kirillkom/readmate-rag/internal/infrastructure/llm/openai"
	"github.com/kirillkom/readmate-rag/internal/infrastructure/queue/nats"
	"github.com/kirillkom/readmate-rag/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/readmate-rag/internal/infrastructure/resilience"
	"github.com/kirillkom/readmate-rag/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/readmate-rag/internal/infrastructure/storage/minio"
	"github.com/kirillkom/readmate-rag/internal/observability/metrics"
)

const (
	bundlesDir = "bundles"
	uploadsDir = "incoming"
)

type App struct {
	Config  config.Config
	Logger  *slog.Logger
	Metrics *metrics.RAGMetrics

	// Uploads holds source files handed over to async workers.
	Uploads ports.ObjectStorage
	Store   ports.BundleStore

	// Reader is nil when no catalog is configured.
	Reader ports.DocumentReader

	IngestUC   ports.DocumentIngestor
	RetrieveUC ports.HybridRetriever
	QueryUC    ports.DocumentQueryService

	catalog ports.DocumentCatalog
	queue   *nats.Queue
	closers []func()
}

func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	app := &App{Config: cfg, Logger: logger, Metrics: metrics.NewRAGMetrics("readmate")}

	bundleObjects, err := openObjects(ctx, cfg, bundlesDir)
	if err != nil {
		return nil, fmt.Errorf("init bundle storage: %w", err)
	}
	uploads, err := openObjects(ctx, cfg, uploadsDir)
	if err != nil {
		return nil, fmt.Errorf("init upload storage: %w", err)
	}
	app.Uploads = uploads

	diskStore, err := bundle.NewStore(bundleObjects, strings.ToLower(cfg.BundleCompression), logger)
	if err != nil {
		return nil, fmt.Errorf("init bundle store: %w", err)
	}
	app.Store = bundle.NewCachedStore(diskStore, cfg.BundleCacheEntries)

	if cfg.PostgresDSN != "" {
		db, err := postgres.OpenDB(cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		repo := postgres.NewDocumentRepository(db)
		if err := repo.EnsureSchema(ctx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
		app.catalog = repo
		app.Reader = repo
		app.onClose(func() { closeDB(db) })
	}

	executor := resilience.NewExecutorWithLogger(llmResilience(cfg), logger)
	embedder := embedding.NewProvider(func() (embedding.Backend, error) {
		return newEmbedBackend(cfg, executor)
	}, cfg.EmbedBatchSize)
	generator := newGenerator(cfg, executor)

	resolver := extractor.NewResolver(uploads)
	resolver.MaxBytes = cfg.MaxSourceBytes
	ingest := usecase.NewIngestUseCase(resolver, chunking.Factory, embedder, app.Store, app.catalog, logger)
	retrieve := usecase.NewRetrieveUseCase(app.Store, embedder)

	app.IngestUC = app.Metrics.InstrumentIngestor(ingest)
	app.RetrieveUC = app.Metrics.InstrumentRetriever(retrieve)
	app.QueryUC = usecase.NewAnswerUseCase(app.RetrieveUC, app.Store, generator, logger)
	return app, nil
}

// Queue connects to NATS on first use; only async commands need it.
func (a *App) Queue() (*nats.Queue, error) {
	if a.queue != nil {
		return a.queue, nil
	}
	q, err := nats.NewWithOptions(a.Config.NATSURL, a.Config.NATSSubject, nats.Options{
		MaxDeliveries:      a.Config.NATSMaxDeliveries,
		ResilienceExecutor: resilience.NewExecutorWithLogger(resilience.DefaultConfig(), a.Logger),
		Logger:             a.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("init message queue: %w", err)
	}
	a.queue = q
	a.onClose(q.Close)
	return q, nil
}

func (a *App) Submitter() (*usecase.SubmitIngestUseCase, error) {
	q, err := a.Queue()
	if err != nil {
		return nil, err
	}
	return usecase.NewSubmitIngestUseCase(a.Uploads, q, a.catalog, a.Logger), nil
}

func (a *App) JobHandler() *usecase.IngestJobHandler {
	return usecase.NewIngestJobHandler(a.IngestUC, a.Uploads, a.Logger)
}

func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func (a *App) onClose(fn func()) {
	a.closers = append(a.closers, fn)
}

func openObjects(ctx context.Context, cfg config.Config, sub string) (ports.ObjectStorage, error) {
	switch strings.ToLower(cfg.StorageBackend) {
	case "minio":
		return minio.New(ctx, minio.Config{
			Endpoint:  cfg.MinIOEndpoint,
			AccessKey: cfg.MinIOAccessKey,
			SecretKey: cfg.MinIOSecretKey,
			Bucket:    cfg.MinIOBucket,
			Prefix:    path.Join(cfg.MinIOPrefix, sub),
			UseSSL:    cfg.MinIOUseSSL,
			Region:    cfg.MinIORegion,
		})
	default:
		return localfs.New(filepath.Join(cfg.StoragePath, sub))
	}
}

func llmResilience(cfg config.Config) resilience.Config {
	rc := resilience.DefaultConfig()
	rc.Retry.Attempts = cfg.LLMRetryAttempts
	rc.AttemptTimeout = cfg.LLMTimeout
	rc.RateLimit = cfg.LLMRateLimit
	return rc
}

func newEmbedBackend(cfg config.Config, executor *resilience.Executor) (embedding.Backend, error) {
	switch strings.ToLower(cfg.EmbedBackend) {
	case "openai":
		return openai.New(openAIConfig(cfg, executor)), nil
	case "ollama":
		return ollama.NewEmbedder(newOllama(cfg, executor)), nil
	default:
		return nil, fmt.Errorf("unknown embed backend %q", cfg.EmbedBackend)
	}
}

func newGenerator(cfg config.Config, executor *resilience.Executor) ports.AnswerGenerator {
	if strings.EqualFold(cfg.LLMBackend, "openai") {
		return openai.New(openAIConfig(cfg, executor))
	}
	return ollama.NewGenerator(newOllama(cfg, executor))
}

func newOllama(cfg config.Config, executor *resilience.Executor) *ollama.Client {
	return ollama.NewWithOptions(cfg.OllamaURL, cfg.OllamaGenModel, cfg.OllamaEmbedModel, ollama.Options{
		HTTPTimeout:        cfg.LLMTimeout,
		ResilienceExecutor: executor,
	})
}

func openAIConfig(cfg config.Config, executor *resilience.Executor) openai.Config {
	return openai.Config{
		APIKey:     cfg.OpenAIAPIKey,
		BaseURL:    cfg.OpenAIBaseURL,
		ChatModel:  cfg.OpenAIChatModel,
		EmbedModel: cfg.OpenAIEmbedModel,
		Dimensions: cfg.OpenAIEmbedDimensions,
		Executor:   executor,
	}
}

func closeDB(db *sql.DB) {
	_ = db.Close()
}
