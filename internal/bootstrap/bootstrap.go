package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kirillkom/docflow/internal/config"
	"github.com/kirillkom/docflow/internal/core/ports"
	"github.com/kirillkom/docflow/internal/core/usecase"
	"github.com/kirillkom/docflow/internal/infrastructure/classifier/fallback"
	"github.com/kirillkom/docflow/internal/infrastructure/classifier/keyword"
	"github.com/kirillkom/docflow/internal/infrastructure/extractor"
	"github.com/kirillkom/docflow/internal/infrastructure/llm/gemini"
	"github.com/kirillkom/docflow/internal/infrastructure/queue/nats"
	"github.com/kirillkom/docflow/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/docflow/internal/infrastructure/resilience"
	"github.com/kirillkom/docflow/internal/infrastructure/routing/rules"
	"github.com/kirillkom/docflow/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/docflow/internal/infrastructure/storage/objectstore"
	"github.com/kirillkom/docflow/internal/infrastructure/summarizer/extractive"
	"github.com/kirillkom/docflow/internal/observability/metrics"
)

const (
	apiService    = "api"
	workerService = "worker"
)

type App struct {
	Config  config.Config
	Metrics *metrics.HTTPServerMetrics

	Queue     ports.MessageQueue
	IngestUC  ports.DocumentIngestor
	ProcessUC ports.DocumentProcessor
	QueryUC   *usecase.DocumentQueryUseCase

	closeFn func()
}

// New wires the document processing API.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	httpMetrics := metrics.NewHTTPServerMetrics(apiService)
	executor := resilience.NewExecutor(cfg.Resilience()).
		WithObserver(metrics.NewResilienceMetrics(apiService, httpMetrics.Registerer()))

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	repo := postgres.NewDocumentRepository(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	storage, err := newObjectStorage(ctx, cfg)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init object storage: %w", err)
	}

	queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
		Name:               "docflow-api",
		ResilienceExecutor: executor,
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init message queue: %w", err)
	}

	router, err := rules.Load(cfg.RoutingRulesPath)
	if err != nil {
		queue.Close()
		_ = db.Close()
		return nil, fmt.Errorf("load routing rules: %w", err)
	}

	textExtractor := extractor.New(storage, extractor.Options{
		TesseractPath: cfg.TesseractPath,
		MaxBytes:      cfg.MaxUploadBytes,
	})
	classifier := newClassifier(cfg, executor, httpMetrics)

	processUC := usecase.NewProcessDocumentUseCase(repo, textExtractor, classifier, extractive.New(), router, queue)
	ingestUC := usecase.NewIngestDocumentUseCase(repo, storage, processUC, cfg.MaxUploadBytes, cfg.AllowedExtensions)
	queryUC := usecase.NewDocumentQueryUseCase(repo, storage)

	return &App{
		Config:  cfg,
		Metrics: httpMetrics,

		Queue:     queue,
		IngestUC:  ingestUC,
		ProcessUC: processUC,
		QueryUC:   queryUC,

		closeFn: func() {
			queue.Close()
			_ = db.Close()
		},
	}, nil
}

// Worker holds what the notification worker needs: the routed event
// subscription and its metrics.
type Worker struct {
	Config   config.Config
	Metrics  *metrics.WorkerMetrics
	Queue    ports.MessageQueue
	NotifyUC ports.RoutedEventHandler

	closeFn func()
}

func NewWorker(_ context.Context, cfg config.Config, logger *slog.Logger) (*Worker, error) {
	workerMetrics := metrics.NewWorkerMetrics(workerService)
	executor := resilience.NewExecutor(cfg.Resilience()).
		WithObserver(metrics.NewResilienceMetrics(workerService, workerMetrics.Registerer()))

	queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
		Name:               "docflow-worker",
		ResilienceExecutor: executor,
	})
	if err != nil {
		return nil, fmt.Errorf("init message queue: %w", err)
	}

	return &Worker{
		Config:   cfg,
		Metrics:  workerMetrics,
		Queue:    queue,
		NotifyUC: usecase.NewNotifyDepartmentUseCase(logger),
		closeFn:  queue.Close,
	}, nil
}

func (w *Worker) Close() {
	if w.closeFn != nil {
		w.closeFn()
	}
}

func newObjectStorage(ctx context.Context, cfg config.Config) (ports.ObjectStorage, error) {
	switch cfg.StorageBackend {
	case "minio", "s3":
		return objectstore.New(ctx, objectstore.Options{
			Endpoint:  cfg.MinIOEndpoint,
			AccessKey: cfg.MinIOAccessKey,
			SecretKey: cfg.MinIOSecretKey,
			Bucket:    cfg.MinIOBucket,
			UseSSL:    cfg.MinIOUseSSL,
		})
	case "", "localfs":
		return localfs.New(cfg.StoragePath)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
}

// newClassifier prefers Gemini when an API key is configured and answers from
// the keyword tables otherwise.
func newClassifier(cfg config.Config, executor *resilience.Executor, m *metrics.HTTPServerMetrics) ports.DocumentClassifier {
	var primary ports.DocumentClassifier
	if cfg.GeminiAPIKey != "" {
		client := gemini.New(cfg.GeminiURL, cfg.GeminiAPIKey, cfg.GeminiModel, gemini.Options{Executor: executor})
		primary = gemini.NewClassifier(client)
	} else {
		slog.Info("gemini_disabled", "reason", "GEMINI_API_KEY is empty")
	}
	return fallback.New(primary, keyword.New(), fallback.WithFallbackHook(func(error) {
		m.RecordClassifierFallback(apiService)
	}))
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
