package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirillkom/confident-retrieval/internal/config"
	"github.com/kirillkom/confident-retrieval/internal/core/domain"
	"github.com/kirillkom/confident-retrieval/internal/core/ports"
	"github.com/kirillkom/confident-retrieval/internal/core/usecase"
	"github.com/kirillkom/confident-retrieval/internal/infrastructure/chunking"
	"github.com/kirillkom/confident-retrieval/internal/infrastructure/extractor"
	"github.com/kirillkom/confident-retrieval/internal/infrastructure/extractor/pdf"
	"github.com/kirillkom/confident-retrieval/internal/infrastructure/extractor/plaintext"
	"github.com/kirillkom/confident-retrieval/internal/infrastructure/extractor/xlsx"
	"github.com/kirillkom/confident-retrieval/internal/infrastructure/llm/ollama"
	"github.com/kirillkom/confident-retrieval/internal/infrastructure/queue/nats"
	"github.com/kirillkom/confident-retrieval/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/confident-retrieval/internal/infrastructure/resilience"
	"github.com/kirillkom/confident-retrieval/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/confident-retrieval/internal/infrastructure/vector/memindex"
	"github.com/kirillkom/confident-retrieval/internal/infrastructure/vector/qdrant"
	"github.com/kirillkom/confident-retrieval/internal/observability/metrics"
)

const (
	mimePDF  = "application/pdf"
	mimeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// Options carries the per-binary pieces the shared wiring cannot decide on
// its own: the logger, and metric sinks owned by the api or worker process.
type Options struct {
	Logger *slog.Logger

	// HTTPMetrics, when set, instruments case memory writes.
	HTTPMetrics *metrics.HTTPServerMetrics
	// ObserveQueueLag, when set, receives enqueue-to-receive latency per
	// consumed ingestion event.
	ObserveQueueLag func(time.Duration)

	Service string
}

type App struct {
	Config config.Config

	Queue      ports.MessageQueue
	Repo       ports.DocumentRepository
	IngestUC   ports.DocumentIngestor
	ProcessUC  ports.DocumentProcessor
	SearchUC   ports.SearchService
	Reader     ports.DocumentReader
	CaseMemory ports.CaseMemoryReader
	Reembedder ports.ChunkReembedder

	closeFn func()
}

func New(ctx context.Context, cfg config.Config, opts Options) (*App, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	docRepo := postgres.NewDocumentRepository(db)
	if err := docRepo.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	nodeRepo := postgres.NewNodeRepository(db)

	var caseMemory ports.CaseMemoryStore = postgres.NewCaseMemoryRepository(db)
	if opts.HTTPMetrics != nil {
		caseMemory = &instrumentedCaseMemory{
			inner:    caseMemory,
			onRecord: func() { opts.HTTPMetrics.RecordCaseMemoryWrite(opts.Service) },
		}
	}

	storage, err := localfs.New(cfg.StoragePath)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init object storage: %w", err)
	}

	queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
		ResilienceExecutor: resilience.NewExecutor(resilience.DefaultConfig()),
		ObserveLag:         opts.ObserveQueueLag,
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init message queue: %w", err)
	}

	index, closeIndex, err := openVectorIndex(cfg)
	if err != nil {
		queue.Close()
		_ = db.Close()
		return nil, fmt.Errorf("open vector index: %w", err)
	}

	weights, err := config.LoadWeights(cfg.ConfidenceWeights)
	if err != nil {
		closeIndex()
		queue.Close()
		_ = db.Close()
		return nil, fmt.Errorf("load confidence weights: %w", err)
	}

	ollamaClient := ollama.New(cfg.OllamaURL, cfg.OllamaOutlineModel, cfg.OllamaEmbedModel, cfg.CollaboratorRPS)
	backgroundExecutor := resilience.NewExecutor(resilience.DefaultConfig())
	queryExecutor := resilience.NewExecutor(resilience.QueryPathConfig())

	processEmbedder := ollama.NewResilientEmbedder(ollama.NewEmbedder(ollamaClient), backgroundExecutor)
	queryEmbedder := ollama.NewResilientEmbedder(ollama.NewEmbedder(ollamaClient), queryExecutor)
	outline := ollama.NewResilientOutlineExtractor(ollama.NewOutlineExtractor(ollamaClient), backgroundExecutor)

	registry := extractor.NewRegistry(plaintext.NewExtractor(storage))
	registry.Register(mimePDF, pdf.NewExtractor(storage))
	registry.Register(mimeXLSX, xlsx.NewExtractor(storage))

	structureUC := usecase.NewStructureExtractUseCase(outline, chunking.NewSplitter(cfg.FallbackWindowSize))
	scorer := usecase.NewConfidenceScorer(weights, cfg.ModelTrust)

	return &App{
		Config: cfg,
		Queue:  queue,
		Repo:   docRepo,

		IngestUC:  usecase.NewIngestDocumentUseCase(docRepo, storage, queue, registry),
		ProcessUC: usecase.NewProcessDocumentUseCase(docRepo, nodeRepo, registry, structureUC, processEmbedder, index),
		SearchUC: &searchWithDefaults{
			inner:     usecase.NewQueryUseCase(queryEmbedder, index, caseMemory, scorer, logger),
			topK:      cfg.SearchTopK,
			threshold: cfg.ConfidenceThreshold,
		},
		Reader:     usecase.NewDocumentReadUseCase(docRepo, nodeRepo),
		CaseMemory: usecase.NewCaseMemoryReadUseCase(caseMemory),
		Reembedder: usecase.NewReembedChunkUseCase(processEmbedder, index),

		closeFn: func() {
			queue.Close()
			closeIndex()
			_ = db.Close()
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}

func openVectorIndex(cfg config.Config) (ports.VectorIndex, func(), error) {
	switch cfg.VectorBackend {
	case "qdrant":
		return qdrant.New(cfg.QdrantURL, cfg.QdrantCollection), func() {}, nil
	case "", "memory":
		if cfg.IndexPath == "" {
			return memindex.New(), func() {}, nil
		}
		index, err := memindex.Open(cfg.IndexPath)
		if err != nil {
			return nil, nil, err
		}
		return index, func() { _ = index.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown vector backend %q", cfg.VectorBackend)
	}
}

// searchWithDefaults fills the deployment-configured top-k and confidence
// threshold into requests that left them unset.
type searchWithDefaults struct {
	inner     ports.SearchService
	topK      int
	threshold float64
}

func (s *searchWithDefaults) Search(ctx context.Context, req domain.QueryRequest) (*domain.QueryResult, error) {
	if req.TopK <= 0 {
		req.TopK = s.topK
	}
	if req.ConfidenceThreshold <= 0 {
		req.ConfidenceThreshold = s.threshold
	}
	return s.inner.Search(ctx, req)
}

// instrumentedCaseMemory counts successful case memory writes; lookups pass
// through untouched.
type instrumentedCaseMemory struct {
	inner    ports.CaseMemoryStore
	onRecord func()
}

func (s *instrumentedCaseMemory) Record(ctx context.Context, entry domain.CaseMemoryEntry) error {
	if err := s.inner.Record(ctx, entry); err != nil {
		return err
	}
	s.onRecord()
	return nil
}

func (s *instrumentedCaseMemory) Lookup(ctx context.Context, querySignature string) (*domain.CaseMemoryEntry, error) {
	return s.inner.Lookup(ctx, querySignature)
}
