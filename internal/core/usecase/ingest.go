package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirillkom/readmate-rag/internal/core/domain"
	"github.com/kirillkom/readmate-rag/internal/core/index/bm25"
	"github.com/kirillkom/readmate-rag/internal/core/index/flat"
	"github.com/kirillkom/readmate-rag/internal/core/ports"
)

// IngestUseCase builds a document bundle from a source and replaces any
// bundle previously stored under the same doc id. Concurrent ingests of one
// doc id are not serialized; the last completed save wins.
type IngestUseCase struct {
	extractor ports.TextExtractor
	chunkers  ports.ChunkerFactory
	embedder  ports.Embedder
	store     ports.BundleStore
	catalog   ports.DocumentCatalog
	logger    *slog.Logger
	now       func() time.Time
}

func NewIngestUseCase(
	extractor ports.TextExtractor,
	chunkers ports.ChunkerFactory,
	embedder ports.Embedder,
	store ports.BundleStore,
	catalog ports.DocumentCatalog,
	logger *slog.Logger,
) *IngestUseCase {
	if catalog == nil {
		catalog = noopCatalog{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &IngestUseCase{
		extractor: extractor,
		chunkers:  chunkers,
		embedder:  embedder,
		store:     store,
		catalog:   catalog,
		logger:    logger,
		now:       time.Now,
	}
}

var _ ports.DocumentIngestor = (*IngestUseCase)(nil)

func (uc *IngestUseCase) Ingest(ctx context.Context, req domain.IngestRequest) (*domain.BundleMeta, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	if err := uc.catalog.MarkIngesting(ctx, req.DocID); err != nil {
		return nil, fmt.Errorf("set status=ingesting: %w", err)
	}

	started := uc.now()
	bundle, err := uc.build(ctx, req)
	if err == nil {
		err = uc.save(ctx, bundle)
	}
	if err != nil {
		if failErr := uc.catalog.MarkFailed(ctx, req.DocID, err.Error()); failErr != nil {
			return nil, fmt.Errorf("%w; mark failed status: %v", err, failErr)
		}
		return nil, err
	}

	meta := bundle.Meta
	// The bundle is already live; a catalog outage must not report the ingest as failed.
	if err := uc.catalog.MarkReady(ctx, meta); err != nil {
		uc.logger.Warn("catalog_mark_ready_failed", "doc_id", meta.DocID, "error", err)
	}

	uc.logger.Info("ingest_completed",
		"doc_id", meta.DocID,
		"version", meta.Version,
		"chunk_count", meta.ChunkCount,
		"embedding_dim", meta.EmbeddingDim,
		"unit", meta.Unit,
		"window", meta.Window,
		"stride", meta.Stride,
		"duration_ms", float64(uc.now().Sub(started).Microseconds())/1000.0,
	)
	return &meta, nil
}

func (uc *IngestUseCase) build(ctx context.Context, req domain.IngestRequest) (*domain.Bundle, error) {
	text, err := uc.extractText(ctx, req.Source)
	if err != nil {
		return nil, err
	}

	chunks, err := uc.chunk(req, text)
	if err != nil {
		return nil, err
	}

	vectors, err := uc.embed(ctx, chunks)
	if err != nil {
		return nil, err
	}

	dense, err := uc.indexDense(vectors)
	if err != nil {
		return nil, err
	}

	return &domain.Bundle{
		Meta: domain.BundleMeta{
			DocID:        req.DocID,
			EmbeddingDim: dense.Dim(),
			ChunkCount:   len(chunks),
			Unit:         req.Unit,
			Window:       req.Window,
			Stride:       req.Stride,
			CreatedAt:    uc.now().UTC(),
		},
		Chunks: chunks,
		Sparse: bm25.BuildFromTexts(chunks),
		Dense:  dense,
	}, nil
}

func (uc *IngestUseCase) extractText(ctx context.Context, src domain.Source) (string, error) {
	text, err := uc.extractor.Extract(ctx, src)
	if err != nil {
		return "", ingestFailure("extract text", err)
	}
	if text == "" {
		return "", ingestFailure("extract text", fmt.Errorf("empty extracted text"))
	}
	return text, nil
}

func (uc *IngestUseCase) chunk(req domain.IngestRequest, text string) ([]string, error) {
	chunker, err := uc.chunkers(req.Unit, req.Window, req.Stride)
	if err != nil {
		return nil, err
	}
	chunks, err := chunker.Split(text)
	if err != nil {
		return nil, ingestFailure("chunk document", err)
	}
	return chunks, nil
}

func (uc *IngestUseCase) embed(ctx context.Context, chunks []string) ([][]float32, error) {
	vectors, err := uc.embedder.Embed(ctx, chunks)
	if err != nil {
		return nil, ingestFailure("embed chunks", err)
	}
	if len(vectors) != len(chunks) {
		return nil, ingestFailure("embed chunks", fmt.Errorf("vectors/chunks mismatch: %d/%d", len(vectors), len(chunks)))
	}
	return vectors, nil
}

func (uc *IngestUseCase) indexDense(vectors [][]float32) (*flat.Index, error) {
	dense, err := flat.New(len(vectors[0]))
	if err != nil {
		return nil, ingestFailure("build dense index", err)
	}
	if err := dense.Add(vectors); err != nil {
		return nil, ingestFailure("build dense index", err)
	}
	return dense, nil
}

func (uc *IngestUseCase) save(ctx context.Context, bundle *domain.Bundle) error {
	if err := uc.store.Save(ctx, bundle); err != nil {
		return ingestFailure("save bundle", err)
	}
	return nil
}

// ingestFailure tags err as an ingest failure unless it already carries that kind.
func ingestFailure(operation string, err error) error {
	if domain.IsKind(err, domain.ErrIngestFailed) {
		return fmt.Errorf("%s: %w", operation, err)
	}
	return domain.WrapError(domain.ErrIngestFailed, operation, err)
}

type noopCatalog struct{}

func (noopCatalog) MarkQueued(context.Context, string) error           { return nil }
func (noopCatalog) MarkIngesting(context.Context, string) error        { return nil }
func (noopCatalog) MarkReady(context.Context, domain.BundleMeta) error { return nil }
func (noopCatalog) MarkFailed(context.Context, string, string) error   { return nil }
