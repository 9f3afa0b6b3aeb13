package usecase

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/kirillkom/readmate-rag/internal/core/domain"
	"github.com/kirillkom/readmate-rag/internal/core/ports"
)

const uploadPrefix = "uploads"

// SubmitIngestUseCase hands ingest work to a queue. Local files are copied
// into object storage first so a worker on another host can read them.
type SubmitIngestUseCase struct {
	storage ports.ObjectStorage
	queue   ports.IngestQueue
	catalog ports.DocumentCatalog
	logger  *slog.Logger
}

func NewSubmitIngestUseCase(
	storage ports.ObjectStorage,
	queue ports.IngestQueue,
	catalog ports.DocumentCatalog,
	logger *slog.Logger,
) *SubmitIngestUseCase {
	if catalog == nil {
		catalog = noopCatalog{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SubmitIngestUseCase{
		storage: storage,
		queue:   queue,
		catalog: catalog,
		logger:  logger,
	}
}

// Submit returns the request as published, with local sources replaced by an
// object reference.
func (uc *SubmitIngestUseCase) Submit(ctx context.Context, req domain.IngestRequest) (*domain.IngestRequest, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	if req.Source.Kind == domain.SourcePath || req.Source.Kind == domain.SourceBytes {
		src, err := uc.upload(ctx, req.Source)
		if err != nil {
			return nil, err
		}
		req.Source = src
	}

	if err := uc.catalog.MarkQueued(ctx, req.DocID); err != nil {
		return nil, fmt.Errorf("set status=queued: %w", err)
	}
	if err := uc.queue.PublishIngest(ctx, req); err != nil {
		return nil, fmt.Errorf("publish ingest job: %w", err)
	}

	uc.logger.Info("ingest_submitted", "doc_id", req.DocID, "source_kind", req.Source.Kind, "key", req.Source.Key)
	return &req, nil
}

func (uc *SubmitIngestUseCase) upload(ctx context.Context, src domain.Source) (domain.Source, error) {
	name := src.Name
	if src.Kind == domain.SourcePath {
		name = src.Path
	}
	key := fmt.Sprintf("%s/%s_%s", uploadPrefix, uuid.NewString(), sanitizeFilename(name))

	if src.Kind == domain.SourceBytes {
		if err := uc.storage.Save(ctx, key, bytes.NewReader(src.Data)); err != nil {
			return domain.Source{}, fmt.Errorf("save to object storage: %w", err)
		}
		return domain.ObjectSource(key, name), nil
	}

	f, err := os.Open(src.Path)
	if err != nil {
		return domain.Source{}, domain.WrapError(domain.ErrIngestFailed, "open source file", err)
	}
	defer f.Close()
	if err := uc.storage.Save(ctx, key, f); err != nil {
		return domain.Source{}, fmt.Errorf("save to object storage: %w", err)
	}
	return domain.ObjectSource(key, filepath.Base(name)), nil
}

func sanitizeFilename(name string) string {
	base := filepath.Base(name)
	base = strings.ReplaceAll(base, " ", "_")
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case r >= 'A' && r <= 'Z':
			return r
		case r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	if base == "" || base == "." {
		return "document.txt"
	}
	return base
}
