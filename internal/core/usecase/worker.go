package usecase

import (
	"context"
	"log/slog"
	"strings"

	"github.com/kirillkom/readmate-rag/internal/core/domain"
	"github.com/kirillkom/readmate-rag/internal/core/ports"
)

// IngestJobHandler runs queued ingest jobs and removes their uploads once the
// job has reached a final outcome.
type IngestJobHandler struct {
	ingestor ports.DocumentIngestor
	storage  ports.ObjectStorage
	logger   *slog.Logger
}

func NewIngestJobHandler(ingestor ports.DocumentIngestor, storage ports.ObjectStorage, logger *slog.Logger) *IngestJobHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &IngestJobHandler{ingestor: ingestor, storage: storage, logger: logger}
}

// Handle returns an error only for failures worth redelivering. Invalid jobs
// and ingest failures are final: the catalog already records them. On the
// last delivery a temporary failure is final too, so the upload is removed.
func (h *IngestJobHandler) Handle(ctx context.Context, req domain.IngestRequest) error {
	meta, err := h.ingestor.Ingest(ctx, req)
	switch {
	case err == nil:
		h.logger.Info("ingest_job_completed", "doc_id", meta.DocID, "version", meta.Version, "chunk_count", meta.ChunkCount)
	case domain.IsKind(err, domain.ErrTemporary) && domain.IsLastDelivery(ctx):
		h.logger.Error("ingest_job_gave_up", "doc_id", req.DocID, "error", err)
		h.cleanup(ctx, req.Source)
		return err
	case domain.IsKind(err, domain.ErrTemporary):
		h.logger.Warn("ingest_job_retry", "doc_id", req.DocID, "error", err)
		return err
	default:
		h.logger.Error("ingest_job_failed", "doc_id", req.DocID, "error", err)
	}
	h.cleanup(ctx, req.Source)
	return nil
}

func (h *IngestJobHandler) cleanup(ctx context.Context, src domain.Source) {
	if src.Kind != domain.SourceObject || h.storage == nil || !strings.HasPrefix(src.Key, uploadPrefix+"/") {
		return
	}
	if err := h.storage.Delete(ctx, src.Key); err != nil {
		h.logger.Warn("upload_cleanup_failed", "key", src.Key, "error", err)
	}
}
