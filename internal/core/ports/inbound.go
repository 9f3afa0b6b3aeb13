package ports

import (
	"context"

	"github.com/kirillkom/readmate-rag/internal/core/domain"
)

// DocumentIngestor builds and persists the bundle for one document.
type DocumentIngestor interface {
	Ingest(ctx context.Context, req domain.IngestRequest) (*domain.BundleMeta, error)
}

// HybridRetriever ranks the chunks of one document against a query.
type HybridRetriever interface {
	Retrieve(ctx context.Context, req domain.RetrieveRequest) (*domain.RetrievalResult, error)
}

// DocumentQueryService answers questions and summarizes ingested documents.
type DocumentQueryService interface {
	Ask(ctx context.Context, req domain.AskRequest) (*domain.Answer, error)
	Summarize(ctx context.Context, docID string, sentences int) (string, error)
}

// DocumentReader is the read model for catalog state.
type DocumentReader interface {
	GetByID(ctx context.Context, docID string) (*domain.DocumentRecord, error)
}
