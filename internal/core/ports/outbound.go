package ports

import (
	"context"
	"io"

	"github.com/kirillkom/readmate-rag/internal/core/domain"
)

// ObjectStorage stores opaque blobs by key. Save must be atomic per key:
// readers see the previous object or the new one, never a partial write.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// BundleStore persists complete document bundles.
type BundleStore interface {
	Save(ctx context.Context, bundle *domain.Bundle) error
	Load(ctx context.Context, docID string) (*domain.Bundle, error)
}

// TextExtractor resolves an ingest source into plain text.
type TextExtractor interface {
	Extract(ctx context.Context, src domain.Source) (string, error)
}

// Chunker splits text into ordered chunks.
type Chunker interface {
	Split(text string) ([]string, error)
}

// ChunkerFactory builds a chunker for one ingest request.
type ChunkerFactory func(unit domain.ChunkUnit, window, stride int) (Chunker, error)

// Embedder builds L2-normalized vectors for chunks and query text.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// AnswerGenerator produces free text from retrieved context. Contexts are
// passed in rank order.
type AnswerGenerator interface {
	GenerateAnswer(ctx context.Context, question string, contexts []string) (string, error)
	SummarizePart(ctx context.Context, text string) (string, error)
	CombineSummaries(ctx context.Context, partials []string, sentences int) (string, error)
}

// DocumentCatalog tracks ingest status per document.
type DocumentCatalog interface {
	MarkQueued(ctx context.Context, docID string) error
	MarkIngesting(ctx context.Context, docID string) error
	MarkReady(ctx context.Context, meta domain.BundleMeta) error
	MarkFailed(ctx context.Context, docID string, errMessage string) error
}

// IngestQueue publishes and consumes asynchronous ingest jobs.
type IngestQueue interface {
	PublishIngest(ctx context.Context, req domain.IngestRequest) error
	SubscribeIngest(ctx context.Context, handler func(context.Context, domain.IngestRequest) error) error
}
