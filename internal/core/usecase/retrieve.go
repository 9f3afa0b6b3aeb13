package usecase

import (
	"context"
	"fmt"

	"github.com/kirillkom/readmate-rag/internal/core/domain"
	"github.com/kirillkom/readmate-rag/internal/core/index/bm25"
	"github.com/kirillkom/readmate-rag/internal/core/ports"
)

// RetrieveUseCase fuses BM25 and dense scores over one document's chunks.
// Besides the query embedding it performs no I/O other than loading the bundle.
type RetrieveUseCase struct {
	store    ports.BundleStore
	embedder ports.Embedder
}

func NewRetrieveUseCase(store ports.BundleStore, embedder ports.Embedder) *RetrieveUseCase {
	return &RetrieveUseCase{store: store, embedder: embedder}
}

var _ ports.HybridRetriever = (*RetrieveUseCase)(nil)

func (uc *RetrieveUseCase) Retrieve(ctx context.Context, req domain.RetrieveRequest) (*domain.RetrievalResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	k := req.TopK()

	bundle, err := uc.store.Load(ctx, req.DocID)
	if err != nil {
		return nil, err
	}
	n := len(bundle.Chunks)

	lexical := bundle.Sparse.Score(bm25.Tokenize(req.Query))

	queryVector, err := uc.embedder.EmbedQuery(ctx, req.Query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	sims, ids, err := bundle.Dense.Search(queryVector, n)
	if err != nil {
		return nil, fmt.Errorf("search dense index for doc %s: %w", req.DocID, err)
	}
	dense := scatterDense(sims, ids, n)

	fused := fuseLinear(normalizeMax(lexical), normalizeMax(dense), req.Alpha)
	top := rankTopK(fused, k)

	result := &domain.RetrievalResult{
		DocID:    req.DocID,
		ChunkIDs: top,
		Scores:   make([]float64, len(top)),
		Texts:    make([]string, len(top)),
	}
	for i, id := range top {
		result.Scores[i] = fused[id]
		result.Texts[i] = bundle.Chunks[id]
	}
	return result, nil
}
