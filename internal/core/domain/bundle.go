package domain

import (
	"fmt"

	"github.com/kirillkom/readmate-rag/internal/core/index/bm25"
	"github.com/kirillkom/readmate-rag/internal/core/index/flat"
)

// Bundle is everything persisted for one ingested document. It is read-only
// once built or loaded.
type Bundle struct {
	Meta   BundleMeta
	Chunks []string
	Sparse *bm25.Index
	Dense  *flat.Index
}

// Validate checks that chunks, metadata and both indexes describe the same
// number of chunks and the same embedding dimension.
func (b *Bundle) Validate() error {
	if b.Sparse == nil || b.Dense == nil {
		return WrapError(ErrCorruptBundle, "validate bundle", fmt.Errorf("doc %s: missing index", b.Meta.DocID))
	}
	n := len(b.Chunks)
	if n != b.Meta.ChunkCount || n != b.Sparse.DocCount() || n != b.Dense.Len() {
		return WrapError(ErrCorruptBundle, "validate bundle", fmt.Errorf(
			"doc %s: chunks=%d meta.chunk_count=%d sparse.doc_count=%d dense.rows=%d",
			b.Meta.DocID, n, b.Meta.ChunkCount, b.Sparse.DocCount(), b.Dense.Len(),
		))
	}
	if b.Meta.EmbeddingDim != b.Dense.Dim() {
		return WrapError(ErrCorruptBundle, "validate bundle", fmt.Errorf(
			"doc %s: meta.embedding_dim=%d dense.dim=%d", b.Meta.DocID, b.Meta.EmbeddingDim, b.Dense.Dim(),
		))
	}
	return nil
}
