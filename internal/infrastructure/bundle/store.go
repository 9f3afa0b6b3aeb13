// Package bundle persists per-document bundles on top of object storage.
//
// Layout for a document:
//
//	<doc_id>/CURRENT                          version id of the live bundle
//	<doc_id>/versions/<version>/meta.json
//	<doc_id>/versions/<version>/chunks.json
//	<doc_id>/versions/<version>/sparse.bin
//	<doc_id>/versions/<version>/dense.bin
//
// A save writes a complete new version and only then replaces CURRENT, so a
// reader sees either the previous bundle or the new one, never a mix.
package bundle

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/readmate-rag/internal/core/domain"
	"github.com/kirillkom/readmate-rag/internal/core/index/bm25"
	"github.com/kirillkom/readmate-rag/internal/core/index/flat"
	"github.com/kirillkom/readmate-rag/internal/core/ports"
)

const (
	currentObject = "CURRENT"
	metaObject    = "meta.json"
	chunksObject  = "chunks.json"
	sparseObject  = "sparse.bin"
	denseObject   = "dense.bin"
)

// errVersionGone marks a version removed between reading CURRENT and its parts.
var errVersionGone = errors.New("bundle version removed during load")

type Store struct {
	objects     ports.ObjectStorage
	compression string
	logger      *slog.Logger
	now         func() time.Time
}

func NewStore(objects ports.ObjectStorage, compression string, logger *slog.Logger) (*Store, error) {
	if compression == "" {
		compression = CompressionNone
	}
	if !ValidCompression(compression) {
		return nil, domain.Invalid("new bundle store", "unknown compression %q", compression)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		objects:     objects,
		compression: compression,
		logger:      logger,
		now:         time.Now,
	}, nil
}

var _ ports.BundleStore = (*Store)(nil)

// Save persists b as the new live bundle for b.Meta.DocID and fills in
// b.Meta.Version, Compression and CreatedAt.
func (s *Store) Save(ctx context.Context, b *domain.Bundle) error {
	if b == nil {
		return domain.Invalid("save bundle", "bundle is nil")
	}
	docID := b.Meta.DocID
	if err := domain.ValidateDocID(docID); err != nil {
		return err
	}
	if err := b.Validate(); err != nil {
		return err
	}

	previous, err := s.readCurrent(ctx, docID)
	if err != nil && !domain.IsKind(err, domain.ErrDocumentNotFound) {
		return err
	}

	meta := b.Meta
	meta.Version = uuid.NewString()
	meta.Compression = s.compression
	if meta.CreatedAt.IsZero() {
		meta.CreatedAt = s.now().UTC()
	}

	parts, err := encodeParts(b, meta)
	if err != nil {
		return fmt.Errorf("encode bundle %s: %w", docID, err)
	}

	prefix := versionPrefix(docID, meta.Version)
	written := make([]string, 0, len(parts))
	for _, part := range parts {
		key := path.Join(prefix, part.name)
		if err := s.objects.Save(ctx, key, bytes.NewReader(part.data)); err != nil {
			s.removeKeys(ctx, written)
			return fmt.Errorf("write %s: %w", key, err)
		}
		written = append(written, key)
	}

	if err := s.objects.Save(ctx, currentKey(docID), strings.NewReader(meta.Version)); err != nil {
		s.removeKeys(ctx, written)
		return fmt.Errorf("flip current pointer for %s: %w", docID, err)
	}
	b.Meta = meta

	s.logger.Info("bundle_saved",
		"doc_id", docID,
		"version", meta.Version,
		"chunk_count", meta.ChunkCount,
		"embedding_dim", meta.EmbeddingDim,
		"compression", meta.Compression,
	)

	if previous != "" && previous != meta.Version {
		s.removeKeys(ctx, versionKeys(docID, previous))
	}
	return nil
}

// Load returns the live bundle for docID. A missing document is
// ErrDocumentNotFound; any inconsistency between parts is ErrCorruptBundle.
func (s *Store) Load(ctx context.Context, docID string) (*domain.Bundle, error) {
	if err := domain.ValidateDocID(docID); err != nil {
		return nil, err
	}
	b, err := s.loadOnce(ctx, docID)
	if errors.Is(err, errVersionGone) {
		// A concurrent save replaced the version we were reading; follow CURRENT once more.
		b, err = s.loadOnce(ctx, docID)
	}
	if errors.Is(err, errVersionGone) {
		return nil, domain.WrapError(domain.ErrCorruptBundle, "load bundle", fmt.Errorf("doc %s: %w", docID, err))
	}
	return b, err
}

func (s *Store) loadOnce(ctx context.Context, docID string) (*domain.Bundle, error) {
	version, err := s.readCurrent(ctx, docID)
	if err != nil {
		return nil, err
	}
	prefix := versionPrefix(docID, version)

	rawMeta, err := s.readObject(ctx, path.Join(prefix, metaObject))
	if err != nil {
		return nil, err
	}
	var meta domain.BundleMeta
	if err := json.Unmarshal(rawMeta, &meta); err != nil {
		return nil, corrupt(docID, "decode metadata", err)
	}
	if meta.DocID != docID || meta.Version != version {
		return nil, corrupt(docID, "check metadata", fmt.Errorf("metadata names doc %q version %q", meta.DocID, meta.Version))
	}
	if !ValidCompression(meta.Compression) {
		return nil, corrupt(docID, "check metadata", fmt.Errorf("unknown compression %q", meta.Compression))
	}

	b := &domain.Bundle{Meta: meta}

	rawChunks, err := s.readPart(ctx, docID, prefix, chunksObject, meta.Compression)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(rawChunks, &b.Chunks); err != nil {
		return nil, corrupt(docID, "decode chunks", err)
	}

	rawSparse, err := s.readPart(ctx, docID, prefix, sparseObject, meta.Compression)
	if err != nil {
		return nil, err
	}
	b.Sparse = &bm25.Index{}
	if err := b.Sparse.UnmarshalBinary(rawSparse); err != nil {
		return nil, corrupt(docID, "decode sparse index", err)
	}

	rawDense, err := s.readPart(ctx, docID, prefix, denseObject, meta.Compression)
	if err != nil {
		return nil, err
	}
	b.Dense = &flat.Index{}
	if err := b.Dense.UnmarshalBinary(rawDense); err != nil {
		return nil, corrupt(docID, "decode dense index", err)
	}

	if err := b.Validate(); err != nil {
		return nil, err
	}
	return b, nil
}

func (s *Store) readCurrent(ctx context.Context, docID string) (string, error) {
	raw, err := s.readObject(ctx, currentKey(docID))
	if err != nil {
		if errors.Is(err, errVersionGone) {
			return "", domain.WrapError(domain.ErrDocumentNotFound, "load bundle", fmt.Errorf("doc %s", docID))
		}
		return "", err
	}
	version := strings.TrimSpace(string(raw))
	if version == "" {
		return "", corrupt(docID, "read current pointer", errors.New("empty version"))
	}
	return version, nil
}

func (s *Store) readPart(ctx context.Context, docID, prefix, name, compression string) ([]byte, error) {
	raw, err := s.readObject(ctx, path.Join(prefix, name))
	if err != nil {
		return nil, err
	}
	out, err := decompress(compression, raw)
	if err != nil {
		return nil, corrupt(docID, "decompress "+name, err)
	}
	return out, nil
}

// readObject maps a missing object to errVersionGone so callers can decide
// whether absence means "no document" or "replaced under us".
func (s *Store) readObject(ctx context.Context, key string) ([]byte, error) {
	rc, err := s.objects.Open(ctx, key)
	if err != nil {
		if domain.IsKind(err, domain.ErrObjectNotFound) {
			return nil, fmt.Errorf("%s: %w", key, errVersionGone)
		}
		return nil, fmt.Errorf("open %s: %w", key, err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return data, nil
}

func (s *Store) removeKeys(ctx context.Context, keys []string) {
	for _, key := range keys {
		if err := s.objects.Delete(ctx, key); err != nil {
			s.logger.Warn("bundle_cleanup_failed", "key", key, "error", err)
		}
	}
}

type part struct {
	name string
	data []byte
}

// encodeParts returns the version's objects with metadata last, so a version
// directory holding meta.json always holds every other part too.
func encodeParts(b *domain.Bundle, meta domain.BundleMeta) ([]part, error) {
	chunks, err := json.Marshal(b.Chunks)
	if err != nil {
		return nil, fmt.Errorf("marshal chunks: %w", err)
	}
	sparse, err := b.Sparse.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("marshal sparse index: %w", err)
	}
	dense, err := b.Dense.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("marshal dense index: %w", err)
	}

	parts := make([]part, 0, 4)
	for _, p := range []part{{chunksObject, chunks}, {sparseObject, sparse}, {denseObject, dense}} {
		data, err := compress(meta.Compression, p.data)
		if err != nil {
			return nil, err
		}
		parts = append(parts, part{name: p.name, data: data})
	}

	rawMeta, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}
	return append(parts, part{name: metaObject, data: rawMeta}), nil
}

func corrupt(docID, operation string, err error) error {
	return domain.WrapError(domain.ErrCorruptBundle, operation, fmt.Errorf("doc %s: %w", docID, err))
}

func currentKey(docID string) string {
	return path.Join(docID, currentObject)
}

func versionPrefix(docID, version string) string {
	return path.Join(docID, "versions", version)
}

func versionKeys(docID, version string) []string {
	prefix := versionPrefix(docID, version)
	return []string{
		path.Join(prefix, metaObject),
		path.Join(prefix, chunksObject),
		path.Join(prefix, sparseObject),
		path.Join(prefix, denseObject),
	}
}
