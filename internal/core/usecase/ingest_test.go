package usecase

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/kirillkom/readmate-rag/internal/core/domain"
	"github.com/kirillkom/readmate-rag/internal/infrastructure/chunking"
)

const threeParagraphs = "Romeo meets Juliet at the feast.\n\nTybalt draws his sword against Romeo.\n\nJuliet drinks the friar's potion."

func paragraphRequest(docID, text string) domain.IngestRequest {
	return domain.IngestRequest{
		DocID:  docID,
		Source: domain.TextSource(text),
		Unit:   domain.UnitParagraph,
		Window: 1,
		Stride: 1,
	}
}

func newIngest(store *memBundleStore, embedder *vocabEmbedder, catalog *catalogFake, extractor *textExtractorFake) *IngestUseCase {
	if extractor == nil {
		extractor = &textExtractorFake{}
	}
	if catalog == nil {
		catalog = &catalogFake{}
	}
	return NewIngestUseCase(extractor, chunking.Factory, embedder, store, catalog, discardLogger())
}

func TestIngestSuccess(t *testing.T) {
	store := newMemBundleStore()
	catalog := &catalogFake{}
	uc := newIngest(store, newVocabEmbedder("romeo", "juliet"), catalog, nil)

	meta, err := uc.Ingest(context.Background(), paragraphRequest("romeo", threeParagraphs))
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if meta.ChunkCount != 3 || meta.EmbeddingDim != 3 || meta.Version != "v1" {
		t.Fatalf("unexpected meta %+v", meta)
	}
	if meta.Unit != domain.UnitParagraph || meta.Window != 1 || meta.Stride != 1 {
		t.Fatalf("chunking parameters not recorded: %+v", meta)
	}
	want := []domain.DocumentStatus{domain.StatusIngesting, domain.StatusReady}
	if !reflect.DeepEqual(catalog.statuses(), want) {
		t.Fatalf("unexpected status sequence %v", catalog.statuses())
	}
	b, err := store.Load(context.Background(), "romeo")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if err := b.Validate(); err != nil {
		t.Fatalf("stored bundle invalid: %v", err)
	}
}

func TestIngestSentenceWindow(t *testing.T) {
	store := newMemBundleStore()
	uc := newIngest(store, newVocabEmbedder("romeo"), nil, nil)
	req := paragraphRequest("doc", "One. Two. Three. Four.")
	req.Unit = domain.UnitSentence
	req.Window = 2
	req.Stride = 2

	meta, err := uc.Ingest(context.Background(), req)
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	b, _ := store.Load(context.Background(), "doc")
	want := []string{"One. Two.", "Three. Four."}
	if meta.ChunkCount != 2 || !reflect.DeepEqual(b.Chunks, want) {
		t.Fatalf("unexpected chunks %q", b.Chunks)
	}
}

func TestIngestValidationErrorSkipsCatalog(t *testing.T) {
	catalog := &catalogFake{}
	uc := newIngest(newMemBundleStore(), newVocabEmbedder("a"), catalog, nil)
	req := paragraphRequest("doc", "text")
	req.Stride = 0

	_, err := uc.Ingest(context.Background(), req)
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
	if domain.IsKind(err, domain.ErrIngestFailed) {
		t.Fatalf("validation errors must surface unchanged: %v", err)
	}
	if len(catalog.calls) != 0 {
		t.Fatalf("expected no catalog calls, got %+v", catalog.calls)
	}
}

func TestIngestEmptySourceFails(t *testing.T) {
	store := newMemBundleStore()
	catalog := &catalogFake{}
	uc := newIngest(store, newVocabEmbedder("a"), catalog, nil)

	_, err := uc.Ingest(context.Background(), paragraphRequest("doc", "  \n\n  "))
	if !domain.IsKind(err, domain.ErrIngestFailed) {
		t.Fatalf("expected ingest failure, got %v", err)
	}
	want := []domain.DocumentStatus{domain.StatusIngesting, domain.StatusFailed}
	if !reflect.DeepEqual(catalog.statuses(), want) {
		t.Fatalf("unexpected status sequence %v", catalog.statuses())
	}
	if store.saves != 0 {
		t.Fatalf("expected nothing saved, got %d saves", store.saves)
	}
}

func TestIngestExtractorErrorFails(t *testing.T) {
	extractErr := errors.New("permission denied")
	uc := newIngest(newMemBundleStore(), newVocabEmbedder("a"), nil, &textExtractorFake{err: extractErr})
	req := paragraphRequest("doc", "")
	req.Source = domain.PathSource("/books/locked.txt")

	_, err := uc.Ingest(context.Background(), req)
	if !domain.IsKind(err, domain.ErrIngestFailed) || !errors.Is(err, extractErr) {
		t.Fatalf("expected wrapped ingest failure, got %v", err)
	}
}

func TestIngestEmbeddingFailureKeepsPriorBundle(t *testing.T) {
	store := newMemBundleStore()
	embedder := newVocabEmbedder("romeo")
	uc := newIngest(store, embedder, nil, nil)
	if _, err := uc.Ingest(context.Background(), paragraphRequest("doc", "first version")); err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}

	embedErr := errors.New("model offline")
	embedder.err = embedErr
	_, err := uc.Ingest(context.Background(), paragraphRequest("doc", "second version"))
	if !domain.IsKind(err, domain.ErrIngestFailed) || !errors.Is(err, embedErr) {
		t.Fatalf("expected ingest failure wrapping embed error, got %v", err)
	}

	b, err := store.Load(context.Background(), "doc")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if b.Chunks[0] != "first version" {
		t.Fatalf("expected prior bundle to survive, got %q", b.Chunks)
	}
}

func TestIngestVectorCountMismatchFails(t *testing.T) {
	embedder := newVocabEmbedder("romeo")
	embedder.short = true
	catalog := &catalogFake{}
	uc := newIngest(newMemBundleStore(), embedder, catalog, nil)

	_, err := uc.Ingest(context.Background(), paragraphRequest("doc", threeParagraphs))
	if !domain.IsKind(err, domain.ErrIngestFailed) {
		t.Fatalf("expected ingest failure, got %v", err)
	}
	if last := catalog.calls[len(catalog.calls)-1]; last.status != domain.StatusFailed || last.errMsg == "" {
		t.Fatalf("expected failed status with message, got %+v", last)
	}
}

func TestIngestSaveFailureIsIngestError(t *testing.T) {
	store := newMemBundleStore()
	store.saveErr = errors.New("disk full")
	uc := newIngest(store, newVocabEmbedder("romeo"), nil, nil)

	if _, err := uc.Ingest(context.Background(), paragraphRequest("doc", "text")); !domain.IsKind(err, domain.ErrIngestFailed) {
		t.Fatalf("expected ingest failure, got %v", err)
	}
}

func TestIngestCatalogReadyFailureIsNotFatal(t *testing.T) {
	catalog := &catalogFake{readyErr: errors.New("db down")}
	uc := newIngest(newMemBundleStore(), newVocabEmbedder("romeo"), catalog, nil)

	if _, err := uc.Ingest(context.Background(), paragraphRequest("doc", "text")); err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
}

func TestIngestCatalogStartFailureAborts(t *testing.T) {
	store := newMemBundleStore()
	catalog := &catalogFake{startErr: errors.New("db down")}
	embedder := newVocabEmbedder("romeo")
	uc := newIngest(store, embedder, catalog, nil)

	if _, err := uc.Ingest(context.Background(), paragraphRequest("doc", "text")); err == nil {
		t.Fatalf("expected error")
	}
	if embedder.calls != 0 || store.saves != 0 {
		t.Fatalf("expected no work after catalog failure")
	}
}

func TestIngestWithoutCatalog(t *testing.T) {
	uc := NewIngestUseCase(&textExtractorFake{}, chunking.Factory, newVocabEmbedder("a"), newMemBundleStore(), nil, nil)
	if _, err := uc.Ingest(context.Background(), paragraphRequest("doc", "a b")); err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
}
