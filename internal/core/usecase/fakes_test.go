package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strings"
	"sync"

	"github.com/kirillkom/readmate-rag/internal/core/domain"
	"github.com/kirillkom/readmate-rag/internal/core/index/bm25"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// vocabEmbedder maps text onto a small fixed vocabulary so that dense scores
// are predictable and never negative.
type vocabEmbedder struct {
	vocab []string
	err   error
	// short drops the last vector to simulate a misbehaving backend.
	short bool
	calls int
}

func newVocabEmbedder(vocab ...string) *vocabEmbedder {
	return &vocabEmbedder{vocab: vocab}
}

func (e *vocabEmbedder) vector(text string) []float32 {
	counts := make(map[string]int)
	for _, tok := range bm25.Tokenize(text) {
		counts[tok]++
	}
	vec := make([]float32, len(e.vocab)+1)
	for i, word := range e.vocab {
		vec[i] = float32(counts[word])
	}
	vec[len(e.vocab)] = 0.1
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	norm := float32(math.Sqrt(sum))
	for i := range vec {
		vec[i] /= norm
	}
	return vec
}

func (e *vocabEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, 0, len(texts))
	for _, t := range texts {
		out = append(out, e.vector(t))
	}
	if e.short && len(out) > 0 {
		out = out[:len(out)-1]
	}
	return out, nil
}

func (e *vocabEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

type textExtractorFake struct {
	text string
	err  error
}

func (f *textExtractorFake) Extract(_ context.Context, src domain.Source) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	if src.Kind == domain.SourceText {
		return strings.TrimSpace(src.Text), nil
	}
	return f.text, nil
}

type memBundleStore struct {
	mu      sync.Mutex
	bundles map[string]*domain.Bundle
	saves   int
	saveErr error
}

func newMemBundleStore() *memBundleStore {
	return &memBundleStore{bundles: make(map[string]*domain.Bundle)}
}

func (s *memBundleStore) Save(_ context.Context, b *domain.Bundle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.saves++
	b.Meta.Version = fmt.Sprintf("v%d", s.saves)
	s.bundles[b.Meta.DocID] = b
	return nil
}

func (s *memBundleStore) Load(_ context.Context, docID string) (*domain.Bundle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bundles[docID]
	if !ok {
		return nil, domain.WrapError(domain.ErrDocumentNotFound, "load bundle", fmt.Errorf("doc %s", docID))
	}
	return b, nil
}

type catalogCall struct {
	status domain.DocumentStatus
	docID  string
	errMsg string
}

type catalogFake struct {
	calls    []catalogCall
	readyErr error
	startErr error
}

func (f *catalogFake) MarkQueued(_ context.Context, docID string) error {
	f.calls = append(f.calls, catalogCall{status: domain.StatusQueued, docID: docID})
	return nil
}

func (f *catalogFake) MarkIngesting(_ context.Context, docID string) error {
	f.calls = append(f.calls, catalogCall{status: domain.StatusIngesting, docID: docID})
	return f.startErr
}

func (f *catalogFake) MarkReady(_ context.Context, meta domain.BundleMeta) error {
	f.calls = append(f.calls, catalogCall{status: domain.StatusReady, docID: meta.DocID})
	return f.readyErr
}

func (f *catalogFake) MarkFailed(_ context.Context, docID string, errMessage string) error {
	f.calls = append(f.calls, catalogCall{status: domain.StatusFailed, docID: docID, errMsg: errMessage})
	return nil
}

func (f *catalogFake) statuses() []domain.DocumentStatus {
	out := make([]domain.DocumentStatus, len(f.calls))
	for i, c := range f.calls {
		out[i] = c.status
	}
	return out
}

type generatorFake struct {
	question  string
	contexts  []string
	parts     []string
	partials  []string
	sentences int
	err       error
}

func (f *generatorFake) GenerateAnswer(_ context.Context, question string, contexts []string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.question = question
	f.contexts = contexts
	return "answer: " + contexts[0], nil
}

func (f *generatorFake) SummarizePart(_ context.Context, text string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.parts = append(f.parts, text)
	return fmt.Sprintf("part %d", len(f.parts)), nil
}

func (f *generatorFake) CombineSummaries(_ context.Context, partials []string, sentences int) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.partials = partials
	f.sentences = sentences
	return strings.Join(partials, " + "), nil
}

type objectStorageFake struct {
	mu      sync.Mutex
	objects map[string]string
	deleted []string
	saveErr error
}

func newObjectStorageFake() *objectStorageFake {
	return &objectStorageFake{objects: make(map[string]string)}
}

func (f *objectStorageFake) Save(_ context.Context, key string, data io.Reader) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	raw, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = string(raw)
	return nil
}

func (f *objectStorageFake) Open(_ context.Context, key string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.objects[key]
	if !ok {
		return nil, domain.WrapError(domain.ErrObjectNotFound, "open", errors.New(key))
	}
	return io.NopCloser(strings.NewReader(v)), nil
}

func (f *objectStorageFake) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, key)
	f.deleted = append(f.deleted, key)
	return nil
}

type ingestQueueFake struct {
	published []domain.IngestRequest
	err       error
}

func (f *ingestQueueFake) PublishIngest(_ context.Context, req domain.IngestRequest) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, req)
	return nil
}

func (f *ingestQueueFake) SubscribeIngest(context.Context, func(context.Context, domain.IngestRequest) error) error {
	return errors.New("not implemented")
}
