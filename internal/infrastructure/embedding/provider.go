// Package embedding turns a raw embedding backend into the process-wide
// unit-length embedder used by ingest and retrieval.
package embedding

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/kirillkom/readmate-rag/internal/core/ports"
)

// Backend is satisfied by the LLM adapters (ollama, openai).
type Backend interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

type Provider struct {
	once    sync.Once
	build   func() (Backend, error)
	backend Backend
	initErr error

	batchSize int

	mu  sync.Mutex
	dim int
}

// NewProvider defers build until the first embedding call and shares the
// resulting backend for the lifetime of the process.
func NewProvider(build func() (Backend, error), batchSize int) *Provider {
	if batchSize <= 0 {
		batchSize = 64
	}
	return &Provider{build: build, batchSize: batchSize}
}

var _ ports.Embedder = (*Provider)(nil)

func (p *Provider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	backend, err := p.get()
	if err != nil {
		return nil, err
	}

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += p.batchSize {
		end := min(start+p.batchSize, len(texts))
		batch, err := backend.Embed(ctx, texts[start:end])
		if err != nil {
			return nil, fmt.Errorf("embed batch %d-%d: %w", start, end, err)
		}
		if len(batch) != end-start {
			return nil, fmt.Errorf("embed batch %d-%d: got %d vectors", start, end, len(batch))
		}
		for _, vec := range batch {
			if err := p.checkDim(len(vec)); err != nil {
				return nil, err
			}
			out = append(out, Normalize(vec))
		}
	}
	return out, nil
}

func (p *Provider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := p.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// Dim reports the dimension observed so far, zero before the first call.
func (p *Provider) Dim() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dim
}

func (p *Provider) get() (Backend, error) {
	p.once.Do(func() {
		if p.build == nil {
			p.initErr = fmt.Errorf("embedding backend is not configured")
			return
		}
		p.backend, p.initErr = p.build()
	})
	return p.backend, p.initErr
}

func (p *Provider) checkDim(n int) error {
	if n == 0 {
		return fmt.Errorf("embedding backend returned an empty vector")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.dim == 0 {
		p.dim = n
		return nil
	}
	if p.dim != n {
		return fmt.Errorf("embedding dimension changed from %d to %d", p.dim, n)
	}
	return nil
}

// Normalize scales vec to unit L2 length. Zero vectors are returned as is.
func Normalize(vec []float32) []float32 {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	out := make([]float32, len(vec))
	if sum == 0 {
		copy(out, vec)
		return out
	}
	inv := 1 / math.Sqrt(sum)
	for i, v := range vec {
		out[i] = float32(float64(v) * inv)
	}
	return out
}
