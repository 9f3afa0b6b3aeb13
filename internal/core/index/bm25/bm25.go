// Package bm25 holds the lexical side of a document bundle: a tokenizer and
// an Okapi BM25 index over the chunks of a single document.
package bm25

import (
	"encoding/json"
	"fmt"
	"math"
)

const (
	DefaultK1 = 1.5
	DefaultB  = 0.75

	formatVersion = 1
)

// Index is immutable after Build. It is safe for concurrent Score calls.
type Index struct {
	k1        float64
	b         float64
	termFreqs []map[string]int
	docLens   []int
	docFreqs  map[string]int
	avgDL     float64
}

// Build indexes pre-tokenized chunks. Chunk i keeps id i.
func Build(tokenized [][]string) *Index {
	idx := &Index{
		k1:        DefaultK1,
		b:         DefaultB,
		termFreqs: make([]map[string]int, len(tokenized)),
		docLens:   make([]int, len(tokenized)),
	}
	for i, tokens := range tokenized {
		tf := make(map[string]int, len(tokens))
		for _, t := range tokens {
			tf[t]++
		}
		idx.termFreqs[i] = tf
		idx.docLens[i] = len(tokens)
	}
	idx.deriveStats()
	return idx
}

// BuildFromTexts tokenizes each chunk with Tokenize and builds the index.
func BuildFromTexts(chunks []string) *Index {
	tokenized := make([][]string, len(chunks))
	for i, c := range chunks {
		tokenized[i] = Tokenize(c)
	}
	return Build(tokenized)
}

// deriveStats recomputes document frequencies and the average length from
// the stored per-chunk data, so a decoded index scores exactly like the
// index it was encoded from.
func (idx *Index) deriveStats() {
	idx.docFreqs = make(map[string]int)
	total := 0
	for i, tf := range idx.termFreqs {
		for term := range tf {
			idx.docFreqs[term]++
		}
		total += idx.docLens[i]
	}
	idx.avgDL = 0
	if len(idx.docLens) > 0 {
		idx.avgDL = float64(total) / float64(len(idx.docLens))
	}
}

func (idx *Index) DocCount() int {
	return len(idx.docLens)
}

func (idx *Index) VocabularySize() int {
	return len(idx.docFreqs)
}

// IDF uses the non-negative Lucene variant: ln(1 + (N-df+0.5)/(df+0.5)).
func (idx *Index) IDF(term string) float64 {
	df := idx.docFreqs[term]
	if df == 0 {
		return 0
	}
	n := float64(len(idx.docLens))
	return math.Log(1 + (n-float64(df)+0.5)/(float64(df)+0.5))
}

// Score returns one BM25 score per chunk. Repeated query tokens contribute
// once per occurrence.
func (idx *Index) Score(queryTokens []string) []float64 {
	scores := make([]float64, len(idx.docLens))
	if idx.avgDL == 0 {
		return scores
	}
	for _, term := range queryTokens {
		idf := idx.IDF(term)
		if idf == 0 {
			continue
		}
		for i, tfs := range idx.termFreqs {
			tf := float64(tfs[term])
			if tf == 0 {
				continue
			}
			norm := 1 - idx.b + idx.b*float64(idx.docLens[i])/idx.avgDL
			scores[i] += idf * (tf * (idx.k1 + 1)) / (tf + idx.k1*norm)
		}
	}
	return scores
}

type encodedIndex struct {
	Version   int              `json:"version"`
	K1        float64          `json:"k1"`
	B         float64          `json:"b"`
	TermFreqs []map[string]int `json:"term_freqs"`
	DocLens   []int            `json:"doc_lens"`
}

func (idx *Index) MarshalBinary() ([]byte, error) {
	return json.Marshal(encodedIndex{
		Version:   formatVersion,
		K1:        idx.k1,
		B:         idx.b,
		TermFreqs: idx.termFreqs,
		DocLens:   idx.docLens,
	})
}

func (idx *Index) UnmarshalBinary(data []byte) error {
	var enc encodedIndex
	if err := json.Unmarshal(data, &enc); err != nil {
		return fmt.Errorf("decode bm25 index: %w", err)
	}
	if enc.Version != formatVersion {
		return fmt.Errorf("unsupported bm25 format version %d", enc.Version)
	}
	if len(enc.TermFreqs) != len(enc.DocLens) {
		return fmt.Errorf("bm25 term_freqs/doc_lens mismatch: %d/%d", len(enc.TermFreqs), len(enc.DocLens))
	}
	for i, tf := range enc.TermFreqs {
		if tf == nil {
			enc.TermFreqs[i] = map[string]int{}
		}
	}
	idx.k1 = enc.K1
	idx.b = enc.B
	idx.termFreqs = enc.TermFreqs
	idx.docLens = enc.DocLens
	idx.deriveStats()
	return nil
}
