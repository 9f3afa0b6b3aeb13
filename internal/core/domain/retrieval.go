package domain

import (
	"math"
	"strings"
)

const (
	DefaultTopK  = 6
	DefaultAlpha = 0.5
)

// RetrieveRequest drives one hybrid retrieval. Alpha weights the lexical
// side: 1 is pure BM25, 0 is pure dense.
type RetrieveRequest struct {
	DocID string  `json:"doc_id"`
	Query string  `json:"query"`
	K     int     `json:"k"`
	Alpha float64 `json:"alpha"`
}

// Validate checks the request before any bundle is loaded. A zero K means
// DefaultTopK.
func (r RetrieveRequest) Validate() error {
	if err := ValidateDocID(r.DocID); err != nil {
		return err
	}
	if strings.TrimSpace(r.Query) == "" {
		return Invalid("validate retrieve request", "query is empty")
	}
	if r.K < 0 {
		return Invalid("validate retrieve request", "k must be >= 1, got %d", r.K)
	}
	if math.IsNaN(r.Alpha) || r.Alpha < 0 || r.Alpha > 1 {
		return Invalid("validate retrieve request", "alpha must be in [0,1], got %v", r.Alpha)
	}
	return nil
}

// TopK returns the effective number of chunks to return.
func (r RetrieveRequest) TopK() int {
	if r.K == 0 {
		return DefaultTopK
	}
	return r.K
}

// RetrievalResult holds parallel slices in rank order.
type RetrievalResult struct {
	DocID    string    `json:"doc_id"`
	ChunkIDs []int     `json:"chunk_ids"`
	Scores   []float64 `json:"scores"`
	Texts    []string  `json:"texts"`
}

func (r *RetrievalResult) Len() int {
	if r == nil {
		return 0
	}
	return len(r.ChunkIDs)
}

type AskRequest struct {
	DocID    string  `json:"doc_id"`
	Question string  `json:"question"`
	K        int     `json:"k"`
	Alpha    float64 `json:"alpha"`
}

// Retrieval is the retrieval half of an ask.
func (r AskRequest) Retrieval() RetrieveRequest {
	return RetrieveRequest{DocID: r.DocID, Query: r.Question, K: r.K, Alpha: r.Alpha}
}

// ValidateSummarize checks the arguments of a whole-document summary.
// Zero sentences means the default length.
func ValidateSummarize(docID string, sentences int) error {
	if err := ValidateDocID(docID); err != nil {
		return err
	}
	if sentences < 0 {
		return Invalid("summarize", "sentences must be >= 1, got %d", sentences)
	}
	return nil
}

type Answer struct {
	Text    string           `json:"text"`
	Sources *RetrievalResult `json:"sources"`
}
