package domain

import (
	"fmt"
	"strings"
	"time"
	"unicode"
)

type ChunkUnit string

const (
	UnitParagraph ChunkUnit = "paragraph"
	UnitSentence  ChunkUnit = "sentence"
)

// ParseChunkUnit accepts the canonical names and the short para/sent aliases.
func ParseChunkUnit(raw string) (ChunkUnit, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "paragraph", "para":
		return UnitParagraph, nil
	case "sentence", "sent":
		return UnitSentence, nil
	default:
		return "", Invalid("parse chunk unit", "unknown unit %q", raw)
	}
}

type SourceKind string

const (
	SourcePath  SourceKind = "path"
	SourceText  SourceKind = "text"
	SourceBytes SourceKind = "bytes"

	// SourceObject refers to an upload already placed in object storage.
	SourceObject SourceKind = "object"
)

// Source is the raw content handed to ingest. Exactly one payload field is
// meaningful, selected by Kind.
type Source struct {
	Kind SourceKind `json:"kind"`
	Path string     `json:"path,omitempty"`
	Text string     `json:"text,omitempty"`
	Data []byte     `json:"data,omitempty"`
	Key  string     `json:"key,omitempty"`
	// Name is the original filename for byte uploads; used to pick an extractor.
	Name string `json:"name,omitempty"`
}

func PathSource(path string) Source {
	return Source{Kind: SourcePath, Path: path, Name: path}
}

func TextSource(text string) Source {
	return Source{Kind: SourceText, Text: text}
}

func BytesSource(name string, data []byte) Source {
	return Source{Kind: SourceBytes, Name: name, Data: data}
}

func ObjectSource(key, name string) Source {
	return Source{Kind: SourceObject, Key: key, Name: name}
}

func (s Source) Validate() error {
	switch s.Kind {
	case SourcePath:
		if strings.TrimSpace(s.Path) == "" {
			return Invalid("validate source", "path is required")
		}
	case SourceObject:
		if strings.TrimSpace(s.Key) == "" {
			return Invalid("validate source", "object key is required")
		}
	case SourceText, SourceBytes:
	default:
		return Invalid("validate source", "unknown source kind %q", s.Kind)
	}
	return nil
}

// IngestRequest is the immutable ingest configuration for one document.
type IngestRequest struct {
	DocID  string    `json:"doc_id"`
	Source Source    `json:"source"`
	Unit   ChunkUnit `json:"unit"`
	Window int       `json:"window"`
	Stride int       `json:"stride"`
}

func (r IngestRequest) Validate() error {
	if err := ValidateDocID(r.DocID); err != nil {
		return err
	}
	if err := r.Source.Validate(); err != nil {
		return err
	}
	if r.Unit != UnitParagraph && r.Unit != UnitSentence {
		return Invalid("validate ingest request", "unknown unit %q", r.Unit)
	}
	if r.Window < 1 {
		return Invalid("validate ingest request", "window must be >= 1, got %d", r.Window)
	}
	if r.Stride < 1 {
		return Invalid("validate ingest request", "stride must be >= 1, got %d", r.Stride)
	}
	return nil
}

// ValidateDocID rejects ids that cannot be used as a single storage path segment.
func ValidateDocID(docID string) error {
	if strings.TrimSpace(docID) == "" {
		return Invalid("validate doc id", "doc_id is required")
	}
	if docID == "." || docID == ".." {
		return Invalid("validate doc id", "doc_id %q is reserved", docID)
	}
	for _, r := range docID {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_' || r == '.' {
			continue
		}
		return Invalid("validate doc id", "doc_id %q contains %q", docID, r)
	}
	return nil
}

// BundleMeta is persisted next to the chunks and both indexes.
type BundleMeta struct {
	DocID        string    `json:"doc_id"`
	EmbeddingDim int       `json:"embedding_dim"`
	ChunkCount   int       `json:"chunk_count"`
	Version      string    `json:"version"`
	Compression  string    `json:"compression"`
	Unit         ChunkUnit `json:"unit,omitempty"`
	Window       int       `json:"window,omitempty"`
	Stride       int       `json:"stride,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

type DocumentStatus string

const (
	StatusQueued    DocumentStatus = "queued"
	StatusIngesting DocumentStatus = "ingesting"
	StatusReady     DocumentStatus = "ready"
	StatusFailed    DocumentStatus = "failed"
)

// DocumentRecord is the catalog view of an ingested document.
type DocumentRecord struct {
	DocID        string         `json:"doc_id"`
	Status       DocumentStatus `json:"status"`
	ChunkCount   int            `json:"chunk_count"`
	EmbeddingDim int            `json:"embedding_dim"`
	Version      string         `json:"version,omitempty"`
	Error        string         `json:"error,omitempty"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

func (r DocumentRecord) String() string {
	return fmt.Sprintf("%s status=%s chunks=%d dim=%d", r.DocID, r.Status, r.ChunkCount, r.EmbeddingDim)
}
