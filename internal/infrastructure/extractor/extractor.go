// Package extractor resolves an ingest source into plain text.
package extractor

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/kirillkom/readmate-rag/internal/core/domain"
	"github.com/kirillkom/readmate-rag/internal/core/ports"
)

type format string

const (
	formatText format = "text"
	formatPDF  format = "pdf"
	formatXLSX format = "xlsx"
	formatHTML format = "html"
)

// Resolver implements ports.TextExtractor for every domain.Source kind.
type Resolver struct {
	// MaxBytes caps the size of any source. Zero means unlimited.
	MaxBytes int64

	objects ports.ObjectStorage
}

// NewResolver builds a resolver. objects may be nil when object sources are not used.
func NewResolver(objects ports.ObjectStorage) *Resolver {
	return &Resolver{objects: objects}
}

var _ ports.TextExtractor = (*Resolver)(nil)

func (r *Resolver) Extract(ctx context.Context, src domain.Source) (string, error) {
	if err := src.Validate(); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	var (
		data []byte
		name string
	)
	switch src.Kind {
	case domain.SourceText:
		if r.MaxBytes > 0 && int64(len(src.Text)) > r.MaxBytes {
			return "", fmt.Errorf("inline text exceeds %d bytes", r.MaxBytes)
		}
		return strings.TrimSpace(normalizeNewlines(strings.ToValidUTF8(src.Text, ""))), nil
	case domain.SourcePath:
		raw, err := r.readFile(src.Path)
		if err != nil {
			return "", err
		}
		data, name = raw, src.Path
	case domain.SourceBytes:
		if r.MaxBytes > 0 && int64(len(src.Data)) > r.MaxBytes {
			return "", fmt.Errorf("source %q exceeds %d bytes", src.Name, r.MaxBytes)
		}
		data, name = src.Data, src.Name
	case domain.SourceObject:
		raw, err := r.readObject(ctx, src.Key)
		if err != nil {
			return "", err
		}
		data, name = raw, src.Name
	default:
		return "", fmt.Errorf("unsupported source kind %q", src.Kind)
	}

	var (
		text string
		err  error
	)
	switch detectFormat(name) {
	case formatPDF:
		text, err = extractPDF(data)
	case formatXLSX:
		text, err = extractXLSX(data)
	case formatHTML:
		text, err = extractHTML(data)
	default:
		text = decodeText(data)
	}
	if err != nil {
		return "", fmt.Errorf("extract %s: %w", filepath.Base(name), err)
	}
	return strings.TrimSpace(normalizeNewlines(text)), nil
}

func (r *Resolver) readFile(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("open source file: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("source path %s is a directory", path)
	}
	if r.MaxBytes > 0 && info.Size() > r.MaxBytes {
		return nil, fmt.Errorf("source file %s exceeds %d bytes", path, r.MaxBytes)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read source file: %w", err)
	}
	return data, nil
}

func (r *Resolver) readObject(ctx context.Context, key string) ([]byte, error) {
	if r.objects == nil {
		return nil, fmt.Errorf("object source %s: no object storage configured", key)
	}
	rc, err := r.objects.Open(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("open source object: %w", err)
	}
	defer rc.Close()

	reader := io.Reader(rc)
	if r.MaxBytes > 0 {
		reader = io.LimitReader(rc, r.MaxBytes+1)
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read source object: %w", err)
	}
	if r.MaxBytes > 0 && int64(len(data)) > r.MaxBytes {
		return nil, fmt.Errorf("source object %s exceeds %d bytes", key, r.MaxBytes)
	}
	return data, nil
}

func detectFormat(name string) format {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf":
		return formatPDF
	case ".xlsx":
		return formatXLSX
	case ".html", ".htm":
		return formatHTML
	default:
		return formatText
	}
}

func normalizeNewlines(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n")
}
