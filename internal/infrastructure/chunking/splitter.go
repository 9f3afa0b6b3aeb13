package chunking

import (
	"errors"
	"regexp"
	"strings"
	"unicode"

	"github.com/kirillkom/readmate-rag/internal/core/domain"
	"github.com/kirillkom/readmate-rag/internal/core/ports"
)

var paragraphBreak = regexp.MustCompile(`\n{2,}`)

type Splitter struct {
	Unit   domain.ChunkUnit
	Window int
	Stride int
}

func NewSplitter(unit domain.ChunkUnit, window, stride int) (*Splitter, error) {
	if unit != domain.UnitParagraph && unit != domain.UnitSentence {
		return nil, domain.Invalid("new splitter", "unknown unit %q", unit)
	}
	if window < 1 || stride < 1 {
		return nil, domain.Invalid("new splitter", "window and stride must be >= 1, got %d/%d", window, stride)
	}
	return &Splitter{Unit: unit, Window: window, Stride: stride}, nil
}

// Factory adapts NewSplitter to ports.ChunkerFactory.
func Factory(unit domain.ChunkUnit, window, stride int) (ports.Chunker, error) {
	return NewSplitter(unit, window, stride)
}

func (s *Splitter) Split(text string) ([]string, error) {
	var items []string
	if s.Unit == domain.UnitSentence {
		items = SplitSentences(text)
	} else {
		items = SplitParagraphs(text)
	}
	chunks, err := Window(items, s.Window, s.Stride)
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return nil, domain.WrapError(domain.ErrIngestFailed, "split text", errors.New("no chunks produced"))
	}
	return chunks, nil
}

func SplitParagraphs(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	return trimNonEmpty(paragraphBreak.Split(text, -1))
}

// SplitSentences breaks after terminal punctuation that is followed by
// whitespace, and on every newline run.
func SplitSentences(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = strings.NewReplacer("\u3000", " ", "\u00a0", " ").Replace(text)

	runes := []rune(text)
	var parts []string
	start := 0
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case r == '\n':
			parts = append(parts, string(runes[start:i]))
			for i+1 < len(runes) && runes[i+1] == '\n' {
				i++
			}
			start = i + 1
		case isSentenceEnd(r) && i+1 < len(runes) && unicode.IsSpace(runes[i+1]):
			parts = append(parts, string(runes[start:i+1]))
			for i+1 < len(runes) && unicode.IsSpace(runes[i+1]) {
				i++
			}
			start = i + 1
		}
	}
	if start < len(runes) {
		parts = append(parts, string(runes[start:]))
	}
	return trimNonEmpty(parts)
}

// Window joins consecutive items with a space. The last window may be shorter.
func Window(items []string, window, stride int) ([]string, error) {
	if window < 1 || stride < 1 {
		return nil, domain.Invalid("window chunks", "window and stride must be >= 1, got %d/%d", window, stride)
	}
	if window == 1 {
		out := make([]string, len(items))
		copy(out, items)
		return out, nil
	}

	out := make([]string, 0, len(items)/stride+1)
	for i := 0; i < len(items); i += stride {
		j := min(len(items), i+window)
		out = append(out, strings.Join(items[i:j], " "))
		if j == len(items) {
			break
		}
	}
	return out, nil
}

func isSentenceEnd(r rune) bool {
	switch r {
	case '.', '!', '?', '？', '！', '。', '…':
		return true
	default:
		return false
	}
}

func trimNonEmpty(parts []string) []string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
