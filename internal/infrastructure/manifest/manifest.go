// Package manifest reads batch ingest manifests.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kirillkom/readmate-rag/internal/core/domain"
)

// Defaults apply to every entry that leaves the field empty.
type Defaults struct {
	Unit   string `yaml:"unit"`
	Window int    `yaml:"window"`
	Stride int    `yaml:"stride"`
}

type Entry struct {
	DocID  string `yaml:"doc_id"`
	Path   string `yaml:"path"`
	Unit   string `yaml:"unit"`
	Window int    `yaml:"window"`
	Stride int    `yaml:"stride"`
}

type Manifest struct {
	Defaults Defaults `yaml:"defaults"`
	Entries  []Entry  `yaml:"documents"`

	// dir resolves relative entry paths against the manifest location.
	dir string
}

// Load reads a manifest file. Relative document paths are taken relative to
// the directory holding the manifest.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "read manifest", err)
	}
	m, err := Parse(data)
	if err != nil {
		return nil, err
	}
	m.dir = filepath.Dir(path)
	return m, nil
}

func Parse(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "parse manifest", err)
	}
	if len(m.Entries) == 0 {
		return nil, domain.Invalid("parse manifest", "no documents listed")
	}
	seen := make(map[string]int, len(m.Entries))
	for i, e := range m.Entries {
		if prev, ok := seen[e.DocID]; ok {
			return nil, domain.Invalid("parse manifest", "doc_id %q listed twice (entries %d and %d)", e.DocID, prev+1, i+1)
		}
		seen[e.DocID] = i
	}
	return &m, nil
}

// Requests expands the manifest into validated ingest requests.
func (m *Manifest) Requests() ([]domain.IngestRequest, error) {
	out := make([]domain.IngestRequest, 0, len(m.Entries))
	for i, e := range m.Entries {
		req, err := m.request(e)
		if err != nil {
			return nil, fmt.Errorf("manifest entry %d: %w", i+1, err)
		}
		out = append(out, req)
	}
	return out, nil
}

func (m *Manifest) request(e Entry) (domain.IngestRequest, error) {
	unit, err := domain.ParseChunkUnit(firstNonEmpty(e.Unit, m.Defaults.Unit))
	if err != nil {
		return domain.IngestRequest{}, err
	}
	path := strings.TrimSpace(e.Path)
	if path != "" && !filepath.IsAbs(path) && m.dir != "" {
		path = filepath.Join(m.dir, path)
	}
	req := domain.IngestRequest{
		DocID:  e.DocID,
		Source: domain.PathSource(path),
		Unit:   unit,
		Window: firstSet(e.Window, m.Defaults.Window, 1),
		Stride: firstSet(e.Stride, m.Defaults.Stride, 1),
	}
	if err := req.Validate(); err != nil {
		return domain.IngestRequest{}, err
	}
	return req, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// firstSet treats zero as absent. Negative values are kept so that validation
// rejects them.
func firstSet(values ...int) int {
	for _, v := range values {
		if v != 0 {
			return v
		}
	}
	return 0
}
