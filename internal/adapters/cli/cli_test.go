package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/kirillkom/readmate-rag/internal/core/domain"
)

type ingestFake struct {
	reqs []domain.IngestRequest
	fail map[string]error
}

func (f *ingestFake) Ingest(_ context.Context, req domain.IngestRequest) (*domain.BundleMeta, error) {
	f.reqs = append(f.reqs, req)
	if err := f.fail[req.DocID]; err != nil {
		return nil, err
	}
	return &domain.BundleMeta{DocID: req.DocID, ChunkCount: 2, EmbeddingDim: 3, Version: "v1"}, nil
}

type retrieveFake struct {
	last domain.RetrieveRequest
	err  error
}

func (f *retrieveFake) Retrieve(_ context.Context, req domain.RetrieveRequest) (*domain.RetrievalResult, error) {
	f.last = req
	if f.err != nil {
		return nil, f.err
	}
	return &domain.RetrievalResult{DocID: req.DocID, ChunkIDs: []int{2, 0}, Scores: []float64{1, 0.25}, Texts: []string{"potion", "feast"}}, nil
}

type queryFake struct {
	ask       domain.AskRequest
	sentences int
}

func (f *queryFake) Ask(_ context.Context, req domain.AskRequest) (*domain.Answer, error) {
	f.ask = req
	return &domain.Answer{Text: "She drinks a potion.", Sources: &domain.RetrievalResult{ChunkIDs: []int{2}, Scores: []float64{1}, Texts: []string{"potion"}}}, nil
}

func (f *queryFake) Summarize(_ context.Context, _ string, sentences int) (string, error) {
	f.sentences = sentences
	return "A tragedy.", nil
}

type readerFake struct{}

func (readerFake) GetByID(_ context.Context, docID string) (*domain.DocumentRecord, error) {
	if docID != "romeo" {
		return nil, domain.WrapError(domain.ErrDocumentNotFound, "get document", errors.New(docID))
	}
	return &domain.DocumentRecord{DocID: "romeo", Status: domain.StatusReady, ChunkCount: 3, EmbeddingDim: 768, Version: "v1", UpdatedAt: time.Unix(0, 0).UTC()}, nil
}

type submitterFake struct {
	reqs []domain.IngestRequest
}

func (f *submitterFake) Submit(_ context.Context, req domain.IngestRequest) (*domain.IngestRequest, error) {
	f.reqs = append(f.reqs, req)
	return &req, nil
}

type harness struct {
	services  *Services
	ingest    *ingestFake
	retrieve  *retrieveFake
	query     *queryFake
	submitter *submitterFake
	opened    int
	closed    int
}

func newHarness() *harness {
	h := &harness{
		ingest:    &ingestFake{fail: map[string]error{}},
		retrieve:  &retrieveFake{},
		query:     &queryFake{},
		submitter: &submitterFake{},
	}
	h.services = &Services{
		Ingest:       h.ingest,
		Retrieve:     h.retrieve,
		Query:        h.query,
		Submitter:    func() (Submitter, error) { return h.submitter, nil },
		DefaultTopK:  6,
		DefaultAlpha: 0.5,
		Close:        func() { h.closed++ },
	}
	return h
}

func (h *harness) run(args ...string) (string, error) {
	root := NewRootCommand(func(context.Context) (*Services, error) {
		h.opened++
		return h.services, nil
	})
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestIngestInlineText(t *testing.T) {
	h := newHarness()
	out, err := h.run("ingest", "--doc-id", "romeo", "--text", "Romeo. Juliet.", "--unit", "sent", "--window", "2")
	if err != nil {
		t.Fatalf("ingest error = %v", err)
	}
	if !strings.Contains(out, "ingested romeo: 2 chunks") {
		t.Fatalf("unexpected output %q", out)
	}
	req := h.ingest.reqs[0]
	if req.Unit != domain.UnitSentence || req.Window != 2 || req.Stride != 1 || req.Source.Kind != domain.SourceText {
		t.Fatalf("unexpected request %+v", req)
	}
	if h.closed != 1 {
		t.Fatalf("services not closed")
	}
}

func TestIngestValidationHappensBeforeOpening(t *testing.T) {
	h := newHarness()
	_, err := h.run("ingest", "--doc-id", "romeo")
	if ExitCode(err) != ExitInvalid {
		t.Fatalf("expected invalid exit code, got %d (%v)", ExitCode(err), err)
	}
	_, err = h.run("ingest", "--doc-id", "romeo", "--text", "x", "--stride", "0")
	if ExitCode(err) != ExitInvalid {
		t.Fatalf("expected invalid exit code, got %d (%v)", ExitCode(err), err)
	}
	if h.opened != 0 {
		t.Fatalf("backends opened for an invalid request")
	}
}

func TestQueryValidationHappensBeforeOpening(t *testing.T) {
	h := newHarness()
	cases := [][]string{
		{"retrieve", "--doc-id", "romeo", "-q", "   "},
		{"retrieve", "--doc-id", "romeo", "-q", "potion", "--alpha", "2"},
		{"retrieve", "--doc-id", "romeo", "-q", "potion", "-k=-1"},
		{"ask", "--doc-id", "", "-q", "What does Juliet drink?"},
		{"summarize", "--doc-id", "romeo", "--sentences=-2"},
		{"summarize"},
	}
	for _, args := range cases {
		_, err := h.run(args...)
		if ExitCode(err) != ExitInvalid {
			t.Fatalf("%v: expected invalid exit code, got %d (%v)", args, ExitCode(err), err)
		}
	}
	if h.opened != 0 {
		t.Fatalf("backends opened %d times for invalid requests", h.opened)
	}
}

func TestIngestAsyncSubmits(t *testing.T) {
	h := newHarness()
	out, err := h.run("ingest", "--doc-id", "romeo", "--path", "/books/romeo.txt", "--async")
	if err != nil {
		t.Fatalf("ingest error = %v", err)
	}
	if len(h.submitter.reqs) != 1 || len(h.ingest.reqs) != 0 {
		t.Fatalf("expected a queued job only")
	}
	if !strings.Contains(out, "queued romeo") {
		t.Fatalf("unexpected output %q", out)
	}
}

func writeManifest(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "books.yaml")
	content := "documents:\n  - {doc_id: romeo, path: romeo.txt}\n  - {doc_id: broken, path: broken.txt}\n  - {doc_id: hamlet, path: hamlet.txt}\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
	return path
}

func TestIngestManifestStopsOnFirstFailure(t *testing.T) {
	h := newHarness()
	h.ingest.fail["broken"] = domain.WrapError(domain.ErrIngestFailed, "ingest", errors.New("no text"))

	_, err := h.run("ingest", "--manifest", writeManifest(t))
	if ExitCode(err) != ExitIngest {
		t.Fatalf("expected ingest exit code, got %v", err)
	}
	if len(h.ingest.reqs) != 2 {
		t.Fatalf("expected the batch to stop after the failure, ran %d", len(h.ingest.reqs))
	}
}

func TestIngestManifestKeepGoing(t *testing.T) {
	h := newHarness()
	h.ingest.fail["broken"] = domain.WrapError(domain.ErrIngestFailed, "ingest", errors.New("no text"))

	out, err := h.run("ingest", "--manifest", writeManifest(t), "--keep-going")
	if err == nil || !strings.Contains(err.Error(), "1 of 3 documents failed (broken)") {
		t.Fatalf("expected batch summary error, got %v", err)
	}
	if len(h.ingest.reqs) != 3 || !strings.Contains(out, "ingested hamlet") {
		t.Fatalf("expected every entry to run, output %q", out)
	}
}

func TestRetrieveUsesConfiguredDefaults(t *testing.T) {
	h := newHarness()
	if _, err := h.run("retrieve", "--doc-id", "romeo", "-q", "potion"); err != nil {
		t.Fatalf("retrieve error = %v", err)
	}
	if h.retrieve.last.K != 6 || h.retrieve.last.Alpha != 0.5 {
		t.Fatalf("defaults not applied: %+v", h.retrieve.last)
	}

	if _, err := h.run("retrieve", "--doc-id", "romeo", "-q", "potion", "-k", "2", "--alpha", "0"); err != nil {
		t.Fatalf("retrieve error = %v", err)
	}
	if h.retrieve.last.K != 2 || h.retrieve.last.Alpha != 0 {
		t.Fatalf("explicit flags not honored: %+v", h.retrieve.last)
	}
}

func TestRetrieveJSON(t *testing.T) {
	h := newHarness()
	out, err := h.run("retrieve", "--doc-id", "romeo", "-q", "potion", "--json")
	if err != nil {
		t.Fatalf("retrieve error = %v", err)
	}
	var result domain.RetrievalResult
	if err := json.Unmarshal([]byte(out), &result); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out)
	}
	if result.ChunkIDs[0] != 2 || result.Texts[0] != "potion" {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestRetrieveNotFoundExitCode(t *testing.T) {
	h := newHarness()
	h.retrieve.err = domain.WrapError(domain.ErrDocumentNotFound, "load bundle", errors.New("doc ghost"))
	_, err := h.run("retrieve", "--doc-id", "ghost", "-q", "x")
	if ExitCode(err) != ExitNotFound {
		t.Fatalf("expected not found exit code, got %v", err)
	}
}

func TestAskAndSummarize(t *testing.T) {
	h := newHarness()
	out, err := h.run("ask", "--doc-id", "romeo", "-q", "What does Juliet drink?")
	if err != nil {
		t.Fatalf("ask error = %v", err)
	}
	if !strings.Contains(out, "She drinks a potion.") || !strings.Contains(out, "chunk 2") {
		t.Fatalf("unexpected output %q", out)
	}
	if h.query.ask.Question != "What does Juliet drink?" || h.query.ask.K != 6 {
		t.Fatalf("unexpected ask request %+v", h.query.ask)
	}

	out, err = h.run("summarize", "--doc-id", "romeo")
	if err != nil {
		t.Fatalf("summarize error = %v", err)
	}
	if strings.TrimSpace(out) != "A tragedy." || h.query.sentences != 7 {
		t.Fatalf("unexpected summary %q (sentences %d)", out, h.query.sentences)
	}
}

func TestStatus(t *testing.T) {
	h := newHarness()
	if _, err := h.run("status", "romeo"); err == nil || !errors.Is(err, errNotConfigured) {
		t.Fatalf("expected not configured error, got %v", err)
	}

	h.services.Status = readerFake{}
	out, err := h.run("status", "romeo")
	if err != nil {
		t.Fatalf("status error = %v", err)
	}
	if !strings.Contains(out, "romeo status=ready chunks=3 dim=768") {
		t.Fatalf("unexpected output %q", out)
	}
	if _, err := h.run("status", "ghost"); ExitCode(err) != ExitNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestWorkerRequiresQueue(t *testing.T) {
	h := newHarness()
	if _, err := h.run("worker"); !errors.Is(err, errNotConfigured) {
		t.Fatalf("expected not configured error, got %v", err)
	}

	ran := false
	h.services.RunWorker = func(context.Context) error {
		ran = true
		return nil
	}
	if _, err := h.run("worker"); err != nil || !ran {
		t.Fatalf("worker did not run: %v", err)
	}
}

func TestHelpDoesNotOpenBackends(t *testing.T) {
	h := newHarness()
	out, err := h.run("--help")
	if err != nil {
		t.Fatalf("help error = %v", err)
	}
	for _, name := range []string{"ingest", "retrieve", "ask", "summarize", "status", "worker"} {
		if !strings.Contains(out, name) {
			t.Fatalf("help misses %s:\n%s", name, out)
		}
	}
	if h.opened != 0 {
		t.Fatalf("help opened backends")
	}
}

func TestExitCodeTaxonomy(t *testing.T) {
	cases := map[error]int{
		nil:                        ExitOK,
		domain.ErrInvalidInput:     ExitInvalid,
		domain.ErrDocumentNotFound: ExitNotFound,
		domain.ErrCorruptBundle:    ExitCorrupt,
		domain.ErrIngestFailed:     ExitIngest,
		domain.ErrTemporary:        ExitUnavailable,
		errors.New("boom"):         ExitFailure,
	}
	for err, want := range cases {
		if got := ExitCode(err); got != want {
			t.Fatalf("ExitCode(%v) = %d, want %d", err, got, want)
		}
	}
}
