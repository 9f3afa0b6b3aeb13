// Package cli is the readmate command line: the only entry point to ingest,
// retrieval and generation.
package cli

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/kirillkom/readmate-rag/internal/core/domain"
	"github.com/kirillkom/readmate-rag/internal/core/ports"
)

// Submitter queues ingest work for a background worker.
type Submitter interface {
	Submit(ctx context.Context, req domain.IngestRequest) (*domain.IngestRequest, error)
}

// Services is what the commands run against. Optional parts are nil or
// return an error when their backend is not configured.
type Services struct {
	Ingest   ports.DocumentIngestor
	Retrieve ports.HybridRetriever
	Query    ports.DocumentQueryService
	Status   ports.DocumentReader

	Submitter func() (Submitter, error)
	RunWorker func(ctx context.Context) error

	DefaultTopK  int
	DefaultAlpha float64

	Close func()
}

// Opener builds services on demand so that --help never touches a backend.
type Opener func(ctx context.Context) (*Services, error)

var errNotConfigured = errors.New("not configured")

func NewRootCommand(open Opener) *cobra.Command {
	root := &cobra.Command{
		Use:           "readmate",
		Short:         "Hybrid BM25 and dense retrieval over ingested documents",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		newIngestCommand(open),
		newRetrieveCommand(open),
		newAskCommand(open),
		newSummarizeCommand(open),
		newStatusCommand(open),
		newWorkerCommand(open),
	)
	return root
}

// withServices opens services for one command run and closes them afterwards.
func withServices(cmd *cobra.Command, open Opener, run func(ctx context.Context, s *Services) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	s, err := open(ctx)
	if err != nil {
		return err
	}
	if s.Close != nil {
		defer s.Close()
	}
	return run(ctx, s)
}
