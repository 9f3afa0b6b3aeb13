package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kirillkom/readmate-rag/internal/core/domain"
	"github.com/kirillkom/readmate-rag/internal/infrastructure/manifest"
)

type ingestOptions struct {
	docID     string
	path      string
	text      string
	unit      string
	window    int
	stride    int
	async     bool
	manifest  string
	keepGoing bool
}

func newIngestCommand(open Opener) *cobra.Command {
	var opts ingestOptions
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Chunk, embed and index a document",
		Long: `Builds the chunk list, BM25 index and dense index for one document and
replaces any previous bundle stored under the same doc id.

With --manifest, every document listed in the YAML file is ingested in order.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.manifest != "" {
				return runManifest(cmd, open, opts)
			}
			req, err := opts.request()
			if err != nil {
				return err
			}
			if opts.async {
				return runSubmit(cmd, open, req)
			}
			return withServices(cmd, open, func(ctx context.Context, s *Services) error {
				meta, err := s.Ingest.Ingest(ctx, req)
				if err != nil {
					return err
				}
				cmd.Printf("ingested %s: %d chunks, dim %d, version %s\n", meta.DocID, meta.ChunkCount, meta.EmbeddingDim, meta.Version)
				return nil
			})
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&opts.docID, "doc-id", "", "document id")
	flags.StringVar(&opts.path, "path", "", "file to ingest (.txt, .pdf, .xlsx, .html)")
	flags.StringVar(&opts.text, "text", "", "inline text to ingest instead of a file")
	flags.StringVar(&opts.unit, "unit", "paragraph", "chunk unit: paragraph|sentence")
	flags.IntVar(&opts.window, "window", 1, "units per chunk")
	flags.IntVar(&opts.stride, "stride", 1, "units to advance between chunks")
	flags.BoolVar(&opts.async, "async", false, "queue the job for a worker instead of ingesting now")
	flags.StringVar(&opts.manifest, "manifest", "", "YAML manifest listing documents to ingest")
	flags.BoolVar(&opts.keepGoing, "keep-going", false, "with --manifest, continue after a failed document")
	return cmd
}

func (o ingestOptions) request() (domain.IngestRequest, error) {
	unit, err := domain.ParseChunkUnit(o.unit)
	if err != nil {
		return domain.IngestRequest{}, err
	}
	var src domain.Source
	switch {
	case o.path != "" && o.text != "":
		return domain.IngestRequest{}, domain.Invalid("ingest", "--path and --text are mutually exclusive")
	case o.path != "":
		src = domain.PathSource(o.path)
	case o.text != "":
		src = domain.TextSource(o.text)
	default:
		return domain.IngestRequest{}, domain.Invalid("ingest", "one of --path, --text or --manifest is required")
	}
	req := domain.IngestRequest{DocID: o.docID, Source: src, Unit: unit, Window: o.window, Stride: o.stride}
	return req, req.Validate()
}

func runSubmit(cmd *cobra.Command, open Opener, req domain.IngestRequest) error {
	return withServices(cmd, open, func(ctx context.Context, s *Services) error {
		if s.Submitter == nil {
			return fmt.Errorf("async ingest: queue %w", errNotConfigured)
		}
		submitter, err := s.Submitter()
		if err != nil {
			return err
		}
		queued, err := submitter.Submit(ctx, req)
		if err != nil {
			return err
		}
		cmd.Printf("queued %s (%s)\n", queued.DocID, queued.Source.Kind)
		return nil
	})
}

func runManifest(cmd *cobra.Command, open Opener, opts ingestOptions) error {
	if opts.docID != "" || opts.path != "" || opts.text != "" {
		return domain.Invalid("ingest", "--manifest cannot be combined with --doc-id, --path or --text")
	}
	m, err := manifest.Load(opts.manifest)
	if err != nil {
		return err
	}
	reqs, err := m.Requests()
	if err != nil {
		return err
	}

	return withServices(cmd, open, func(ctx context.Context, s *Services) error {
		var failed []string
		var errs []error
		for _, req := range reqs {
			meta, err := s.Ingest.Ingest(ctx, req)
			if err != nil {
				cmd.PrintErrf("failed %s: %v\n", req.DocID, err)
				if !opts.keepGoing {
					return err
				}
				failed = append(failed, req.DocID)
				errs = append(errs, err)
				continue
			}
			cmd.Printf("ingested %s: %d chunks\n", meta.DocID, meta.ChunkCount)
		}
		if len(failed) > 0 {
			return fmt.Errorf("%d of %d documents failed (%s): %w", len(failed), len(reqs), strings.Join(failed, ", "), errors.Join(errs...))
		}
		return nil
	})
}
