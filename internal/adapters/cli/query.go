package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kirillkom/readmate-rag/internal/core/domain"
)

type queryOptions struct {
	docID string
	query string
	k     int
	alpha float64
	json  bool
}

func (o *queryOptions) bind(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringVar(&o.docID, "doc-id", "", "document id")
	flags.StringVarP(&o.query, "query", "q", "", "query text")
	flags.IntVarP(&o.k, "k", "k", 0, "number of chunks to return (default from RETRIEVE_TOP_K)")
	flags.Float64Var(&o.alpha, "alpha", 0, "BM25 weight in [0,1] (default from RETRIEVE_ALPHA)")
}

// request validates the flags before any backend is opened. Flags that were
// not given are checked against the built-in defaults.
func (o queryOptions) request(cmd *cobra.Command) (domain.RetrieveRequest, error) {
	req := domain.RetrieveRequest{DocID: o.docID, Query: o.query, K: o.k, Alpha: o.alpha}
	if !cmd.Flags().Changed("alpha") {
		req.Alpha = domain.DefaultAlpha
	}
	return req, req.Validate()
}

// resolve fills k and alpha from configuration unless given on the command line.
func (o queryOptions) resolve(cmd *cobra.Command, s *Services, req domain.RetrieveRequest) domain.RetrieveRequest {
	if !cmd.Flags().Changed("k") {
		req.K = s.DefaultTopK
	}
	if !cmd.Flags().Changed("alpha") {
		req.Alpha = s.DefaultAlpha
	}
	return req
}

func newRetrieveCommand(open Opener) *cobra.Command {
	var opts queryOptions
	cmd := &cobra.Command{
		Use:   "retrieve",
		Short: "Rank the chunks of a document against a query",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			req, err := opts.request(cmd)
			if err != nil {
				return err
			}
			return withServices(cmd, open, func(ctx context.Context, s *Services) error {
				result, err := s.Retrieve.Retrieve(ctx, opts.resolve(cmd, s, req))
				if err != nil {
					return err
				}
				if opts.json {
					return printJSON(cmd, result)
				}
				printResult(cmd, result)
				return nil
			})
		},
	}
	opts.bind(cmd)
	cmd.Flags().BoolVar(&opts.json, "json", false, "output the result as JSON")
	return cmd
}

func newAskCommand(open Opener) *cobra.Command {
	var opts queryOptions
	cmd := &cobra.Command{
		Use:   "ask",
		Short: "Answer a question from the retrieved chunks of a document",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			req, err := opts.request(cmd)
			if err != nil {
				return err
			}
			return withServices(cmd, open, func(ctx context.Context, s *Services) error {
				req = opts.resolve(cmd, s, req)
				answer, err := s.Query.Ask(ctx, domain.AskRequest{
					DocID: req.DocID, Question: req.Query, K: req.K, Alpha: req.Alpha,
				})
				if err != nil {
					return err
				}
				cmd.Println(answer.Text)
				cmd.Println()
				cmd.Println("Sources:")
				printResult(cmd, answer.Sources)
				return nil
			})
		},
	}
	opts.bind(cmd)
	return cmd
}

func newSummarizeCommand(open Opener) *cobra.Command {
	var docID string
	var sentences int
	cmd := &cobra.Command{
		Use:   "summarize",
		Short: "Summarize a whole document",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := domain.ValidateSummarize(docID, sentences); err != nil {
				return err
			}
			return withServices(cmd, open, func(ctx context.Context, s *Services) error {
				summary, err := s.Query.Summarize(ctx, docID, sentences)
				if err != nil {
					return err
				}
				cmd.Println(summary)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&docID, "doc-id", "", "document id")
	cmd.Flags().IntVar(&sentences, "sentences", 7, "target summary length in sentences")
	return cmd
}

func printResult(cmd *cobra.Command, result *domain.RetrievalResult) {
	if result.Len() == 0 {
		cmd.Println("No chunks.")
		return
	}
	for i := range result.ChunkIDs {
		cmd.Printf("  [%d] chunk %d (%.4f)\n", i+1, result.ChunkIDs[i], result.Scores[i])
		cmd.Printf("      %s\n", result.Texts[i])
	}
}

func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	cmd.Println(string(data))
	return nil
}
