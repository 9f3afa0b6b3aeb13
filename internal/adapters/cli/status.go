package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newStatusCommand(open Opener) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "status <doc-id>",
		Short: "Show the catalog record of a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withServices(cmd, open, func(ctx context.Context, s *Services) error {
				if s.Status == nil {
					return fmt.Errorf("status: catalog %w (set POSTGRES_DSN)", errNotConfigured)
				}
				rec, err := s.Status.GetByID(ctx, args[0])
				if err != nil {
					return err
				}
				if asJSON {
					return printJSON(cmd, rec)
				}
				cmd.Println(rec.String())
				if rec.Version != "" {
					cmd.Printf("version: %s\n", rec.Version)
				}
				if rec.Error != "" {
					cmd.Printf("error: %s\n", rec.Error)
				}
				cmd.Printf("updated: %s\n", rec.UpdatedAt.Format("2006-01-02 15:04:05 MST"))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "output the record as JSON")
	return cmd
}

func newWorkerCommand(open Opener) *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Consume queued ingest jobs until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withServices(cmd, open, func(ctx context.Context, s *Services) error {
				if s.RunWorker == nil {
					return fmt.Errorf("worker: queue %w", errNotConfigured)
				}
				return s.RunWorker(ctx)
			})
		},
	}
}
