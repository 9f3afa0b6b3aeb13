package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/kirillkom/readmate-rag/internal/adapters/cli"
	"github.com/kirillkom/readmate-rag/internal/bootstrap"
	"github.com/kirillkom/readmate-rag/internal/config"
	"github.com/kirillkom/readmate-rag/internal/observability/logging"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "readmate: %v\n", err)
		os.Exit(cli.ExitFailure)
	}
	cfg := config.Load()
	logger := logging.NewJSONLogger("readmate", cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := cli.NewRootCommand(func(ctx context.Context) (*cli.Services, error) {
		app, err := bootstrap.New(ctx, cfg, logger)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: %w", err)
		}
		return &cli.Services{
			Ingest:   app.IngestUC,
			Retrieve: app.RetrieveUC,
			Query:    app.QueryUC,
			Status:   app.Reader,
			Submitter: func() (cli.Submitter, error) {
				return app.Submitter()
			},
			RunWorker:    app.RunWorker,
			DefaultTopK:  cfg.RetrieveTopK,
			DefaultAlpha: cfg.RetrieveAlpha,
			Close:        app.Close,
		}, nil
	})
	root.SetOut(os.Stdout)

	err := root.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "readmate: %v\n", err)
		os.Exit(cli.ExitCode(err))
	}
}
