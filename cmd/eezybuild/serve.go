package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/eezybuild/eezybuild/pkg/apierr"
	"github.com/eezybuild/eezybuild/server"
)

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the chat and ingestion endpoints",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			// Missing secrets leave the endpoint up; each request then
			// reports the configuration problem.
			var chat server.Answerer
			orchestrator, err := a.chatPipeline(ctx)
			switch {
			case apierr.Is(err, apierr.MissingConfiguration):
				a.log.Warn("chat pipeline disabled", "error", err)
			case err != nil:
				return err
			default:
				chat = orchestrator
			}

			var refresher server.Refresher
			job, err := a.ingestJob(ctx, nil, nil)
			switch {
			case apierr.Is(err, apierr.MissingConfiguration):
				a.log.Warn("ingestion disabled", "error", err)
			case err != nil:
				return err
			default:
				refresher = job
			}

			srv := server.New(server.Config{
				Port:           a.cfg.Server.Port,
				Mode:           a.cfg.Server.Mode,
				SourceURL:      a.cfg.Scraper.SourceURL,
				IngestInterval: a.cfg.Ingest.Interval,
			}, chat, refresher, a.log)
			return srv.Run(ctx)
		},
	}
}
