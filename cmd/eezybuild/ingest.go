package main

import (
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/eezybuild/eezybuild/pkg/ingest"
)

var stageLabels = map[string]string{
	ingest.StageCrawl:   "pages crawled",
	ingest.StageProcess: "chunks produced",
	ingest.StageEmbed:   "chunks embedded",
	ingest.StageDelete:  "previous vectors cleared",
	ingest.StageUpsert:  "vectors stored",
}

func newIngestCmd(a *app) *cobra.Command {
	var sourceURL string

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Crawl the regulations website and refresh the vector index",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			if sourceURL == "" {
				sourceURL = a.cfg.Scraper.SourceURL
			}
			color.Blue("\nRefreshing regulations index from %s\n", sourceURL)

			var crawled atomic.Int32
			crawlBar := getSpinner("Crawling regulations website...")
			stageBar := getProgressBar(len(stageLabels), "Refreshing index")

			onPage := func(url string) {
				n := crawled.Add(1)
				crawlBar.Describe(color.CyanString("Crawling regulations website... (%d pages)", n))
				_ = crawlBar.Add(1)
			}
			onProgress := func(p ingest.Progress) {
				if p.Stage == ingest.StageCrawl {
					_ = crawlBar.Finish()
					fmt.Println()
				}
				stageBar.Describe(color.BlueString("%d %s", p.Count, stageLabels[p.Stage]))
				_ = stageBar.Add(1)
			}

			job, err := a.ingestJob(ctx, onPage, onProgress)
			if err != nil {
				return err
			}

			result, err := job.RefreshRegulationsIndex(ctx, sourceURL)
			_ = stageBar.Finish()
			fmt.Println()
			if err != nil {
				return fmt.Errorf("ingestion failed: %w", err)
			}

			color.Green("✓ Crawled %d pages", result.PagesCrawled)
			color.Green("✓ Processed into %d chunks", result.ChunksProcessed)
			color.Green("✓ Stored %d vectors", result.VectorsCreated)
			return nil
		},
	}
	cmd.Flags().StringVar(&sourceURL, "source-url", "", "Regulations website to crawl (default from config)")
	return cmd
}
