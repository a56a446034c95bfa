package commands

import (
	"fmt"
	"log/slog"

	"esaj-crawler/internal/components/chrono"
	"esaj-crawler/internal/crawl"
	"esaj-crawler/internal/store"

	"github.com/spf13/cobra"
)

var documentsFlags struct {
	workers int
	dir     string
}

func init() {
	documentsCmd.Flags().IntVar(&documentsFlags.workers, "workers", 0, "Concurrent browser sessions.")
	documentsCmd.Flags().StringVar(&documentsFlags.dir, "dir", "", "Directory holding the batch files to read.")
	rootCmd.AddCommand(documentsCmd)
}

var documentsCmd = &cobra.Command{
	Use:   "documents [--dir <batch files>]",
	Short: "Downloads the documents of every case listed in the batch files of a previous sweep.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Flags().Changed("workers") {
			cfg.Sweep.Workers = documentsFlags.workers
		}
		if cmd.Flags().Changed("dir") {
			cfg.Output.BatchDir = documentsFlags.dir
		}
		err := cfg.Validate()
		if err != nil {
			return err
		}
		ctx := cmd.Context()

		p, err := newPipeline(ctx, cfg, reporter, true)
		if err != nil {
			return err
		}
		coordinator, err := crawl.NewCoordinator(crawl.Options{
			Workers:   cfg.Sweep.Workers,
			BatchSize: cfg.Sweep.BatchSize,
		}, crawl.Deps{
			Sessions:        sessionFactory(cfg),
			Paginator:       p.paginator,
			Documents:       p.stage,
			DocumentsOutput: p.documentsOutput(),
			Clock:           chrono.StandardImpl{},
			Tel:             reporter,
		})
		if err != nil {
			return err
		}

		files := store.NewBatchFiles(cfg.Output.BatchDir)
		slog.Info("downloading documents", "batch_dir", files.Dir(), "output", p.documentsOutput())
		summary, err := coordinator.RunDocuments(ctx, files)
		printSummary(summary, true)
		if err != nil {
			return fmt.Errorf("documents pass: %w", err)
		}
		return nil
	},
}
