package commands

import (
	"log/slog"
	"time"

	"esaj-crawler/internal/components/chrono"
	"esaj-crawler/internal/components/telemetry"
	"esaj-crawler/internal/config"
	"esaj-crawler/internal/crawl"
	"esaj-crawler/internal/store"

	"github.com/spf13/cobra"
)

var sweepFlags struct {
	start      int
	end        int
	prefix     string
	workers    int
	batchSize  int
	batchDelay time.Duration
	documents  bool
	resume     bool
	engine     string
	out        string
}

func init() {
	f := sweepCmd.Flags()
	f.IntVar(&sweepFlags.start, "start", 0, "First registration number of the sweep.")
	f.IntVar(&sweepFlags.end, "end", 0, "Last registration number of the sweep, inclusive.")
	f.StringVar(&sweepFlags.prefix, "prefix", "", "The state prefix of the registrations, SP by default.")
	f.IntVar(&sweepFlags.workers, "workers", 0, "Concurrent browser sessions.")
	f.IntVar(&sweepFlags.batchSize, "batch-size", 0, "Registrations per checkpointed batch.")
	f.DurationVar(&sweepFlags.batchDelay, "batch-delay", 0, "Pause between batches.")
	f.BoolVar(&sweepFlags.documents, "documents", false, "Also download the documents linked to every case.")
	f.BoolVar(&sweepFlags.resume, "resume", false, "Start after the last batch file already written.")
	f.StringVar(&sweepFlags.engine, "engine", "", "Render engine, rod or static.")
	f.StringVar(&sweepFlags.out, "out", "", "Directory for the batch files.")
	rootCmd.AddCommand(sweepCmd)
}

// applySweepFlags overrides the loaded config with the flags given on the command line.
func applySweepFlags(cmd *cobra.Command) error {
	f := cmd.Flags()
	if f.Changed("start") {
		cfg.Sweep.Start = sweepFlags.start
	}
	if f.Changed("end") {
		cfg.Sweep.End = sweepFlags.end
	}
	if f.Changed("prefix") {
		cfg.Sweep.Prefix = sweepFlags.prefix
	}
	if f.Changed("workers") {
		cfg.Sweep.Workers = sweepFlags.workers
	}
	if f.Changed("batch-size") {
		cfg.Sweep.BatchSize = sweepFlags.batchSize
	}
	if f.Changed("batch-delay") {
		cfg.Sweep.BatchDelay = config.Duration(sweepFlags.batchDelay)
	}
	if f.Changed("documents") {
		cfg.Sweep.Documents = sweepFlags.documents
	}
	if f.Changed("resume") {
		cfg.Sweep.Resume = sweepFlags.resume
	}
	if f.Changed("engine") {
		cfg.Render.Engine = sweepFlags.engine
	}
	if f.Changed("out") {
		cfg.Output.BatchDir = sweepFlags.out
	}
	return cfg.Validate()
}

var sweepCmd = &cobra.Command{
	Use:   "sweep [--start N] [--end N] [--documents]",
	Short: "Searches every registration in [start, end] and writes one batch file per batch.",
	RunE: func(cmd *cobra.Command, args []string) error {
		err := applySweepFlags(cmd)
		if err != nil {
			return err
		}
		ctx := cmd.Context()

		files := store.NewBatchFiles(cfg.Output.BatchDir)
		if cfg.Sweep.Resume {
			last, ok, err := files.LastCompletedIn(cfg.Sweep.Start, cfg.Sweep.End)
			if err != nil {
				return err
			}
			if ok {
				slog.Info("resuming after last batch", "last", last)
				cfg.Sweep.Start = last + 1
			}
			if cfg.Sweep.Start > cfg.Sweep.End {
				slog.Info("nothing left to sweep", "end", cfg.Sweep.End)
				return nil
			}
		}

		p, err := newPipeline(ctx, cfg, reporter, cfg.Sweep.Documents)
		if err != nil {
			return err
		}

		var cases store.CaseSink
		if cfg.Output.Database != "" {
			cases = store.NewSQLStore(cfg.Output.Database, reporter)
		}

		coordinator, err := crawl.NewCoordinator(crawl.Options{
			Start:      cfg.Sweep.Start,
			End:        cfg.Sweep.End,
			Prefix:     cfg.Sweep.Prefix,
			Workers:    cfg.Sweep.Workers,
			BatchSize:  cfg.Sweep.BatchSize,
			BatchDelay: cfg.Sweep.BatchDelay.Std(),
		}, crawl.Deps{
			Sessions:        sessionFactory(cfg),
			Paginator:       p.paginator,
			Checkpoint:      store.NewCheckpoint(files, cases, reporter),
			Documents:       p.stage,
			DocumentsOutput: p.documentsOutput(),
			Clock:           chrono.StandardImpl{},
			Tel:             reporter,
		})
		if err != nil {
			return err
		}

		telemetry.InstrumentPerfStats(ctx, reporter, time.Minute)

		slog.Info(
			"sweeping",
			"start", cfg.Sweep.Start,
			"end", cfg.Sweep.End,
			"workers", cfg.Sweep.Workers,
			"batch_size", cfg.Sweep.BatchSize,
			"engine", cfg.Render.Engine,
		)
		summary, err := coordinator.Run(ctx)
		printSummary(summary, cfg.Sweep.Documents)
		return err
	},
}
