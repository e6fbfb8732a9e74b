package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/atheneum-app/atheneum/internal/api"
	"github.com/atheneum-app/atheneum/internal/ingest"
)

var (
	ingestMaxBooks   int
	ingestBatchSize  int
	ingestMaxRuntime time.Duration
	ingestDryRun     bool
	ingestPage       int
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Run catalog ingestion",
}

var ingestRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one ingestion pass over all enabled sources",
	Long: `Run one ingestion pass over all enabled sources in priority order.

Each run picks up where the previous one stopped: per-source cursors are
persisted at the end of every fully completed page. Budget flags bound the
run; unfinished sources continue on the next invocation.

Examples:
  atheneum ingest run
  atheneum ingest run --max-books 500 --max-runtime 5m
  atheneum ingest run --dry-run
  atheneum ingest run --page 1     # re-drive every source from page 1`,
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := setup()
		if err != nil {
			return err
		}
		defer svc.Close()

		opts := ingest.Options{
			BatchSize:  ingestBatchSize,
			MaxBooks:   ingestMaxBooks,
			MaxRuntime: ingestMaxRuntime,
			DryRun:     ingestDryRun,
			Page:       ingestPage,
			Filter: ingest.FilterRules{
				EnableGenreFilter:  svc.Config.Ingestion.EnableGenreFilter,
				AllowedGenres:      svc.Config.Ingestion.AllowedGenres,
				EnableAuthorFilter: len(svc.Config.Ingestion.AllowedAuthors) > 0,
				AllowedAuthors:     svc.Config.Ingestion.AllowedAuthors,
			},
		}
		if opts.MaxBooks == 0 {
			opts.MaxBooks = svc.Config.Ingestion.MaxBooks
		}
		if opts.BatchSize == 0 {
			opts.BatchSize = svc.Config.Ingestion.BatchSize
		}
		if opts.MaxRuntime == 0 && svc.Config.Ingestion.MaxRuntimeSeconds > 0 {
			opts.MaxRuntime = time.Duration(svc.Config.Ingestion.MaxRuntimeSeconds) * time.Second
		}

		report, err := svc.Orchestrator.Run(cmd.Context(), opts)
		if err != nil {
			return err
		}
		return api.Output(report)
	},
}

var ingestStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show per-source book counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := setup()
		if err != nil {
			return err
		}
		defer svc.Close()

		stats, err := svc.Store.SourceStatistics(cmd.Context())
		if err != nil {
			return err
		}
		return api.Output(stats)
	},
}

var ingestFilterReportCmd = &cobra.Command{
	Use:   "filter-report <job-id>",
	Short: "Show the filter outcome breakdown for one ingestion run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := setup()
		if err != nil {
			return err
		}
		defer svc.Close()

		report, err := svc.Store.FilterStatsReport(cmd.Context(), args[0], 5)
		if err != nil {
			return err
		}
		return api.Output(report)
	},
}

func init() {
	ingestRunCmd.Flags().IntVar(&ingestMaxBooks, "max-books", 0, "maximum books to process this run (default from config)")
	ingestRunCmd.Flags().IntVar(&ingestBatchSize, "batch-size", 0, "override the per-source page size")
	ingestRunCmd.Flags().DurationVar(&ingestMaxRuntime, "max-runtime", 0, "wall-clock budget, e.g. 5m (default from config)")
	ingestRunCmd.Flags().BoolVar(&ingestDryRun, "dry-run", false, "count without writing books or moving cursors")
	ingestRunCmd.Flags().IntVar(&ingestPage, "page", 0, "restart every source from this page")

	ingestCmd.AddCommand(ingestRunCmd)
	ingestCmd.AddCommand(ingestStatsCmd)
	ingestCmd.AddCommand(ingestFilterReportCmd)
}
