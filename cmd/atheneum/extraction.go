package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/atheneum-app/atheneum/internal/api"
	"github.com/atheneum-app/atheneum/internal/extraction"
	"github.com/atheneum-app/atheneum/internal/store"
)

var (
	extractionCreatedBy string
	extractionMaxTime   int
	extractionMaxBooks  int
)

var extractionCmd = &cobra.Command{
	Use:   "extraction",
	Short: "Manage bulk extraction jobs",
}

var extractionCreateCmd = &cobra.Command{
	Use:   "create <source-url>",
	Short: "Create a pending extraction job for a URL",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := setup()
		if err != nil {
			return err
		}
		defer svc.Close()

		job, err := svc.Extraction.Create(cmd.Context(), extraction.CreateOptions{
			SourceURL:      args[0],
			CreatedBy:      extractionCreatedBy,
			MaxTimeMinutes: extractionMaxTime,
			MaxBooks:       extractionMaxBooks,
		})
		if err != nil {
			return err
		}
		return api.Output(job)
	},
}

var extractionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all extraction jobs, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := setup()
		if err != nil {
			return err
		}
		defer svc.Close()

		jobs, err := svc.Extraction.List(cmd.Context())
		if err != nil {
			return err
		}
		return api.Output(jobs)
	},
}

var extractionStartCmd = &cobra.Command{
	Use:   "start <job-id>",
	Short: "Start a pending job",
	Args:  cobra.ExactArgs(1),
	RunE:  transitionRunE(func(svc *services) transitionFunc { return svc.Extraction.Start }),
}

var extractionPauseCmd = &cobra.Command{
	Use:   "pause <job-id>",
	Short: "Pause a running job",
	Args:  cobra.ExactArgs(1),
	RunE:  transitionRunE(func(svc *services) transitionFunc { return svc.Extraction.Pause }),
}

var extractionResumeCmd = &cobra.Command{
	Use:   "resume <job-id>",
	Short: "Resume a paused job",
	Args:  cobra.ExactArgs(1),
	RunE:  transitionRunE(func(svc *services) transitionFunc { return svc.Extraction.Resume }),
}

var extractionStopCmd = &cobra.Command{
	Use:   "stop <job-id>",
	Short: "Stop a running or paused job; stopped jobs cannot restart",
	Args:  cobra.ExactArgs(1),
	RunE:  transitionRunE(func(svc *services) transitionFunc { return svc.Extraction.Stop }),
}

var extractionDeleteCmd = &cobra.Command{
	Use:   "delete <job-id>",
	Short: "Delete a finished job and everything it owns",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := setup()
		if err != nil {
			return err
		}
		defer svc.Close()

		if err := svc.Extraction.Delete(cmd.Context(), args[0]); err != nil {
			return err
		}
		return api.Output(map[string]string{"deleted": args[0]})
	},
}

var extractionStatusCmd = &cobra.Command{
	Use:   "status <job-id>",
	Short: "Show a job's progress, logs, and extracted books",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := setup()
		if err != nil {
			return err
		}
		defer svc.Close()

		ctx := cmd.Context()
		progress, err := svc.Extraction.Progress(ctx, args[0])
		if err != nil {
			return err
		}
		logs, err := svc.Extraction.Logs(ctx, args[0])
		if err != nil {
			return err
		}
		books, err := svc.Extraction.ExtractedBooks(ctx, args[0])
		if err != nil {
			return err
		}
		return api.Output(map[string]any{
			"progress": progress,
			"logs":     logs,
			"books":    books,
		})
	},
}

// transitionFunc is the shared shape of the manager's lifecycle methods.
type transitionFunc = func(ctx context.Context, id string) (*store.ExtractionJob, error)

// transitionRunE builds a RunE for one lifecycle transition command.
func transitionRunE(pick func(*services) transitionFunc) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		svc, err := setup()
		if err != nil {
			return err
		}
		defer svc.Close()

		job, err := pick(svc)(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return api.Output(job)
	}
}

func init() {
	extractionCreateCmd.Flags().StringVar(&extractionCreatedBy, "by", "admin", "who is creating the job")
	extractionCreateCmd.Flags().IntVar(&extractionMaxTime, "max-time", 0, "time budget in minutes (default 60)")
	extractionCreateCmd.Flags().IntVar(&extractionMaxBooks, "max-books", 0, "book budget (default 500)")

	extractionCmd.AddCommand(extractionCreateCmd)
	extractionCmd.AddCommand(extractionListCmd)
	extractionCmd.AddCommand(extractionStartCmd)
	extractionCmd.AddCommand(extractionPauseCmd)
	extractionCmd.AddCommand(extractionResumeCmd)
	extractionCmd.AddCommand(extractionStopCmd)
	extractionCmd.AddCommand(extractionDeleteCmd)
	extractionCmd.AddCommand(extractionStatusCmd)
}
