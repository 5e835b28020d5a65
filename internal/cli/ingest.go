package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <path|glob|dir>...",
	Short: "Extract, chunk, embed and index documents",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, app *App) error {
			report, err := app.Service.IngestFiles(ctx, args)
			for _, d := range report.Documents {
				if d.Err != nil {
					fmt.Fprintf(os.Stdout, "%s %s: %v\n", color.RedString("FAIL"), d.Path, d.Err)
					continue
				}
				status := color.GreenString("OK  ")
				if d.Failed > 0 {
					status = color.YellowString("PART")
				}
				fmt.Fprintf(os.Stdout, "%s %s: %d chunks, %d embedded, %d failed\n", status, d.Title, d.Chunks, d.Embedded, d.Failed)
			}
			chunks, embedded, failed := report.Totals()
			fmt.Fprintf(os.Stdout, "\n%d documents (%d errors), %d chunks, %d embedded, %d failed\n",
				len(report.Documents), len(report.Errors()), chunks, embedded, failed)
			if failed > 0 {
				fmt.Fprintln(os.Stdout, "run `docrag retry` to re-embed failed chunks")
			}
			return err
		})
	},
}

var retryCmd = &cobra.Command{
	Use:   "retry",
	Short: "Re-embed chunks that failed during ingestion",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, app *App) error {
			r, err := app.Service.RetryFailed(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(os.Stdout, "retried %d chunks: %s recovered, %s still failing\n",
				r.Retried, color.GreenString("%d", r.Recovered), color.RedString("%d", r.Remaining))
			return nil
		})
	},
}

var reindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Rebuild the configured index from stored embeddings",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, app *App) error {
			n, err := app.Service.RebuildIndex(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(os.Stdout, "indexed %d entries\n", n)
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(ingestCmd, retryCmd, reindexCmd)
}
