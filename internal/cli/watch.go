package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"docrag/internal/watch"
)

var (
	watchDebounce time.Duration
	watchInitial  bool
)

var watchCmd = &cobra.Command{
	Use:   "watch <dir>",
	Short: "Ingest documents as they are added to or changed in a directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := args[0]
		return withApp(cmd, func(ctx context.Context, app *App) error {
			if watchInitial {
				if _, err := app.Service.IngestFiles(ctx, []string{dir}); err != nil && ctx.Err() == nil {
					fmt.Fprintf(os.Stderr, "initial ingest: %v\n", err)
				}
			}
			w, err := watch.New(dir, func(ctx context.Context, path string) {
				rep := app.Service.IngestFile(ctx, path)
				if rep.Err != nil {
					fmt.Fprintf(os.Stdout, "%s %s: %v\n", color.RedString("FAIL"), path, rep.Err)
					return
				}
				fmt.Fprintf(os.Stdout, "%s %s: %d chunks, %d failed\n", color.GreenString("OK  "), rep.Title, rep.Chunks, rep.Failed)
			}, watch.WithDebounce(watchDebounce))
			if err != nil {
				return err
			}
			defer w.Close()
			err = w.Run(ctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	},
}

func init() {
	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", watch.DefaultDebounce, "quiet period before a changed file is ingested")
	watchCmd.Flags().BoolVar(&watchInitial, "initial", false, "ingest existing documents before watching")
	rootCmd.AddCommand(watchCmd)
}
