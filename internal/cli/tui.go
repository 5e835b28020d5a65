package cli

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"docrag/internal/tui"
)

var tuiCmd = &cobra.Command{
	Use:   "tui [path...]",
	Short: "Browse retrieval results interactively, ingesting paths first if given",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, app *App) error {
			if len(args) > 0 {
				report, err := app.Service.IngestFiles(ctx, args)
				if err != nil {
					return fmt.Errorf("ingest failed: %w", err)
				}
				if errs := report.Errors(); len(errs) > 0 {
					fmt.Printf("%d documents failed to ingest; see log\n", len(errs))
				}
			}
			titles, err := app.Service.Titles(ctx)
			if err != nil {
				return err
			}
			n, err := app.Service.Count(ctx)
			if err != nil {
				return err
			}
			summary := fmt.Sprintf("%d documents, %d chunks indexed", len(titles), n)
			m := tui.New(app.Service, summary, app.Config.Retriever.TopK)
			_, err = tea.NewProgram(m, tea.WithContext(ctx), tea.WithAltScreen()).Run()
			return err
		})
	},
}

func init() {
	rootCmd.AddCommand(tuiCmd)
}
