package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"docrag/internal/domain"
)

var (
	queryTopK   int
	queryAnswer bool
	queryJSON   bool
	queryFull   bool
)

var queryCmd = &cobra.Command{
	Use:   "query <question>",
	Short: "Retrieve context for a question, optionally generating an answer",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		q := strings.Join(args, " ")
		return withApp(cmd, func(ctx context.Context, app *App) error {
			topK := queryTopK
			if topK == 0 {
				topK = app.Config.Retriever.TopK
			}
			if queryAnswer {
				ans, err := app.Service.Answer(ctx, q, topK)
				if err != nil {
					return err
				}
				if queryJSON {
					return writeJSON(ans)
				}
				printResults(ans.Context, queryFull)
				fmt.Fprintf(os.Stdout, "\n%s\n%s\n", color.New(color.Bold).Sprint("Answer:"), ans.Text)
				return nil
			}
			results, err := app.Service.Query(ctx, q, topK)
			if err != nil {
				return err
			}
			if queryJSON {
				return writeJSON(results)
			}
			if len(results) == 0 {
				fmt.Fprintln(os.Stdout, "no results")
				return nil
			}
			printResults(results, queryFull)
			return nil
		})
	},
}

const previewRunes = 300

func printResults(results []domain.RetrievalResult, full bool) {
	for i, r := range results {
		origin := color.CyanString("%-8s", r.Origin)
		if r.Origin == domain.OriginMetadata {
			origin = color.MagentaString("%-8s", r.Origin)
		}
		fmt.Fprintf(os.Stdout, "[%d] %s %s #%d  score=%.4f\n", i+1, origin, color.New(color.Bold).Sprint(r.Source), r.ChunkIndex, r.Score)
		content := r.Content
		if !full {
			if runes := []rune(content); len(runes) > previewRunes {
				content = string(runes[:previewRunes]) + "..."
			}
		}
		fmt.Fprintf(os.Stdout, "    %s\n\n", strings.ReplaceAll(content, "\n", "\n    "))
	}
}

func writeJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	queryCmd.Flags().IntVarP(&queryTopK, "top-k", "k", 0, "number of nearest chunks (default from config)")
	queryCmd.Flags().BoolVarP(&queryAnswer, "answer", "a", false, "generate an answer from the retrieved context")
	queryCmd.Flags().BoolVar(&queryJSON, "json", false, "print results as JSON")
	queryCmd.Flags().BoolVar(&queryFull, "full", false, "print full chunk content")
	rootCmd.AddCommand(queryCmd)
}
