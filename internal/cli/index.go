package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"docrag/internal/domain"
	"docrag/internal/index"
	"docrag/internal/logger"
	"docrag/internal/vectorstore/sqlite"
)

var mergeOut string

var mergeCmd = &cobra.Command{
	Use:   "merge <index-file>...",
	Short: "Merge partition indices (JSON snapshots or SQLite files) into one",
	Long: "Merge rebuilds the entries of every source into one flat index. " +
		"Sources are read in order and later sources win on duplicate ids. " +
		"The output is a SQLite database when --out ends in .db, a JSON snapshot otherwise.",
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if mergeOut == "" {
			return fmt.Errorf("--out is required")
		}
		ctx := cmd.Context()
		sources := make([]domain.VectorIndex, 0, len(args))
		defer func() {
			for _, s := range sources {
				_ = s.Close()
			}
		}()
		for _, p := range args {
			if _, err := os.Stat(p); err != nil {
				return fmt.Errorf("source %s: %w", p, err)
			}
			src, err := openIndexFile(p)
			if err != nil {
				return fmt.Errorf("open %s: %w", p, err)
			}
			sources = append(sources, src)
		}
		return mergeTo(ctx, mergeOut, sources)
	},
}

func mergeTo(ctx context.Context, out string, sources []domain.VectorIndex) error {
	switch strings.ToLower(filepath.Ext(out)) {
	case ".db", ".sqlite":
		dst, err := sqlite.Open(out)
		if err != nil {
			return err
		}
		if err := index.MergeInto(ctx, dst, sources...); err != nil {
			dst.Close()
			return err
		}
		n, _ := dst.Count(ctx)
		logger.Info("merged %d sources into %s (%d entries)", len(sources), out, n)
		return dst.Close()
	default:
		merged, err := index.Merge(ctx, sources...)
		if err != nil {
			return err
		}
		if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
			return err
		}
		n, _ := merged.Count(ctx)
		logger.Info("merged %d sources into %s (%d entries)", len(sources), out, n)
		return merged.Save(out)
	}
}

var titlesCmd = &cobra.Command{
	Use:   "titles",
	Short: "List indexed document titles",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, app *App) error {
			titles, err := app.Service.Titles(ctx)
			if err != nil {
				return err
			}
			for _, t := range titles {
				fmt.Fprintln(os.Stdout, t)
			}
			n, err := app.Service.Count(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(os.Stdout, "\n%d documents, %d chunks\n", len(titles), n)
			return nil
		})
	},
}

func init() {
	mergeCmd.Flags().StringVarP(&mergeOut, "out", "o", "", "output index file (.json snapshot or .db)")
	rootCmd.AddCommand(mergeCmd, titlesCmd)
}
