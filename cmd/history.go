package cmd

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/zjrosen/cvrexport/internal/history"
	"github.com/zjrosen/cvrexport/internal/presentation"
)

var historyCmd = &cobra.Command{
	Use:   "history [run-id]",
	Short: "Show past converter runs",
	Long: `Show converter runs recorded in the history database, newest first.

With a run ID, print that run including its diagnostics. Output is JSON
unless --table is given.

Examples:
  cvrexport history
  cvrexport history --table --folder /data/cvrs -n 10
  cvrexport history 3f2a9c1e-...
  cvrexport history --prune 100`,
	Args: cobra.MaximumNArgs(1),
	RunE: runHistory,
}

var (
	historyFolder string
	historyLimit  int
	historyTable  bool
	historyPrune  int
)

func init() {
	historyCmd.Flags().StringVar(&historyFolder, "folder", "", "only runs over this folder")
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", history.DefaultListLimit, "maximum runs to show")
	historyCmd.Flags().BoolVar(&historyTable, "table", false, "print an aligned table instead of JSON")
	historyCmd.Flags().IntVar(&historyPrune, "prune", -1, "delete all but the newest N runs")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	if !cfg.History.Enabled {
		return fmt.Errorf("run history is disabled (history.enabled: false)")
	}
	db, err := history.NewDB(cfg.History.Path)
	if err != nil {
		return fmt.Errorf("opening history: %w", err)
	}
	defer func() { _ = db.Close() }()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	out := cmd.OutOrStdout()
	runs := db.Runs()

	if historyPrune >= 0 {
		return pruneHistory(ctx, out, runs, historyPrune)
	}
	if len(args) == 1 {
		return showRun(ctx, out, runs, args[0])
	}

	opts := history.ListOptions{Limit: historyLimit}
	if historyFolder != "" {
		opts.Folder = historyFolder
		if abs, err := filepath.Abs(historyFolder); err == nil {
			opts.Folder = abs
		}
	}
	return listHistory(ctx, out, runs, opts, historyTable)
}

func listHistory(ctx context.Context, w io.Writer, runs *history.Repository, opts history.ListOptions, table bool) error {
	list, err := runs.List(ctx, opts)
	if err != nil {
		return err
	}
	f := presentation.NewFormatter(w)
	if table {
		return f.FormatRunsTable(presentation.FromRuns(list))
	}
	return f.FormatRuns(presentation.FromRuns(list))
}

func showRun(ctx context.Context, w io.Writer, runs *history.Repository, id string) error {
	run, err := runs.Get(ctx, id)
	if err != nil {
		return err
	}
	return presentation.NewFormatter(w).FormatRun(presentation.FromRun(run))
}

func pruneHistory(ctx context.Context, w io.Writer, runs *history.Repository, keep int) error {
	n, err := runs.Prune(ctx, keep)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "Pruned %d run(s), kept the newest %d\n", n, keep)
	return err
}
