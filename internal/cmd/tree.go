package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/datahaul/histvision/internal/observability"
	"github.com/datahaul/histvision/pkg/tree"
)

var treeCmd = &cobra.Command{
	Use:   "tree [prefix]",
	Short: "Walk a listing prefix and print every key",
	Long: `Walk one prefix of the archive listing across all pages and print
the discovered keys, directories first within each page.

Example:
  histvision tree data/spot/daily/klines/BTCUSDT/1d/
  histvision tree --files-only data/spot/daily/klines/BTCUSDT/1d/`,
	Args: cobra.MaximumNArgs(1),
	RunE: runTree,
}

var (
	treeFilesOnly bool
	treeRateLimit float64
)

func init() {
	rootCmd.AddCommand(treeCmd)

	treeCmd.Flags().BoolVar(&treeFilesOnly, "files-only", false, "Print only file keys")
	treeCmd.Flags().Float64Var(&treeRateLimit, "rate-limit", 0, "Maximum listing requests per second")
}

func runTree(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	prefix := tree.RootPrefix
	if len(args) == 1 {
		prefix = args[0]
	}

	var overrides []map[string]any
	if treeRateLimit > 0 {
		overrides = append(overrides, map[string]any{
			"walk": map[string]any{"rate_limit": treeRateLimit},
		})
	}
	cfg, err := loadConfig(ctx, overrides...)
	if err != nil {
		return err
	}

	walker := buildWalker(buildProvider(cfg), cfg).
		WithObserver(func(pages, items int) {
			observability.CLILogger.Debug("Listing page",
				zap.Int("pages", pages),
				zap.Int("items", items))
		})

	keys, err := walker.Walk(ctx, prefix)
	if err != nil {
		if ctx.Err() != nil {
			return exitError(exitSignalInt, "Walk cancelled", err)
		}
		observability.CLILogger.Error("Walk failed",
			zap.String("prefix", prefix),
			zap.Error(err))
		return exitError(exitServiceUnavailable, "Failed to walk prefix", err)
	}

	out := cmd.OutOrStdout()
	printed := 0
	for _, key := range keys {
		if treeFilesOnly && isDirKey(key) {
			continue
		}
		fmt.Fprintln(out, key)
		printed++
	}

	observability.CLILogger.Info("Walk completed",
		zap.String("prefix", prefix),
		zap.Int("keys", len(keys)),
		zap.Int("printed", printed))
	return nil
}

func isDirKey(key string) bool {
	return len(key) > 0 && key[len(key)-1] == '/'
}
