package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/datahaul/histvision/internal/observability"
	"github.com/datahaul/histvision/pkg/extract"
)

var extractCmd = &cobra.Command{
	Use:   "extract <source-dir>",
	Short: "Unpack downloaded zip archives",
	Long: `Unpack every zip archive under a directory, preserving the relative
layout. By default extraction lands in a sibling directory named
<source-dir>` + extract.DefaultDirSuffix + `.

Example:
  histvision extract ./downloads
  histvision extract ./downloads --dir ./csv`,
	Args: cobra.ExactArgs(1),
	RunE: runExtract,
}

var (
	extractDir   string
	extractQuiet bool
)

func init() {
	rootCmd.AddCommand(extractCmd)

	extractCmd.Flags().StringVar(&extractDir, "dir", "", "Extraction directory")
	extractCmd.Flags().BoolVarP(&extractQuiet, "quiet", "q", false, "Suppress progress output")
}

func runExtract(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	sourceDir := args[0]

	ex := extract.New().WithLogger(observability.CLILogger)
	if !extractQuiet {
		ex = ex.WithObserver(newProgressPrinter(cmd.ErrOrStderr()).observe)
	}

	results, err := ex.ExtractAll(ctx, sourceDir, extractDir)
	if err != nil {
		if ctx.Err() != nil {
			return exitError(exitSignalInt, "Extraction cancelled", err)
		}
		observability.CLILogger.Error("Extraction failed",
			zap.String("source", sourceDir),
			zap.Error(err))
		return exitError(exitFileWriteError, "Extraction failed", err)
	}

	succeeded, failed := 0, 0
	for _, ok := range results {
		if ok {
			succeeded++
		} else {
			failed++
		}
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Extracted %d/%d archives\n", succeeded, len(results))
	if failed > 0 {
		return exitError(exitFileWriteError, "Extraction completed with failures",
			fmt.Errorf("failed=%d of %d", failed, len(results)))
	}
	return nil
}
