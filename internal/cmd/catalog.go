package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/datahaul/histvision/internal/observability"
	"github.com/datahaul/histvision/pkg/tree"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Explore the archive layout",
	Long: `Discover what the archive offers before fetching: data types,
intervals per data type, and symbols per data type and interval.

Example:
  histvision catalog data-types
  histvision catalog intervals --data-type spot
  histvision catalog symbols --data-type spot --interval daily`,
}

var (
	catalogDataType string
	catalogInterval string
)

var catalogDataTypesCmd = &cobra.Command{
	Use:   "data-types",
	Short: "List top-level data types",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCatalog(cmd, func(ctx context.Context, c *tree.Catalog) ([]string, error) {
			return c.DataTypes(ctx)
		})
	},
}

var catalogIntervalsCmd = &cobra.Command{
	Use:   "intervals",
	Short: "List intervals for a data type",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCatalog(cmd, func(ctx context.Context, c *tree.Catalog) ([]string, error) {
			return c.Intervals(ctx, catalogDataType)
		})
	},
}

var catalogSymbolsCmd = &cobra.Command{
	Use:   "symbols",
	Short: "List symbols for a data type and interval",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCatalog(cmd, func(ctx context.Context, c *tree.Catalog) ([]string, error) {
			return c.Symbols(ctx, catalogDataType, catalogInterval)
		})
	},
}

func init() {
	rootCmd.AddCommand(catalogCmd)
	catalogCmd.AddCommand(catalogDataTypesCmd)
	catalogCmd.AddCommand(catalogIntervalsCmd)
	catalogCmd.AddCommand(catalogSymbolsCmd)

	for _, c := range []*cobra.Command{catalogIntervalsCmd, catalogSymbolsCmd} {
		c.Flags().StringVar(&catalogDataType, "data-type", "", "Data type (e.g. spot, futures)")
		_ = c.MarkFlagRequired("data-type")
	}
	catalogSymbolsCmd.Flags().StringVar(&catalogInterval, "interval", "", "Interval (e.g. daily, monthly)")
	_ = catalogSymbolsCmd.MarkFlagRequired("interval")
}

func runCatalog(cmd *cobra.Command, query func(context.Context, *tree.Catalog) ([]string, error)) error {
	ctx := cmd.Context()

	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	catalog := tree.NewCatalog(buildWalker(buildProvider(cfg), cfg))

	entries, err := query(ctx, catalog)
	if err != nil {
		if ctx.Err() != nil {
			return exitError(exitSignalInt, "Catalog query cancelled", err)
		}
		observability.CLILogger.Error("Catalog query failed", zap.Error(err))
		return exitError(exitServiceUnavailable, "Failed to query catalog", err)
	}

	for _, e := range entries {
		fmt.Fprintln(cmd.OutOrStdout(), e)
	}
	return nil
}
