package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/datahaul/histvision/internal/config"
	"github.com/datahaul/histvision/internal/observability"
	"github.com/datahaul/histvision/pkg/download"
	"github.com/datahaul/histvision/pkg/extract"
	"github.com/datahaul/histvision/pkg/manifest"
	"github.com/datahaul/histvision/pkg/match"
	"github.com/datahaul/histvision/pkg/retry"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Walk, select, and download archive files",
	Long: `Walk a listing prefix, select files by glob pattern and filename
date, and download them with checksum verification.

The job can be given inline with flags or as a YAML/JSON manifest.

Example:
  histvision fetch --prefix data/spot/daily/klines/BTCUSDT/1d/
  histvision fetch --prefix data/spot/daily/klines/BTCUSDT/1d/ --start 2024-01-01 --end 2024-06-30
  histvision fetch --job job.yaml
  histvision fetch --job job.yaml --dest ./archive --quiet
  histvision fetch --job job.yaml --dry-run`,
	RunE: runFetch,
}

var (
	fetchJobPath     string
	fetchPrefix      string
	fetchIncludes    []string
	fetchExcludes    []string
	fetchStart       string
	fetchEnd         string
	fetchDest        string
	fetchConcurrency int
	fetchRetries     int
	fetchNoVerify    bool
	fetchRateLimit   float64
	fetchExtract     bool
	fetchExtractDir  string
	fetchQuiet       bool
	fetchDryRun      bool
)

func init() {
	rootCmd.AddCommand(fetchCmd)

	fetchCmd.Flags().StringVarP(&fetchJobPath, "job", "j", "", "Path to job manifest")
	fetchCmd.Flags().StringVarP(&fetchPrefix, "prefix", "p", "", "Listing prefix to walk")
	fetchCmd.Flags().StringSliceVar(&fetchIncludes, "include", nil, "Include glob pattern (repeatable)")
	fetchCmd.Flags().StringSliceVar(&fetchExcludes, "exclude", nil, "Exclude glob pattern (repeatable)")
	fetchCmd.Flags().StringVar(&fetchStart, "start", "", "Inclusive start date (YYYY-MM-DD)")
	fetchCmd.Flags().StringVar(&fetchEnd, "end", "", "Inclusive end date (YYYY-MM-DD)")
	fetchCmd.Flags().StringVarP(&fetchDest, "dest", "d", "", "Download destination directory")
	fetchCmd.Flags().IntVarP(&fetchConcurrency, "concurrency", "c", 0, "Maximum in-flight downloads")
	fetchCmd.Flags().IntVar(&fetchRetries, "retries", -1, "Per-file retry budget")
	fetchCmd.Flags().BoolVar(&fetchNoVerify, "no-verify", false, "Skip checksum verification")
	fetchCmd.Flags().Float64Var(&fetchRateLimit, "rate-limit", 0, "Maximum requests per second")
	fetchCmd.Flags().BoolVar(&fetchExtract, "extract", false, "Unpack fetched archives after download")
	fetchCmd.Flags().StringVar(&fetchExtractDir, "extract-dir", "", "Extraction directory (default: <dest>_extracted)")
	fetchCmd.Flags().BoolVarP(&fetchQuiet, "quiet", "q", false, "Suppress progress output")
	fetchCmd.Flags().BoolVar(&fetchDryRun, "dry-run", false, "Show the job plan without downloading")

	fetchCmd.MarkFlagsMutuallyExclusive("job", "prefix")
}

func runFetch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	m, err := resolveFetchManifest()
	if err != nil {
		observability.CLILogger.Error("Invalid job definition", zap.Error(err))
		return exitError(exitInvalidArgument, "Invalid job", err)
	}

	cfg, err := loadConfig(ctx, fetchConfigOverrides(m))
	if err != nil {
		return err
	}

	if fetchDryRun {
		return showFetchPlan(cmd, m, cfg)
	}
	return executeFetch(ctx, cmd, m, cfg)
}

// resolveFetchManifest builds the effective job: manifest file when
// --job is given, otherwise a manifest assembled from flags. Shared
// flags override manifest values either way.
func resolveFetchManifest() (*manifest.Manifest, error) {
	var m *manifest.Manifest
	if fetchJobPath != "" {
		if !manifest.SupportedExtension(fetchJobPath) {
			return nil, fmt.Errorf("unsupported manifest format %q (want .yaml, .yml, or .json)", fetchJobPath)
		}
		loaded, err := manifest.Load(fetchJobPath)
		if err != nil {
			return nil, err
		}
		m = loaded
	} else {
		m = &manifest.Manifest{Prefix: fetchPrefix}
		m.Match.Includes = fetchIncludes
		m.Match.Excludes = fetchExcludes
		m.Range.Start = fetchStart
		m.Range.End = fetchEnd
		m.ApplyDefaults()
	}

	if fetchDest != "" {
		m.Download.Destination = fetchDest
	}
	if fetchConcurrency > 0 {
		m.Download.Concurrency = fetchConcurrency
	}
	if fetchRetries >= 0 {
		retries := fetchRetries
		m.Download.Retries = &retries
	}
	if fetchNoVerify {
		verify := false
		m.Download.VerifyChecksum = &verify
	}
	if fetchRateLimit > 0 {
		m.Download.RateLimit = fetchRateLimit
	}
	if fetchExtract {
		m.Extract.Enabled = true
	}
	if fetchExtractDir != "" {
		m.Extract.Enabled = true
		m.Extract.Dir = fetchExtractDir
	}

	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// fetchConfigOverrides maps manifest-level provider overrides onto the
// config layer so endpoint resolution stays in one place.
func fetchConfigOverrides(m *manifest.Manifest) map[string]any {
	provider := map[string]any{}
	if m.Provider.BaseURL != "" {
		provider["base_url"] = m.Provider.BaseURL
	}
	if m.Provider.DownloadPrefix != "" {
		provider["download_prefix"] = m.Provider.DownloadPrefix
	}
	return map[string]any{"provider": provider}
}

func showFetchPlan(cmd *cobra.Command, m *manifest.Manifest, cfg *config.Config) error {
	out := cmd.OutOrStdout()

	fmt.Fprintln(out, "=== Fetch Plan (dry-run) ===")
	fmt.Fprintln(out)
	if m.Prefix != "" {
		fmt.Fprintf(out, "Prefix:      %s\n", m.Prefix)
	} else {
		fmt.Fprintf(out, "Prefixes:    %v (derived from includes)\n", match.DerivePrefixes(m.Match.Includes))
	}
	fmt.Fprintf(out, "Endpoint:    %s\n", cfg.Provider.BaseURL)
	fmt.Fprintln(out)
	if len(m.Match.Includes) > 0 {
		fmt.Fprintln(out, "Include:")
		for _, p := range m.Match.Includes {
			fmt.Fprintf(out, "  - %s\n", p)
		}
	}
	if len(m.Match.Excludes) > 0 {
		fmt.Fprintln(out, "Exclude:")
		for _, p := range m.Match.Excludes {
			fmt.Fprintf(out, "  - %s\n", p)
		}
	}
	if m.Range.Start != "" || m.Range.End != "" {
		fmt.Fprintf(out, "Range:       %s .. %s\n", orOpen(m.Range.Start), orOpen(m.Range.End))
	}
	fmt.Fprintln(out)
	fmt.Fprintf(out, "Destination: %s\n", m.Download.Destination)
	fmt.Fprintf(out, "Concurrency: %d\n", m.Download.Concurrency)
	fmt.Fprintf(out, "Retries:     %d\n", *m.Download.Retries)
	fmt.Fprintf(out, "Verify:      %v\n", *m.Download.VerifyChecksum)
	if m.Download.RateLimit > 0 {
		fmt.Fprintf(out, "Rate Limit:  %.1f req/s\n", m.Download.RateLimit)
	}
	if m.Extract.Enabled {
		dir := m.Extract.Dir
		if dir == "" {
			dir = m.Download.Destination + extract.DefaultDirSuffix
		}
		fmt.Fprintf(out, "Extract:     %s\n", dir)
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Job validated. Remove --dry-run to execute.")
	return nil
}

func executeFetch(ctx context.Context, cmd *cobra.Command, m *manifest.Manifest, cfg *config.Config) error {
	jobID := uuid.New().String()

	prov := buildProvider(cfg)
	walker := buildWalker(prov, cfg)

	matcher, err := match.New(match.Config{
		Includes: m.Match.Includes,
		Excludes: m.Match.Excludes,
	})
	if err != nil {
		observability.CLILogger.Error("Invalid match patterns", zap.Error(err))
		return exitError(exitInvalidArgument, "Invalid match patterns", err)
	}

	start, _ := m.StartDate()
	end, _ := m.EndDate()

	prefixes := walkPrefixes(m, matcher)
	observability.CLILogger.Info("Starting fetch",
		zap.String("job_id", jobID),
		zap.Strings("prefixes", prefixes),
		zap.Int("concurrency", m.Download.Concurrency))

	var keys []string
	for _, prefix := range prefixes {
		walked, err := walker.Walk(ctx, prefix)
		if err != nil {
			if ctx.Err() != nil {
				return exitError(exitSignalInt, "Fetch cancelled", err)
			}
			observability.CLILogger.Error("Walk failed",
				zap.String("job_id", jobID),
				zap.String("prefix", prefix),
				zap.Error(err))
			return exitError(exitServiceUnavailable, "Failed to walk prefix", err)
		}
		keys = append(keys, walked...)
	}

	files := match.FilterByDate(matcher.Select(match.Files(keys)), start, end)
	observability.CLILogger.Info("Selection complete",
		zap.String("job_id", jobID),
		zap.Int("keys_walked", len(keys)),
		zap.Int("files_selected", len(files)))

	if len(files) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No files matched.")
		return nil
	}

	urls := make([]string, 0, len(files))
	for _, f := range files {
		urls = append(urls, prov.DownloadPrefix()+f)
	}

	dlCfg := download.DefaultConfig()
	dlCfg.Concurrency = m.Download.Concurrency
	dlCfg.VerifyChecksum = *m.Download.VerifyChecksum
	dlCfg.Policy = retry.NewPolicy(*m.Download.Retries)
	dlCfg.RateLimit = m.Download.RateLimit
	if cfg.Download.Timeout > 0 {
		dlCfg.Timeout = cfg.Download.Timeout
	}

	mgr := download.New(dlCfg).WithLogger(observability.CLILogger)
	if !fetchQuiet {
		mgr = mgr.WithObserver(newProgressPrinter(cmd.ErrOrStderr()).observe)
	}

	results, summary, err := mgr.DownloadAll(ctx, urls, m.Download.Destination)
	if err != nil && summary == nil {
		observability.CLILogger.Error("Fetch failed",
			zap.String("job_id", jobID),
			zap.Error(err))
		return exitError(exitFileWriteError, "Failed to prepare destination", err)
	}
	if err != nil {
		observability.CLILogger.Warn("Fetch cancelled",
			zap.String("job_id", jobID),
			zap.Int("succeeded", summary.Succeeded),
			zap.Int("failed", summary.Failed))
		return exitError(exitSignalInt, "Fetch cancelled", err)
	}

	observability.CLILogger.Info("Fetch completed",
		zap.String("job_id", jobID),
		zap.Int("total", summary.Total),
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("failed", summary.Failed),
		zap.Int64("bytes", summary.Bytes),
		zap.Duration("duration", summary.Duration))

	printFetchSummary(cmd, summary)

	if m.Extract.Enabled && summary.Succeeded > 0 {
		if err := extractFetched(ctx, cmd, m); err != nil {
			return err
		}
	}

	if summary.Failed > 0 {
		return exitError(exitServiceUnavailable, "Fetch completed with failures",
			fmt.Errorf("failed=%d of %d", summary.Failed, len(results)))
	}
	return nil
}

// walkPrefixes resolves the listing prefixes for a job: the explicit
// prefix when set, otherwise the static prefixes derived from the
// include patterns. Derived prefixes never overlap, so walking each in
// turn yields no duplicate keys.
func walkPrefixes(m *manifest.Manifest, matcher *match.Matcher) []string {
	if m.Prefix != "" {
		return []string{m.Prefix}
	}
	return matcher.Prefixes()
}

func extractFetched(ctx context.Context, cmd *cobra.Command, m *manifest.Manifest) error {
	ex := extract.New().WithLogger(observability.CLILogger)
	if !fetchQuiet {
		ex = ex.WithObserver(newProgressPrinter(cmd.ErrOrStderr()).observe)
	}

	results, err := ex.ExtractAll(ctx, m.Download.Destination, m.Extract.Dir)
	if err != nil {
		if ctx.Err() != nil {
			return exitError(exitSignalInt, "Extraction cancelled", err)
		}
		return exitError(exitFileWriteError, "Extraction failed", err)
	}

	failed := 0
	for _, ok := range results {
		if !ok {
			failed++
		}
	}
	observability.CLILogger.Info("Extraction completed",
		zap.Int("archives", len(results)),
		zap.Int("failed", failed))
	if failed > 0 {
		return exitError(exitFileWriteError, "Extraction completed with failures",
			fmt.Errorf("failed=%d of %d", failed, len(results)))
	}
	return nil
}

func printFetchSummary(cmd *cobra.Command, s *download.Summary) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Downloaded %d/%d files (%s) in %s\n",
		s.Succeeded, s.Total, humanBytes(s.Bytes), s.Duration.Round(time.Millisecond))
	for _, u := range s.FailedURLs {
		fmt.Fprintf(out, "failed: %s\n", u)
	}
}

func orOpen(s string) string {
	if s == "" {
		return "(open)"
	}
	return s
}

func humanBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
