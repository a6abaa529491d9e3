// Package cmd implements the histvision command tree.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/datahaul/histvision/internal/config"
	"github.com/datahaul/histvision/internal/observability"
)

// Process exit codes, loosely after sysexits.
const (
	exitOK                 = 0
	exitGeneralError       = 1
	exitInvalidArgument    = 2
	exitServiceUnavailable = 69
	exitFileWriteError     = 73
	exitSignalInt          = 130
)

var versionInfo = struct {
	Version   string
	Commit    string
	BuildDate string
}{
	Version:   "dev",
	Commit:    "HEAD",
	BuildDate: "unknown",
}

// SetVersionInfo records build metadata injected at link time.
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
	rootCmd.Version = fmt.Sprintf("%s (commit %s, built %s)", version, commit, buildDate)
}

var rootVerbose bool

var rootCmd = &cobra.Command{
	Use:   "histvision",
	Short: "Fetch public market data archives",
	Long: `histvision walks the public market-data archive listing, selects
files by pattern and date, and downloads them with checksum
verification.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		observability.InitCLILogger("histvision", rootVerbose)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&rootVerbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.Version = fmt.Sprintf("%s (commit %s, built %s)",
		versionInfo.Version, versionInfo.Commit, versionInfo.BuildDate)
}

// Execute runs the command tree and returns the process exit code.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	defer observability.Sync()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(rootCmd.ErrOrStderr(), "Error:", err)
		var ee *exitCodeError
		if errors.As(err, &ee) {
			return ee.code
		}
		return exitGeneralError
	}
	return exitOK
}

// exitCodeError carries a process exit code alongside the cause.
type exitCodeError struct {
	code int
	msg  string
	err  error
}

func (e *exitCodeError) Error() string {
	if e.err == nil {
		return e.msg
	}
	return e.msg + ": " + e.err.Error()
}

func (e *exitCodeError) Unwrap() error {
	return e.err
}

func exitError(code int, msg string, err error) error {
	return &exitCodeError{code: code, msg: msg, err: err}
}

// loadConfig resolves the CLI configuration for a command run.
func loadConfig(ctx context.Context, overrides ...map[string]any) (*config.Config, error) {
	cfg, err := config.Load(ctx, overrides...)
	if err != nil {
		return nil, exitError(exitInvalidArgument, "Invalid configuration", err)
	}
	return cfg, nil
}
