package cmd

import (
	"github.com/datahaul/histvision/internal/config"
	"github.com/datahaul/histvision/internal/observability"
	"github.com/datahaul/histvision/pkg/provider/vision"
	"github.com/datahaul/histvision/pkg/retry"
	"github.com/datahaul/histvision/pkg/tree"
)

// buildProvider creates the listing provider from resolved config.
func buildProvider(cfg *config.Config) *vision.Provider {
	pc := vision.DefaultConfig()
	if cfg.Provider.BaseURL != "" {
		pc.BaseURL = cfg.Provider.BaseURL
	}
	if cfg.Provider.DownloadPrefix != "" {
		pc.DownloadPrefix = cfg.Provider.DownloadPrefix
	}
	if cfg.Provider.Timeout > 0 {
		pc.Timeout = cfg.Provider.Timeout
	}
	pc.Policy = retry.NewPolicy(cfg.Provider.Retries)
	return vision.New(pc)
}

// buildWalker creates a walker over the given provider.
func buildWalker(p *vision.Provider, cfg *config.Config) *tree.Walker {
	wc := tree.DefaultConfig()
	if cfg.Walk.MaxEmptyRetries > 0 {
		wc.MaxEmptyRetries = cfg.Walk.MaxEmptyRetries
	}
	wc.RateLimit = cfg.Walk.RateLimit
	return tree.NewWalker(p, wc).WithLogger(observability.CLILogger)
}
