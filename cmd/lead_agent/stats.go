package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jonathan/lead-harvester/internal/config"
	"github.com/jonathan/lead-harvester/internal/proxy"
	"github.com/jonathan/lead-harvester/internal/ratelimit"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print the effective crawl configuration and limits",
	Long:  "Resolves the config file, environment, and defaults, then prints the rate limits, scrape defaults, and proxy list that a crawl would run with.",
	RunE:  runStats,
}

var statsConfigPath string

func init() {
	statsCmd.Flags().StringVarP(&statsConfigPath, "config", "c", "", "Path to JSON config file")
	rootCmd.AddCommand(statsCmd)
}

func runStats(_ *cobra.Command, _ []string) error {
	cfg := &config.Config{}
	if statsConfigPath != "" {
		loaded, err := config.LoadConfig(statsConfigPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return err
	}

	limiter := ratelimit.NewLimiter(cfg.RateLimiterConfig())
	summary := map[string]any{
		"rate_limits":     cfg.RateLimiterConfig(),
		"global_limits":   limiter.Stats(ratelimit.GlobalDomain),
		"scrape_defaults": cfg.ScrapeDefaults(),
		"adaptive":        cfg.Adaptive,
	}

	if cfg.ProxyFile != "" {
		proxies, err := config.LoadProxyList(cfg.ProxyFile)
		if err != nil {
			return err
		}
		pool := proxy.NewPool(&proxy.PoolConfig{Proxies: proxies})
		summary["proxy_pool"] = pool.Stats()
	}

	out, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal stats: %w", err)
	}
	fmt.Println(string(out))
	return nil
}
