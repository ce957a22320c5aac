package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/jonathan/lead-harvester/internal/config"
	"github.com/jonathan/lead-harvester/internal/proxy"
	"github.com/jonathan/lead-harvester/internal/ratelimit"
	"github.com/jonathan/lead-harvester/internal/scheduler"
	"github.com/jonathan/lead-harvester/internal/scraper"
	"github.com/jonathan/lead-harvester/internal/types"
)

var crawlCmd = &cobra.Command{
	Use:   "crawl <query>",
	Short: "Run one crawl job and print the result",
	Long:  "Submits a crawl job for the given query (a search phrase, a company website, or a professional-network search), waits for it to finish, and prints the extracted records as JSON.",
	Args:  cobra.ExactArgs(1),
	RunE:  runCrawl,
}

var (
	crawlConfigPath string
	crawlSource     string
	crawlMaxPages   int
	crawlDelay      float64
	crawlTimeout    float64
	crawlRetries    int
	crawlUseProxy   bool
	crawlProxyFile  string
	crawlNoRobots   bool
	crawlUserAgent  string
	crawlAdaptive   bool
	crawlVerbose    bool
	crawlOutputPath string
)

func init() {
	crawlCmd.Flags().StringVarP(&crawlConfigPath, "config", "c", "", "Path to JSON config file")
	crawlCmd.Flags().StringVarP(&crawlSource, "source", "s", "auto", "Scraper variant: auto, search, network, or website")
	crawlCmd.Flags().IntVar(&crawlMaxPages, "max-pages", 0, "Maximum pages to crawl per job")
	crawlCmd.Flags().Float64Var(&crawlDelay, "delay", 0, "Delay between requests in seconds")
	crawlCmd.Flags().Float64Var(&crawlTimeout, "timeout", 0, "Per-request timeout in seconds")
	crawlCmd.Flags().IntVar(&crawlRetries, "retries", 0, "Retries per failed request")
	crawlCmd.Flags().BoolVar(&crawlUseProxy, "use-proxy", false, "Route requests through the proxy pool")
	crawlCmd.Flags().StringVar(&crawlProxyFile, "proxy-file", "", "Path to proxy list JSON file")
	crawlCmd.Flags().BoolVar(&crawlNoRobots, "ignore-robots", false, "Skip robots.txt checks")
	crawlCmd.Flags().StringVar(&crawlUserAgent, "user-agent", "", "User agent for outbound requests")
	crawlCmd.Flags().BoolVar(&crawlAdaptive, "adaptive", false, "Adapt per-domain request rates to observed outcomes")
	crawlCmd.Flags().BoolVarP(&crawlVerbose, "verbose", "v", false, "Print detailed progress")
	crawlCmd.Flags().StringVarP(&crawlOutputPath, "out", "o", "", "Write the result JSON to a file instead of stdout")

	rootCmd.AddCommand(crawlCmd)
}

func runCrawl(_ *cobra.Command, args []string) error {
	cfg, err := loadCrawlConfig()
	if err != nil {
		return err
	}

	ctx := context.Background()
	harness, err := buildHarness(ctx, cfg)
	if err != nil {
		return err
	}
	defer harness.close()

	hint := types.SourceHint(crawlSource)
	jobID, err := harness.sched.CreateJob(args[0], hint, cfg.ScrapeDefaults(), nil)
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}

	job, err := waitForJob(harness.sched, jobID)
	if err != nil {
		return err
	}

	summary := map[string]any{
		"job_id": job.ID,
		"query":  job.Query,
		"status": job.Status,
		"result": job.Result,
		"error":  job.ErrorMessage,
	}
	if job.StartedAt != nil && job.CompletedAt != nil {
		summary["duration"] = job.CompletedAt.Sub(*job.StartedAt).String()
	}
	out, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}

	if crawlOutputPath != "" {
		if err := os.WriteFile(crawlOutputPath, out, 0644); err != nil {
			return fmt.Errorf("failed to write result file %s: %w", crawlOutputPath, err)
		}
		fmt.Printf("Result written to %s\n", crawlOutputPath)
		return nil
	}
	fmt.Println(string(out))
	return nil
}

// loadCrawlConfig merges the config file, environment, and CLI flags, with
// flags winning.
func loadCrawlConfig() (*config.Config, error) {
	cfg := &config.Config{}
	if crawlConfigPath != "" {
		loaded, err := config.LoadConfig(crawlConfigPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	cfg.ApplyEnv()

	flags := config.Config{
		MaxPages:              crawlMaxPages,
		DelaySeconds:          crawlDelay,
		RequestTimeoutSeconds: crawlTimeout,
		MaxRetries:            crawlRetries,
		UserAgent:             crawlUserAgent,
		ProxyFile:             crawlProxyFile,
	}
	merged := flags.MergeWithDefaults(*cfg)
	if crawlUseProxy {
		merged.UseProxy = true
	}
	if crawlNoRobots {
		merged.IgnoreRobotsTxt = true
	}
	if crawlAdaptive {
		merged.Adaptive = true
	}
	if crawlVerbose {
		merged.Verbose = true
	}

	if err := merged.Validate(); err != nil {
		return nil, err
	}
	return &merged, nil
}

// harness bundles the wired crawl subsystem for one CLI invocation.
type harness struct {
	sched   *scheduler.Scheduler
	limiter scraper.Limiter
	pool    *proxy.Pool
}

func (h *harness) close() {
	h.sched.Close()
	if h.pool != nil {
		h.pool.Stop()
	}
}

// buildHarness assembles limiter, proxy pool, scraper factory, and
// scheduler from the merged configuration.
func buildHarness(ctx context.Context, cfg *config.Config) (*harness, error) {
	var limiter scraper.Limiter
	if cfg.Adaptive {
		limiter = ratelimit.NewAdaptive(cfg.RateLimiterConfig())
	} else {
		limiter = ratelimit.NewLimiter(cfg.RateLimiterConfig())
	}

	var pool *proxy.Pool
	if cfg.UseProxy {
		proxies, err := config.LoadProxyList(cfg.ProxyFile)
		if err != nil {
			return nil, err
		}
		pool = proxy.NewPool(&proxy.PoolConfig{
			Proxies: proxies,
			Verbose: cfg.Verbose,
		})
		active := pool.Initialize(ctx)
		if active == 0 {
			fmt.Fprintln(os.Stderr, "Warning: no proxies passed the connectivity test, requests will go direct")
		}
		pool.Start(ctx)
	}

	deps := scraper.Deps{Limiter: limiter, Verbose: cfg.Verbose}
	if pool != nil {
		deps.Pool = pool
	}

	sched := scheduler.New(scraper.NewFactory(deps), scheduler.Config{
		MaxConcurrentJobs: cfg.MaxConcurrentJobs,
		JobTimeout:        cfg.JobTimeout(),
		Verbose:           cfg.Verbose,
	})
	sched.SetProgressCallback(func(jobID string, percent float64, message string) {
		fmt.Fprintf(os.Stderr, "[%3.0f%%] %s\n", percent, message)
	})
	sched.Start(ctx)

	return &harness{sched: sched, limiter: limiter, pool: pool}, nil
}

// waitForJob polls the scheduler until the job reaches a terminal status.
func waitForJob(sched *scheduler.Scheduler, jobID string) (types.Job, error) {
	for {
		job, err := sched.GetJob(jobID)
		if err != nil {
			return types.Job{}, err
		}
		if job.Status.Terminal() {
			return job, nil
		}
		time.Sleep(200 * time.Millisecond)
	}
}
