package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"fetchkit/pkg/config"
	"fetchkit/pkg/health"
	"fetchkit/pkg/logger"
	"fetchkit/pkg/orchestrator"
	"fetchkit/pkg/ratelimit"
	"fetchkit/pkg/retry"
	"fetchkit/pkg/session"
	"fetchkit/pkg/storage"
)

var (
	// Run command flags
	urlTemplate    string
	outputDir      string
	jobName        string
	concurrency    int
	reportInterval int
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run <target>...",
	Short: "Fetch a batch of targets",
	Long: `Fetch each target through the rate limiter and retry policy, saving
results as JSON files in the output directory. Targets with an existing
result file are skipped, so an interrupted batch can simply be re-run.

The URL for each target is built by substituting {target} into the URL
template. A persisted session (see 'fetchkit session') is attached to
every request and invalidated automatically when the service rejects it.`,
	Example: `  # Fetch three profiles
  fetchkit run alice bob carol --url-template "https://example.com/api/users/{target}"

  # Re-run after an interruption; finished targets are skipped
  fetchkit run --url-template "https://example.com/api/users/{target}" $(cat targets.txt)`,
	Args: cobra.MinimumNArgs(1),
	RunE: runBatch,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&urlTemplate, "url-template", "u", "", "URL template with a {target} placeholder (required)")
	runCmd.Flags().StringVarP(&outputDir, "output", "o", "", "output directory for results")
	runCmd.Flags().StringVar(&jobName, "job", "batch", "job name used in reports")
	runCmd.Flags().IntVar(&concurrency, "concurrency", 0, "number of fetch workers")
	runCmd.Flags().IntVar(&reportInterval, "report-interval", 0, "log a health report every N targets")
	runCmd.MarkFlagRequired("url-template")
}

func runBatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if outputDir != "" {
		cfg.Output.BaseDirectory = outputDir
	}
	if concurrency > 0 {
		cfg.Job.Concurrency = concurrency
	}
	if reportInterval > 0 {
		cfg.Job.ReportInterval = reportInterval
	}

	log := logger.GetLogger()
	log.WithFields(map[string]interface{}{
		"job":     jobName,
		"targets": len(args),
	}).Info("Starting batch")

	sessions, err := session.NewStoreFromConfig(&cfg.Session)
	if err != nil {
		return fmt.Errorf("failed to open session store: %w", err)
	}

	store, err := storage.NewManager(cfg.Output.BaseDirectory)
	if err != nil {
		return fmt.Errorf("failed to open output directory: %w", err)
	}

	orch := orchestrator.New(
		buildLimiter(cfg, log),
		buildPolicy(cfg),
		health.NewTracker(),
		sessions,
		log,
	)

	fetcher := newHTTPFetcher(urlTemplate, sessions)
	job := orchestrator.NewJob(jobName, orch, fetcher, store,
		orchestrator.WithConcurrency(cfg.Job.Concurrency),
		orchestrator.WithReportInterval(cfg.Job.ReportInterval),
	)

	// Ctrl-C stops submitting new targets and persists a partial report
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	targets := make([]string, 0, len(args))
	for _, arg := range args {
		if target := strings.TrimSpace(arg); target != "" {
			targets = append(targets, target)
		}
	}

	report, err := job.Run(ctx, targets)
	printReport(report)

	if err != nil {
		log.WithError(err).Error("Batch finished with errors")
		return err
	}
	return nil
}

// buildLimiter assembles the configured rate limiter
func buildLimiter(cfg *config.Config, log logger.Logger) ratelimit.Limiter {
	minDelay := cfg.RateLimit.MinDelayDuration()
	maxDelay := cfg.RateLimit.MaxDelayDuration()

	if cfg.Redis.Enabled {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		limiter := ratelimit.NewRedisWindow(client, cfg.Redis.Key, cfg.RateLimit.MaxRequestsPerWindow, cfg.RateLimit.Window(), log)
		limiter.SetDelayRange(minDelay, maxDelay)
		return limiter
	}

	limiter := ratelimit.NewSlidingWindow(cfg.RateLimit.MaxRequestsPerWindow, cfg.RateLimit.Window())
	limiter.SetDelayRange(minDelay, maxDelay)
	return limiter
}

// buildPolicy assembles the retry policy from configuration
func buildPolicy(cfg *config.Config) *retry.Policy {
	return &retry.Policy{
		MaxAttempts: cfg.Retry.Attempts,
		Backoff: &retry.ClassBackoff{
			RateLimitBackoff: &retry.ExponentialBackoff{
				BaseDelay:    cfg.Retry.RateLimitBaseBackoffDuration(),
				MaxDelay:     cfg.Retry.RateLimitBackoffCapDuration(),
				Multiplier:   cfg.Retry.BackoffMultiplier,
				JitterFactor: 0.3,
			},
			DefaultBackoff: &retry.ExponentialBackoff{
				BaseDelay:    cfg.Retry.BaseBackoffDuration(),
				MaxDelay:     time.Minute,
				Multiplier:   cfg.Retry.BackoffMultiplier,
				JitterFactor: 0.1,
			},
		},
		OnRetry: func(attempt int, err error, delay time.Duration) {
			logger.LogRetry(jobName, attempt, delay, err)
		},
		Logger: logger.GetLogger(),
	}
}

// printReport writes the batch summary to stdout
func printReport(report *storage.Report) {
	if report == nil {
		return
	}

	fmt.Printf("\nJob:          %s\n", report.Job)
	fmt.Printf("Targets:      %d\n", report.Targets)
	fmt.Printf("Succeeded:    %d\n", report.Succeeded)
	fmt.Printf("Failed:       %d\n", report.Failed)
	fmt.Printf("Skipped:      %d\n", report.Skipped)
	fmt.Printf("Success rate: %.2f%%\n", report.SuccessRate)
	fmt.Printf("Duration:     %s\n", report.FinishedAt.Sub(report.StartedAt).Round(time.Second))

	if len(report.Failures) > 0 {
		fmt.Println("\nFailures:")
		for target, reason := range report.Failures {
			fmt.Printf("  %s: %s\n", target, reason)
		}
	}
}
