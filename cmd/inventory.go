package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	awsclient "github.com/fraclad/s3-insight/aws"
	"github.com/fraclad/s3-insight/config"
	"github.com/fraclad/s3-insight/inventory"
	"github.com/fraclad/s3-insight/logger"
	"github.com/fraclad/s3-insight/metrics"
	"github.com/fraclad/s3-insight/output"
	"github.com/fraclad/s3-insight/sampling"
	"github.com/fraclad/s3-insight/stream"
)

var (
	bucketNames      string
	inventoryOutput  string
	inventoryMetrics string
)

var inventoryCmd = &cobra.Command{
	Use:   "inventory",
	Short: "List buckets into a record stream",
	Long: `Lists every object of the selected buckets (all buckets by default) and
writes one JSON record per object to the output file.

Buckets holding more than --sample-threshold objects are sampled down to
--sample records; --sample 0 lists every object.`,
	Args: cobra.NoArgs,
	RunE: runInventory,
}

func init() {
	f := inventoryCmd.Flags()
	f.StringVarP(&bucketNames, "buckets", "b", "", "Comma-separated list of bucket names (default all buckets)")
	f.StringVarP(&inventoryOutput, "output", "o", "inventory.jsonl", "Record stream file to write")
	f.StringVar(&inventoryMetrics, "metrics-file", "", "Write Prometheus metrics to this textfile")
	f.Int64P("sample", "s", config.DefaultSampleSize, "Records kept per sampled bucket (0 disables sampling)")
	f.Int64("sample-threshold", config.DefaultSampleThreshold, "Object count above which a bucket is sampled")
	f.Uint64("seed", 0, "Sampling seed for reproducible samples (0 = random)")
	f.Int("parallelism", config.DefaultParallelism, "Buckets listed concurrently")
	f.Int("max-retries", config.DefaultMaxRetries, "Attempts per listing page")
	f.Int64P("limit", "l", 0, "Maximum number of objects to scan per bucket (0 = unlimited)")
	f.Duration("timeout", 0, "Stop issuing listing requests after this long (0 = no limit)")
	f.Float64("rate-limit", 0, "Listing requests per second across all workers (0 = unlimited)")
	f.String("spool-dir", "", "Directory for temporary sampling files (default OS temp dir)")
	f.Int("age-threshold-days", config.DefaultAgeThresholdDays, "Objects older than this are counted as old")
}

func runInventory(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	client, err := newClient(ctx)
	if err != nil {
		return err
	}

	m := metrics.New()
	collector := inventory.NewCollector(client, collectorOptions(cfg, m))

	buckets, err := collector.ListBuckets(ctx, splitNames(bucketNames)...)
	if err != nil {
		return fmt.Errorf("failed to list buckets: %w", err)
	}
	if len(buckets) == 0 {
		fmt.Fprintln(out, "No buckets to inventory.")
		return nil
	}
	fmt.Fprintf(out, "Collecting %d bucket(s) into %s\n", len(buckets), inventoryOutput)

	f, err := os.Create(inventoryOutput)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer f.Close()

	runCtx := ctx
	if cfg.Collection.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, cfg.Collection.Timeout)
		defer cancel()
	}

	report, runErr := collector.Run(runCtx, buckets, stream.NewWriter(f))
	if closeErr := f.Close(); closeErr != nil && runErr == nil {
		runErr = fmt.Errorf("failed to close output file: %w", closeErr)
	}

	if report != nil {
		output.PrintRunReport(out, report)
		if report.Summary != nil {
			output.PrintAccountSummary(out, report.Summary.Account)
		}
	}

	if inventoryMetrics != "" {
		if err := m.WriteTextfile(inventoryMetrics); err != nil {
			logger.Error().Err(err).Msg("failed to write metrics")
		}
	}

	if runErr != nil {
		return runErr
	}
	if incomplete := report.Incomplete(); len(incomplete) > 0 {
		return fmt.Errorf("%d of %d bucket(s) were not fully collected; they are marked partial in %s",
			len(incomplete), len(report.Outcomes), inventoryOutput)
	}
	return nil
}

func collectorOptions(c *config.Config, m *metrics.Metrics) inventory.Options {
	col := c.Collection

	var limiter *rate.Limiter
	if col.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(col.RequestsPerSecond), max(1, int(col.RequestsPerSecond)))
	}

	backoff := awsclient.DefaultBackoff()
	backoff.MaxAttempts = col.MaxRetries
	backoff.Base = col.BackoffBase
	backoff.Factor = col.BackoffFactor
	backoff.Max = col.BackoffMax

	return inventory.Options{
		Policy:       sampling.Policy{Threshold: c.Sampling.Threshold, SampleSize: c.Sampling.Size},
		Seed:         c.Sampling.Seed,
		Backoff:      backoff,
		PageSize:     col.PageSize,
		PageTimeout:  col.PageTimeout,
		Parallelism:  col.Parallelism,
		ScanLimit:    col.ScanLimit,
		SpoolDir:     col.SpoolDir,
		Limiter:      limiter,
		Metrics:      m,
		AgeThreshold: c.Aggregation.AgeThreshold(),
		TopN:         c.Aggregation.TopN,
		Version:      Version,
	}
}
