package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/fraclad/s3-insight/aggregate"
	"github.com/fraclad/s3-insight/config"
	"github.com/fraclad/s3-insight/metrics"
	"github.com/fraclad/s3-insight/output"
	"github.com/fraclad/s3-insight/stream"
)

var (
	reportInput   string
	reportDir     string
	reportMetrics string
	reportRankBy  string
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Aggregate a record stream into summary files",
	Long: `Reads a record stream once and writes:
  - summary.json: every bucket summary and the account summary
  - buckets.csv: one row per bucket
  - extensions.csv: account-wide extension breakdown
  - report.md: human-readable report`,
	Args: cobra.NoArgs,
	RunE: runReport,
}

func init() {
	f := reportCmd.Flags()
	f.StringVarP(&reportInput, "input", "i", "inventory.jsonl", "Record stream to read")
	f.StringVarP(&reportDir, "output-dir", "o", "report", "Directory for output files")
	f.StringVar(&reportMetrics, "metrics-file", "", "Write Prometheus metrics to this textfile")
	f.StringVar(&reportRankBy, "rank-by", "total_bytes", "Bucket ranking: total_bytes, object_count or avg_object_size")
	f.IntP("top", "t", config.DefaultTopN, "Length of the top-N rankings")
	f.Int("age-threshold-days", config.DefaultAgeThresholdDays, "Objects older than this are counted as old")
}

func runReport(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	rankBy, err := aggregate.ParseMetric(reportRankBy)
	if err != nil {
		return err
	}

	res, err := aggregateFile(cmd.Context(), reportInput)
	if err != nil {
		return err
	}

	written, err := output.NewWriter(reportDir).WriteReport(res)
	if err != nil {
		return err
	}

	output.PrintAccountSummary(out, res.Account)
	output.PrintTopBuckets(out, res.Buckets, cfg.Aggregation.TopN, rankBy)

	fmt.Fprintf(out, "\n%s\n", output.FormatHeader("Files"))
	for _, path := range written {
		fmt.Fprintf(out, "  - %s\n", path)
	}

	if reportMetrics != "" {
		m := metrics.New()
		m.ObserveSummary(res.Buckets, res.Account)
		if err := m.WriteTextfile(reportMetrics); err != nil {
			return err
		}
	}
	return nil
}

// aggregateFile summarizes the record stream at path with the loaded
// configuration. Streams without a run header are aged against now.
func aggregateFile(ctx context.Context, path string) (*aggregate.Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open record stream: %w", err)
	}
	defer f.Close()

	res, err := aggregate.Aggregate(ctx, stream.NewReader(f), aggregate.Config{
		AgeThreshold:   cfg.Aggregation.AgeThreshold(),
		TopN:           cfg.Aggregation.TopN,
		CollectionTime: time.Now(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate %s: %w", path, err)
	}
	return res, nil
}
