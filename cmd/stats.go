package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fraclad/s3-insight/aggregate"
	"github.com/fraclad/s3-insight/config"
	"github.com/fraclad/s3-insight/logger"
	"github.com/fraclad/s3-insight/output"
)

var (
	statsInput   string
	statsAccount bool
	statsRankBy  string
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print account figures from a record stream",
	Long:  `Aggregates a record stream and prints the account summary and rankings without writing any file.`,
	Args:  cobra.NoArgs,
	RunE:  runStats,
}

func init() {
	f := statsCmd.Flags()
	f.StringVarP(&statsInput, "input", "i", "inventory.jsonl", "Record stream to read")
	f.BoolVar(&statsAccount, "account", false, "Look up and print the account ID of the current credentials")
	f.StringVar(&statsRankBy, "rank-by", "total_bytes", "Bucket ranking: total_bytes, object_count or avg_object_size")
	f.IntP("top", "t", config.DefaultTopN, "Length of the top-N rankings")
	f.Int("age-threshold-days", config.DefaultAgeThresholdDays, "Objects older than this are counted as old")
}

func runStats(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	rankBy, err := aggregate.ParseMetric(statsRankBy)
	if err != nil {
		return err
	}

	res, err := aggregateFile(ctx, statsInput)
	if err != nil {
		return err
	}

	if statsAccount {
		if client, err := newClient(ctx); err != nil {
			logger.Warn().Err(err).Msg("account lookup skipped")
		} else if id, err := client.AccountID(ctx); err != nil {
			logger.Warn().Err(err).Msg("account lookup failed")
		} else {
			fmt.Fprintf(out, "Account: %s\n", id)
		}
	}

	output.PrintAccountSummary(out, res.Account)
	output.PrintTopExtensions(out, res.Account)
	output.PrintTopBuckets(out, res.Buckets, cfg.Aggregation.TopN, rankBy)
	return nil
}
