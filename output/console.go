package output

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fraclad/s3-insight/aggregate"
	"github.com/fraclad/s3-insight/inventory"
	"github.com/fraclad/s3-insight/types"
)

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

// PrintAccountSummary writes the account totals and its breakdowns.
func PrintAccountSummary(w io.Writer, acct types.AccountSummary) {
	fmt.Fprintf(w, "\n%s\n", FormatHeader("Account Summary"))
	fmt.Fprintf(w, "Collected at:       %s\n", acct.CollectedAt.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(w, "Buckets:            %s\n", FormatCount(acct.BucketCount))
	fmt.Fprintf(w, "Objects:            %s\n", FormatCount(acct.TotalObjects))
	fmt.Fprintf(w, "Total size:         %s\n", FormatBytes(acct.TotalBytes))
	fmt.Fprintf(w, "Avg object size:    %s\n", FormatBytes(int64(acct.AvgObjectSize)))
	fmt.Fprintf(w, "Est. monthly cost:  %s\n", FormatCost(acct.EstimatedMonthlyCost))
	fmt.Fprintf(w, "Age (recent / old): %s / %s\n", FormatCount(acct.AgeBreakdown.Recent), FormatCount(acct.AgeBreakdown.Old))

	if len(acct.SampledBuckets) > 0 {
		fmt.Fprintf(w, "Sampled buckets:    %s (figures are estimates)\n", strings.Join(acct.SampledBuckets, ", "))
	}
	if len(acct.PartialBuckets) > 0 {
		fmt.Fprintf(w, "Partial buckets:    %s (incomplete listings)\n", strings.Join(acct.PartialBuckets, ", "))
	}
	for _, f := range acct.FailedBuckets {
		fmt.Fprintf(w, "Failed bucket:      %s: %s\n", f.Bucket, f.Error)
	}

	fmt.Fprintf(w, "\n%s\n", FormatHeader("Storage Classes"))
	tw := newTable(w)
	fmt.Fprintln(tw, "CLASS\tOBJECTS\tSIZE\tSHARE")
	for _, class := range sortedKeys(acct.StorageClassBreakdown) {
		t := acct.StorageClassBreakdown[class]
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", class, FormatCount(t.Count), FormatBytes(t.Bytes), FormatPercent(t.Bytes, acct.TotalBytes))
	}
	tw.Flush()

	fmt.Fprintf(w, "\n%s\n", FormatHeader("Regions"))
	tw = newTable(w)
	fmt.Fprintln(tw, "REGION\tBUCKETS\tOBJECTS\tSIZE")
	regions := make([]string, 0, len(acct.RegionBreakdown))
	for r := range acct.RegionBreakdown {
		regions = append(regions, r)
	}
	sort.Strings(regions)
	for _, r := range regions {
		s := acct.RegionBreakdown[r]
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", r, s.Buckets, FormatCount(s.Count), FormatBytes(s.Bytes))
	}
	tw.Flush()

	if len(acct.SizeDistribution) > 0 {
		fmt.Fprintf(w, "\n%s\n", FormatHeader("Object Sizes"))
		tw = newTable(w)
		fmt.Fprintln(tw, "RANGE\tOBJECTS\tSHARE")
		for _, b := range acct.SizeDistribution {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", b.Label, FormatCount(b.Count), FormatPercent(b.Count, acct.TotalObjects))
		}
		tw.Flush()
	}
}

// PrintTopExtensions writes both extension rankings.
func PrintTopExtensions(w io.Writer, acct types.AccountSummary) {
	rank := func(title string, stats []types.ExtensionStat) {
		fmt.Fprintf(w, "\n%s\n", FormatHeader(title))
		tw := newTable(w)
		fmt.Fprintln(tw, "#\tEXTENSION\tOBJECTS\tSIZE")
		for i, s := range stats {
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", i+1, ExtensionLabel(s.Extension), FormatCount(s.Count), FormatBytes(s.Bytes))
		}
		tw.Flush()
	}
	rank(fmt.Sprintf("Top %d Extensions by Count", acct.TopN), acct.TopExtensionsByCount)
	rank(fmt.Sprintf("Top %d Extensions by Size", acct.TopN), acct.TopExtensionsByBytes)
}

// PrintTopBuckets writes the n largest buckets by metric.
func PrintTopBuckets(w io.Writer, buckets []types.BucketSummary, n int, by aggregate.Metric) {
	top := aggregate.TopBuckets(buckets, n, by)

	fmt.Fprintf(w, "\n%s\n", FormatHeader(fmt.Sprintf("Top %d Buckets by %s", n, by)))
	tw := newTable(w)
	fmt.Fprintln(tw, "#\tBUCKET\tREGION\tOBJECTS\tSIZE\tAVG SIZE\tMODE\tNOTE")
	for i, b := range top {
		note := ""
		if b.Partial {
			note = "partial: " + b.PartialReason
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			i+1, b.Name, b.Region,
			FormatCount(b.ObjectCount), FormatBytes(b.TotalBytes), FormatBytes(int64(b.AvgObjectSize)),
			b.Sampling.Mode, note)
	}
	tw.Flush()
}

// PrintRunReport writes the outcome of every bucket of a collection run.
func PrintRunReport(w io.Writer, report *inventory.RunReport) {
	fmt.Fprintf(w, "\n%s\n", FormatHeader("Collection Run "+report.RunID))
	tw := newTable(w)
	fmt.Fprintln(tw, "BUCKET\tREGION\tSTATUS\tMODE\tRECORDS\tOBSERVED\tDURATION\tERROR")
	for _, o := range report.Outcomes {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			o.Bucket, o.Region, o.Status, o.Sampling.Mode,
			FormatCount(o.Emitted), FormatCount(o.Sampling.ObservedCount),
			o.Duration.Round(time.Millisecond), o.Error)
	}
	tw.Flush()

	incomplete := report.Incomplete()
	fmt.Fprintf(w, "\n%d bucket(s) collected, %d incomplete, %s records written\n",
		len(report.Outcomes)-len(incomplete), len(incomplete), FormatCount(report.Emitted()))
}

func sortedKeys(m map[string]types.Tally) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
