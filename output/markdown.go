package output

import (
	"bytes"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/fraclad/s3-insight/aggregate"
	"github.com/fraclad/s3-insight/types"
)

// ReportFile is the human-readable report written by Writer.
const ReportFile = "report.md"

var mdEscaper = strings.NewReplacer("|", `\|`, "\n", " ")

func mdCell(s string) string {
	return mdEscaper.Replace(s)
}

func mdTable(buf *bytes.Buffer, header ...string) {
	fmt.Fprintf(buf, "| %s |\n", strings.Join(header, " | "))
	seps := make([]string, len(header))
	for i := range seps {
		seps[i] = "---"
	}
	fmt.Fprintf(buf, "|%s|\n", strings.Join(seps, "|"))
}

func mdRow(buf *bytes.Buffer, cells ...string) {
	for i, c := range cells {
		cells[i] = mdCell(c)
	}
	fmt.Fprintf(buf, "| %s |\n", strings.Join(cells, " | "))
}

func writeMarkdown(path string, res *aggregate.Result) error {
	acct := res.Account
	var buf bytes.Buffer

	buf.WriteString("# S3 Inventory Report\n\n")
	fmt.Fprintf(&buf, "**Collected:** %s\n\n", acct.CollectedAt.UTC().Format("2006-01-02 15:04:05 UTC"))

	buf.WriteString("## Summary\n\n")
	fmt.Fprintf(&buf, "- **Buckets:** %s\n", FormatCount(acct.BucketCount))
	fmt.Fprintf(&buf, "- **Objects:** %s\n", FormatCount(acct.TotalObjects))
	fmt.Fprintf(&buf, "- **Total size:** %s\n", FormatBytes(acct.TotalBytes))
	fmt.Fprintf(&buf, "- **Average object size:** %s\n", FormatBytes(int64(acct.AvgObjectSize)))
	fmt.Fprintf(&buf, "- **Estimated monthly cost:** %s\n", FormatCost(acct.EstimatedMonthlyCost))
	if len(acct.SampledBuckets) > 0 {
		fmt.Fprintf(&buf, "- **Sampled buckets:** %s (figures are estimates)\n", mdCell(strings.Join(acct.SampledBuckets, ", ")))
	}
	if len(acct.PartialBuckets) > 0 {
		fmt.Fprintf(&buf, "- **Partial buckets:** %s\n", mdCell(strings.Join(acct.PartialBuckets, ", ")))
	}
	for _, f := range acct.FailedBuckets {
		fmt.Fprintf(&buf, "- **Failed bucket:** %s: %s\n", mdCell(f.Bucket), mdCell(f.Error))
	}
	buf.WriteString("\n")

	if len(acct.StorageClassBreakdown) > 0 {
		buf.WriteString("## Storage Classes\n\n")
		mdTable(&buf, "Storage Class", "Objects", "Size", "% Objects", "% Size")
		for _, class := range sortedKeys(acct.StorageClassBreakdown) {
			t := acct.StorageClassBreakdown[class]
			mdRow(&buf, class, FormatCount(t.Count), FormatBytes(t.Bytes),
				FormatPercent(t.Count, acct.TotalObjects), FormatPercent(t.Bytes, acct.TotalBytes))
		}
		buf.WriteString("\n")
	}

	if len(acct.TopExtensionsByBytes) > 0 {
		buf.WriteString("## Top Extensions\n\n")
		mdTable(&buf, "Extension", "Objects", "Size", "% Objects", "% Size")
		for _, s := range acct.TopExtensionsByBytes {
			mdRow(&buf, ExtensionLabel(s.Extension), FormatCount(s.Count), FormatBytes(s.Bytes),
				FormatPercent(s.Count, acct.TotalObjects), FormatPercent(s.Bytes, acct.TotalBytes))
		}
		buf.WriteString("\n")
	}

	if aged := acct.AgeBreakdown.Recent + acct.AgeBreakdown.Old; aged > 0 {
		buf.WriteString("## Object Age\n\n")
		mdTable(&buf, "Age", "Objects", "Percentage")
		mdRow(&buf, "Recent", FormatCount(acct.AgeBreakdown.Recent), FormatPercent(acct.AgeBreakdown.Recent, aged))
		mdRow(&buf, "Old", FormatCount(acct.AgeBreakdown.Old), FormatPercent(acct.AgeBreakdown.Old, aged))
		buf.WriteString("\n")
	}

	if len(acct.RegionBreakdown) > 0 {
		buf.WriteString("## Regions\n\n")
		mdTable(&buf, "Region", "Buckets", "Objects", "Size")
		regions := make([]string, 0, len(acct.RegionBreakdown))
		for r := range acct.RegionBreakdown {
			regions = append(regions, r)
		}
		sort.Strings(regions)
		for _, r := range regions {
			s := acct.RegionBreakdown[r]
			mdRow(&buf, r, fmt.Sprint(s.Buckets), FormatCount(s.Count), FormatBytes(s.Bytes))
		}
		buf.WriteString("\n")
	}

	buf.WriteString("## Buckets\n\n")
	mdTable(&buf, "Bucket", "Region", "Objects", "Size", "Avg Size", "Storage Classes", "Status")
	for _, b := range aggregate.TopBuckets(res.Buckets, len(res.Buckets), aggregate.ByBytes) {
		mdRow(&buf, b.Name, b.Region, FormatCount(b.ObjectCount), FormatBytes(b.TotalBytes),
			FormatBytes(int64(b.AvgObjectSize)), strings.Join(sortedKeys(b.StorageClassBreakdown), ", "), bucketStatus(b))
	}

	return os.WriteFile(path, buf.Bytes(), 0644)
}

func bucketStatus(b types.BucketSummary) string {
	status := string(b.Status)
	if b.Sampling.Sampled() {
		status += fmt.Sprintf(" (sampled x%.2f)", b.Sampling.ExtrapolationFactor)
	}
	if b.Partial && b.PartialReason != "" && b.PartialReason != string(b.Status) {
		status += ": " + b.PartialReason
	}
	return status
}
