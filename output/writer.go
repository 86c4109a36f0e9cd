package output

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/fraclad/s3-insight/aggregate"
)

// File names written by Writer
const (
	SummaryFile    = "summary.json"
	BucketsFile    = "buckets.csv"
	ExtensionsFile = "extensions.csv"
)

// Writer writes report files into one directory
type Writer struct {
	outputDir string
}

// NewWriter creates a writer for outputDir.
func NewWriter(outputDir string) *Writer {
	return &Writer{outputDir: outputDir}
}

// WriteReport writes the summary as JSON, per-bucket and per-extension CSV
// tables and a Markdown report, and returns the paths written.
func (w *Writer) WriteReport(res *aggregate.Result) ([]string, error) {
	if err := os.MkdirAll(w.outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	steps := []struct {
		name  string
		write func(string, *aggregate.Result) error
	}{
		{SummaryFile, writeSummaryJSON},
		{BucketsFile, writeBucketsCSV},
		{ExtensionsFile, writeExtensionsCSV},
		{ReportFile, writeMarkdown},
	}

	var written []string
	for _, s := range steps {
		path := filepath.Join(w.outputDir, s.name)
		if err := s.write(path, res); err != nil {
			return written, fmt.Errorf("failed to write %s: %w", path, err)
		}
		written = append(written, path)
	}
	return written, nil
}

// ReadSummary loads a summary written by WriteReport.
func ReadSummary(path string) (*aggregate.Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var res aggregate.Result
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, fmt.Errorf("failed to parse summary %s: %w", path, err)
	}
	return &res, nil
}

func writeSummaryJSON(path string, res *aggregate.Result) error {
	data, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0644)
}

func writeCSV(path string, header []string, rows [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	if err := cw.Write(header); err != nil {
		return err
	}
	if err := cw.WriteAll(rows); err != nil {
		return err
	}
	return f.Close()
}

func writeBucketsCSV(path string, res *aggregate.Result) error {
	header := []string{
		"bucket", "region", "creation_date", "object_count", "total_bytes", "avg_object_size",
		"recent_objects", "old_objects", "sampling_mode", "extrapolation_factor", "records_seen",
		"status", "partial_reason", "estimated_monthly_cost",
	}
	rows := make([][]string, 0, len(res.Buckets))
	for _, b := range res.Buckets {
		created := ""
		if !b.CreationDate.IsZero() {
			created = b.CreationDate.UTC().Format(time.RFC3339)
		}
		rows = append(rows, []string{
			b.Name,
			b.Region,
			created,
			strconv.FormatInt(b.ObjectCount, 10),
			strconv.FormatInt(b.TotalBytes, 10),
			strconv.FormatFloat(b.AvgObjectSize, 'f', 2, 64),
			strconv.FormatInt(b.AgeBreakdown.Recent, 10),
			strconv.FormatInt(b.AgeBreakdown.Old, 10),
			string(b.Sampling.Mode),
			strconv.FormatFloat(b.Sampling.ExtrapolationFactor, 'f', -1, 64),
			strconv.FormatInt(b.RecordsSeen, 10),
			string(b.Status),
			b.PartialReason,
			strconv.FormatFloat(b.EstimatedMonthlyCost, 'f', 4, 64),
		})
	}
	return writeCSV(path, header, rows)
}

func writeExtensionsCSV(path string, res *aggregate.Result) error {
	breakdown := res.Account.ExtensionBreakdown
	stats := aggregate.TopExtensions(breakdown, len(breakdown), aggregate.ByBytes)

	rows := make([][]string, 0, len(stats))
	for _, s := range stats {
		rows = append(rows, []string{
			s.Extension,
			strconv.FormatInt(s.Count, 10),
			strconv.FormatInt(s.Bytes, 10),
		})
	}
	return writeCSV(path, []string{"extension", "count", "bytes"}, rows)
}
