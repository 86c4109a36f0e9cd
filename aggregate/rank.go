package aggregate

import (
	"fmt"
	"sort"

	"github.com/fraclad/s3-insight/types"
)

// Metric selects what a ranking sorts on
type Metric string

const (
	ByCount   Metric = "count"
	ByBytes   Metric = "bytes"
	ByAvgSize Metric = "avg_size"
)

// ParseMetric accepts the metric names used on the command line.
func ParseMetric(s string) (Metric, error) {
	switch s {
	case "count", "object_count":
		return ByCount, nil
	case "bytes", "total_bytes", "size":
		return ByBytes, nil
	case "avg_size", "avg_object_size":
		return ByAvgSize, nil
	default:
		return "", fmt.Errorf("unknown ranking metric %q", s)
	}
}

// TopExtensions ranks an extension breakdown descending on metric, ties
// broken by extension ascending, and keeps the first n. ByAvgSize is not
// meaningful for extensions and ranks by bytes.
func TopExtensions(breakdown map[string]types.Tally, n int, by Metric) []types.ExtensionStat {
	stats := make([]types.ExtensionStat, 0, len(breakdown))
	for ext, t := range breakdown {
		stats = append(stats, types.ExtensionStat{Extension: ext, Count: t.Count, Bytes: t.Bytes})
	}

	sort.Slice(stats, func(i, j int) bool {
		a, b := stats[i], stats[j]
		av, bv := a.Bytes, b.Bytes
		if by == ByCount {
			av, bv = a.Count, b.Count
		}
		if av != bv {
			return av > bv
		}
		return a.Extension < b.Extension
	})

	if n >= 0 && len(stats) > n {
		stats = stats[:n]
	}
	return stats
}

// TopBuckets returns the n largest buckets by metric, ties broken by name
// ascending. The input is not modified.
func TopBuckets(buckets []types.BucketSummary, n int, by Metric) []types.BucketSummary {
	out := make([]types.BucketSummary, len(buckets))
	copy(out, buckets)

	rank := func(a, b types.BucketSummary) (bool, bool) {
		switch by {
		case ByCount:
			return a.ObjectCount > b.ObjectCount, a.ObjectCount == b.ObjectCount
		case ByAvgSize:
			return a.AvgObjectSize > b.AvgObjectSize, a.AvgObjectSize == b.AvgObjectSize
		default:
			return a.TotalBytes > b.TotalBytes, a.TotalBytes == b.TotalBytes
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		greater, equal := rank(out[i], out[j])
		if equal {
			return out[i].Name < out[j].Name
		}
		return greater
	})

	if n >= 0 && len(out) > n {
		out = out[:n]
	}
	return out
}
