package aggregate

import "github.com/fraclad/s3-insight/types"

const (
	kb = 1024
	mb = 1024 * kb
	gb = 1024 * mb
)

var sizeRanges = []types.SizeBucket{
	{Label: "0-1KB", Min: 0, Max: kb},
	{Label: "1KB-1MB", Min: kb, Max: mb},
	{Label: "1MB-100MB", Min: mb, Max: 100 * mb},
	{Label: "100MB-1GB", Min: 100 * mb, Max: gb},
	{Label: "1GB+", Min: gb, Max: -1},
}

type sizeCounts [5]int64

// sizeClass returns the index of the range that size falls in.
func sizeClass(size int64) int {
	for i, r := range sizeRanges {
		if r.Max == -1 || size < r.Max {
			return i
		}
	}
	return len(sizeRanges) - 1
}

func (c *sizeCounts) add(other sizeCounts) {
	for i := range c {
		c[i] += other[i]
	}
}

// histogram renders counts as a size distribution, scaling each count by
// factor.
func (c sizeCounts) histogram(factor float64) []types.SizeBucket {
	out := make([]types.SizeBucket, len(sizeRanges))
	for i, r := range sizeRanges {
		r.Count = scale(c[i], factor)
		out[i] = r
	}
	return out
}
