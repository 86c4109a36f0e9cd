package aggregate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fraclad/s3-insight/types"
)

func TestTopExtensions(t *testing.T) {
	breakdown := map[string]types.Tally{
		"txt":  {Count: 10, Bytes: 100},
		"log":  {Count: 10, Bytes: 5000},
		"csv":  {Count: 10, Bytes: 20},
		"":     {Count: 3, Bytes: 9000},
		"json": {Count: 40, Bytes: 1},
	}

	byCount := TopExtensions(breakdown, 4, ByCount)
	require.Len(t, byCount, 4)
	assert.Equal(t, []string{"json", "csv", "log", "txt"}, extensions(byCount))

	byBytes := TopExtensions(breakdown, 10, ByBytes)
	assert.Equal(t, []string{"", "log", "txt", "csv", "json"}, extensions(byBytes))

	assert.Empty(t, TopExtensions(breakdown, 0, ByCount))
	assert.Empty(t, TopExtensions(nil, 10, ByCount))
}

func extensions(stats []types.ExtensionStat) []string {
	out := make([]string, len(stats))
	for i, s := range stats {
		out[i] = s.Extension
	}
	return out
}

func TestTopBuckets(t *testing.T) {
	buckets := []types.BucketSummary{
		{Name: "zeta", ObjectCount: 5, TotalBytes: 500, AvgObjectSize: 100},
		{Name: "alpha", ObjectCount: 5, TotalBytes: 50, AvgObjectSize: 10},
		{Name: "mid", ObjectCount: 1, TotalBytes: 500, AvgObjectSize: 500},
	}

	names := func(bs []types.BucketSummary) []string {
		out := make([]string, len(bs))
		for i, b := range bs {
			out[i] = b.Name
		}
		return out
	}

	assert.Equal(t, []string{"mid", "zeta", "alpha"}, names(TopBuckets(buckets, 10, ByBytes)))
	assert.Equal(t, []string{"alpha", "zeta"}, names(TopBuckets(buckets, 2, ByCount)))
	assert.Equal(t, []string{"mid"}, names(TopBuckets(buckets, 1, ByAvgSize)))
	assert.Equal(t, "zeta", buckets[0].Name, "input must not be reordered")
}

func TestParseMetric(t *testing.T) {
	for in, want := range map[string]Metric{
		"total_bytes":     ByBytes,
		"object_count":    ByCount,
		"avg_object_size": ByAvgSize,
		"count":           ByCount,
	} {
		got, err := ParseMetric(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseMetric("speed")
	assert.Error(t, err)
}

func TestEstimateMonthlyCost(t *testing.T) {
	cost := EstimateMonthlyCost(map[string]types.Tally{
		"STANDARD":     {Bytes: 10 * bytesPerGB},
		"DEEP_ARCHIVE": {Bytes: 1000 * bytesPerGB},
		"MYSTERY":      {Bytes: bytesPerGB},
	})
	assert.InDelta(t, 10*0.023+1000*0.00099+0.023, cost, 1e-9)
}

func TestSizeClass(t *testing.T) {
	assert.Equal(t, 0, sizeClass(0))
	assert.Equal(t, 0, sizeClass(kb-1))
	assert.Equal(t, 1, sizeClass(kb))
	assert.Equal(t, 2, sizeClass(mb))
	assert.Equal(t, 3, sizeClass(100*mb))
	assert.Equal(t, 4, sizeClass(gb))
	assert.Equal(t, 4, sizeClass(50*gb))
}
