package sampling

import (
	"testing"

	"github.com/fraclad/s3-insight/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPolicy_Decide(t *testing.T) {
	tests := []struct {
		name       string
		policy     Policy
		count      int64
		wantMode   types.SamplingMode
		wantSize   int64
		wantFactor float64
	}{
		{
			name:       "sampling disabled forces full",
			policy:     Policy{Threshold: 10, SampleSize: 0},
			count:      1_000_000_000,
			wantMode:   types.SamplingFull,
			wantFactor: 1.0,
		},
		{
			name:       "below threshold",
			policy:     Policy{Threshold: 100_000_000, SampleSize: 100_000},
			count:      99_999_999,
			wantMode:   types.SamplingFull,
			wantFactor: 1.0,
		},
		{
			name:       "at threshold",
			policy:     Policy{Threshold: 100_000_000, SampleSize: 100_000},
			count:      100_000_000,
			wantMode:   types.SamplingFull,
			wantFactor: 1.0,
		},
		{
			name:       "two hundred million objects",
			policy:     Policy{Threshold: 100_000_000, SampleSize: 100_000},
			count:      200_000_000,
			wantMode:   types.SamplingSampled,
			wantSize:   100_000,
			wantFactor: 2000.0,
		},
		{
			name:       "threshold below sample size",
			policy:     Policy{Threshold: 10, SampleSize: 100},
			count:      50,
			wantMode:   types.SamplingFull,
			wantFactor: 1.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := tt.policy.Decide(tt.count)
			assert.Equal(t, tt.wantMode, d.Mode)
			assert.Equal(t, tt.wantSize, d.SampleSize)
			assert.InDelta(t, tt.wantFactor, d.ExtrapolationFactor, 1e-9)
		})
	}
}

func TestPolicy_FinalizeRecomputesFactor(t *testing.T) {
	p := Policy{Threshold: 1000, SampleSize: 100}

	// Estimated 2000 up front, but the listing actually held 5000 objects.
	d := p.Decide(2000)
	require.True(t, d.Sampled())
	assert.InDelta(t, 20.0, d.ExtrapolationFactor, 1e-9)

	final := p.Finalize(d, 5000, 100)
	assert.Equal(t, types.SamplingSampled, final.Mode)
	assert.Equal(t, int64(100), final.SampleSize)
	assert.Equal(t, int64(5000), final.ObservedCount)
	assert.InDelta(t, 50.0, final.ExtrapolationFactor, 1e-9)
}

func TestPolicy_FinalizeFull(t *testing.T) {
	p := Policy{Threshold: 1000, SampleSize: 100}

	final := p.Finalize(p.Decide(10), 10, 10)
	assert.Equal(t, types.SamplingFull, final.Mode)
	assert.Equal(t, 1.0, final.ExtrapolationFactor)
	assert.Equal(t, int64(10), final.ObservedCount)
	assert.Zero(t, final.SampleSize)
}

func TestPolicy_FinalizeNothingEmitted(t *testing.T) {
	p := Policy{Threshold: 1, SampleSize: 1}
	d := types.SamplingDecision{Mode: types.SamplingSampled, SampleSize: 1, ExtrapolationFactor: 7}

	final := p.Finalize(d, 0, 0)
	assert.Equal(t, 1.0, final.ExtrapolationFactor)
}

func TestReservoir_FillsThenHoldsCapacity(t *testing.T) {
	r := NewReservoir[int](5, 42)
	for i := 0; i < 3; i++ {
		r.Offer(i)
	}
	assert.Equal(t, []int{0, 1, 2}, r.Items())

	for i := 3; i < 1000; i++ {
		r.Offer(i)
	}
	assert.Equal(t, int64(5), r.Len())
	assert.Equal(t, int64(1000), r.Seen())

	distinct := map[int]bool{}
	for _, v := range r.Items() {
		distinct[v] = true
	}
	assert.Len(t, distinct, 5)
}

func TestReservoir_ZeroCapacity(t *testing.T) {
	r := NewReservoir[int](0, 1)
	r.Offer(1)
	r.Offer(2)
	assert.Empty(t, r.Items())
	assert.Equal(t, int64(2), r.Seen())
}

func TestReservoir_SeedIsDeterministic(t *testing.T) {
	a := NewReservoir[int](10, 7)
	b := NewReservoir[int](10, 7)
	for i := 0; i < 10_000; i++ {
		a.Offer(i)
		b.Offer(i)
	}
	assert.Equal(t, a.Items(), b.Items())
}

// Every position of the stream must be kept with the same probability;
// a stride or prefix bias would show up as skewed hit counts.
func TestReservoir_Uniform(t *testing.T) {
	const (
		streamLen = 1000
		size      = 100
		trials    = 2000
	)

	hits := make([]int, streamLen)
	for trial := 1; trial <= trials; trial++ {
		r := NewReservoir[int](size, uint64(trial))
		for i := 0; i < streamLen; i++ {
			r.Offer(i)
		}
		for _, v := range r.Items() {
			hits[v]++
		}
	}

	// Expected hits per item: trials*size/streamLen = 200, stddev ~13.4.
	for i, h := range hits {
		if h < 110 || h > 290 {
			t.Fatalf("item %d kept %d times, want ~200", i, h)
		}
	}

	var firstHalf, secondHalf int
	for i, h := range hits {
		if i < streamLen/2 {
			firstHalf += h
		} else {
			secondHalf += h
		}
	}
	total := float64(firstHalf + secondHalf)
	assert.InDelta(t, 0.5, float64(firstHalf)/total, 0.02)
}
