// Package sampling decides when a bucket is too large to enumerate in full
// and keeps a uniform random sample of its listing.
package sampling

import (
	"github.com/fraclad/s3-insight/types"
)

// Policy bounds the work spent on one bucket. A bucket whose object count
// exceeds Threshold is sampled down to SampleSize records. SampleSize 0
// disables sampling entirely.
type Policy struct {
	Threshold  int64
	SampleSize int64
}

// Enabled reports whether the policy can ever choose SAMPLED.
func (p Policy) Enabled() bool {
	return p.SampleSize > 0
}

// Decide returns the decision for a bucket holding approximately
// approxCount objects. A count at or below the sample size is never sampled,
// since the sample would hold every object anyway.
func (p Policy) Decide(approxCount int64) types.SamplingDecision {
	if !p.Enabled() || approxCount <= p.Threshold || approxCount <= p.SampleSize {
		return types.FullDecision()
	}
	return types.SamplingDecision{
		Mode:                types.SamplingSampled,
		SampleSize:          p.SampleSize,
		ExtrapolationFactor: float64(approxCount) / float64(p.SampleSize),
	}
}

// Finalize recomputes d from what collection actually observed: observed
// objects were enumerated and emitted of them were kept. The factor of a
// SAMPLED decision becomes observed/emitted so that a stale estimate never
// survives collection.
func (p Policy) Finalize(d types.SamplingDecision, observed, emitted int64) types.SamplingDecision {
	if !d.Sampled() {
		out := types.FullDecision()
		out.ObservedCount = observed
		return out
	}

	factor := 1.0
	if emitted > 0 && observed > emitted {
		factor = float64(observed) / float64(emitted)
	}
	return types.SamplingDecision{
		Mode:                types.SamplingSampled,
		SampleSize:          p.SampleSize,
		ExtrapolationFactor: factor,
		ObservedCount:       observed,
	}
}
