// Package aggregate turns a record stream into per-bucket and account-wide
// summaries in a single pass. Memory grows with the number of buckets and
// distinct classification keys, never with the number of objects.
package aggregate

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/fraclad/s3-insight/types"
)

// Defaults applied when a Config field is zero
const (
	DefaultAgeThreshold = 90 * 24 * time.Hour
	DefaultTopN         = 10
)

const (
	unknownRegion = "unknown"
	noTrailer     = "no bucket trailer"
)

// Config controls classification and ranking.
type Config struct {
	// AgeThreshold separates RECENT from OLD objects.
	AgeThreshold time.Duration
	// TopN is the length of the extension rankings.
	TopN int
	// CollectionTime is what ages are measured against when the stream
	// carries no run header.
	CollectionTime time.Time
}

func (c Config) withDefaults() Config {
	if c.AgeThreshold <= 0 {
		c.AgeThreshold = DefaultAgeThreshold
	}
	if c.TopN <= 0 {
		c.TopN = DefaultTopN
	}
	if c.CollectionTime.IsZero() {
		c.CollectionTime = time.Now()
	}
	c.CollectionTime = c.CollectionTime.UTC()
	return c
}

// Result is the outcome of aggregation.
type Result struct {
	Buckets []types.BucketSummary `json:"buckets"`
	Account types.AccountSummary  `json:"account"`
}

// tally holds the exact running figures of one bucket. Averages and
// extrapolation are only derived in Finalize.
type tally struct {
	name       string
	trailer    *types.BucketTrailer
	count      int64
	bytes      int64
	classes    map[string]types.Tally
	extensions map[string]types.Tally
	recent     int64
	old        int64
	sizes      sizeCounts
	earliest   time.Time
	latest     time.Time
}

func newTally(name string) *tally {
	return &tally{
		name:       name,
		classes:    make(map[string]types.Tally),
		extensions: make(map[string]types.Tally),
	}
}

func (t *tally) merge(o *tally) {
	t.count += o.count
	t.bytes += o.bytes
	for k, v := range o.classes {
		cur := t.classes[k]
		cur.Add(v)
		t.classes[k] = cur
	}
	for k, v := range o.extensions {
		cur := t.extensions[k]
		cur.Add(v)
		t.extensions[k] = cur
	}
	t.recent += o.recent
	t.old += o.old
	t.sizes.add(o.sizes)
	if !o.earliest.IsZero() && (t.earliest.IsZero() || o.earliest.Before(t.earliest)) {
		t.earliest = o.earliest
	}
	if o.latest.After(t.latest) {
		t.latest = o.latest
	}
}

// Engine accumulates records. It is not safe for concurrent use: parallel
// collectors each own an Engine and Merge them once they are done.
type Engine struct {
	cfg     Config
	buckets map[string]*tally
	records int64
}

// New creates an empty engine.
func New(cfg Config) *Engine {
	return &Engine{
		cfg:     cfg.withDefaults(),
		buckets: make(map[string]*tally),
	}
}

// SetCollectionTime fixes the instant ages are measured against. It must be
// called before the first record is added.
func (e *Engine) SetCollectionTime(t time.Time) {
	e.cfg.CollectionTime = t.UTC()
}

// CollectionTime returns the instant ages are measured against.
func (e *Engine) CollectionTime() time.Time {
	return e.cfg.CollectionTime
}

// Records returns the number of object records added.
func (e *Engine) Records() int64 {
	return e.records
}

func (e *Engine) bucket(name string) *tally {
	t, ok := e.buckets[name]
	if !ok {
		t = newTally(name)
		e.buckets[name] = t
	}
	return t
}

// Add folds one record into its bucket's tallies. A record without a bucket
// or with a negative size is rejected with a *types.MalformedRecordError
// carrying pos.
func (e *Engine) Add(pos int64, rec types.ObjectRecord) error {
	switch {
	case rec.Bucket == "":
		return &types.MalformedRecordError{Position: pos, Key: rec.Key, Reason: "missing bucket"}
	case rec.SizeBytes < 0:
		return &types.MalformedRecordError{
			Position: pos,
			Bucket:   rec.Bucket,
			Key:      rec.Key,
			Reason:   fmt.Sprintf("negative size %d", rec.SizeBytes),
		}
	}

	class := rec.StorageClass
	if class == "" {
		class = types.DefaultStorageClass
	}

	t := e.bucket(rec.Bucket)
	t.count++
	t.bytes += rec.SizeBytes

	c := t.classes[class]
	c.Add(types.Tally{Count: 1, Bytes: rec.SizeBytes})
	t.classes[class] = c

	x := t.extensions[rec.Extension]
	x.Add(types.Tally{Count: 1, Bytes: rec.SizeBytes})
	t.extensions[rec.Extension] = x

	if e.cfg.CollectionTime.Sub(rec.LastModified) > e.cfg.AgeThreshold {
		t.old++
	} else {
		t.recent++
	}
	t.sizes[sizeClass(rec.SizeBytes)]++

	if !rec.LastModified.IsZero() {
		lm := rec.LastModified.UTC()
		if t.earliest.IsZero() || lm.Before(t.earliest) {
			t.earliest = lm
		}
		if lm.After(t.latest) {
			t.latest = lm
		}
	}

	e.records++
	return nil
}

// SetBucket records the trailer that closes a bucket. A second trailer for
// the same bucket, or a SAMPLED trailer whose factor is below 1, is
// malformed.
func (e *Engine) SetBucket(pos int64, trailer types.BucketTrailer) error {
	name := trailer.Bucket.Name
	if name == "" {
		return &types.MalformedRecordError{Position: pos, Reason: "bucket trailer without name"}
	}
	if trailer.Sampling.Sampled() && trailer.Sampling.ExtrapolationFactor < 1 {
		return &types.MalformedRecordError{
			Position: pos,
			Bucket:   name,
			Reason:   fmt.Sprintf("extrapolation factor %g is below 1", trailer.Sampling.ExtrapolationFactor),
		}
	}
	t := e.bucket(name)
	if t.trailer != nil {
		return &types.MalformedRecordError{Position: pos, Bucket: name, Reason: "duplicate bucket trailer"}
	}
	t.trailer = &trailer
	return nil
}

// Merge folds another engine's tallies into e. Both engines must share a
// collection time; other must not be used afterwards.
func (e *Engine) Merge(other *Engine) error {
	for name, o := range other.buckets {
		t, ok := e.buckets[name]
		if !ok {
			e.buckets[name] = o
			continue
		}
		if t.trailer != nil && o.trailer != nil {
			return fmt.Errorf("bucket %s was closed by more than one collector", name)
		}
		if t.trailer == nil {
			t.trailer = o.trailer
		}
		t.merge(o)
	}
	e.records += other.records
	return nil
}

// Finalize derives the summaries. It does not modify the engine, so it can
// be called any number of times with the same result.
func (e *Engine) Finalize() *Result {
	names := make([]string, 0, len(e.buckets))
	for name := range e.buckets {
		names = append(names, name)
	}
	sort.Strings(names)

	account := types.AccountSummary{
		CollectedAt:           e.cfg.CollectionTime,
		StorageClassBreakdown: make(map[string]types.Tally),
		ExtensionBreakdown:    make(map[string]types.Tally),
		TopN:                  e.cfg.TopN,
		RegionBreakdown:       make(map[string]types.RegionStats),
		SampledBuckets:        []string{},
		PartialBuckets:        []string{},
		FailedBuckets:         []types.BucketFailure{},
	}
	var sizes sizeCounts

	buckets := make([]types.BucketSummary, 0, len(names))
	for _, name := range names {
		t := e.buckets[name]
		if t.trailer != nil && t.trailer.Status == types.StatusFailed && t.count == 0 {
			account.FailedBuckets = append(account.FailedBuckets, types.BucketFailure{Bucket: name, Error: t.trailer.Error})
			continue
		}

		s := e.summarize(t)
		buckets = append(buckets, s)

		account.BucketCount++
		account.TotalObjects += s.ObjectCount
		account.TotalBytes += s.TotalBytes
		for k, v := range s.StorageClassBreakdown {
			cur := account.StorageClassBreakdown[k]
			cur.Add(v)
			account.StorageClassBreakdown[k] = cur
		}
		for k, v := range s.ExtensionBreakdown {
			cur := account.ExtensionBreakdown[k]
			cur.Add(v)
			account.ExtensionBreakdown[k] = cur
		}
		region := account.RegionBreakdown[s.Region]
		region.Buckets++
		region.Count += s.ObjectCount
		region.Bytes += s.TotalBytes
		account.RegionBreakdown[s.Region] = region

		account.AgeBreakdown.Recent += s.AgeBreakdown.Recent
		account.AgeBreakdown.Old += s.AgeBreakdown.Old
		for i, b := range s.SizeDistribution {
			sizes[i] += b.Count
		}
		account.EstimatedMonthlyCost += s.EstimatedMonthlyCost

		if s.Sampling.Sampled() {
			account.SampledBuckets = append(account.SampledBuckets, name)
		}
		if s.Partial {
			account.PartialBuckets = append(account.PartialBuckets, name)
		}
	}

	account.AvgObjectSize = average(account.TotalBytes, account.TotalObjects)
	account.SizeDistribution = sizes.histogram(1)
	account.TopExtensionsByCount = TopExtensions(account.ExtensionBreakdown, e.cfg.TopN, ByCount)
	account.TopExtensionsByBytes = TopExtensions(account.ExtensionBreakdown, e.cfg.TopN, ByBytes)

	return &Result{Buckets: buckets, Account: account}
}

func (e *Engine) summarize(t *tally) types.BucketSummary {
	s := types.BucketSummary{
		Name:        t.name,
		Region:      unknownRegion,
		Sampling:    types.FullDecision(),
		RecordsSeen: t.count,
		Status:      types.StatusPartial,
		DateRange:   types.DateRange{Earliest: t.earliest, Latest: t.latest},
	}
	s.Sampling.ObservedCount = t.count

	if t.trailer == nil {
		s.Partial = true
		s.PartialReason = noTrailer
	} else {
		s.Region = t.trailer.Bucket.Region
		if s.Region == "" {
			s.Region = unknownRegion
		}
		s.CreationDate = t.trailer.Bucket.CreationDate
		s.Sampling = t.trailer.Sampling
		if s.Sampling.Mode == "" {
			s.Sampling = types.FullDecision()
			s.Sampling.ObservedCount = t.count
		}
		s.Status = t.trailer.Status
		if s.Status == "" {
			s.Status = types.StatusComplete
		}
		if s.Status != types.StatusComplete {
			s.Partial = true
			s.PartialReason = t.trailer.Error
			if s.PartialReason == "" {
				s.PartialReason = string(s.Status)
			}
		}
	}

	factor := 1.0
	if s.Sampling.Sampled() {
		factor = s.Sampling.ExtrapolationFactor
	}

	s.ObjectCount = scale(t.count, factor)
	s.TotalBytes = scale(t.bytes, factor)
	s.AvgObjectSize = average(s.TotalBytes, s.ObjectCount)
	s.StorageClassBreakdown = scaleTallies(t.classes, factor)
	s.ExtensionBreakdown = scaleTallies(t.extensions, factor)
	s.AgeBreakdown = types.AgeBreakdown{Recent: scale(t.recent, factor), Old: scale(t.old, factor)}
	s.SizeDistribution = t.sizes.histogram(factor)
	s.EstimatedMonthlyCost = EstimateMonthlyCost(s.StorageClassBreakdown)
	return s
}

// scale multiplies v by factor and rounds to the nearest integer. A factor
// of 1 returns v unchanged.
func scale(v int64, factor float64) int64 {
	if factor == 1 {
		return v
	}
	return int64(math.Round(float64(v) * factor))
}

func scaleTallies(in map[string]types.Tally, factor float64) map[string]types.Tally {
	out := make(map[string]types.Tally, len(in))
	for k, v := range in {
		out[k] = types.Tally{Count: scale(v.Count, factor), Bytes: scale(v.Bytes, factor)}
	}
	return out
}

func average(bytes, count int64) float64 {
	if count == 0 {
		return 0
	}
	return float64(bytes) / float64(count)
}
