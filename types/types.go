package types

import (
	"strings"
	"time"
)

// DefaultStorageClass is reported for objects whose listing omits a class.
const DefaultStorageClass = "STANDARD"

// ObjectRecord is one observed or sampled object
type ObjectRecord struct {
	Bucket       string    `json:"bucket"`
	Key          string    `json:"key"`
	SizeBytes    int64     `json:"size_bytes"`
	StorageClass string    `json:"storage_class"`
	LastModified time.Time `json:"last_modified"`
	Extension    string    `json:"extension"`
}

// NewObjectRecord builds a normalized record: the storage class defaults to
// STANDARD, the timestamp is converted to UTC and the extension is derived
// from the key.
func NewObjectRecord(bucket, key string, size int64, storageClass string, lastModified time.Time) ObjectRecord {
	if storageClass == "" {
		storageClass = DefaultStorageClass
	}
	return ObjectRecord{
		Bucket:       bucket,
		Key:          key,
		SizeBytes:    size,
		StorageClass: storageClass,
		LastModified: lastModified.UTC(),
		Extension:    ExtensionOf(key),
	}
}

// ExtensionOf returns the lowercase suffix of the last path segment of key,
// without the dot. Directory markers, dotfiles and names ending in a dot have
// no extension.
func ExtensionOf(key string) string {
	if key == "" || strings.HasSuffix(key, "/") {
		return ""
	}
	base := key
	if i := strings.LastIndexByte(key, '/'); i >= 0 {
		base = key[i+1:]
	}
	dot := strings.LastIndexByte(base, '.')
	if dot <= 0 || dot == len(base)-1 {
		return ""
	}
	return strings.ToLower(base[dot+1:])
}

// BucketMeta holds the static facts about a bucket
type BucketMeta struct {
	Name         string    `json:"name"`
	Region       string    `json:"region"`
	CreationDate time.Time `json:"creation_date"`
}

// SamplingMode tells whether a bucket was enumerated fully or sampled
type SamplingMode string

const (
	SamplingFull    SamplingMode = "FULL"
	SamplingSampled SamplingMode = "SAMPLED"
)

// SamplingDecision is the per-bucket outcome of the sampling policy.
// SampleSize is 0 under FULL. ObservedCount is the number of objects actually
// enumerated and is only known once collection ends.
type SamplingDecision struct {
	Mode                SamplingMode `json:"mode"`
	SampleSize          int64        `json:"sample_size"`
	ExtrapolationFactor float64      `json:"extrapolation_factor"`
	ObservedCount       int64        `json:"observed_count"`
}

// FullDecision is the decision used for exhaustively enumerated buckets.
func FullDecision() SamplingDecision {
	return SamplingDecision{Mode: SamplingFull, ExtrapolationFactor: 1.0}
}

// Sampled reports whether statistics need extrapolation.
func (d SamplingDecision) Sampled() bool {
	return d.Mode == SamplingSampled
}

// CollectionStatus is the outcome of collecting one bucket
type CollectionStatus string

const (
	StatusComplete CollectionStatus = "complete"
	StatusPartial  CollectionStatus = "partial"
	StatusFailed   CollectionStatus = "failed"
)

// BucketTrailer closes a bucket's section of the record stream
type BucketTrailer struct {
	Bucket   BucketMeta       `json:"bucket"`
	Sampling SamplingDecision `json:"sampling"`
	Status   CollectionStatus `json:"status"`
	Error    string           `json:"error,omitempty"`
	Emitted  int64            `json:"emitted"`
}

// RunHeader opens a record stream. CollectedAt is the single collection
// timestamp that age classification is measured against.
type RunHeader struct {
	RunID       string    `json:"run_id"`
	CollectedAt time.Time `json:"collected_at"`
	Tool        string    `json:"tool"`
	Version     string    `json:"version,omitempty"`
}

// Tally holds a count and a byte total for one classification key
type Tally struct {
	Count int64 `json:"count"`
	Bytes int64 `json:"bytes"`
}

// Add accumulates other into t.
func (t *Tally) Add(other Tally) {
	t.Count += other.Count
	t.Bytes += other.Bytes
}

// AgeBreakdown splits objects by modification age
type AgeBreakdown struct {
	Recent int64 `json:"recent"`
	Old    int64 `json:"old"`
}

// SizeBucket represents a size range in the distribution histogram.
// Max of -1 means unbounded.
type SizeBucket struct {
	Label string `json:"label"`
	Min   int64  `json:"min"`
	Max   int64  `json:"max"`
	Count int64  `json:"count"`
}

// DateRange represents the earliest and latest modification dates
type DateRange struct {
	Earliest time.Time `json:"earliest"`
	Latest   time.Time `json:"latest"`
}

// BucketSummary contains the aggregated statistics for one bucket.
// Counts and bytes are extrapolated when Sampling is SAMPLED.
type BucketSummary struct {
	Name                  string           `json:"name"`
	Region                string           `json:"region"`
	CreationDate          time.Time        `json:"creation_date"`
	ObjectCount           int64            `json:"object_count"`
	TotalBytes            int64            `json:"total_bytes"`
	AvgObjectSize         float64          `json:"avg_object_size"`
	StorageClassBreakdown map[string]Tally `json:"storage_class_breakdown"`
	ExtensionBreakdown    map[string]Tally `json:"extension_breakdown"`
	AgeBreakdown          AgeBreakdown     `json:"age_breakdown"`
	SizeDistribution      []SizeBucket     `json:"size_distribution"`
	DateRange             DateRange        `json:"date_range"`
	Sampling              SamplingDecision `json:"sampling"`
	RecordsSeen           int64            `json:"records_seen"`
	Status                CollectionStatus `json:"status"`
	Partial               bool             `json:"partial"`
	PartialReason         string           `json:"partial_reason,omitempty"`
	EstimatedMonthlyCost  float64          `json:"estimated_monthly_cost"`
}

// ExtensionStat is one row of a top-N extension ranking
type ExtensionStat struct {
	Extension string `json:"extension"`
	Count     int64  `json:"count"`
	Bytes     int64  `json:"bytes"`
}

// RegionStats rolls up the buckets that live in one region
type RegionStats struct {
	Buckets int64 `json:"buckets"`
	Count   int64 `json:"count"`
	Bytes   int64 `json:"bytes"`
}

// BucketFailure names a bucket that produced no usable data
type BucketFailure struct {
	Bucket string `json:"bucket"`
	Error  string `json:"error"`
}

// AccountSummary rolls every BucketSummary up to account level
type AccountSummary struct {
	CollectedAt           time.Time              `json:"collected_at"`
	BucketCount           int64                  `json:"bucket_count"`
	TotalObjects          int64                  `json:"total_objects"`
	TotalBytes            int64                  `json:"total_bytes"`
	AvgObjectSize         float64                `json:"avg_object_size"`
	StorageClassBreakdown map[string]Tally       `json:"storage_class_breakdown"`
	ExtensionBreakdown    map[string]Tally       `json:"extension_breakdown"`
	TopN                  int                    `json:"top_n"`
	TopExtensionsByCount  []ExtensionStat        `json:"top_extensions_by_count"`
	TopExtensionsByBytes  []ExtensionStat        `json:"top_extensions_by_bytes"`
	RegionBreakdown       map[string]RegionStats `json:"region_breakdown"`
	AgeBreakdown          AgeBreakdown           `json:"age_breakdown"`
	SizeDistribution      []SizeBucket           `json:"size_distribution"`
	SampledBuckets        []string               `json:"sampled_buckets"`
	PartialBuckets        []string               `json:"partial_buckets"`
	FailedBuckets         []BucketFailure        `json:"failed_buckets"`
	EstimatedMonthlyCost  float64                `json:"estimated_monthly_cost"`
}
