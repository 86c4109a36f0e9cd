// Package metrics exposes collection and inventory figures as Prometheus
// metrics. A run writes them to a node-exporter textfile when asked to.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/fraclad/s3-insight/types"
)

const namespace = "s3insight"

// Page outcomes
const (
	OutcomeOK    = "ok"
	OutcomeRetry = "retry"
	OutcomeError = "error"
)

// Metrics holds every collector on a private registry. All methods are safe
// on a nil *Metrics, which records nothing.
type Metrics struct {
	registry *prometheus.Registry

	listPages         *prometheus.CounterVec
	listRetries       prometheus.Counter
	objectsListed     prometheus.Counter
	recordsEmitted    prometheus.Counter
	bucketCollections *prometheus.CounterVec
	pageDuration      prometheus.Histogram

	accountObjects prometheus.Gauge
	accountBytes   prometheus.Gauge
	bucketObjects  *prometheus.GaugeVec
	bucketBytes    *prometheus.GaugeVec
}

// New registers the collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		listPages: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "list_pages_total",
			Help:      "Object listing page requests by outcome",
		}, []string{"outcome"}),
		listRetries: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "list_retries_total",
			Help:      "Listing page requests retried after a transient failure",
		}),
		objectsListed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "objects_listed_total",
			Help:      "Objects enumerated from bucket listings",
		}),
		recordsEmitted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_emitted_total",
			Help:      "Object records written to the record stream",
		}),
		bucketCollections: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bucket_collections_total",
			Help:      "Bucket collections by final status",
		}, []string{"status"}),
		pageDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "list_page_duration_seconds",
			Help:      "Latency of a single listing page request",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		accountObjects: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "account_objects",
			Help:      "Estimated object count across the account",
		}),
		accountBytes: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "account_bytes",
			Help:      "Estimated bytes stored across the account",
		}),
		bucketObjects: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "bucket_objects",
			Help:      "Estimated object count per bucket",
		}, []string{"bucket", "region"}),
		bucketBytes: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "bucket_bytes",
			Help:      "Estimated bytes stored per bucket",
		}, []string{"bucket", "region"}),
	}
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObservePage records one listing request and how long it took.
func (m *Metrics) ObservePage(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.listPages.WithLabelValues(outcome).Inc()
	m.pageDuration.Observe(d.Seconds())
}

// Retried counts a page request that is about to be retried.
func (m *Metrics) Retried() {
	if m == nil {
		return
	}
	m.listRetries.Inc()
}

// AddListed counts objects returned by a listing page.
func (m *Metrics) AddListed(n int) {
	if m == nil {
		return
	}
	m.objectsListed.Add(float64(n))
}

// AddEmitted counts records written to the stream.
func (m *Metrics) AddEmitted(n int64) {
	if m == nil {
		return
	}
	m.recordsEmitted.Add(float64(n))
}

// BucketCollected counts a finished bucket by status.
func (m *Metrics) BucketCollected(status types.CollectionStatus) {
	if m == nil {
		return
	}
	m.bucketCollections.WithLabelValues(string(status)).Inc()
}

// ObserveSummary sets the inventory gauges from finished summaries.
func (m *Metrics) ObserveSummary(buckets []types.BucketSummary, account types.AccountSummary) {
	if m == nil {
		return
	}
	for _, b := range buckets {
		m.bucketObjects.WithLabelValues(b.Name, b.Region).Set(float64(b.ObjectCount))
		m.bucketBytes.WithLabelValues(b.Name, b.Region).Set(float64(b.TotalBytes))
	}
	m.accountObjects.Set(float64(account.TotalObjects))
	m.accountBytes.Set(float64(account.TotalBytes))
}

// WriteTextfile writes every metric in the text exposition format, for the
// node exporter textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("failed to write metrics to %s: %w", path, err)
	}
	return nil
}
