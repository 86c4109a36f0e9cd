package metrics

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fraclad/s3-insight/types"
)

func TestMetrics_Collection(t *testing.T) {
	m := New()

	m.ObservePage(OutcomeOK, 120*time.Millisecond)
	m.ObservePage(OutcomeRetry, time.Second)
	m.ObservePage(OutcomeRetry, time.Second)
	m.ObservePage(OutcomeError, time.Second)
	m.Retried()
	m.Retried()
	m.AddListed(1000)
	m.AddListed(10)
	m.AddEmitted(500)
	m.BucketCollected(types.StatusComplete)
	m.BucketCollected(types.StatusPartial)
	m.BucketCollected(types.StatusComplete)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.listPages.WithLabelValues(OutcomeOK)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.listPages.WithLabelValues(OutcomeRetry)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.listRetries))
	assert.Equal(t, 1010.0, testutil.ToFloat64(m.objectsListed))
	assert.Equal(t, 500.0, testutil.ToFloat64(m.recordsEmitted))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.bucketCollections.WithLabelValues("complete")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.bucketCollections.WithLabelValues("partial")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.pageDuration))
}

func TestMetrics_ObserveSummary(t *testing.T) {
	m := New()

	m.ObserveSummary([]types.BucketSummary{
		{Name: "a", Region: "us-east-1", ObjectCount: 100, TotalBytes: 4096},
		{Name: "b", Region: "eu-west-1", ObjectCount: 3, TotalBytes: 7},
	}, types.AccountSummary{TotalObjects: 103, TotalBytes: 4103})

	assert.Equal(t, 100.0, testutil.ToFloat64(m.bucketObjects.WithLabelValues("a", "us-east-1")))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.bucketBytes.WithLabelValues("b", "eu-west-1")))
	assert.Equal(t, 103.0, testutil.ToFloat64(m.accountObjects))
	assert.Equal(t, 4103.0, testutil.ToFloat64(m.accountBytes))
}

func TestMetrics_WriteTextfile(t *testing.T) {
	m := New()
	m.AddListed(42)

	path := filepath.Join(t.TempDir(), "s3insight.prom")
	require.NoError(t, m.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "s3insight_objects_listed_total 42")
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.ObservePage(OutcomeOK, time.Second)
		m.AddListed(1)
		m.Retried()
		m.AddEmitted(1)
		m.BucketCollected(types.StatusFailed)
		m.ObserveSummary(nil, types.AccountSummary{})
	})
	assert.NoError(t, m.WriteTextfile(filepath.Join(t.TempDir(), "x.prom")))
	assert.Nil(t, m.Registry())
}
