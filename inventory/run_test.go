package inventory

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/smithy-go"
	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/fraclad/s3-insight/aggregate"
	"github.com/fraclad/s3-insight/aws"
	"github.com/fraclad/s3-insight/metrics"
	"github.com/fraclad/s3-insight/sampling"
	"github.com/fraclad/s3-insight/stream"
	"github.com/fraclad/s3-insight/types"
)

type mockLister struct {
	mock.Mock
}

func (m *mockLister) ListBuckets(ctx context.Context) ([]types.BucketMeta, error) {
	args := m.Called(ctx)
	buckets, _ := args.Get(0).([]types.BucketMeta)
	return buckets, args.Error(1)
}

func (m *mockLister) BucketRegion(ctx context.Context, bucket string) (string, error) {
	args := m.Called(ctx, bucket)
	return args.String(0), args.Error(1)
}

func (m *mockLister) ListPage(ctx context.Context, req aws.PageRequest) (*aws.Page, error) {
	args := m.Called(ctx, req.Bucket)
	page, _ := args.Get(0).(*aws.Page)
	return page, args.Error(1)
}

func TestRun_WritesStreamAndSummary(t *testing.T) {
	lister := newFakeLister()
	lister.addBucket("alpha", "us-east-1", 2300)
	lister.addBucket("beta", "eu-west-1", 40)
	lister.addBucket("empty", "us-east-1", 0)
	lister.addBucket("huge", "us-west-2", 5000)

	opts := testOptions(t)
	opts.Policy = sampling.Policy{Threshold: 3000, SampleSize: 1000}
	opts.Parallelism = 3
	opts.Metrics = metrics.New()
	opts.Version = "test"
	c := NewCollector(lister, opts)

	var buf bytes.Buffer
	w := stream.NewWriter(&buf)
	buckets, err := c.ListBuckets(context.Background())
	require.NoError(t, err)

	report, err := c.Run(context.Background(), buckets, w)
	require.NoError(t, err)

	assert.NotEmpty(t, report.RunID)
	assert.True(t, report.CollectedAt.Equal(collectedAt))
	require.Len(t, report.Outcomes, 4)
	assert.Empty(t, report.Incomplete())
	assert.Equal(t, int64(2300+40+1000), report.Emitted())
	assert.Equal(t, int64(2300+40+1000), w.Objects())

	byName := make(map[string]BucketOutcome)
	for _, o := range report.Outcomes {
		byName[o.Bucket] = o
	}
	assert.Equal(t, types.SamplingSampled, byName["huge"].Sampling.Mode)
	assert.Equal(t, 5.0, byName["huge"].Sampling.ExtrapolationFactor)
	assert.Equal(t, types.SamplingFull, byName["alpha"].Sampling.Mode)

	acct := report.Summary.Account
	assert.Equal(t, int64(4), acct.BucketCount)
	assert.Equal(t, int64(2300+40+5000), acct.TotalObjects)
	assert.Equal(t, []string{"huge"}, acct.SampledBuckets)

	// the stream on disk summarizes to exactly what the workers merged
	fromStream, err := aggregate.Aggregate(context.Background(), stream.NewReader(&buf), aggregate.Config{})
	require.NoError(t, err)
	if diff := cmp.Diff(report.Summary, fromStream); diff != "" {
		t.Errorf("stream summary differs from run summary (-run +stream):\n%s", diff)
	}

	series, err := testutil.GatherAndCount(opts.Metrics.Registry(), "s3insight_bucket_objects")
	require.NoError(t, err)
	assert.Equal(t, 4, series)
}

func TestRun_RegionFailureIsolated(t *testing.T) {
	m := &mockLister{}
	m.On("BucketRegion", mock.Anything, "locked").
		Return("", &types.APIError{Op: "GetBucketLocation", Bucket: "locked", Err: errors.New("AccessDenied")})
	m.On("ListPage", mock.Anything, "open").
		Return(&aws.Page{Objects: []types.ObjectRecord{
			types.NewObjectRecord("open", "a.txt", 3, "", collectedAt),
		}}, nil)

	c := NewCollector(m, testOptions(t))
	var buf bytes.Buffer
	report, err := c.Run(context.Background(), []types.BucketMeta{
		{Name: "locked"},
		{Name: "open", Region: "us-east-1"},
	}, stream.NewWriter(&buf))
	require.NoError(t, err)

	assert.Equal(t, types.StatusFailed, report.Outcomes[0].Status)
	assert.Contains(t, report.Outcomes[0].Error, "AccessDenied")
	assert.Equal(t, types.StatusComplete, report.Outcomes[1].Status)
	require.Len(t, report.Incomplete(), 1)

	assert.Equal(t, []types.BucketFailure{{Bucket: "locked", Error: report.Outcomes[0].Error}}, report.Summary.Account.FailedBuckets)
	assert.Equal(t, int64(1), report.Summary.Account.BucketCount)
	m.AssertExpectations(t)
	m.AssertNotCalled(t, "ListPage", mock.Anything, "locked")
}

func TestRun_AuthErrorAborts(t *testing.T) {
	m := &mockLister{}
	m.On("ListPage", mock.Anything, mock.Anything).
		Return(nil, &smithy.GenericAPIError{Code: "ExpiredToken", Message: "token expired"})

	opts := testOptions(t)
	opts.Parallelism = 1
	c := NewCollector(m, opts)

	var buf bytes.Buffer
	report, err := c.Run(context.Background(), []types.BucketMeta{
		{Name: "first", Region: "us-east-1"},
		{Name: "second", Region: "us-east-1"},
	}, stream.NewWriter(&buf))

	var authErr *types.AuthError
	require.ErrorAs(t, err, &authErr)
	require.NotNil(t, report)
	assert.Equal(t, types.StatusFailed, report.Outcomes[0].Status)
	assert.Equal(t, StatusSkipped, report.Outcomes[1].Status)
	m.AssertNumberOfCalls(t, "ListPage", 1)
}

func TestRun_DeadlineMarksBucketsPartial(t *testing.T) {
	lister := newFakeLister()
	lister.addBucket("one", "us-east-1", 10)
	lister.addBucket("two", "us-east-1", 10)
	c := NewCollector(lister, testOptions(t))

	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()

	var buf bytes.Buffer
	report, err := c.Run(ctx, lister.buckets, stream.NewWriter(&buf))
	require.NoError(t, err)
	require.Len(t, report.Incomplete(), 2)
	for _, o := range report.Outcomes {
		assert.Equal(t, types.StatusPartial, o.Status)
		assert.Contains(t, o.Error, "deadline exceeded")
	}

	res, err := aggregate.Aggregate(context.Background(), stream.NewReader(&buf), aggregate.Config{})
	require.NoError(t, err)
	assert.Equal(t, []string{"one", "two"}, res.Account.PartialBuckets)
}

func TestRun_LimiterPastDeadlineMarksBucketsPartial(t *testing.T) {
	lister := newFakeLister()
	lister.addBucket("never", "us-east-1", 10)

	opts := testOptions(t)
	opts.Limiter = rate.NewLimiter(rate.Every(10*time.Second), 1)
	require.True(t, opts.Limiter.Allow())
	c := NewCollector(lister, opts)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	var buf bytes.Buffer
	report, err := c.Run(ctx, lister.buckets, stream.NewWriter(&buf))
	require.NoError(t, err)
	require.Len(t, report.Outcomes, 1)
	outcome := report.Outcomes[0]
	assert.Equal(t, types.StatusPartial, outcome.Status)
	assert.Contains(t, outcome.Error, "deadline exceeded")
	assert.Zero(t, lister.calls["never"])

	res, err := aggregate.Aggregate(context.Background(), stream.NewReader(&buf), aggregate.Config{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Account.BucketCount)
	assert.Empty(t, res.Account.FailedBuckets)
	assert.Equal(t, []string{"never"}, res.Account.PartialBuckets)
}
