// Package inventory collects object records from every bucket of an account,
// applying the sampling policy and retrying transient listing failures.
package inventory

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"iter"
	"sort"
	"time"

	"golang.org/x/time/rate"

	"github.com/fraclad/s3-insight/aws"
	"github.com/fraclad/s3-insight/logger"
	"github.com/fraclad/s3-insight/metrics"
	"github.com/fraclad/s3-insight/sampling"
	"github.com/fraclad/s3-insight/types"
)

// Defaults applied when an Options field is zero
const (
	DefaultParallelism = 8
	DefaultPageSize    = 1000
	DefaultPageTimeout = 2 * time.Minute
)

const (
	reasonScanLimit = "scan limit reached"
	reasonStopped   = "collection stopped by consumer"
)

// Lister is the part of the listing client the collector uses.
type Lister interface {
	ListBuckets(ctx context.Context) ([]types.BucketMeta, error)
	BucketRegion(ctx context.Context, bucket string) (string, error)
	ListPage(ctx context.Context, req aws.PageRequest) (*aws.Page, error)
}

// Options configures a Collector.
type Options struct {
	Policy sampling.Policy
	// Seed makes sampling reproducible. 0 samples differently every run.
	Seed uint64

	Backoff     aws.Backoff
	PageSize    int32
	PageTimeout time.Duration
	Parallelism int
	// ScanLimit caps the objects listed per bucket. 0 is unlimited.
	ScanLimit int64
	// SpoolDir holds sampling spool files. Empty uses the OS temp dir.
	SpoolDir string
	// Limiter, when set, is shared by every listing request.
	Limiter *rate.Limiter
	Metrics *metrics.Metrics

	AgeThreshold time.Duration
	TopN         int
	Tool         string
	Version      string
	Now          func() time.Time
}

// Collector produces record streams from a Lister.
type Collector struct {
	lister Lister
	opts   Options
}

// NewCollector creates a collector, filling unset options with defaults.
func NewCollector(lister Lister, opts Options) *Collector {
	if opts.Parallelism <= 0 {
		opts.Parallelism = DefaultParallelism
	}
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	if opts.PageTimeout <= 0 {
		opts.PageTimeout = DefaultPageTimeout
	}
	if opts.Backoff.MaxAttempts <= 0 {
		opts.Backoff = aws.DefaultBackoff()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Tool == "" {
		opts.Tool = "s3-insight"
	}
	return &Collector{lister: lister, opts: opts}
}

// ListBuckets returns the account's buckets sorted by name. When names are
// given only those are returned; names the account listing does not know
// are kept with empty metadata so that their region is looked up later.
func (c *Collector) ListBuckets(ctx context.Context, names ...string) ([]types.BucketMeta, error) {
	all, err := c.lister.ListBuckets(ctx)
	if err != nil {
		return nil, err
	}

	if len(names) > 0 {
		known := make(map[string]types.BucketMeta, len(all))
		for _, b := range all {
			known[b.Name] = b
		}
		selected := make([]types.BucketMeta, 0, len(names))
		seen := make(map[string]bool, len(names))
		for _, name := range names {
			if seen[name] {
				continue
			}
			seen[name] = true
			meta, ok := known[name]
			if !ok {
				logger.Warn().Str("bucket", name).Msg("bucket not in account listing, collecting anyway")
				meta = types.BucketMeta{Name: name}
			}
			selected = append(selected, meta)
		}
		all = selected
	}

	sort.Slice(all, func(i, j int) bool { return all[i].Name < all[j].Name })
	return all, nil
}

// CollectBucket prepares the collection of one bucket. Nothing is listed
// until the records are iterated.
func (c *Collector) CollectBucket(ctx context.Context, meta types.BucketMeta) *BucketCollection {
	return &BucketCollection{c: c, ctx: ctx, meta: meta}
}

// BucketCollection is the lazy record sequence of one bucket.
type BucketCollection struct {
	c    *Collector
	ctx  context.Context
	meta types.BucketMeta

	trailer types.BucketTrailer
	err     error
}

// Records lists the bucket and yields its records. Each iteration starts
// over from the beginning of the listing. A failure is yielded once, after
// every record that was gathered before it; the trailer then describes the
// failure.
//
// Without sampling, records are yielded page by page in listing order. With
// sampling, records are held back until the listing ends: a FULL bucket is
// replayed in listing order from a disk spool, a SAMPLED bucket yields its
// reservoir in no particular order.
func (b *BucketCollection) Records() iter.Seq2[types.ObjectRecord, error] {
	return func(yield func(types.ObjectRecord, error) bool) {
		b.err = nil
		b.trailer = types.BucketTrailer{Bucket: b.meta, Sampling: types.FullDecision(), Status: types.StatusComplete}

		if err := b.resolveRegion(); err != nil {
			status := types.StatusFailed
			if b.ctx.Err() != nil {
				status = types.StatusPartial
			}
			b.fail(status, err)
			yield(types.ObjectRecord{}, err)
			return
		}

		if b.c.opts.Policy.Enabled() {
			b.collectSampled(yield)
		} else {
			b.collectDirect(yield)
		}
	}
}

// Trailer describes the outcome of the last iteration of Records.
func (b *BucketCollection) Trailer() types.BucketTrailer {
	return b.trailer
}

// Err returns the failure of the last iteration of Records, if any.
func (b *BucketCollection) Err() error {
	return b.err
}

func (b *BucketCollection) resolveRegion() error {
	if b.meta.Region != "" {
		return nil
	}
	region, err := b.c.lister.BucketRegion(b.ctx, b.meta.Name)
	if err != nil {
		return err
	}
	b.meta.Region = region
	b.trailer.Bucket.Region = region
	return nil
}

func (b *BucketCollection) fail(status types.CollectionStatus, err error) {
	b.err = err
	b.trailer.Status = status
	b.trailer.Error = err.Error()
}

// stop marks the collection partial without an error.
func (b *BucketCollection) stop(reason string) {
	b.trailer.Status = types.StatusPartial
	b.trailer.Error = reason
}

func (b *BucketCollection) collectDirect(yield func(types.ObjectRecord, error) bool) {
	var emitted int64
	stopped := false

	observed, err := b.listPages(func(objects []types.ObjectRecord) bool {
		for _, rec := range objects {
			if !yield(rec, nil) {
				stopped = true
				return false
			}
			emitted++
		}
		return true
	})

	b.trailer.Sampling = b.c.opts.Policy.Finalize(types.FullDecision(), observed, emitted)
	b.trailer.Emitted = emitted
	b.finish(err, stopped, yield)
}

func (b *BucketCollection) collectSampled(yield func(types.ObjectRecord, error) bool) {
	policy := b.c.opts.Policy
	reservoir := sampling.NewReservoir[types.ObjectRecord](policy.SampleSize, b.seed())
	decision := types.FullDecision()

	sp, err := newSpool(b.c.opts.SpoolDir, b.meta.Name)
	if err != nil {
		b.fail(types.StatusFailed, err)
		yield(types.ObjectRecord{}, err)
		return
	}
	defer func() { sp.close() }()

	var spoolErr error
	observed, listErr := b.listPages(func(objects []types.ObjectRecord) bool {
		for _, rec := range objects {
			reservoir.Offer(rec)
			if sp != nil {
				if spoolErr = sp.add(rec); spoolErr != nil {
					return false
				}
			}
		}
		if !decision.Sampled() {
			decision = policy.Decide(reservoir.Seen())
			if decision.Sampled() {
				logger.Info().
					Str("bucket", b.meta.Name).
					Int64("objects", reservoir.Seen()).
					Int64("sample_size", policy.SampleSize).
					Msg("bucket exceeds sampling threshold, switching to reservoir sample")
				sp.close()
				sp = nil
			}
		}
		return true
	})
	if spoolErr != nil {
		listErr = spoolErr
	}

	var emitted int64
	stopped := false
	if decision.Sampled() {
		for _, rec := range reservoir.Items() {
			if !yield(rec, nil) {
				stopped = true
				break
			}
			emitted++
		}
	} else {
		complete, err := sp.replay(func(rec types.ObjectRecord) bool {
			if !yield(rec, nil) {
				return false
			}
			emitted++
			return true
		})
		switch {
		case err != nil && listErr == nil:
			listErr = err
		case !complete && err == nil:
			stopped = true
		}
	}

	b.trailer.Sampling = policy.Finalize(decision, observed, emitted)
	b.trailer.Emitted = emitted
	b.finish(listErr, stopped, yield)
}

func (b *BucketCollection) finish(err error, stopped bool, yield func(types.ObjectRecord, error) bool) {
	switch {
	case errors.Is(err, errScanLimit):
		b.stop(reasonScanLimit)
	case err != nil:
		status := types.StatusPartial
		var apiErr *types.APIError
		if errors.As(err, &apiErr) || aws.IsAuthError(err) {
			status = types.StatusFailed
		}
		b.fail(status, err)
		if !stopped {
			yield(types.ObjectRecord{}, err)
		}
	case stopped:
		b.stop(reasonStopped)
	}
}

// seed derives a per-bucket seed so that buckets sample independently.
func (b *BucketCollection) seed() uint64 {
	if b.c.opts.Seed == 0 {
		return 0
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte(b.meta.Name))
	return b.c.opts.Seed ^ h.Sum64()
}

var (
	errScanLimit  = errors.New(reasonScanLimit)
	errRunStopped = errors.New("run stopped before the next page could be requested")
)

// listPages walks the bucket's listing strictly in order, handing each page's
// records to fn until fn returns false. It returns the number of objects
// observed. The context gates every new page; a page already in flight runs
// to completion under its own timeout.
func (b *BucketCollection) listPages(fn func([]types.ObjectRecord) bool) (int64, error) {
	opts := b.c.opts
	name := b.meta.Name

	req := aws.PageRequest{Bucket: name, Region: b.meta.Region, MaxKeys: opts.PageSize}
	var observed, pages int64

	backoff := opts.Backoff
	retryable := backoff.Retryable
	if retryable == nil {
		retryable = aws.IsRetryable
	}
	backoff.Retryable = func(err error) bool {
		return !errors.Is(err, errRunStopped) && retryable(err)
	}
	backoff.OnRetry = func(attempt int, delay time.Duration, err error) {
		opts.Metrics.Retried()
		logger.Warn().
			Err(err).
			Str("bucket", name).
			Int64("page", pages+1).
			Int("attempt", attempt).
			Dur("delay", delay).
			Msg("listing page failed, retrying")
	}

	for {
		if err := b.ctx.Err(); err != nil {
			return observed, &types.CollectionError{Bucket: name, Pages: pages, Err: err}
		}

		var page *aws.Page
		attempts, err := backoff.Do(b.ctx, func() error {
			p, err := b.fetch(req)
			page = p
			return err
		})
		if err != nil {
			if aws.IsAuthError(err) {
				return observed, &types.AuthError{Op: "ListObjectsV2", Err: err}
			}
			if pages == 0 && !aws.IsRetryable(err) && !errors.Is(err, errRunStopped) && b.ctx.Err() == nil {
				return observed, &types.APIError{Op: "ListObjectsV2", Bucket: name, Err: err}
			}
			return observed, &types.CollectionError{Bucket: name, Pages: pages, Attempts: attempts, Err: err}
		}
		pages++

		objects := page.Objects
		limited := false
		if opts.ScanLimit > 0 && observed+int64(len(objects)) >= opts.ScanLimit {
			objects = objects[:opts.ScanLimit-observed]
			limited = page.Truncated || observed+int64(len(page.Objects)) > opts.ScanLimit
		}
		observed += int64(len(objects))
		opts.Metrics.AddListed(len(objects))

		logger.Debug().
			Str("bucket", name).
			Int64("page", pages).
			Int("objects", len(objects)).
			Int64("observed", observed).
			Msg("listed page")

		if !fn(objects) {
			return observed, nil
		}
		if limited {
			return observed, errScanLimit
		}
		if !page.Truncated {
			return observed, nil
		}
		req.Token = page.NextToken
	}
}

// fetch issues one page request on a context detached from the run, so that
// a run deadline does not abort a page that has already been sent.
func (b *BucketCollection) fetch(req aws.PageRequest) (*aws.Page, error) {
	opts := b.c.opts
	if opts.Limiter != nil {
		if err := opts.Limiter.Wait(b.ctx); err != nil {
			if b.ctx.Err() == nil {
				// Wait refuses up front when the reservation would end past
				// the run deadline.
				err = fmt.Errorf("%w: %v", context.DeadlineExceeded, err)
			}
			return nil, fmt.Errorf("%w: rate limiter: %w", errRunStopped, err)
		}
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(b.ctx), opts.PageTimeout)
	defer cancel()

	start := time.Now()
	page, err := b.c.lister.ListPage(ctx, req)
	switch {
	case err == nil:
		opts.Metrics.ObservePage(metrics.OutcomeOK, time.Since(start))
	case aws.IsRetryable(err):
		opts.Metrics.ObservePage(metrics.OutcomeRetry, time.Since(start))
	default:
		opts.Metrics.ObservePage(metrics.OutcomeError, time.Since(start))
	}
	return page, err
}
