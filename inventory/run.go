package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/fraclad/s3-insight/aggregate"
	"github.com/fraclad/s3-insight/logger"
	"github.com/fraclad/s3-insight/stream"
	"github.com/fraclad/s3-insight/types"
)

// StatusSkipped marks buckets that were never collected because the run
// was aborted first.
const StatusSkipped types.CollectionStatus = "skipped"

// BucketOutcome is the result of collecting one bucket
type BucketOutcome struct {
	Bucket   string                 `json:"bucket"`
	Region   string                 `json:"region"`
	Status   types.CollectionStatus `json:"status"`
	Sampling types.SamplingDecision `json:"sampling"`
	Emitted  int64                  `json:"emitted"`
	Error    string                 `json:"error,omitempty"`
	Duration time.Duration          `json:"duration"`
}

// RunReport describes a finished collection run
type RunReport struct {
	RunID       string
	CollectedAt time.Time
	Outcomes    []BucketOutcome
	// Summary is aggregated from the records as they were written.
	Summary *aggregate.Result
}

// Incomplete returns the outcomes that are not complete.
func (r *RunReport) Incomplete() []BucketOutcome {
	var out []BucketOutcome
	for _, o := range r.Outcomes {
		if o.Status != types.StatusComplete {
			out = append(out, o)
		}
	}
	return out
}

// Emitted returns the number of records written across all buckets.
func (r *RunReport) Emitted() int64 {
	var n int64
	for _, o := range r.Outcomes {
		n += o.Emitted
	}
	return n
}

// Run collects every bucket into w: a run header, then each bucket's records
// followed by its trailer. Up to Parallelism buckets are collected at once,
// each worker folding its records into a private aggregation engine; the
// engines are merged once all buckets are done.
//
// A bucket that fails is recorded in its trailer and the run moves on. An
// authentication failure or a failure to write the stream aborts the run;
// the report is still returned alongside the error.
func (c *Collector) Run(ctx context.Context, buckets []types.BucketMeta, w *stream.Writer) (*RunReport, error) {
	report := &RunReport{
		RunID:       uuid.NewString(),
		CollectedAt: c.opts.Now().UTC(),
		Outcomes:    make([]BucketOutcome, len(buckets)),
	}

	if err := w.WriteRun(types.RunHeader{
		RunID:       report.RunID,
		CollectedAt: report.CollectedAt,
		Tool:        c.opts.Tool,
		Version:     c.opts.Version,
	}); err != nil {
		return report, err
	}

	log := logger.With().Str("run_id", report.RunID).Logger()
	log.Info().Int("buckets", len(buckets)).Int("parallelism", c.opts.Parallelism).Msg("starting collection")

	cfg := aggregate.Config{
		AgeThreshold:   c.opts.AgeThreshold,
		TopN:           c.opts.TopN,
		CollectionTime: report.CollectedAt,
	}
	engines := make([]*aggregate.Engine, c.opts.Parallelism)
	pool := make(chan *aggregate.Engine, c.opts.Parallelism)
	for i := range engines {
		engines[i] = aggregate.New(cfg)
		pool <- engines[i]
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.opts.Parallelism)

	for i, meta := range buckets {
		report.Outcomes[i] = BucketOutcome{Bucket: meta.Name, Region: meta.Region, Status: StatusSkipped}
		g.Go(func() error {
			// Siblings stop on a fatal error; a run deadline still lets every
			// bucket record its own partial outcome.
			if gctx.Err() != nil && ctx.Err() == nil {
				return nil
			}

			engine := <-pool
			defer func() { pool <- engine }()

			outcome, err := c.collectInto(gctx, meta, w, engine)
			report.Outcomes[i] = outcome
			return err
		})
	}
	runErr := g.Wait()

	if err := w.Flush(); err != nil && runErr == nil {
		runErr = fmt.Errorf("failed to flush record stream: %w", err)
	}

	merged := aggregate.New(cfg)
	for _, e := range engines {
		if err := merged.Merge(e); err != nil && runErr == nil {
			runErr = err
		}
	}
	report.Summary = merged.Finalize()
	c.opts.Metrics.ObserveSummary(report.Summary.Buckets, report.Summary.Account)

	log.Info().
		Int64("records", report.Emitted()).
		Int("incomplete", len(report.Incomplete())).
		Msg("collection finished")

	return report, runErr
}

// collectInto writes one bucket's records and trailer to w and folds them
// into engine. Only errors that must abort the run are returned.
func (c *Collector) collectInto(ctx context.Context, meta types.BucketMeta, w *stream.Writer, engine *aggregate.Engine) (BucketOutcome, error) {
	start := time.Now()
	coll := c.CollectBucket(ctx, meta)

	var emitted int64
	for rec, err := range coll.Records() {
		if err != nil {
			if IsFatal(err) {
				return c.outcome(coll, start), err
			}
			logger.Error().Err(err).Str("bucket", meta.Name).Msg("bucket collection failed")
			continue
		}
		if err := engine.Add(0, rec); err != nil {
			return c.outcome(coll, start), err
		}
		if err := w.WriteObject(rec); err != nil {
			return c.outcome(coll, start), err
		}
		emitted++
	}
	c.opts.Metrics.AddEmitted(emitted)

	trailer := coll.Trailer()
	if err := w.WriteTrailer(trailer); err != nil {
		return c.outcome(coll, start), err
	}
	if err := engine.SetBucket(0, trailer); err != nil {
		return c.outcome(coll, start), err
	}
	c.opts.Metrics.BucketCollected(trailer.Status)

	outcome := c.outcome(coll, start)
	ev := logger.Info()
	if outcome.Status != types.StatusComplete {
		ev = logger.Warn().Str("error", outcome.Error)
	}
	ev.Str("bucket", meta.Name).
		Str("region", outcome.Region).
		Str("status", string(outcome.Status)).
		Str("mode", string(outcome.Sampling.Mode)).
		Int64("emitted", outcome.Emitted).
		Int64("observed", outcome.Sampling.ObservedCount).
		Dur("duration", outcome.Duration).
		Msg("bucket collected")

	return outcome, nil
}

func (c *Collector) outcome(coll *BucketCollection, start time.Time) BucketOutcome {
	t := coll.Trailer()
	return BucketOutcome{
		Bucket:   t.Bucket.Name,
		Region:   t.Bucket.Region,
		Status:   t.Status,
		Sampling: t.Sampling,
		Emitted:  t.Emitted,
		Error:    t.Error,
		Duration: time.Since(start),
	}
}

// IsFatal reports whether err aborts a whole collection run.
func IsFatal(err error) bool {
	var authErr *types.AuthError
	return errors.As(err, &authErr)
}
