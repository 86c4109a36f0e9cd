package aggregate

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/fraclad/s3-insight/stream"
	"github.com/fraclad/s3-insight/types"
)

// ctxCheckInterval is how many lines are read between cancellation checks.
const ctxCheckInterval = 4096

// Aggregate reads the whole stream once and summarizes it. The run header,
// when present, must be the first entry; its collection time overrides
// cfg.CollectionTime. Any malformed line aborts the run and no summary is
// returned.
func Aggregate(ctx context.Context, r *stream.Reader, cfg Config) (*Result, error) {
	e := New(cfg)

	var seen int64
	for {
		if seen%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, fmt.Errorf("aggregation stopped after line %d: %w", r.Position(), err)
			}
		}
		seen++

		entry, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}

		switch entry.Kind {
		case stream.KindRun:
			if seen != 1 {
				return nil, &types.MalformedRecordError{Position: entry.Position, Reason: "run header is not the first entry"}
			}
			if !entry.Run.CollectedAt.IsZero() {
				e.SetCollectionTime(entry.Run.CollectedAt)
			}
		case stream.KindBucket:
			if err := e.SetBucket(entry.Position, *entry.Trailer); err != nil {
				return nil, err
			}
		default:
			if err := e.Add(entry.Position, entry.Object); err != nil {
				return nil, err
			}
		}
	}

	return e.Finalize(), nil
}
