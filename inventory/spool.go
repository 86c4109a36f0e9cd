package inventory

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/fraclad/s3-insight/stream"
	"github.com/fraclad/s3-insight/types"
)

// spool keeps a bucket's records on disk, in listing order, until the
// sampling decision is known.
type spool struct {
	f *os.File
	w *stream.Writer
	n int64
}

func newSpool(dir, bucket string) (*spool, error) {
	f, err := os.CreateTemp(dir, "s3insight-"+sanitize(bucket)+"-*.jsonl")
	if err != nil {
		return nil, fmt.Errorf("failed to create spool for bucket %s: %w", bucket, err)
	}
	return &spool{f: f, w: stream.NewWriter(f)}, nil
}

func (s *spool) add(rec types.ObjectRecord) error {
	if err := s.w.WriteObject(rec); err != nil {
		return err
	}
	s.n++
	return nil
}

// replay yields the spooled records in the order they were added. It stops
// early when yield returns false and reports whether it ran to the end.
func (s *spool) replay(yield func(types.ObjectRecord) bool) (bool, error) {
	if err := s.w.Flush(); err != nil {
		return false, fmt.Errorf("failed to flush spool: %w", err)
	}
	if _, err := s.f.Seek(0, io.SeekStart); err != nil {
		return false, fmt.Errorf("failed to rewind spool: %w", err)
	}

	r := stream.NewReader(s.f)
	for {
		e, err := r.Next()
		if errors.Is(err, io.EOF) {
			return true, nil
		}
		if err != nil {
			return false, fmt.Errorf("failed to read spool: %w", err)
		}
		if !yield(e.Object) {
			return false, nil
		}
	}
}

func (s *spool) close() {
	if s == nil {
		return
	}
	name := s.f.Name()
	_ = s.f.Close()
	_ = os.Remove(name)
}

func sanitize(name string) string {
	out := []byte(name)
	for i, c := range out {
		switch {
		case c >= 'a' && c <= 'z', c >= '0' && c <= '9', c == '-', c == '.':
		default:
			out[i] = '_'
		}
	}
	return string(out)
}
