// Package stream reads and writes the line-delimited JSON record stream that
// collection produces and aggregation consumes.
//
// A stream starts with a run header, followed by object lines and one
// trailer per bucket written after that bucket's objects:
//
//	{"kind":"run","run":{"run_id":"...","collected_at":"...","tool":"s3-insight"}}
//	{"bucket":"logs","key":"a/b.log","size_bytes":10,"storage_class":"STANDARD","last_modified":"...","extension":"log"}
//	{"kind":"bucket","trailer":{"bucket":{"name":"logs",...},"sampling":{...},"status":"complete","emitted":1}}
//
// Object lines carry no kind so that a bare stream of object records is also
// readable.
package stream

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/fraclad/s3-insight/types"
)

// Kind distinguishes the lines of a record stream
type Kind string

const (
	KindObject Kind = "object"
	KindRun    Kind = "run"
	KindBucket Kind = "bucket"
)

const maxLineSize = 4 * 1024 * 1024

type controlLine struct {
	Kind    Kind                 `json:"kind"`
	Run     *types.RunHeader     `json:"run,omitempty"`
	Trailer *types.BucketTrailer `json:"trailer,omitempty"`
}

type line struct {
	Kind    Kind                 `json:"kind,omitempty"`
	Run     *types.RunHeader     `json:"run,omitempty"`
	Trailer *types.BucketTrailer `json:"trailer,omitempty"`
	types.ObjectRecord
}

// Writer appends lines to a record stream. It is safe for concurrent use;
// each line is written atomically.
type Writer struct {
	mu      sync.Mutex
	bw      *bufio.Writer
	enc     *json.Encoder
	objects int64
}

// NewWriter creates a Writer on w. Call Flush before closing w.
func NewWriter(w io.Writer) *Writer {
	bw := bufio.NewWriterSize(w, 256*1024)
	enc := json.NewEncoder(bw)
	enc.SetEscapeHTML(false)
	return &Writer{bw: bw, enc: enc}
}

// WriteRun writes the run header.
func (w *Writer) WriteRun(h types.RunHeader) error {
	return w.encode(controlLine{Kind: KindRun, Run: &h})
}

// WriteObject writes one object record.
func (w *Writer) WriteObject(rec types.ObjectRecord) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.enc.Encode(rec); err != nil {
		return fmt.Errorf("failed to write record %s/%s: %w", rec.Bucket, rec.Key, err)
	}
	w.objects++
	return nil
}

// WriteTrailer closes a bucket's section of the stream.
func (w *Writer) WriteTrailer(t types.BucketTrailer) error {
	return w.encode(controlLine{Kind: KindBucket, Trailer: &t})
}

func (w *Writer) encode(v controlLine) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.enc.Encode(v); err != nil {
		return fmt.Errorf("failed to write %s line: %w", v.Kind, err)
	}
	return nil
}

// Objects returns the number of object lines written.
func (w *Writer) Objects() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.objects
}

// Flush writes any buffered lines to the underlying writer.
func (w *Writer) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.bw.Flush()
}

// Entry is one decoded line of a record stream. Exactly one of Object, Run
// or Trailer is meaningful, selected by Kind.
type Entry struct {
	Position int64
	Kind     Kind
	Object   types.ObjectRecord
	Run      *types.RunHeader
	Trailer  *types.BucketTrailer
}

// Reader reads a record stream strictly top to bottom.
type Reader struct {
	sc  *bufio.Scanner
	pos int64
}

// NewReader creates a Reader on r.
func NewReader(r io.Reader) *Reader {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	return &Reader{sc: sc}
}

// Next returns the next entry, or io.EOF at the end of the stream. Lines that
// cannot be decoded produce a *types.MalformedRecordError carrying the line's
// position. Blank lines are skipped but still counted.
func (r *Reader) Next() (Entry, error) {
	for r.sc.Scan() {
		r.pos++
		raw := bytes.TrimSpace(r.sc.Bytes())
		if len(raw) == 0 {
			continue
		}

		var l line
		if err := json.Unmarshal(raw, &l); err != nil {
			return Entry{}, &types.MalformedRecordError{Position: r.pos, Reason: fmt.Sprintf("invalid JSON: %v", err)}
		}

		switch l.Kind {
		case "", KindObject:
			return Entry{Position: r.pos, Kind: KindObject, Object: l.ObjectRecord}, nil
		case KindRun:
			if l.Run == nil {
				return Entry{}, &types.MalformedRecordError{Position: r.pos, Reason: "run line without header"}
			}
			return Entry{Position: r.pos, Kind: KindRun, Run: l.Run}, nil
		case KindBucket:
			if l.Trailer == nil || l.Trailer.Bucket.Name == "" {
				return Entry{}, &types.MalformedRecordError{Position: r.pos, Reason: "bucket line without trailer"}
			}
			return Entry{Position: r.pos, Kind: KindBucket, Trailer: l.Trailer}, nil
		default:
			return Entry{}, &types.MalformedRecordError{Position: r.pos, Reason: fmt.Sprintf("unknown line kind %q", l.Kind)}
		}
	}

	if err := r.sc.Err(); err != nil {
		if err == bufio.ErrTooLong {
			return Entry{}, &types.MalformedRecordError{Position: r.pos + 1, Reason: "line exceeds maximum size"}
		}
		return Entry{}, fmt.Errorf("failed to read record stream: %w", err)
	}
	return Entry{}, io.EOF
}

// Position returns the position of the last line read.
func (r *Reader) Position() int64 {
	return r.pos
}
