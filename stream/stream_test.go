package stream

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fraclad/s3-insight/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var collectedAt = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

func readAll(t *testing.T, r *Reader) []Entry {
	t.Helper()
	var entries []Entry
	for {
		e, err := r.Next()
		if errors.Is(err, io.EOF) {
			return entries
		}
		require.NoError(t, err)
		entries = append(entries, e)
	}
}

func TestWriterReader(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	rec := types.NewObjectRecord("logs", "app/2024/01/<a&b>.LOG", 1024, "GLACIER", collectedAt.Add(-time.Hour))
	trailer := types.BucketTrailer{
		Bucket:   types.BucketMeta{Name: "logs", Region: "eu-west-1", CreationDate: collectedAt.AddDate(-1, 0, 0)},
		Sampling: types.FullDecision(),
		Status:   types.StatusComplete,
		Emitted:  1,
	}

	require.NoError(t, w.WriteRun(types.RunHeader{RunID: "run-1", CollectedAt: collectedAt, Tool: "s3-insight"}))
	require.NoError(t, w.WriteObject(rec))
	require.NoError(t, w.WriteTrailer(trailer))
	require.NoError(t, w.Flush())
	assert.Equal(t, int64(1), w.Objects())

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.NotContains(t, lines[1], `"kind"`)
	assert.Contains(t, lines[1], "<a&b>")

	entries := readAll(t, NewReader(&buf))
	require.Len(t, entries, 3)

	assert.Equal(t, KindRun, entries[0].Kind)
	assert.Equal(t, "run-1", entries[0].Run.RunID)
	assert.True(t, entries[0].Run.CollectedAt.Equal(collectedAt))

	assert.Equal(t, KindObject, entries[1].Kind)
	assert.Equal(t, int64(2), entries[1].Position)
	assert.Equal(t, rec.Key, entries[1].Object.Key)
	assert.Equal(t, "log", entries[1].Object.Extension)
	assert.True(t, rec.LastModified.Equal(entries[1].Object.LastModified))

	assert.Equal(t, KindBucket, entries[2].Kind)
	assert.Equal(t, "eu-west-1", entries[2].Trailer.Bucket.Region)
	assert.Equal(t, types.StatusComplete, entries[2].Trailer.Status)
}

func TestReader_BareObjectStream(t *testing.T) {
	input := `{"bucket":"a","key":"x.txt","size_bytes":5,"storage_class":"STANDARD","last_modified":"2024-01-01T00:00:00Z","extension":"txt"}

{"kind":"object","bucket":"a","key":"y.txt","size_bytes":6}
`
	r := NewReader(strings.NewReader(input))
	entries := readAll(t, r)
	require.Len(t, entries, 2)
	assert.Equal(t, int64(1), entries[0].Position)
	assert.Equal(t, int64(3), entries[1].Position)
	assert.Equal(t, int64(6), entries[1].Object.SizeBytes)
	assert.Equal(t, int64(3), r.Position())
}

func TestReader_Malformed(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		position int64
	}{
		{"invalid json", "{\"bucket\":\"a\"}\n{not json\n", 2},
		{"wrong field type", `{"bucket":"a","size_bytes":"big"}`, 1},
		{"unknown kind", `{"kind":"mystery"}`, 1},
		{"bucket without trailer", `{"kind":"bucket"}`, 1},
		{"run without header", `{"kind":"run"}`, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewReader(strings.NewReader(tt.input))
			var err error
			for err == nil {
				_, err = r.Next()
			}
			var malformed *types.MalformedRecordError
			require.ErrorAs(t, err, &malformed)
			assert.Equal(t, tt.position, malformed.Position)
		})
	}
}

func TestWriter_Concurrent(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				rec := types.NewObjectRecord(fmt.Sprintf("bucket-%d", g), fmt.Sprintf("k-%d.bin", i), int64(i), "", collectedAt)
				assert.NoError(t, w.WriteObject(rec))
			}
		}(g)
	}
	wg.Wait()
	require.NoError(t, w.Flush())

	entries := readAll(t, NewReader(&buf))
	assert.Len(t, entries, 8*200)
	assert.Equal(t, int64(8*200), w.Objects())
}
