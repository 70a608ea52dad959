package diag

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solatis/sieve/internal/substitute"
	"github.com/solatis/sieve/internal/types"
)

func readRecords(t *testing.T, path string) []Record {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var out []Record
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var rec Record
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &rec))
		out = append(out, rec)
	}
	require.NoError(t, scanner.Err())
	return out
}

func TestSink_RecordEscalation(t *testing.T) {
	sink := NewSink(t.TempDir())
	occurred := time.Date(2026, 3, 4, 23, 59, 0, 0, time.UTC)

	err := sink.RecordEscalation(context.Background(), substitute.Escalation{
		Pattern:  "(a+)+$",
		Subject:  "aaaaaaaaaaaaaaaaaaaaaaaa!",
		Timeout:  3 * time.Second,
		Grace:    3 * time.Second,
		Elapsed:  6100 * time.Millisecond,
		Occurred: occurred,
	})
	require.NoError(t, err)

	path := sink.FileFor(occurred)
	assert.Contains(t, path, "2026-03-04.jsonl")

	records := readRecords(t, path)
	require.Len(t, records, 1)
	rec := records[0]
	assert.Equal(t, KindRunawayEscalation, rec.Kind)
	assert.Equal(t, "(a+)+$", rec.Pattern)
	assert.Equal(t, int64(3000), rec.TimeoutMs)
	assert.Equal(t, int64(3000), rec.GraceMs)
	assert.Equal(t, int64(6100), rec.ElapsedMs)
	assert.Equal(t, os.Getpid(), rec.PID)
	assert.NotEmpty(t, rec.ID)
	assert.True(t, occurred.Equal(rec.OccurredAt))
}

func TestSink_TruncatesSubject(t *testing.T) {
	sink := NewSink(t.TempDir())
	long := make([]byte, types.MaxDiagnosticSubject*2)
	for i := range long {
		long[i] = 'x'
	}

	esc := substitute.Escalation{Pattern: "x", Subject: string(long), Occurred: time.Now().UTC()}
	require.NoError(t, sink.RecordEscalation(context.Background(), esc))

	records := readRecords(t, sink.FileFor(esc.Occurred))
	require.Len(t, records, 1)
	assert.Equal(t, string(long[:types.MaxDiagnosticSubject])+"...(truncated)", records[0].Subject)
}

func TestSink_ConcurrentWritesStayLineAligned(t *testing.T) {
	sink := NewSink(t.TempDir())
	at := time.Now().UTC()

	const writers = 16
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, sink.Write(context.Background(), Record{Kind: "test", OccurredAt: at}))
		}()
	}
	wg.Wait()

	records := readRecords(t, sink.FileFor(at))
	assert.Len(t, records, writers)

	seen := make(map[types.RecordID]bool)
	for _, r := range records {
		assert.False(t, seen[r.ID], "duplicate id %s", r.ID)
		seen[r.ID] = true
	}
}
