// Package diag persists diagnostic records for events that end in a
// process restart.
//
// Records are appended as JSON lines to one file per UTC day under the
// data directory. Each write is fsynced before returning, so the record
// survives the restart that follows it.
package diag

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"

	"github.com/solatis/sieve/internal/substitute"
	"github.com/solatis/sieve/internal/types"
)

// KindRunawayEscalation marks a substitution that ignored cancellation.
const KindRunawayEscalation = "runaway_escalation"

// Record is one diagnostic line.
type Record struct {
	ID         types.RecordID `json:"id"`
	Kind       string         `json:"kind"`
	Pattern    string         `json:"pattern"`
	Subject    string         `json:"subject"`
	TimeoutMs  int64          `json:"timeout_ms"`
	GraceMs    int64          `json:"grace_ms"`
	ElapsedMs  int64          `json:"elapsed_ms"`
	PID        int            `json:"pid"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// Sink writes records under <dir>/diagnostics.
type Sink struct {
	dir string

	mutexLock sync.Mutex
	mutexes   map[string]*sync.Mutex
}

// NewSink creates a sink rooted at dataDir.
func NewSink(dataDir string) *Sink {
	return &Sink{
		dir:     filepath.Join(dataDir, "diagnostics"),
		mutexes: make(map[string]*sync.Mutex),
	}
}

// Dir returns the directory holding the daily files.
func (s *Sink) Dir() string {
	return s.dir
}

// RecordEscalation implements substitute.Recorder.
func (s *Sink) RecordEscalation(ctx context.Context, esc substitute.Escalation) error {
	occurred := esc.Occurred
	if occurred.IsZero() {
		occurred = time.Now().UTC()
	}
	return s.Write(ctx, Record{
		Kind:       KindRunawayEscalation,
		Pattern:    esc.Pattern,
		Subject:    types.Truncate(esc.Subject, types.MaxDiagnosticSubject),
		TimeoutMs:  esc.Timeout.Milliseconds(),
		GraceMs:    esc.Grace.Milliseconds(),
		ElapsedMs:  esc.Elapsed.Milliseconds(),
		OccurredAt: occurred,
	})
}

// Write appends rec to the file for its day, filling ID, PID and
// OccurredAt when unset.
func (s *Sink) Write(ctx context.Context, rec Record) error {
	if rec.ID == "" {
		rec.ID = types.NewRecordID()
	}
	if rec.PID == 0 {
		rec.PID = os.Getpid()
	}
	if rec.OccurredAt.IsZero() {
		rec.OccurredAt = time.Now().UTC()
	}
	rec.OccurredAt = rec.OccurredAt.UTC()

	line, err := json.Marshal(rec)
	if err != nil {
		return errors.Errorf("encoding diagnostic record: %w", err)
	}
	line = append(line, '\n')

	filename := s.FileFor(rec.OccurredAt)
	mu := s.fileMutex(filename)
	mu.Lock()
	defer mu.Unlock()

	if err := os.MkdirAll(s.dir, 0o750); err != nil {
		return errors.Errorf("creating diagnostics directory: %w", err)
	}
	f, err := os.OpenFile(filename, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o640)
	if err != nil {
		return errors.Errorf("opening %s: %w", filename, err)
	}
	if _, err := f.Write(line); err != nil {
		f.Close()
		return errors.Errorf("writing %s: %w", filename, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return errors.Errorf("syncing %s: %w", filename, err)
	}
	if err := f.Close(); err != nil {
		return errors.Errorf("closing %s: %w", filename, err)
	}

	zerolog.Ctx(ctx).Info().
		Str("record_id", string(rec.ID)).
		Str("kind", rec.Kind).
		Str("file", filename).
		Msg("diagnostic record persisted")
	return nil
}

// FileFor returns the daily file a record occurring at t goes to.
func (s *Sink) FileFor(t time.Time) string {
	return filepath.Join(s.dir, t.UTC().Format("2006-01-02.jsonl"))
}

// fileMutex returns the mutex for filename, creating it on first use.
// The map grows by one entry per day.
func (s *Sink) fileMutex(filename string) *sync.Mutex {
	s.mutexLock.Lock()
	defer s.mutexLock.Unlock()

	mu, ok := s.mutexes[filename]
	if !ok {
		mu = &sync.Mutex{}
		s.mutexes[filename] = mu
	}
	return mu
}
