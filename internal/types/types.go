// Package types provides domain models shared across sieve components.
//
// Zero-logic design: the Rule value and its identifiers carry no behavior
// beyond defaulting, so the store, the rule engine and the substitution
// executor can all depend on this package without import cycles.
package types

import (
	"time"
	"unicode/utf8"
)

// RuleID represents a UUIDv7 rule identifier.
// String alias enables type safety while maintaining JSON string serialization.
// UUIDv7 time-ordering makes the ID a stable creation-order tiebreaker.
type RuleID string

// RecordID identifies one diagnostic record.
type RecordID string

// Execution defaults and limits.
const (
	// DefaultTimeout is the substitution budget used when a rule stores a
	// non-positive timeout.
	DefaultTimeout = 3000 * time.Millisecond

	// DefaultGracePeriod is how long a cancelled worker may keep running
	// after a primary timeout before the process is restarted.
	DefaultGracePeriod = 3000 * time.Millisecond

	// MaxTimeout is the largest per-rule budget accepted at save time.
	MaxTimeout = 10 * time.Minute

	// MaxDiagnosticSubject caps the subject bytes copied into diagnostic
	// records and log lines. Subjects can be whole documents.
	MaxDiagnosticSubject = 4 * 1024
)

// Truncate keeps at most n bytes of s for diagnostics, marking the cut.
// The cut never splits a UTF-8 sequence.
func Truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "...(truncated)"
}
