// internal/types/rules.go
package types

import "time"

/*
 * Filter rule value type.
 *
 * A Rule is a plain value: the store hands out copies and mutations happen
 * by writing a modified copy back. Compiled pattern state is never stored
 * on the value; internal/rules caches it keyed by ID and pattern text.
 *
 * Key fields:
 *   - Pattern + IsRegex: literal text or structured pattern
 *   - IsEnabled: disabled rules are skipped by matching and rewriting
 *   - TimeoutMs: substitution budget, <= 0 means the configured default,
 *     at most MaxTimeout
 *   - Order: ascending priority, ties broken by ID (creation order)
 */

// Rule describes one named text filter.
type Rule struct {
	ID        RuleID `db:"rule_id" json:"id"`
	Name      string `db:"name" json:"name"`
	Pattern   string `db:"pattern" json:"pattern"`
	IsEnabled bool   `db:"is_enabled" json:"is_enabled"`
	IsRegex   bool   `db:"is_regex" json:"is_regex"`
	TimeoutMs int64  `db:"timeout_ms" json:"timeout_ms"`
	Order     int    `db:"sort_order" json:"order"`
}

// NewRule returns an enabled rule with default timeout and no ID.
// The ID is assigned on save.
func NewRule(name, pattern string, isRegex bool) Rule {
	return Rule{
		Name:      name,
		Pattern:   pattern,
		IsEnabled: true,
		IsRegex:   isRegex,
		TimeoutMs: DefaultTimeout.Milliseconds(),
	}
}

// EffectiveTimeout returns the substitution budget: def for a
// non-positive TimeoutMs, otherwise TimeoutMs capped at MaxTimeout.
func (r Rule) EffectiveTimeout(def time.Duration) time.Duration {
	switch {
	case r.TimeoutMs <= 0:
		return def
	case r.TimeoutMs > MaxTimeout.Milliseconds():
		return MaxTimeout
	}
	return time.Duration(r.TimeoutMs) * time.Millisecond
}

// Label returns the display name, falling back to the pattern.
func (r Rule) Label() string {
	if r.Name != "" {
		return r.Name
	}
	return r.Pattern
}
