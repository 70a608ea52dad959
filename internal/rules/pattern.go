package rules

import (
	"sync"

	"github.com/dlclark/regexp2"

	"github.com/solatis/sieve/internal/types"
)

// compileRegex compiles a structured pattern with the engine defaults.
func compileRegex(pattern string) (*regexp2.Regexp, error) {
	return regexp2.Compile(pattern, regexp2.None)
}

// Compile returns the substitution form of a rule: structured patterns as
// written, literals escaped so they match exactly and case-sensitively.
func Compile(r types.Rule) (*regexp2.Regexp, error) {
	if r.IsRegex {
		return compileRegex(r.Pattern)
	}
	return regexp2.Compile(regexp2.Escape(r.Pattern), regexp2.None)
}

type patternEntry struct {
	pattern string
	isRegex bool
	re      *regexp2.Regexp
}

// Patterns caches compiled rules by ID. An entry is reused only while the
// rule's pattern text and kind are unchanged, so an edited rule recompiles
// on its next use. Safe for concurrent use.
type Patterns struct {
	mu      sync.Mutex
	entries map[types.RuleID]patternEntry
}

// NewPatterns creates an empty cache.
func NewPatterns() *Patterns {
	return &Patterns{entries: make(map[types.RuleID]patternEntry)}
}

// Get returns the compiled form of r. Rules without an ID are compiled
// but not cached.
func (p *Patterns) Get(r types.Rule) (*regexp2.Regexp, error) {
	if r.ID == "" {
		return Compile(r)
	}

	p.mu.Lock()
	entry, ok := p.entries[r.ID]
	p.mu.Unlock()
	if ok && entry.pattern == r.Pattern && entry.isRegex == r.IsRegex {
		return entry.re, nil
	}

	re, err := Compile(r)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.entries[r.ID] = patternEntry{pattern: r.Pattern, isRegex: r.IsRegex, re: re}
	p.mu.Unlock()
	return re, nil
}

// Retain drops every entry whose rule is not in current.
func (p *Patterns) Retain(current []types.Rule) {
	keep := make(map[types.RuleID]struct{}, len(current))
	for _, r := range current {
		keep[r.ID] = struct{}{}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	for id := range p.entries {
		if _, ok := keep[id]; !ok {
			delete(p.entries, id)
		}
	}
}

// Len returns the number of cached entries.
func (p *Patterns) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}
