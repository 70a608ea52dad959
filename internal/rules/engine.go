package rules

import (
	"context"
	"fmt"
	"time"

	"github.com/dlclark/regexp2"
	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"

	"github.com/solatis/sieve/internal/substitute"
	"github.com/solatis/sieve/internal/types"
)

// RuleSource is the read side of the rule repository used by the engine.
// Implemented by *db.RuleStore.
type RuleSource interface {
	ListEnabled(ctx context.Context) ([]types.Rule, error)
	FindByID(ctx context.Context, id types.RuleID) (types.Rule, error)
}

// Substituter runs one guarded substitution.
// Implemented by *substitute.Executor.
type Substituter interface {
	Substitute(ctx context.Context, subject string, pattern *regexp2.Regexp, timeout time.Duration, repl substitute.Replacement) (string, error)
}

// Engine binds the rule source to the matcher and the executor.
type Engine struct {
	source   RuleSource
	patterns *Patterns
	matcher  *Matcher
	executor Substituter
}

// NewEngine creates a rules engine instance.
func NewEngine(source RuleSource, executor Substituter) *Engine {
	patterns := NewPatterns()
	return &Engine{
		source:   source,
		patterns: patterns,
		matcher:  NewMatcher(patterns),
		executor: executor,
	}
}

// Patterns exposes the compiled-pattern cache.
func (e *Engine) Patterns() *Patterns {
	return e.patterns
}

// Test reports whether candidate matches any enabled rule.
func (e *Engine) Test(ctx context.Context, candidate string) (bool, error) {
	_, ok, err := e.Match(ctx, candidate)
	return ok, err
}

// Match returns the first enabled rule matching candidate.
func (e *Engine) Match(ctx context.Context, candidate string) (types.Rule, bool, error) {
	enabled, err := e.source.ListEnabled(ctx)
	if err != nil {
		return types.Rule{}, false, errors.Errorf("listing enabled rules: %w", err)
	}
	rule, ok := e.matcher.First(ctx, candidate, enabled)
	return rule, ok, nil
}

type substituteOptions struct {
	includeDisabled bool
}

// SubstituteOption adjusts a single Substitute call.
type SubstituteOption func(*substituteOptions)

// IncludeDisabled allows substituting with a disabled rule.
func IncludeDisabled() SubstituteOption {
	return func(o *substituteOptions) { o.includeDisabled = true }
}

// Substitute rewrites subject with the rule identified by id.
func (e *Engine) Substitute(ctx context.Context, subject string, id types.RuleID, repl substitute.Replacement, opts ...SubstituteOption) (string, error) {
	var o substituteOptions
	for _, opt := range opts {
		opt(&o)
	}

	rule, err := e.source.FindByID(ctx, id)
	if err != nil {
		return "", err
	}
	if !rule.IsEnabled && !o.includeDisabled {
		return "", errors.Errorf("rule %s: %w", id, types.ErrRuleDisabled)
	}
	return e.SubstituteRule(ctx, subject, rule, repl)
}

// SubstituteRule rewrites subject with rule under the rule's time budget.
// Literal rules replace their exact text, case-sensitively.
func (e *Engine) SubstituteRule(ctx context.Context, subject string, rule types.Rule, repl substitute.Replacement) (string, error) {
	re, err := e.patterns.Get(rule)
	if err != nil {
		return "", errors.Errorf("compiling rule %s: %w", rule.ID, err)
	}
	// A zero budget lets the executor apply its configured default.
	return e.executor.Substitute(ctx, subject, re, rule.EffectiveTimeout(0), repl)
}

// SkippedRuleError wraps the error of one rule that Rewrite skipped.
type SkippedRuleError struct {
	RuleID types.RuleID
	Err    error
}

func (e *SkippedRuleError) Error() string {
	return fmt.Sprintf("rule %s: %v", e.RuleID, e.Err)
}

func (e *SkippedRuleError) Unwrap() error {
	return e.Err
}

// Rewrite applies every enabled rule in order. A rule that times out or
// fails leaves the text as it was and the remaining rules still run; the
// per-rule *SkippedRuleError values are joined into the returned error
// next to the best-effort output.
func (e *Engine) Rewrite(ctx context.Context, subject string, repl substitute.Replacement) (string, error) {
	enabled, err := e.source.ListEnabled(ctx)
	if err != nil {
		return subject, errors.Errorf("listing enabled rules: %w", err)
	}

	logger := zerolog.Ctx(ctx)
	text := subject
	var errs []error
	for _, rule := range enabled {
		out, err := e.SubstituteRule(ctx, text, rule, repl)
		if err != nil {
			if ctx.Err() != nil {
				return text, err
			}
			logger.Warn().Err(err).Str("rule_id", string(rule.ID)).Msg("rule skipped during rewrite")
			errs = append(errs, &SkippedRuleError{RuleID: rule.ID, Err: err})
			continue
		}
		text = out
	}
	return text, errors.Join(errs...)
}

// Watch evicts cached patterns of deleted rules as the store reports
// changes. Blocks until ctx ends or updates is closed.
func (e *Engine) Watch(ctx context.Context, updates <-chan []types.Rule) {
	for {
		select {
		case <-ctx.Done():
			return
		case current, ok := <-updates:
			if !ok {
				return
			}
			e.patterns.Retain(current)
		}
	}
}
