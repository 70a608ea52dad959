// internal/rules/match.go
package rules

import (
	"context"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/text/cases"

	"github.com/solatis/sieve/internal/types"
)

/*
 * Membership test over an ordered rule snapshot.
 *
 * First match wins; slice order is priority order. Structured patterns
 * use search-anywhere semantics. Literals use case-insensitive
 * containment with full Unicode case folding, so "straße" also
 * matches "STRASSE". No time budget applies: the
 * matcher runs once per listed item and does no replacement.
 */

// Matcher tests candidates against rules.
type Matcher struct {
	patterns *Patterns
}

// NewMatcher creates a matcher compiling through patterns.
func NewMatcher(patterns *Patterns) *Matcher {
	if patterns == nil {
		patterns = NewPatterns()
	}
	return &Matcher{patterns: patterns}
}

// Test reports whether any enabled rule matches candidate.
func (m *Matcher) Test(ctx context.Context, candidate string, rules []types.Rule) bool {
	_, ok := m.First(ctx, candidate, rules)
	return ok
}

// First returns the first enabled rule matching candidate.
// Disabled rules and rules with empty patterns are skipped.
func (m *Matcher) First(ctx context.Context, candidate string, rules []types.Rule) (types.Rule, bool) {
	logger := zerolog.Ctx(ctx)

	var folded string
	foldedOnce := false

	for _, rule := range rules {
		if !rule.IsEnabled || rule.Pattern == "" {
			continue
		}

		var matched bool
		if rule.IsRegex {
			re, err := m.patterns.Get(rule)
			if err != nil {
				logger.Error().Err(err).Str("rule_id", string(rule.ID)).Str("pattern", rule.Pattern).Msg("skipping rule with invalid pattern")
				continue
			}
			matched, err = re.MatchString(candidate)
			if err != nil {
				logger.Error().Err(err).Str("rule_id", string(rule.ID)).Msg("pattern evaluation failed")
				continue
			}
		} else {
			if !foldedOnce {
				folded = cases.Fold().String(candidate)
				foldedOnce = true
			}
			matched = strings.Contains(folded, cases.Fold().String(rule.Pattern))
		}

		logger.Debug().
			Str("rule_id", string(rule.ID)).
			Bool("regex", rule.IsRegex).
			Str("pattern", rule.Pattern).
			Str("candidate", candidate).
			Bool("result", matched).
			Msg("filter evaluated")

		if matched {
			return rule, true
		}
	}
	return types.Rule{}, false
}
