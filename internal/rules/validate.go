// internal/rules/validate.go
package rules

import (
	"fmt"
	"strings"

	"github.com/solatis/sieve/internal/types"
)

/*
 * Save-time rule validation.
 *
 * The only gate on pattern correctness: Matcher and Executor trust that
 * every rule reaching them passed Validate, so the store's writers must
 * call it before persisting.
 *
 * Checks, in order:
 *   1. Pattern non-empty (both kinds)
 *   2. Structured patterns compile (engine diagnostic is the reason)
 *   3. Structured patterns do not end in an unescaped '|': "a|" compiles
 *      but its empty branch matches everywhere
 *   4. Timeout at most types.MaxTimeout (ValidateRule only)
 */

// InvalidRuleError reports why a rule was rejected.
type InvalidRuleError struct {
	Pattern string
	Reason  string
}

func (e *InvalidRuleError) Error() string {
	return fmt.Sprintf("invalid rule: %s", e.Reason)
}

// Is matches types.ErrInvalidRule.
func (e *InvalidRuleError) Is(target error) bool {
	return target == types.ErrInvalidRule
}

// Validate checks a pattern of the given kind. Returns *InvalidRuleError.
func Validate(pattern string, isRegex bool) error {
	if pattern == "" {
		return &InvalidRuleError{Pattern: pattern, Reason: "pattern is empty"}
	}
	if !isRegex {
		return nil
	}

	if _, err := compileRegex(pattern); err != nil {
		return &InvalidRuleError{Pattern: pattern, Reason: fmt.Sprintf("pattern does not compile: %v", err)}
	}

	if endsWithUnescapedAlternation(pattern) {
		return &InvalidRuleError{Pattern: pattern, Reason: "pattern ends with an unescaped '|' and matches the empty string"}
	}

	return nil
}

// ValidateRule validates r's pattern against its kind and bounds its
// timeout.
func ValidateRule(r types.Rule) error {
	if err := Validate(r.Pattern, r.IsRegex); err != nil {
		return err
	}
	if r.TimeoutMs > types.MaxTimeout.Milliseconds() {
		return &InvalidRuleError{Pattern: r.Pattern, Reason: fmt.Sprintf("timeout %dms exceeds maximum of %v", r.TimeoutMs, types.MaxTimeout)}
	}
	return nil
}

// endsWithUnescapedAlternation reports whether the final '|' is preceded
// by an even number of backslashes ("\\|" is an escaped backslash then a bare '|').
func endsWithUnescapedAlternation(pattern string) bool {
	if !strings.HasSuffix(pattern, "|") {
		return false
	}
	backslashes := 0
	for i := len(pattern) - 2; i >= 0 && pattern[i] == '\\'; i-- {
		backslashes++
	}
	return backslashes%2 == 0
}
