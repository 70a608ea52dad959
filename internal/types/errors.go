package types

import "gitlab.com/tozd/go/errors"

// Sentinel errors for sieve operations.
var (
	// ErrInvalidRule indicates a rule failed validation and was not persisted.
	ErrInvalidRule = errors.New("invalid rule")

	// ErrRegexTimeout indicates a substitution exceeded its time budget.
	ErrRegexTimeout = errors.New("substitution timed out")

	// ErrSubstitutionFailed indicates the substitution worker failed internally.
	ErrSubstitutionFailed = errors.New("substitution failed")

	// ErrRuleNotFound indicates no rule exists with the requested ID.
	ErrRuleNotFound = errors.New("rule not found")

	// ErrRuleDisabled indicates a disabled rule was used without opting in.
	ErrRuleDisabled = errors.New("rule is disabled")
)
