package server

import (
	"context"

	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/solatis/sieve/internal/rules"
	"github.com/solatis/sieve/internal/substitute"
	"github.com/solatis/sieve/internal/types"
)

// maxCandidates bounds one Test request.
const maxCandidates = 10000

// Filter is the rule engine behind the service.
// Implemented by *rules.Engine.
type Filter interface {
	Match(ctx context.Context, candidate string) (types.Rule, bool, error)
	Substitute(ctx context.Context, subject string, id types.RuleID, repl substitute.Replacement, opts ...rules.SubstituteOption) (string, error)
	Rewrite(ctx context.Context, subject string, repl substitute.Replacement) (string, error)
}

// FilterService implements FilterServer over a Filter.
// Thin orchestration layer: validates requests, maps errors to status codes.
type FilterService struct {
	filter          Filter
	defaultTemplate string
}

// NewFilterService creates the service. defaultTemplate is used by
// requests that carry no template.
func NewFilterService(filter Filter, defaultTemplate string) (*FilterService, error) {
	if filter == nil {
		return nil, errors.New("filter cannot be nil")
	}
	return &FilterService{filter: filter, defaultTemplate: defaultTemplate}, nil
}

func (s *FilterService) replacement(tmpl *string) substitute.Replacement {
	if tmpl == nil {
		return substitute.WithTemplate(s.defaultTemplate)
	}
	return substitute.WithTemplate(*tmpl)
}

// Test reports the first matching rule for each candidate.
func (s *FilterService) Test(ctx context.Context, req *TestRequest) (*TestResponse, error) {
	if len(req.Candidates) == 0 {
		return nil, status.Error(codes.InvalidArgument, "at least one candidate is required")
	}
	if len(req.Candidates) > maxCandidates {
		return nil, status.Errorf(codes.InvalidArgument, "batch size exceeds maximum of %d candidates", maxCandidates)
	}

	results := make([]TestResult, len(req.Candidates))
	for i, candidate := range req.Candidates {
		rule, ok, err := s.filter.Match(ctx, candidate)
		if err != nil {
			return nil, toStatus(err)
		}
		results[i] = TestResult{Candidate: candidate, Matched: ok}
		if ok {
			results[i].RuleID = string(rule.ID)
			results[i].RuleName = rule.Name
		}
	}
	return &TestResponse{Results: results}, nil
}

// Substitute rewrites the subject with one rule.
func (s *FilterService) Substitute(ctx context.Context, req *SubstituteRequest) (*SubstituteResponse, error) {
	if req.RuleID == "" {
		return nil, status.Error(codes.InvalidArgument, "rule_id is required")
	}

	var opts []rules.SubstituteOption
	if req.IncludeDisabled {
		opts = append(opts, rules.IncludeDisabled())
	}

	out, err := s.filter.Substitute(ctx, req.Subject, types.RuleID(req.RuleID), s.replacement(req.Template), opts...)
	if err != nil {
		return nil, toStatus(err)
	}
	return &SubstituteResponse{Text: out}, nil
}

// Rewrite applies every enabled rule. The IDs of rules that timed out or
// failed are reported in Skipped; the call still succeeds with the partial
// output.
func (s *FilterService) Rewrite(ctx context.Context, req *RewriteRequest) (*RewriteResponse, error) {
	out, err := s.filter.Rewrite(ctx, req.Subject, s.replacement(req.Template))
	if err == nil {
		return &RewriteResponse{Text: out}, nil
	}
	if ctx.Err() != nil {
		return nil, toStatus(err)
	}

	var skipped []string
	for _, e := range flatten(err) {
		var rule *rules.SkippedRuleError
		if !errors.As(e, &rule) || (!errors.Is(e, types.ErrRegexTimeout) && !errors.Is(e, types.ErrSubstitutionFailed)) {
			return nil, toStatus(err)
		}
		skipped = append(skipped, string(rule.RuleID))
	}
	zerolog.Ctx(ctx).Warn().Int("skipped", len(skipped)).Msg("rewrite completed with skipped rules")
	return &RewriteResponse{Text: out, Skipped: skipped}, nil
}

// flatten returns the members of a joined error, or err alone.
func flatten(err error) []error {
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		return joined.Unwrap()
	}
	return []error{err}
}
