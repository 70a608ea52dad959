// Package api provides the rule editing operations behind the CLI and
// the gRPC surface.
package api

import (
	"context"

	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"

	"github.com/solatis/sieve/internal/rules"
	"github.com/solatis/sieve/internal/types"
)

// RuleRepository is the persistence the service orchestrates.
// Implemented by *db.RuleStore.
type RuleRepository interface {
	ListAll(ctx context.Context) ([]types.Rule, error)
	FindByID(ctx context.Context, id types.RuleID) (types.Rule, error)
	FindByName(ctx context.Context, name string) ([]types.Rule, error)
	Search(ctx context.Context, needle string) ([]types.Rule, error)
	InsertOrReplace(ctx context.Context, rules ...types.Rule) error
	Update(ctx context.Context, rules ...types.Rule) error
	Delete(ctx context.Context, ids ...types.RuleID) error
	MinOrder(ctx context.Context) (int, error)
	MaxOrder(ctx context.Context) (int, error)
}

// RuleService validates and orders rules before they reach the store.
// Thin orchestration layer over the validator and the repository.
type RuleService struct {
	repo RuleRepository
}

// NewRuleService creates a service over repo.
func NewRuleService(repo RuleRepository) (*RuleService, error) {
	if repo == nil {
		return nil, errors.New("repo cannot be nil")
	}
	return &RuleService{repo: repo}, nil
}

// List returns every rule in priority order.
func (s *RuleService) List(ctx context.Context) ([]types.Rule, error) {
	return s.repo.ListAll(ctx)
}

// Get returns one rule.
func (s *RuleService) Get(ctx context.Context, id types.RuleID) (types.Rule, error) {
	return s.repo.FindByID(ctx, id)
}

// Search returns rules whose name contains needle.
func (s *RuleService) Search(ctx context.Context, needle string) ([]types.Rule, error) {
	return s.repo.Search(ctx, needle)
}

// Save validates r and writes it. A rule without an ID is new: it gets one
// and is placed above every existing rule. Invalid rules are never written.
func (s *RuleService) Save(ctx context.Context, r types.Rule) (types.Rule, error) {
	if err := rules.ValidateRule(r); err != nil {
		return types.Rule{}, err
	}

	if r.ID == "" {
		top, err := s.repo.MinOrder(ctx)
		if err != nil {
			return types.Rule{}, err
		}
		r.ID = types.NewRuleID()
		r.Order = top - 1
	}

	if err := s.repo.InsertOrReplace(ctx, r); err != nil {
		return types.Rule{}, errors.Errorf("saving rule %s: %w", r.ID, err)
	}

	zerolog.Ctx(ctx).Info().
		Str("rule_id", string(r.ID)).
		Str("name", r.Name).
		Bool("regex", r.IsRegex).
		Int("order", r.Order).
		Msg("rule saved")
	return r, nil
}

// Toggle enables or disables one rule.
func (s *RuleService) Toggle(ctx context.Context, id types.RuleID, enabled bool) (types.Rule, error) {
	return s.modify(ctx, id, func(r *types.Rule) error {
		r.IsEnabled = enabled
		return nil
	})
}

// Rename changes a rule's display name.
func (s *RuleService) Rename(ctx context.Context, id types.RuleID, name string) (types.Rule, error) {
	return s.modify(ctx, id, func(r *types.Rule) error {
		r.Name = name
		return nil
	})
}

// ToTop gives a rule the highest priority.
func (s *RuleService) ToTop(ctx context.Context, id types.RuleID) (types.Rule, error) {
	return s.modify(ctx, id, func(r *types.Rule) error {
		top, err := s.repo.MinOrder(ctx)
		if err != nil {
			return err
		}
		r.Order = top - 1
		return nil
	})
}

// ToBottom gives a rule the lowest priority.
func (s *RuleService) ToBottom(ctx context.Context, id types.RuleID) (types.Rule, error) {
	return s.modify(ctx, id, func(r *types.Rule) error {
		bottom, err := s.repo.MaxOrder(ctx)
		if err != nil {
			return err
		}
		r.Order = bottom + 1
		return nil
	})
}

// Swap exchanges the positions of two rules in one write. Rules sharing an
// order value are renumbered first so the exchange is visible.
func (s *RuleService) Swap(ctx context.Context, a, b types.RuleID) error {
	ra, err := s.repo.FindByID(ctx, a)
	if err != nil {
		return err
	}
	rb, err := s.repo.FindByID(ctx, b)
	if err != nil {
		return err
	}

	if ra.Order == rb.Order {
		if err := s.Renumber(ctx); err != nil {
			return err
		}
		if ra, err = s.repo.FindByID(ctx, a); err != nil {
			return err
		}
		if rb, err = s.repo.FindByID(ctx, b); err != nil {
			return err
		}
	}

	ra.Order, rb.Order = rb.Order, ra.Order
	return s.repo.Update(ctx, ra, rb)
}

// Renumber rewrites every order value to 1..n keeping the current order.
func (s *RuleService) Renumber(ctx context.Context) error {
	all, err := s.repo.ListAll(ctx)
	if err != nil {
		return err
	}
	for i := range all {
		all[i].Order = i + 1
	}
	return s.repo.Update(ctx, all...)
}

// EnableSelection enables every listed rule in one write.
func (s *RuleService) EnableSelection(ctx context.Context, ids []types.RuleID) error {
	return s.setEnabled(ctx, ids, true)
}

// DisableSelection disables every listed rule in one write.
func (s *RuleService) DisableSelection(ctx context.Context, ids []types.RuleID) error {
	return s.setEnabled(ctx, ids, false)
}

// DeleteSelection removes every listed rule in one write.
func (s *RuleService) DeleteSelection(ctx context.Context, ids []types.RuleID) error {
	if err := s.repo.Delete(ctx, ids...); err != nil {
		return err
	}
	zerolog.Ctx(ctx).Info().Int("count", len(ids)).Msg("rules deleted")
	return nil
}

func (s *RuleService) setEnabled(ctx context.Context, ids []types.RuleID, enabled bool) error {
	selected := make([]types.Rule, 0, len(ids))
	for _, id := range ids {
		r, err := s.repo.FindByID(ctx, id)
		if err != nil {
			return err
		}
		r.IsEnabled = enabled
		selected = append(selected, r)
	}
	return s.repo.Update(ctx, selected...)
}

// modify loads, edits and writes back a single rule.
func (s *RuleService) modify(ctx context.Context, id types.RuleID, edit func(*types.Rule) error) (types.Rule, error) {
	r, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return types.Rule{}, err
	}
	if err := edit(&r); err != nil {
		return types.Rule{}, err
	}
	if err := s.repo.Update(ctx, r); err != nil {
		return types.Rule{}, err
	}
	return r, nil
}
