package db

import (
	"context"
	"database/sql"
	"strings"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"

	"github.com/solatis/sieve/internal/types"
)

/*
 * Filter rule repository.
 *
 * Lists are ordered by sort_order then rule_id; rule IDs are UUIDv7 so the
 * secondary key follows creation order. Multi-rule writes run in one
 * transaction. After every committed mutation the full ordered list is
 * pushed to subscribers; notifyMu serialises snapshot reads with
 * delivery so a subscriber never sees an older list after a newer one.
 */

// RuleStore persists filter rules.
type RuleStore struct {
	db      *sqlx.DB
	queries *Queries

	notifyMu sync.Mutex
	subs     *broadcaster

	now func() time.Time
}

// NewRuleStore creates a store over an open, migrated database.
func NewRuleStore(db *sqlx.DB) (*RuleStore, error) {
	if db == nil {
		return nil, errors.New("db is required")
	}
	queries, err := LoadQueries(db)
	if err != nil {
		return nil, err
	}
	return &RuleStore{
		db:      db,
		queries: queries,
		subs:    newBroadcaster(),
		now:     func() time.Time { return time.Now().UTC() },
	}, nil
}

// ListAll returns every rule in priority order.
func (s *RuleStore) ListAll(ctx context.Context) ([]types.Rule, error) {
	rules := []types.Rule{}
	if err := s.queries.Select(ctx, s.db, "list-rules", &rules); err != nil {
		return nil, errors.Errorf("listing rules: %w", err)
	}
	return rules, nil
}

// ListEnabled returns the enabled rules in priority order.
func (s *RuleStore) ListEnabled(ctx context.Context) ([]types.Rule, error) {
	rules := []types.Rule{}
	if err := s.queries.Select(ctx, s.db, "list-enabled-rules", &rules, true); err != nil {
		return nil, errors.Errorf("listing enabled rules: %w", err)
	}
	return rules, nil
}

// FindByID returns the rule with id or an error wrapping types.ErrRuleNotFound.
func (s *RuleStore) FindByID(ctx context.Context, id types.RuleID) (types.Rule, error) {
	var r types.Rule
	err := s.queries.Get(ctx, s.db, "get-rule", &r, id)
	if errors.Is(err, sql.ErrNoRows) {
		return types.Rule{}, errors.Errorf("rule %s: %w", id, types.ErrRuleNotFound)
	}
	if err != nil {
		return types.Rule{}, errors.Errorf("loading rule %s: %w", id, err)
	}
	return r, nil
}

// FindByName returns rules whose name equals name exactly.
func (s *RuleStore) FindByName(ctx context.Context, name string) ([]types.Rule, error) {
	rules := []types.Rule{}
	if err := s.queries.Select(ctx, s.db, "find-rules-by-name", &rules, name); err != nil {
		return nil, errors.Errorf("finding rules named %q: %w", name, err)
	}
	return rules, nil
}

// Search returns rules whose name contains needle, ignoring ASCII case.
func (s *RuleStore) Search(ctx context.Context, needle string) ([]types.Rule, error) {
	rules := []types.Rule{}
	if err := s.queries.Select(ctx, s.db, "search-rules", &rules, "%"+escapeLike(needle)+"%"); err != nil {
		return nil, errors.Errorf("searching rules for %q: %w", needle, err)
	}
	return rules, nil
}

// InsertOrReplace writes rules in one transaction, replacing existing rows
// with the same ID.
func (s *RuleStore) InsertOrReplace(ctx context.Context, rules ...types.Rule) error {
	if len(rules) == 0 {
		return nil
	}
	now := s.now()
	err := inTx(ctx, s.db, func(tx *sqlx.Tx) error {
		for _, r := range rules {
			if r.ID == "" {
				return errors.Errorf("rule %q has no id", r.Label())
			}
			_, err := s.queries.Exec(ctx, tx, "upsert-rule",
				r.ID, r.Name, r.Pattern, r.IsEnabled, r.IsRegex, r.TimeoutMs, r.Order, now, now)
			if err != nil {
				return errors.Errorf("writing rule %s: %w", r.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.notify(ctx)
	return nil
}

// Update rewrites existing rules in one transaction. A missing rule
// aborts the whole write with types.ErrRuleNotFound.
func (s *RuleStore) Update(ctx context.Context, rules ...types.Rule) error {
	if len(rules) == 0 {
		return nil
	}
	now := s.now()
	err := inTx(ctx, s.db, func(tx *sqlx.Tx) error {
		for _, r := range rules {
			res, err := s.queries.Exec(ctx, tx, "update-rule",
				r.Name, r.Pattern, r.IsEnabled, r.IsRegex, r.TimeoutMs, r.Order, now, r.ID)
			if err != nil {
				return errors.Errorf("updating rule %s: %w", r.ID, err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return errors.Errorf("updating rule %s: %w", r.ID, err)
			}
			if n == 0 {
				return errors.Errorf("rule %s: %w", r.ID, types.ErrRuleNotFound)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.notify(ctx)
	return nil
}

// Delete removes rules by ID in one transaction. Unknown IDs are ignored.
func (s *RuleStore) Delete(ctx context.Context, ids ...types.RuleID) error {
	if len(ids) == 0 {
		return nil
	}
	err := inTx(ctx, s.db, func(tx *sqlx.Tx) error {
		for _, id := range ids {
			if _, err := s.queries.Exec(ctx, tx, "delete-rule", id); err != nil {
				return errors.Errorf("deleting rule %s: %w", id, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.notify(ctx)
	return nil
}

// MinOrder returns the smallest order value, 0 when there are no rules.
func (s *RuleStore) MinOrder(ctx context.Context) (int, error) {
	var n int
	if err := s.queries.Get(ctx, s.db, "min-order", &n); err != nil {
		return 0, errors.Errorf("reading min order: %w", err)
	}
	return n, nil
}

// MaxOrder returns the largest order value, 0 when there are no rules.
func (s *RuleStore) MaxOrder(ctx context.Context) (int, error) {
	var n int
	if err := s.queries.Get(ctx, s.db, "max-order", &n); err != nil {
		return 0, errors.Errorf("reading max order: %w", err)
	}
	return n, nil
}

// Subscribe streams the ordered rule list: once immediately, then after
// every committed mutation. A slow subscriber only sees the latest list.
// The channel closes when ctx ends.
func (s *RuleStore) Subscribe(ctx context.Context) <-chan []types.Rule {
	id, ch := s.subs.add()

	s.notifyMu.Lock()
	if rules, err := s.ListAll(ctx); err == nil {
		s.subs.offer(id, rules)
	} else {
		zerolog.Ctx(ctx).Error().Err(err).Msg("loading initial rule snapshot")
	}
	s.notifyMu.Unlock()

	go func() {
		<-ctx.Done()
		s.subs.remove(id)
	}()
	return ch
}

// notify publishes the current list after a committed mutation.
func (s *RuleStore) notify(ctx context.Context) {
	if s.subs.len() == 0 {
		return
	}
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	// The mutation is committed; a cancelled caller must not suppress delivery.
	rules, err := s.ListAll(context.WithoutCancel(ctx))
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("loading rule snapshot for subscribers")
		return
	}
	s.subs.publish(rules)
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
