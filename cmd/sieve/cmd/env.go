package cmd

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/jmoiron/sqlx"
	"gitlab.com/tozd/go/errors"

	"github.com/solatis/sieve/internal/core/db"
	"github.com/solatis/sieve/internal/core/diag"
	"github.com/solatis/sieve/internal/rules"
	"github.com/solatis/sieve/internal/substitute"
	"github.com/solatis/sieve/internal/types"
)

// openStore opens the configured database and refuses to run on a schema
// with pending migrations.
func openStore(ctx context.Context) (*sqlx.DB, *db.RuleStore, error) {
	database, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, errors.Errorf("failed to open database: %w", err)
	}

	statuses, err := db.MigrateStatus(ctx, database)
	if err != nil {
		database.Close()
		return nil, nil, errors.Errorf("failed to check migrations: %w", err)
	}
	for _, s := range statuses {
		if !s.Applied {
			database.Close()
			return nil, nil, errors.Errorf("migration %s not applied - run 'sieve migrate' first", s.ID)
		}
	}

	store, err := db.NewRuleStore(database)
	if err != nil {
		database.Close()
		return nil, nil, err
	}
	return database, store, nil
}

// newEngine wires the store to an executor that persists escalations to
// the diagnostics directory before calling restarter.
func newEngine(store *db.RuleStore, restarter substitute.Restarter) *rules.Engine {
	executor := substitute.NewExecutor(
		substitute.WithDefaultTimeout(cfg.Substitution.DefaultTimeout),
		substitute.WithGracePeriod(cfg.Substitution.GracePeriod),
		substitute.WithRecorder(diag.NewSink(cfg.DataDir)),
		substitute.WithRestarter(restarter),
	)
	return rules.NewEngine(store, executor)
}

// parseIDs validates every argument as a rule ID.
func parseIDs(args []string) ([]types.RuleID, error) {
	ids := make([]types.RuleID, 0, len(args))
	for _, arg := range args {
		id, err := types.ParseRuleID(arg)
		if err != nil {
			return nil, errors.Errorf("invalid rule id %q: %w", arg, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// subjectArg returns the subject argument, reading stdin for "-".
func subjectArg(in io.Reader, arg string) (string, error) {
	if arg != "-" {
		return arg, nil
	}
	if in == nil {
		in = os.Stdin
	}
	data, err := io.ReadAll(in)
	if err != nil {
		return "", errors.Errorf("reading subject from stdin: %w", err)
	}
	return strings.TrimSuffix(string(data), "\n"), nil
}
