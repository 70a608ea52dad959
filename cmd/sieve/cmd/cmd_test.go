package cmd

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/pterm/pterm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solatis/sieve/internal/core/db"
	"github.com/solatis/sieve/internal/types"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func findRule(t *testing.T, url, name string) types.Rule {
	t.Helper()
	ctx := context.Background()
	database, err := db.Open(ctx, url)
	require.NoError(t, err)
	defer database.Close()

	store, err := db.NewRuleStore(database)
	require.NoError(t, err)
	found, err := store.FindByName(ctx, name)
	require.NoError(t, err)
	require.Len(t, found, 1)
	return found[0]
}

func TestCLI_Workflow(t *testing.T) {
	pterm.DisableStyling()
	t.Cleanup(pterm.EnableStyling)

	dir := t.TempDir()
	url := "sqlite://" + filepath.Join(dir, "sieve.db")
	t.Setenv("SIEVE_DATA_DIR", dir)
	t.Setenv("SIEVE_LOG_LEVEL", "error")

	_, err := run(t, "rules", "list", "--db-url", url)
	assert.ErrorContains(t, err, "sieve migrate", "commands refuse an unmigrated database")

	out, err := run(t, "migrate", "--db-url", url)
	require.NoError(t, err)
	assert.Contains(t, out, "1 migration(s) applied")

	_, err = run(t, "rules", "add", "digits", `\d+`, "--db-url", url)
	require.NoError(t, err)
	_, err = run(t, "rules", "add", "bad", "(oops", "--db-url", url)
	assert.ErrorIs(t, err, types.ErrInvalidRule)
	_, err = run(t, "rules", "add", "slow", "x", "--timeout", "20m", "--db-url", url)
	assert.ErrorIs(t, err, types.ErrInvalidRule, "timeouts above the maximum are rejected")

	out, err = run(t, "rules", "list", "--db-url", url)
	require.NoError(t, err)
	assert.Contains(t, out, "digits")
	assert.NotContains(t, out, "oops")
	assert.NotContains(t, out, "slow")

	digits := findRule(t, url, "digits")

	out, err = run(t, "substitute", "--rule", string(digits.ID), "--template", "#", "--db-url", url, "ch 12")
	require.NoError(t, err)
	assert.Equal(t, "ch #\n", out)

	out, err = run(t, "rewrite", "--template", "<$0>", "--db-url", url, "p 3")
	require.NoError(t, err)
	assert.Equal(t, "p <3>\n", out)

	out, err = run(t, "test", "--db-url", url, "chapter 7", "plain")
	require.NoError(t, err)
	assert.Contains(t, out, "true")
	assert.Contains(t, out, "false")

	_, err = run(t, "rules", "disable", string(digits.ID), "--db-url", url)
	require.NoError(t, err)
	assert.False(t, findRule(t, url, "digits").IsEnabled)

	_, err = run(t, "substitute", "--rule", string(digits.ID), "--template", "#", "--db-url", url, "ch 12")
	assert.ErrorIs(t, err, types.ErrRuleDisabled)

	_, err = run(t, "rules", "rename", string(digits.ID), "numbers", "--db-url", url)
	require.NoError(t, err)
	_, err = run(t, "rules", "delete", string(digits.ID), "--db-url", url)
	require.NoError(t, err)

	out, err = run(t, "rules", "list", "--db-url", url)
	require.NoError(t, err)
	assert.Contains(t, out, "no rules")
}

func TestTimeoutLabel(t *testing.T) {
	assert.Equal(t, "5s (default)", timeoutLabel(types.Rule{}, 5*time.Second))
	assert.Equal(t, "250ms", timeoutLabel(types.Rule{TimeoutMs: 250}, 5*time.Second))
}

func TestCreatedLabel(t *testing.T) {
	created, err := time.ParseInLocation("2006-01-02 15:04", createdLabel(types.NewRuleID()), time.Local)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now(), created, 2*time.Minute)
	assert.Equal(t, "-", createdLabel("bogus"))
}

func TestParseIDs(t *testing.T) {
	id := types.NewRuleID()
	ids, err := parseIDs([]string{string(id)})
	require.NoError(t, err)
	assert.Equal(t, []types.RuleID{id}, ids)

	_, err = parseIDs([]string{"not-an-id"})
	assert.Error(t, err)
}

func TestSubjectArg(t *testing.T) {
	got, err := subjectArg(nil, "literal")
	require.NoError(t, err)
	assert.Equal(t, "literal", got)

	got, err = subjectArg(bytes.NewBufferString("from stdin\n"), "-")
	require.NoError(t, err)
	assert.Equal(t, "from stdin", got)
}
