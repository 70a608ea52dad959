package cmd

import (
	"context"
	"fmt"

	"github.com/pterm/pterm"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gitlab.com/tozd/go/errors"

	"github.com/solatis/sieve/internal/rules"
	"github.com/solatis/sieve/internal/substitute"
)

var testCmd = &cobra.Command{
	Use:   "test CANDIDATE...",
	Short: "Report which enabled rule, if any, matches each candidate",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runTest,
}

var substituteCmd = &cobra.Command{
	Use:   "substitute --rule ID SUBJECT",
	Short: "Rewrite SUBJECT with one rule (\"-\" reads stdin)",
	Args:  cobra.ExactArgs(1),
	RunE:  runSubstitute,
}

var rewriteCmd = &cobra.Command{
	Use:   "rewrite SUBJECT",
	Short: "Rewrite SUBJECT with every enabled rule in order (\"-\" reads stdin)",
	Args:  cobra.ExactArgs(1),
	RunE:  runRewrite,
}

func init() {
	rootCmd.AddCommand(testCmd, substituteCmd, rewriteCmd)

	substituteCmd.Flags().String("rule", "", "rule ID")
	substituteCmd.Flags().String("template", "", "replacement template ($n, ${name}, \\x); default from substitution.template")
	substituteCmd.Flags().Bool("include-disabled", false, "allow a disabled rule")
	_ = substituteCmd.MarkFlagRequired("rule")

	rewriteCmd.Flags().String("template", "", "replacement template; default from substitution.template")
}

func replacementFor(cmd *cobra.Command) substitute.Replacement {
	if cmd.Flags().Changed("template") {
		tmpl, _ := cmd.Flags().GetString("template")
		return substitute.WithTemplate(tmpl)
	}
	return substitute.WithTemplate(cfg.Substitution.Template)
}

func runTest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	database, store, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer database.Close()

	engine := newEngine(store, substitute.ExitRestarter{})
	data := pterm.TableData{{"Candidate", "Matched", "Rule"}}
	for _, candidate := range args {
		rule, ok, err := engine.Match(ctx, candidate)
		if err != nil {
			return err
		}
		label := "-"
		if ok {
			label = fmt.Sprintf("%s (%s)", rule.Label(), rule.ID)
		}
		data = append(data, []string{candidate, fmt.Sprint(ok), label})
	}

	table, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), table)
	return nil
}

func runSubstitute(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	rawID, _ := cmd.Flags().GetString("rule")
	ids, err := parseIDs([]string{rawID})
	if err != nil {
		return err
	}
	subject, err := subjectArg(cmd.InOrStdin(), args[0])
	if err != nil {
		return err
	}

	database, store, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer database.Close()

	var opts []rules.SubstituteOption
	if include, _ := cmd.Flags().GetBool("include-disabled"); include {
		opts = append(opts, rules.IncludeDisabled())
	}

	engine := newEngine(store, substitute.ExitRestarter{})
	out, err := engine.Substitute(ctx, subject, ids[0], replacementFor(cmd), opts...)
	if err != nil {
		awaitTimeouts(ctx, err)
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), out)
	return nil
}

func runRewrite(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	subject, err := subjectArg(cmd.InOrStdin(), args[0])
	if err != nil {
		return err
	}

	database, store, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer database.Close()

	engine := newEngine(store, substitute.ExitRestarter{})
	out, err := engine.Rewrite(ctx, subject, replacementFor(cmd))
	// Best-effort output is printed even when some rules were skipped.
	fmt.Fprintln(cmd.OutOrStdout(), out)
	if err != nil {
		awaitTimeouts(ctx, err)
		return err
	}
	return nil
}

// awaitTimeouts blocks until every timed-out or abandoned worker in err
// has stopped.
// A worker that never stops escalates, and ExitRestarter ends the process
// with the restart exit code before this returns.
func awaitTimeouts(ctx context.Context, err error) {
	logger := zerolog.Ctx(ctx)
	for _, e := range flatten(err) {
		var pending substitute.Pending
		if !errors.As(e, &pending) {
			continue
		}
		state, waitErr := pending.Wait(context.WithoutCancel(ctx))
		if waitErr != nil {
			logger.Warn().Err(waitErr).Msg("stopped waiting for cancelled worker")
			continue
		}
		if state == substitute.StateCancelled {
			logger.Debug().Err(e).Msg("cancelled worker stopped")
		}
	}
}

// flatten returns the members of a joined error, or err alone.
func flatten(err error) []error {
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		return joined.Unwrap()
	}
	return []error{err}
}
