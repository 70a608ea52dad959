package cmd

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"gitlab.com/tozd/go/errors"

	"github.com/solatis/sieve/internal/core/api"
	"github.com/solatis/sieve/internal/types"
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Manage filter rules",
}

// withService opens the store for the duration of fn.
func withService(cmd *cobra.Command, fn func(svc *api.RuleService) error) error {
	database, store, err := openStore(cmd.Context())
	if err != nil {
		return err
	}
	defer database.Close()

	svc, err := api.NewRuleService(store)
	if err != nil {
		return err
	}
	return fn(svc)
}

// printRules renders rules as a table; def labels rules without their own
// timeout.
func printRules(w io.Writer, rules []types.Rule, def time.Duration) error {
	if len(rules) == 0 {
		fmt.Fprint(w, pterm.Info.Sprintln("no rules"))
		return nil
	}
	data := pterm.TableData{{"Order", "ID", "Name", "Kind", "Pattern", "Enabled", "Timeout", "Created"}}
	for _, r := range rules {
		kind := "literal"
		if r.IsRegex {
			kind = "regex"
		}
		data = append(data, []string{
			strconv.Itoa(r.Order),
			string(r.ID),
			r.Name,
			kind,
			r.Pattern,
			strconv.FormatBool(r.IsEnabled),
			timeoutLabel(r, def),
			createdLabel(r.ID),
		})
	}
	table, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
	if err != nil {
		return err
	}
	fmt.Fprintln(w, table)
	return nil
}

func timeoutLabel(r types.Rule, def time.Duration) string {
	if r.TimeoutMs <= 0 {
		return def.String() + " (default)"
	}
	return r.EffectiveTimeout(def).String()
}

// createdLabel shows the creation time embedded in a UUIDv7 rule ID.
func createdLabel(id types.RuleID) string {
	created := types.RuleIDTime(id)
	if created.IsZero() {
		return "-"
	}
	return created.Local().Format("2006-01-02 15:04")
}

func printDone(w io.Writer, format string, args ...any) {
	fmt.Fprint(w, pterm.Success.Sprintfln(format, args...))
}

var rulesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List rules in priority order",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(cmd, func(svc *api.RuleService) error {
			all, err := svc.List(cmd.Context())
			if err != nil {
				return err
			}
			return printRules(cmd.OutOrStdout(), all, cfg.Substitution.DefaultTimeout)
		})
	},
}

var rulesSearchCmd = &cobra.Command{
	Use:   "search TEXT",
	Short: "List rules whose name contains TEXT",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(cmd, func(svc *api.RuleService) error {
			found, err := svc.Search(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printRules(cmd.OutOrStdout(), found, cfg.Substitution.DefaultTimeout)
		})
	},
}

var rulesAddCmd = &cobra.Command{
	Use:   "add NAME PATTERN",
	Short: "Add a rule at the top of the list",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		literal, _ := cmd.Flags().GetBool("literal")
		disabled, _ := cmd.Flags().GetBool("disabled")
		timeout, _ := cmd.Flags().GetDuration("timeout")

		r := types.NewRule(args[0], args[1], !literal)
		r.IsEnabled = !disabled
		r.TimeoutMs = timeout.Milliseconds()

		return withService(cmd, func(svc *api.RuleService) error {
			saved, err := svc.Save(cmd.Context(), r)
			if err != nil {
				return err
			}
			printDone(cmd.OutOrStdout(), "rule %s added", saved.ID)
			return nil
		})
	},
}

var rulesEditCmd = &cobra.Command{
	Use:   "edit ID",
	Short: "Change a rule's name, pattern, kind or timeout",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ids, err := parseIDs(args)
		if err != nil {
			return err
		}
		return withService(cmd, func(svc *api.RuleService) error {
			ctx := cmd.Context()
			r, err := svc.Get(ctx, ids[0])
			if err != nil {
				return err
			}

			flags := cmd.Flags()
			if flags.Changed("name") {
				r.Name, _ = flags.GetString("name")
			}
			if flags.Changed("pattern") {
				r.Pattern, _ = flags.GetString("pattern")
			}
			if flags.Changed("literal") {
				literal, _ := flags.GetBool("literal")
				r.IsRegex = !literal
			}
			if flags.Changed("timeout") {
				timeout, _ := flags.GetDuration("timeout")
				r.TimeoutMs = timeout.Milliseconds()
			}

			if _, err := svc.Save(ctx, r); err != nil {
				return err
			}
			printDone(cmd.OutOrStdout(), "rule %s updated", r.ID)
			return nil
		})
	},
}

func selectionCmd(use, short, done string, apply func(*api.RuleService, *cobra.Command, []types.RuleID) error) *cobra.Command {
	return &cobra.Command{
		Use:   use + " ID...",
		Short: short,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			return withService(cmd, func(svc *api.RuleService) error {
				if err := apply(svc, cmd, ids); err != nil {
					return err
				}
				printDone(cmd.OutOrStdout(), "%d rule(s) %s", len(ids), done)
				return nil
			})
		},
	}
}

var rulesEnableCmd = selectionCmd("enable", "Enable rules", "enabled",
	func(svc *api.RuleService, cmd *cobra.Command, ids []types.RuleID) error {
		return svc.EnableSelection(cmd.Context(), ids)
	})

var rulesDisableCmd = selectionCmd("disable", "Disable rules", "disabled",
	func(svc *api.RuleService, cmd *cobra.Command, ids []types.RuleID) error {
		return svc.DisableSelection(cmd.Context(), ids)
	})

var rulesDeleteCmd = selectionCmd("delete", "Delete rules", "deleted",
	func(svc *api.RuleService, cmd *cobra.Command, ids []types.RuleID) error {
		return svc.DeleteSelection(cmd.Context(), ids)
	})

var rulesRenameCmd = &cobra.Command{
	Use:   "rename ID NAME",
	Short: "Rename a rule",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ids, err := parseIDs(args[:1])
		if err != nil {
			return err
		}
		return withService(cmd, func(svc *api.RuleService) error {
			if _, err := svc.Rename(cmd.Context(), ids[0], args[1]); err != nil {
				return err
			}
			printDone(cmd.OutOrStdout(), "rule %s renamed", ids[0])
			return nil
		})
	},
}

func moveCmd(use, short string, move func(*api.RuleService, *cobra.Command, types.RuleID) (types.Rule, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " ID",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			return withService(cmd, func(svc *api.RuleService) error {
				r, err := move(svc, cmd, ids[0])
				if err != nil {
					return err
				}
				printDone(cmd.OutOrStdout(), "rule %s moved to order %d", r.ID, r.Order)
				return nil
			})
		},
	}
}

var rulesTopCmd = moveCmd("top", "Move a rule to the top", func(svc *api.RuleService, cmd *cobra.Command, id types.RuleID) (types.Rule, error) {
	return svc.ToTop(cmd.Context(), id)
})

var rulesBottomCmd = moveCmd("bottom", "Move a rule to the bottom", func(svc *api.RuleService, cmd *cobra.Command, id types.RuleID) (types.Rule, error) {
	return svc.ToBottom(cmd.Context(), id)
})

var rulesSwapCmd = &cobra.Command{
	Use:   "swap ID ID",
	Short: "Exchange the positions of two rules",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ids, err := parseIDs(args)
		if err != nil {
			return err
		}
		if ids[0] == ids[1] {
			return errors.New("cannot swap a rule with itself")
		}
		return withService(cmd, func(svc *api.RuleService) error {
			if err := svc.Swap(cmd.Context(), ids[0], ids[1]); err != nil {
				return err
			}
			printDone(cmd.OutOrStdout(), "rules swapped")
			return nil
		})
	},
}

var rulesRenumberCmd = &cobra.Command{
	Use:   "renumber",
	Short: "Rewrite rule orders to 1..n",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(cmd, func(svc *api.RuleService) error {
			if err := svc.Renumber(cmd.Context()); err != nil {
				return err
			}
			printDone(cmd.OutOrStdout(), "rules renumbered")
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(rulesCmd)
	rulesCmd.AddCommand(
		rulesListCmd, rulesSearchCmd, rulesAddCmd, rulesEditCmd,
		rulesEnableCmd, rulesDisableCmd, rulesDeleteCmd, rulesRenameCmd,
		rulesTopCmd, rulesBottomCmd, rulesSwapCmd, rulesRenumberCmd,
	)

	rulesAddCmd.Flags().Bool("literal", false, "match PATTERN as plain text instead of a regular expression")
	rulesAddCmd.Flags().Bool("disabled", false, "add the rule disabled")
	rulesAddCmd.Flags().Duration("timeout", 0, "substitution time budget (default from substitution.default_timeout)")

	rulesEditCmd.Flags().String("name", "", "new name")
	rulesEditCmd.Flags().String("pattern", "", "new pattern")
	rulesEditCmd.Flags().Bool("literal", false, "treat the pattern as plain text (--literal=false for regex)")
	rulesEditCmd.Flags().Duration("timeout", 0, "new time budget (0 uses the default)")
}
