package cmd

import (
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"gitlab.com/tozd/go/errors"

	"github.com/solatis/sieve/internal/core/db"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	Args:  cobra.NoArgs,
	RunE:  runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.Flags().Bool("status", false, "show migration status without applying")
}

func runMigrate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	database, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Errorf("failed to open database: %w", err)
	}
	defer database.Close()

	if status, _ := cmd.Flags().GetBool("status"); status {
		statuses, err := db.MigrateStatus(ctx, database)
		if err != nil {
			return err
		}
		data := pterm.TableData{{"Migration", "Applied", "Applied at", "Duration"}}
		for _, s := range statuses {
			appliedAt, duration := "-", "-"
			if s.AppliedAt != nil {
				appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
				duration = fmt.Sprintf("%dms", s.ExecutionMs)
			}
			data = append(data, []string{s.ID, fmt.Sprint(s.Applied), appliedAt, duration})
		}
		table, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), table)
		return nil
	}

	applied, err := db.MigrateUp(ctx, database)
	if err != nil {
		return err
	}
	fmt.Fprint(cmd.OutOrStdout(), pterm.Success.Sprintfln("%d migration(s) applied", applied))
	return nil
}
