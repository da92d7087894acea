package cmd

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/mediarr/internal/database"
	"github.com/jmylchreest/mediarr/internal/database/migrations"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
	Long:  `Apply every pending schema migration to the configured database.`,
	RunE:  runMigrate,
}

var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show migration status",
	RunE:  runMigrateStatus,
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back the most recent migration",
	RunE:  runMigrateDown,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.AddCommand(migrateStatusCmd)
	migrateCmd.AddCommand(migrateDownCmd)
}

func openMigrator() (*database.DB, *migrations.Migrator, error) {
	db, err := database.New(cfg.Database, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("initializing database: %w", err)
	}
	m := migrations.NewMigrator(db.DB, logger)
	m.RegisterAll(migrations.AllMigrations())
	return db, m, nil
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	db, m, err := openMigrator()
	if err != nil {
		return err
	}
	defer db.Close()

	if err := m.Up(cmd.Context()); err != nil {
		return fmt.Errorf("applying migrations: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
	return nil
}

func runMigrateDown(cmd *cobra.Command, _ []string) error {
	db, m, err := openMigrator()
	if err != nil {
		return err
	}
	defer db.Close()

	if err := m.Down(cmd.Context()); err != nil {
		return fmt.Errorf("rolling back migration: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), "last migration rolled back")
	return nil
}

func runMigrateStatus(cmd *cobra.Command, _ []string) error {
	db, m, err := openMigrator()
	if err != nil {
		return err
	}
	defer db.Close()

	statuses, err := m.Status(cmd.Context())
	if err != nil {
		return fmt.Errorf("reading migration status: %w", err)
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "VERSION\tAPPLIED\tAPPLIED AT\tDESCRIPTION")
	for _, s := range statuses {
		appliedAt := "-"
		if s.AppliedAt != nil {
			appliedAt = s.AppliedAt.Format(time.RFC3339)
		}
		fmt.Fprintf(w, "%s\t%t\t%s\t%s\n", s.Version, s.Applied, appliedAt, s.Description)
	}
	return w.Flush()
}
