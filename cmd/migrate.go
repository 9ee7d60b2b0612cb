package main

import (
	"fmt"
	"log/slog"

	"github.com/jekabolt/grbpwr-analytics/internal/store"
	"github.com/spf13/cobra"
)

var (
	migrateCmd = &cobra.Command{
		Use:   "migrate",
		Short: "Manage the stats lookup tables",
	}

	migrateUpCmd = &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE:  migrateUp,
	}

	migrateDownCmd = &cobra.Command{
		Use:   "down",
		Short: "Revert applied migrations",
		RunE:  migrateDown,
	}

	resetStatsCmd = &cobra.Command{
		Use:   "reset-stats",
		Short: "Delete every row of the stats lookup tables",
		RunE:  resetStats,
	}

	downSteps int
)

func init() {
	migrateDownCmd.Flags().IntVar(&downSteps, "steps", 1, "number of migrations to revert, 0 reverts all")
	migrateCmd.AddCommand(migrateUpCmd, migrateDownCmd, resetStatsCmd)
}

func migrateUp(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cfg.DB.Automigrate = true
	db, err := store.Open(cmd.Context(), cfg.DB)
	if err != nil {
		return err
	}
	return db.Close()
}

func migrateDown(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if downSteps < 0 {
		return fmt.Errorf("steps must not be negative")
	}
	cfg.DB.Automigrate = false
	db, err := store.Open(cmd.Context(), cfg.DB)
	if err != nil {
		return err
	}
	defer db.Close()

	_, err = store.Rollback(cmd.Context(), db.DB, downSteps)
	return err
}

func resetStats(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ms, err := store.New(cmd.Context(), cfg.DB)
	if err != nil {
		return err
	}
	defer ms.Close()

	if err := ms.ResetStats(cmd.Context()); err != nil {
		return err
	}
	slog.Default().InfoContext(cmd.Context(), "stats lookup tables cleared")
	return nil
}
