/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/securenotes/apiserver/config"
	"github.com/securenotes/apiserver/internal/db"
	"github.com/securenotes/apiserver/internal/services"
	"github.com/securenotes/apiserver/internal/store"
	"github.com/spf13/cobra"
)

// sweepCmd runs a single trash sweep and exits. The server schedules the
// same sweep daily; this command exists for operators and cron-style
// setups.
var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Purge expired trashed notes once and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadConfig()
		logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

		dbConn, err := db.Open(cmd.Context(), cfg)
		if err != nil {
			return fmt.Errorf("connect to database: %w", err)
		}
		defer func() {
			_ = dbConn.Close()
		}()

		noteRepo := store.NewNoteRepository(dbConn)
		reaper := services.NewReaper(noteRepo, nil, logger, cfg.Retention.TrashTTL, cfg.Retention.SweepInterval)

		purged, err := reaper.Sweep(cmd.Context())
		if err != nil {
			return fmt.Errorf("sweep failed: %w", err)
		}

		fmt.Fprintf(os.Stdout, "purged %d expired trashed notes\n", purged)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sweepCmd)
}
