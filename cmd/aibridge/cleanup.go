package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"aibridge/internal/store"
)

var cleanupDays int

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Purge old conversation history",
	Long:  `Delete conversation turns older than the given number of days.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		dbPath := viper.GetString("db.path")
		if dbPath == "" {
			dbPath = "aibridge.db"
		}
		st, err := store.Open(dbPath)
		if err != nil {
			return fmt.Errorf("failed to open store: %w", err)
		}

		removed, err := st.PurgeOlderThan(context.Background(), cleanupDays)
		if err != nil {
			return fmt.Errorf("cleanup failed: %w", err)
		}
		fmt.Printf("removed %d conversation turns older than %d days\n", removed, cleanupDays)
		return nil
	},
}

func SetupCleanupCmd() {
	rootCmd.AddCommand(cleanupCmd)

	cleanupCmd.Flags().IntVar(&cleanupDays, "days", 7, "Delete turns older than this many days")
}
