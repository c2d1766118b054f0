package cmd

import (
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/sstent/gcexport/internal/config"
	"github.com/sstent/gcexport/internal/db"
	"github.com/sstent/gcexport/internal/garmin"
)

var (
	syncCount   string
	syncReverse bool
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Refresh the local activity cache from Garmin Connect",
	Long:  `Signs in and pages through the activity history, storing every summary in the local SQLite cache used by the list command.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()
		limit, err := parseCount(syncCount)
		if err != nil {
			return err
		}
		username, password, err := resolveCredentials(cfg)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		client, err := newClient(cfg)
		if err != nil {
			return err
		}
		if err := client.Login(ctx, username, password); err != nil {
			return err
		}

		database, err := db.NewDatabase(cfg.DatabasePath)
		if err != nil {
			return err
		}
		defer database.Close()

		synced, err := db.SyncActivities(ctx, client, database, garmin.ListOptions{Limit: limit, Reverse: syncReverse})
		if err != nil {
			return err
		}
		fmt.Printf("Synced %d activities\n", synced)
		return nil
	},
}

func init() {
	syncCmd.Flags().StringVarP(&syncCount, "count", "c", "all", "Number of recent activities to sync, or 'all'")
	syncCmd.Flags().BoolVarP(&syncReverse, "reverse", "r", false, "Walk the history oldest first")
	rootCmd.AddCommand(syncCmd)
}
