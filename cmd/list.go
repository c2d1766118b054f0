package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sstent/gcexport/internal/config"
	"github.com/sstent/gcexport/internal/db"
)

var (
	listAll        bool
	listMissing    bool
	listDownloaded bool
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List activities from the local cache",
	Long: `List cached activities with various filters:
- All activities
- Missing activities (not yet downloaded)
- Downloaded activities

Run 'gcexport sync' first to populate the cache.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()

		database, err := db.NewDatabase(cfg.DatabasePath)
		if err != nil {
			return err
		}
		defer database.Close()

		var activities []db.CachedActivity
		switch {
		case listAll:
			activities, err = database.GetAllPaginated(0, 0)
		case listMissing:
			activities, err = database.GetMissingPaginated(0, 0)
		case listDownloaded:
			activities, err = database.GetDownloadedPaginated(0, 0)
		}
		if err != nil {
			return err
		}

		if len(activities) == 0 {
			fmt.Println("No activities found matching the criteria")
			return nil
		}
		for _, a := range activities {
			status := "missing"
			if a.Downloaded {
				status = a.Filename
			}
			fmt.Printf("%s | %s | %s | %s\n",
				a.ID, a.StartTime.Format("2006-01-02 15:04:05"), a.Name, status)
		}
		fmt.Printf("\nTotal: %d activities\n", len(activities))
		return nil
	},
}

func init() {
	listCmd.Flags().BoolVar(&listAll, "all", false, "List all cached activities")
	listCmd.Flags().BoolVar(&listMissing, "missing", false, "List activities that have not been downloaded")
	listCmd.Flags().BoolVar(&listDownloaded, "downloaded", false, "List activities that have been downloaded")
	listCmd.MarkFlagsMutuallyExclusive("all", "missing", "downloaded")
	listCmd.MarkFlagsOneRequired("all", "missing", "downloaded")

	rootCmd.AddCommand(listCmd)
}
