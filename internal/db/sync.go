package db

import (
	"context"
	"fmt"

	"github.com/sstent/gcexport/internal/garmin"
)

// SyncActivities walks the remote activity list and upserts every summary
// into the cache. Returns the number of records synced.
func SyncActivities(ctx context.Context, client *garmin.Client, database *Database, opts garmin.ListOptions) (int, error) {
	pages := client.Paginate(opts)
	synced := 0
	for {
		page, err := pages.Next(ctx)
		if err != nil {
			return synced, fmt.Errorf("syncing activities: %w", err)
		}
		if len(page) == 0 {
			return synced, nil
		}
		for _, a := range page {
			if err := database.Upsert(a); err != nil {
				return synced, err
			}
			synced++
		}
	}
}
