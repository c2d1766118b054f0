package db

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/sstent/gcexport/internal/garmin"
)

// CachedActivity is one activity summary held in the local cache. The cache
// exists so `list` works offline; export resumability never consults it and
// derives solely from the files on disk.
type CachedActivity struct {
	ID         string
	Name       string
	StartTime  time.Time
	Filename   string
	Downloaded bool
}

// Database is the SQLite activity cache.
type Database struct {
	db *sql.DB
}

// NewDatabase opens (and if needed creates) the cache at path.
func NewDatabase(path string) (*Database, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return &Database{db: db}, nil
}

func (d *Database) Close() error {
	return d.db.Close()
}

func createSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS activities (
		activity_id TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		start_time TEXT NOT NULL DEFAULT '',
		filename TEXT NOT NULL DEFAULT '',
		downloaded BOOLEAN NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_downloaded ON activities(downloaded);
	`
	_, err := db.Exec(schema)
	return err
}

const timeLayout = "2006-01-02 15:04:05"

// Upsert inserts or refreshes one activity summary without touching its
// downloaded flag.
func (d *Database) Upsert(a garmin.Activity) error {
	start := ""
	if t, ok := a.Begin.Time(); ok {
		start = t.UTC().Format(timeLayout)
	} else {
		start = a.Begin.Display
	}
	_, err := d.db.Exec(`
		INSERT INTO activities (activity_id, name, start_time)
		VALUES (?, ?, ?)
		ON CONFLICT(activity_id) DO UPDATE SET name = excluded.name, start_time = excluded.start_time`,
		a.ID, a.Name, start)
	if err != nil {
		return fmt.Errorf("upserting activity %s: %w", a.ID, err)
	}
	return nil
}

// MarkDownloaded records a completed export write.
func (d *Database) MarkDownloaded(id, filename string) error {
	_, err := d.db.Exec(
		"UPDATE activities SET downloaded = 1, filename = ? WHERE activity_id = ?",
		filename, id)
	if err != nil {
		return fmt.Errorf("marking activity %s downloaded: %w", id, err)
	}
	return nil
}

// GetAllPaginated returns a page of cached activities; pageSize 0 disables
// pagination.
func (d *Database) GetAllPaginated(page, pageSize int) ([]CachedActivity, error) {
	return d.query("", page, pageSize)
}

// GetMissingPaginated returns cached activities with no completed download.
func (d *Database) GetMissingPaginated(page, pageSize int) ([]CachedActivity, error) {
	return d.query("WHERE downloaded = 0", page, pageSize)
}

// GetDownloadedPaginated returns cached activities with a completed download.
func (d *Database) GetDownloadedPaginated(page, pageSize int) ([]CachedActivity, error) {
	return d.query("WHERE downloaded = 1", page, pageSize)
}

func (d *Database) query(where string, page, pageSize int) ([]CachedActivity, error) {
	q := "SELECT activity_id, name, start_time, filename, downloaded FROM activities " + where + " ORDER BY start_time DESC"
	args := []any{}
	if pageSize > 0 {
		q += " LIMIT ? OFFSET ?"
		args = append(args, pageSize, (page-1)*pageSize)
	}
	rows, err := d.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("querying activities: %w", err)
	}
	defer rows.Close()

	var activities []CachedActivity
	for rows.Next() {
		var a CachedActivity
		var start string
		var downloaded int
		if err := rows.Scan(&a.ID, &a.Name, &start, &a.Filename, &downloaded); err != nil {
			return nil, fmt.Errorf("scanning activity: %w", err)
		}
		a.StartTime, _ = time.Parse(timeLayout, start)
		a.Downloaded = downloaded == 1
		activities = append(activities, a)
	}
	return activities, rows.Err()
}
