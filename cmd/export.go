package cmd

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/sstent/gcexport/internal/config"
	"github.com/sstent/gcexport/internal/db"
	"github.com/sstent/gcexport/internal/export"
	"github.com/sstent/gcexport/internal/garmin"
)

var (
	exportFormat    string
	exportCount     string
	exportDirectory string
	exportReverse   bool
	exportUnzip     bool
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Download activities and append them to the CSV ledger",
	Long: `Downloads activities into the output directory, one file per activity,
and appends one summary row per new activity to activities.csv.

Files already present are skipped, so re-running after a failure resumes
where the previous run stopped.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()

		format, err := garmin.ParseFormat(exportFormat)
		if err != nil {
			return err
		}
		limit, err := parseCount(exportCount)
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

		store, err := export.NewDirStore(exportDirectory)
		if err != nil {
			return err
		}
		ledger, err := export.OpenLedger(filepath.Join(exportDirectory, export.LedgerName))
		if err != nil {
			return err
		}
		defer ledger.Close()

		exporter := &export.Exporter{
			Source:  client,
			Store:   store,
			Sink:    ledger,
			Lookups: client.LoadLookups(ctx),
			Format:  format,
			Unzip:   exportUnzip,
		}
		database, err := db.NewDatabase(cfg.DatabasePath)
		if err != nil {
			slog.Warn("activity cache unavailable, downloads will not be marked", "err", err)
		} else {
			defer database.Close()
			exporter.Marker = database
		}

		pages := client.Paginate(garmin.ListOptions{Limit: limit, Reverse: exportReverse})
		counts, runErr := exporter.Run(ctx, pages)

		fmt.Printf("Downloaded %d, skipped %d, empty %d, without trackpoints %d\n",
			counts.Downloaded, counts.Skipped, counts.Empty, counts.NoTrack)
		return runErr
	},
}

func init() {
	defaultDir := "./" + time.Now().Format("2006-01-02") + "_garmin_connect_export"

	exportCmd.Flags().StringVarP(&exportFormat, "format", "f", "gpx", "Export format: gpx, tcx or original")
	exportCmd.Flags().StringVarP(&exportCount, "count", "c", "1", "Number of recent activities to download, or 'all'")
	exportCmd.Flags().StringVarP(&exportDirectory, "directory", "d", defaultDir, "Output directory")
	exportCmd.Flags().BoolVarP(&exportReverse, "reverse", "r", false, "Start with the oldest activity")
	exportCmd.Flags().BoolVarP(&exportUnzip, "unzip", "u", false, "Unzip 'original' downloads and remove the archive")

	rootCmd.AddCommand(exportCmd)
}

func newClient(cfg *config.Config) (*garmin.Client, error) {
	return garmin.NewClient(garmin.ClientOptions{
		Endpoints: garmin.Endpoints{
			SSOHost:     cfg.SSOHost,
			ConnectHost: cfg.ConnectHost,
		},
		PageSize:     cfg.PageSize,
		RateInterval: cfg.RateInterval,
		RateDir:      cfg.RateDir,
	})
}

func parseCount(s string) (int, error) {
	if strings.EqualFold(s, "all") {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("count must be a positive number or 'all', got %q", s)
	}
	return n, nil
}

// resolveCredentials takes flags first, then environment, then prompts.
func resolveCredentials(cfg *config.Config) (username, password string, err error) {
	username = flagUsername
	if username == "" {
		username = cfg.Username
	}
	if username == "" {
		fmt.Print("Username: ")
		reader := bufio.NewReader(os.Stdin)
		line, err := reader.ReadString('\n')
		if err != nil {
			return "", "", fmt.Errorf("reading username: %w", err)
		}
		username = strings.TrimSpace(line)
	}

	password = flagPassword
	if password == "" {
		password = cfg.Password
	}
	if password == "" {
		fmt.Print("Password: ")
		raw, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Println()
		if err != nil {
			return "", "", fmt.Errorf("reading password: %w", err)
		}
		password = string(raw)
	}
	return username, password, nil
}
