package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/sstent/gcexport/internal/config"
)

const version = "1.4.0"

var (
	flagQuiet    bool
	flagDebug    bool
	flagUsername string
	flagPassword string
)

var rootCmd = &cobra.Command{
	Use:     "gcexport",
	Short:   "gcexport exports your Garmin Connect activity history",
	Version: version,
	Long: `gcexport is a CLI application that:
1. Signs in to Garmin Connect through its SSO handshake
2. Pages through your activity history
3. Downloads each activity as GPX, TCX or the original upload
4. Appends a summary row per activity to a CSV ledger`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelInfo
		if flagDebug {
			level = slog.LevelDebug
		} else if flagQuiet {
			level = slog.LevelError
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	},
}

// Execute runs the CLI.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	config.SetDefaults()

	rootCmd.PersistentFlags().BoolVar(&flagQuiet, "quiet", false, "Only log errors")
	rootCmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "Log every protocol step")
	rootCmd.MarkFlagsMutuallyExclusive("quiet", "debug")

	rootCmd.PersistentFlags().StringVar(&flagUsername, "username", "", "Garmin Connect username (prompted if absent)")
	rootCmd.PersistentFlags().StringVar(&flagPassword, "password", "", "Garmin Connect password (prompted if absent)")
}
