package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var (
	dbPath   string
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "rift",
	Short: "Personal reading tracker with cloud sync",
	Long: `rift tracks your reading list in a local store and keeps an
optional mirror of it in the private storage area of your cloud file
account.

Run "rift serve" to start the web server, or use the import, export,
and list commands to work with the local store directly.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", envDefault("RIFT_DB_PATH", "rift.db"), "path to the local store")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", envDefault("RIFT_LOG_LEVEL", "info"), "log level (debug, info, warn, error)")
}

func envDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func newLogger() *slog.Logger {
	var level slog.Level
	switch strings.ToLower(logLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
