package main

import (
	"log/slog"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	envFile     string
	logLevelInt int
	logLevel    zerolog.Level = 1
	// The root command of our program
	rootCmd = &cobra.Command{
		Use:   "nwspush",
		Short: "Bridge NWS weather alerts to dashboard push notifications.",
		Long: `nwspush polls the National Weather Service active-alerts feed, deduplicates
alerts against a persistent ledger, derives a simplified boundary for each new
alert, and delivers a push notification through the dashboard's web form.`,
	}
)

// Go, go, go
func main() {
	rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	// Bind our args to the command
	rootCmd.PersistentFlags().StringVar(&envFile, "env", ".env", "The env file to read.")
	rootCmd.PersistentFlags().IntVar(&logLevelInt, "log", 1, "The logging level to use.")

	rootCmd.AddCommand(pollCmd)
	rootCmd.AddCommand(pruneCmd)
	rootCmd.AddCommand(loginCmd)
}

func initConfig() {
	logLevel = zerolog.Level(logLevelInt)
	zerolog.SetGlobalLevel(logLevel)

	err := godotenv.Load(envFile)
	if err != nil {
		slog.Info("failed to load env file", "error", err.Error())
	}
}
