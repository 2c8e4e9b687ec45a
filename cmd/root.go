package cmd

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"familypoints/config"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "familypoints",
	Short: "Family points economy server",
	Long: `familypoints runs the household points economy: chores earn points,
rewards spend them, goals save them and screen time is budgeted weekly.
Run without a subcommand to start the HTTP server.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupLogging(os.Getenv("LOG_LEVEL"), os.Getenv("ENVIRONMENT"))
	},
	RunE: runServe,
}

// Execute runs the command line with signal-aware cancellation
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

// setupLogging configures logrus. Production logs are JSON.
func setupLogging(level, environment string) {
	if level == "" {
		level = "info"
	}
	parsed, err := log.ParseLevel(strings.ToLower(level))
	if err != nil {
		log.WithField("level", level).Warn("Unknown log level, using info")
		parsed = log.InfoLevel
	}
	log.SetLevel(parsed)

	if environment == "production" {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
}

// loadConfig resolves the configuration and applies its log settings
func loadConfig() *config.Config {
	cfg := config.Get()
	setupLogging(cfg.LogLevel, cfg.Environment)
	return cfg
}
