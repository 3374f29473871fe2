package cmd

import (
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"vodqueue/config"
)

// cfgFile holds the path to the config file specified by the user
var cfgFile string

// logLevelFlag overrides LOG_LEVEL when set
var logLevelFlag string

// globalConfig holds the loaded configuration
var globalConfig *config.Config

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "vodqueue",
	Short: "A download queue for IPTV movies and series episodes",
	Long: `vodqueue downloads VOD titles and series episodes one at a time,
keeps every task in a local database and exposes the queue over HTTP.`,
	PersistentPreRunE: loadGlobalConfig,
	SilenceUsage:      true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error executing command: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Configuration file path (default: ./vodqueue_config.yaml or /etc/vodqueue/)")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "Logging level (debug, info, warn, error), overrides config")
}

// loadGlobalConfig loads the configuration and applies flag overrides.
func loadGlobalConfig(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if cmd.Flags().Changed("log-level") {
		cfg.LogLevel = logLevelFlag
	}
	globalConfig = cfg

	initLogging(cfg.LogLevel)
	return nil
}

// initLogging configures logrus from the configured level.
func initLogging(levelName string) {
	level, err := log.ParseLevel(levelName)
	if err != nil {
		log.WithError(err).Warnf("Invalid log level '%s', using default 'info'", levelName)
		level = log.InfoLevel
	}
	log.SetLevel(level)
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.Debugf("Logging configured: Level=%s", log.GetLevel())
}
