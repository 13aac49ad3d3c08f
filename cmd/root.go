// Package cmd provides the fakturo command-line interface.
//
// Configuration is layered: command-line flags override environment
// variables (FAKTURO_ prefix, e.g. FAKTURO_INPUT_ROOT), which override the
// configuration file (.fakturo.yml by default, or the path given with
// --config or FAKTURO_CONFIG_FILE).
package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/fakturo/fakturo/internal/config"
	"github.com/fakturo/fakturo/internal/logging"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "fakturo",
	Short: "Invoice batch processor",
	Long: `Fakturo watches an input directory for invoice archives, parses the
records they contain, resolves an invoice template per debtor, renders one
document per debtor, and files each archive away as processed or failed.

Quick start:
  fakturo watch                   Run the ingestion daemon
  fakturo process batch.zip       Process one archive and exit
  fakturo version                 Show version information`,
}

// Execute adds all child commands to the root command and runs it.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default is .fakturo.yml, can also use FAKTURO_CONFIG_FILE env var)")
	rootCmd.PersistentFlags().StringP("log-level", "l", "info", "log level (debug, info, warn, error)")
	if err := viper.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level")); err != nil {
		fmt.Fprintln(os.Stderr, "flag binding failed:", err)
	}
}

// initConfig wires the configuration sources in precedence order: the
// --config flag, then FAKTURO_CONFIG_FILE, then .fakturo.yml in the current
// directory. Environment variables with the FAKTURO_ prefix override file
// values. A missing config file is not an error; defaults apply.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else if envConfigFile := os.Getenv("FAKTURO_CONFIG_FILE"); envConfigFile != "" {
		viper.SetConfigFile(envConfigFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".fakturo")
	}

	viper.SetEnvPrefix("FAKTURO")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// buildLogger creates the process logger from the loaded configuration. When
// a log directory is configured the returned closer flushes the dated log
// file; otherwise output goes to stdout and the closer is a no-op.
func buildLogger(cfg *config.Config) (logging.Logger, func() error, error) {
	loggerConfig := &logging.LoggerConfig{
		Level:  logging.ParseLevel(cfg.Logging.Level),
		Format: cfg.Logging.Format,
		Output: os.Stdout,
	}

	if cfg.Logging.Dir != "" {
		fileLogger, err := logging.NewFileLogger(loggerConfig, cfg.Logging.Dir)
		if err != nil {
			return nil, nil, err
		}
		return fileLogger, fileLogger.Close, nil
	}

	return logging.NewLogger(loggerConfig), func() error { return nil }, nil
}
