package main

import (
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"stockchart/config"
	"stockchart/internal/logger"
)

var (
	configPath string
	envFile    string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:           "chartd",
	Short:         "Live stock chart server",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "chartd.yaml", "YAML config file (optional)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before the environment (optional)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override app.log_level")

	rootCmd.AddCommand(serveCmd, indicatorsCmd, intervalsCmd, settingsCmd)
}

// setup loads and validates the configuration and builds the logger.
func setup(service string) (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(configPath, envFile)
	if err != nil {
		return nil, nil, err
	}
	if logLevel != "" {
		cfg.App.LogLevel = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, errors.Wrap(err, "invalid config")
	}
	log, err := logger.Init(service, cfg.App.LogLevel, cfg.App.LogFormat)
	if err != nil {
		return nil, nil, err
	}
	return cfg, log, nil
}
