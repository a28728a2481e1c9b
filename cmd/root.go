package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kilianp07/smartcharge/app"
	"github.com/kilianp07/smartcharge/config"
	"github.com/kilianp07/smartcharge/infra/logger"
)

var (
	cfgPath   string
	logLevel  string
	statePath string
)

var rootCmd = &cobra.Command{
	Use:          "smartcharge",
	Short:        "Cheap-window smart charging for OVMS vehicles",
	Long:         "Runs the charging controller against the vehicle's OVMS MQTT topics until interrupted.",
	SilenceUsage: true,
	RunE:         serve,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "config.yaml", "configuration file")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "", "override logging.level (debug, info, warn, error)")
	rootCmd.Flags().StringVar(&statePath, "state", "", "override store.path")
}

// Execute runs the CLI.
func Execute() error { return rootCmd.Execute() }

// serviceConfig loads path and applies the command line overrides.
func serviceConfig(path, level, state string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if level != "" {
		cfg.Logging.Level = level
	}
	if state != "" {
		cfg.Store.Path = state
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func serve(cmd *cobra.Command, _ []string) error {
	cfg, err := serviceConfig(cfgPath, logLevel, statePath)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, err := app.New(cfg, Version)
	if err != nil {
		return err
	}
	log := logger.New("smartcharge")
	log.Infof("smartcharge %s watching %s", Version, cfg.Vehicle.TopicPrefix)
	defer func() {
		if err := svc.Close(); err != nil {
			log.Errorf("service close: %v", err)
		}
	}()
	return svc.Run(ctx)
}
