package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ericlevine/barcodescan/config"
	"github.com/ericlevine/barcodescan/logger"
)

var (
	configPath string
	logLevel   string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "barcodescan",
		Short: "Single-shot barcode scanner",
		Long: `Scan a camera feed until the first barcode is decoded, report it once and
release the camera. Still images can stand in for a camera.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level override (debug, info, warn, error)")

	rootCmd.AddCommand(scanCommand())
	rootCmd.AddCommand(serveCommand())
	rootCmd.AddCommand(formatsCommand())
	rootCmd.AddCommand(renderCommand())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig reads the configuration and installs the process logger.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	logger.Setup(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	return cfg, nil
}
