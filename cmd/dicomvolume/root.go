package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"dicomvolume/internal/logging"
	"dicomvolume/pkg/config"
)

var rootCmd = &cobra.Command{
	Use:   "dicomvolume",
	Short: "Assemble DICOM slice series into volumes and compare label masks",
	Long: `dicomvolume turns directories of DICOM slices into geometrically consistent
volumes, repairing gaps, orientation and shape problems that the allow list
tolerates, and compares label masks of the same cases from two sources.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Persistent flags (available to all commands)
	rootCmd.PersistentFlags().String("config", "dicomvolume.yaml", "Configuration file")
	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error); overrides the config file")
	rootCmd.PersistentFlags().StringSlice("allow", nil, "Attributes whose violations are corrected or tolerated; overrides the config file")
}

// setup loads the configuration, applies persistent flag overrides and
// builds the logger.
func setup(cmd *cobra.Command) (*config.Config, *slog.Logger, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, nil, err
	}
	if cmd.Flags().Changed("log-level") {
		cfg.Output.LogLevel, _ = cmd.Flags().GetString("log-level")
	}
	if cmd.Flags().Changed("allow") {
		cfg.Processing.Allow, _ = cmd.Flags().GetStringSlice("allow")
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	return cfg, logging.New(logging.ParseLevel(cfg.Output.LogLevel)), nil
}
