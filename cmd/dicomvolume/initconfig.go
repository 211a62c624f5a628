package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"dicomvolume/pkg/config"
)

var initConfigCmd = &cobra.Command{
	Use:   "init-config [path]",
	Short: "Write a configuration file with default values",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("config")
		if len(args) > 0 {
			path = args[0]
		}
		if err := config.CreateDefaultConfigFile(path); err != nil {
			return err
		}
		fmt.Printf("Default configuration written to %s\n", path)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initConfigCmd)
}
