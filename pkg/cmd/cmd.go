// Package cmd contains the command line applications for the project.
package cmd

import (
	"github.com/spf13/cobra"
)

var (
	configPath string
	debug      bool

	rootCmd = &cobra.Command{
		Use:   "agrivault",
		Short: "Local storage quota and eviction engine for offline-first field journals",
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to the config file")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug output")

	registerServeCommands()
	registerCleanupCommands()
	registerConfigsCommands()
	registerKVCommands()
	registerDBCommands()
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
