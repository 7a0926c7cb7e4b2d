package main

import (
	"github.com/spf13/cobra"
)

var (
	configFile string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "dittosync",
	Short: "Real-time collaborative text file server",
	Long: `DittoSync keeps a directory of text documents in sync between many
connected editors. Clients connect over websocket (browsers) or raw TCP,
edit documents, and every other client receives the change immediately.`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "",
		"config file (default is $XDG_CONFIG_HOME/dittosync/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"override logging.level (DEBUG, INFO, WARN, ERROR)")
}
