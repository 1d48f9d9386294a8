// Package commands implements the gorpcd CLI commands.
package commands

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"

	cfgFile string
)

var rootCmd = &cobra.Command{
	Use:   "gorpcd",
	Short: "gorpcd - embeddable readiness-driven RPC runtime",
	Long: `gorpcd runs a small RPC server over UNIX and TCP sockets: a
readiness-driven event loop with a bounded worker pool, length-prefixed
framing, and a matching client engine.

Use "gorpcd [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command. Called once from main.main.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $XDG_CONFIG_HOME/gorpcd/config.yaml)")

	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(versionCmd)
}

// GetConfigFile returns the config file path from the global flag.
func GetConfigFile() string {
	return cfgFile
}

// Exit prints an error message to stderr and exits with code 1.
func Exit(format string, args ...any) {
	rootCmd.PrintErrf(format+"\n", args...)
	os.Exit(1)
}
