// Package main is the discordctx CLI entrypoint: a cobra root command that
// loads configuration and wires the context/dispatch engine to a live
// Discord gateway connection.
//
// Grounded on the teacher's cmd/root.go (persistent --config/--verbose
// flags, resolveConfigPath via env fallback, Execute()).
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "discordctx",
	Short: "discordctx — Discord OCR triage, inline LLM replies, and chatbot-mode context engine",
	Run: func(cmd *cobra.Command, args []string) {
		runServe()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: config.json or $DISCORDCTX_CONFIG)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(versionCmd())
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("discordctx %s\n", Version)
		},
	}
}

func resolveConfigPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	if v := os.Getenv("DISCORDCTX_CONFIG"); v != "" {
		return v
	}
	return "config.json"
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
