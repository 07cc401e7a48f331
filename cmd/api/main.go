package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "api",
	Short: "Favourites API: user accounts, bearer tokens and per-user favourites",
	// no subcommand means serve
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd, migrateCmd)

	rootCmd.SilenceUsage = true
	rootCmd.SilenceErrors = true
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
