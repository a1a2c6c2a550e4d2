// Package main implements the tk CLI tool.
package main

import (
	"errors"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		var exitErr interface{ ExitCode() int }
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.ExitCode())
		}
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:          "tk",
	Short:        "Timekeep - track time against cases and todos",
	SilenceUsage: true,
}

var (
	rootURL  string
	rootUser string
)

func init() {
	rootCmd.PersistentFlags().StringVar(&rootURL, "url", "", "Tracking backend URL (default: $TIMEKEEP_URL, then config)")
	rootCmd.PersistentFlags().StringVar(&rootUser, "user", "", "User to act as (default: signed-in user)")
}
