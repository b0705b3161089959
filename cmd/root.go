/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "securenotes",
	Short: "Secure Notes API server",
	Long: `Secure Notes is a multi-user note-taking backend with session
authentication, a password-reset mail flow, an archive/trash lifecycle for
notes and a scheduled cleanup of expired trash.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}
