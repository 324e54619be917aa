package main

import (
	"github.com/spf13/cobra"
)

func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "lockstep",
		Short:         "Run and verify the deterministic demo arena",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	rootCmd.AddCommand(
		NewSimulateCmd(),
		NewRunCmd(),
	)
	return rootCmd
}
