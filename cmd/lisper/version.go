package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/svoctor/lisper-go"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of lisper",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "lisper version %s\n", lisper.Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
