package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("nexabase %s\n", Version)
		fmt.Printf("commit: %s\n", Commit)
		fmt.Printf("built:  %s\n", BuildDate)
	},
}
