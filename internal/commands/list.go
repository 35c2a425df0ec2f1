// internal/commands/list.go
package tachys

import "github.com/spf13/cobra"

// listCmd groups listing-related CLI commands.
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "Group commands for listing resources",
}

func init() {
	rootCmd.AddCommand(listCmd)
}
