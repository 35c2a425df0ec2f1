// internal/commands/show.go
package tachys

import "github.com/spf13/cobra"

// showCmd groups commands that display application state.
var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Group commands for showing application state",
}

func init() {
	rootCmd.AddCommand(showCmd)
}
