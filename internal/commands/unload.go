// internal/commands/unload.go
package tachys

import "github.com/spf13/cobra"

// unloadCmd groups unload-related CLI commands.
var unloadCmd = &cobra.Command{
	Use:   "unload",
	Short: "Group commands for unloading resources",
}

func init() {
	rootCmd.AddCommand(unloadCmd)
}
