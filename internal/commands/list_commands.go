// internal/commands/list_commands.go
package tachys

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/mwiater/tachys/internal/commandlist"
)

// commandsCmd implements 'list commands', which prints every command and
// subcommand in a hierarchical, indented, two-column format.
var commandsCmd = &cobra.Command{
	Use:   "commands",
	Short: "List all commands and subcommands in two columns",
	Long:  `Walks the command tree and prints each command with its short description, indented to show hierarchy.`,
	Run: func(cmd *cobra.Command, args []string) {
		commandlist.ListCommands(cmd.OutOrStdout(), gatherCommands(rootCmd, "", ""))
	},
}

func init() {
	listCmd.AddCommand(commandsCmd)
}

// gatherCommands walks the command tree depth-first and returns a flattened
// slice of path/description pairs. The generated completion commands are
// pruned, subtrees included.
func gatherCommands(cmd *cobra.Command, parentPath, indent string) []commandlist.CommandInfo {
	path := cmd.Name()
	if parentPath != "" {
		path = parentPath + " " + cmd.Name()
	}
	if strings.Contains(path, "completion") {
		return nil
	}

	entries := []commandlist.CommandInfo{{
		Path:        indent + path,
		Description: cmd.Short,
	}}
	for _, sub := range cmd.Commands() {
		entries = append(entries, gatherCommands(sub, path, indent+"  ")...)
	}
	return entries
}
