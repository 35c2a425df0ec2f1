// internal/commands/unload_models.go
package tachys

import (
	"github.com/spf13/cobra"

	"github.com/mwiater/tachys/internal/models"
)

// unloadModelsCmd implements 'unload models', which asks the configured host
// to release every model it currently has loaded in memory.
var unloadModelsCmd = &cobra.Command{
	Use:   "models",
	Short: "Unload all currently loaded models on the configured host",
	Long:  `The 'models' subcommand unloads every model currently loaded on the configured host, freeing its memory. Only Ollama hosts support unloading.`,
	Run: func(cmd *cobra.Command, args []string) {
		models.UnloadModels(GetConfig())
	},
}

func init() {
	unloadCmd.AddCommand(unloadModelsCmd)
}
