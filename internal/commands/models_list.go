// internal/commands/models_list.go
package tachys

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mwiater/tachys/internal/models"
	"github.com/mwiater/tachys/internal/providerfactory"
)

// listModelsCmd implements 'list models', which enumerates the models on the
// configured host and indicates which are currently loaded.
var listModelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List all models on the configured host",
	Long:  `The 'models' subcommand lists all models on the host specified in the configuration file, labeling the ones that are currently loaded into memory.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := GetConfig()
		cmd.SilenceUsage = true
		if cfg.ProviderName() == "ollama" {
			models.ListModels(cfg)
			return nil
		}

		// llama.cpp has no tags API; ask the provider what is loaded.
		provider, err := providerfactory.NewProvider(cfg)
		if err != nil {
			return err
		}
		defer provider.Close()

		loaded, err := provider.LoadedModels(context.Background(), cfg.TargetHost())
		if err != nil {
			return fmt.Errorf("listing models on %s: %w", cfg.HostURL(), err)
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s:\n", cfg.TargetHost().Name)
		if len(loaded) == 0 {
			fmt.Fprintln(out, "  no models loaded")
			return nil
		}
		for _, model := range loaded {
			fmt.Fprintf(out, "  - %s (CURRENTLY LOADED)\n", model)
		}
		return nil
	},
}

func init() {
	listCmd.AddCommand(listModelsCmd)
}
