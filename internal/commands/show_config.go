// internal/commands/show_config.go
package tachys

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mwiater/tachys/internal/appconfig"
)

// showConfigCmd implements the 'show config' command, which displays the current configuration settings.
var showConfigCmd = &cobra.Command{
	Use:   "config",
	Short: "Show config settings",
	Long:  `Show config settings ensuring that the JSON configs are loaded properly and overridden by flags accordingly.`,
	Run: func(cmd *cobra.Command, args []string) {
		fallback := appconfig.Config{
			Host:     viper.GetString("host"),
			Provider: viper.GetString("provider"),
			Repeats:  viper.GetInt("repeats"),
			Verbose:  viper.GetBool("verbose"),
			Debug:    viper.GetBool("debug"),
		}
		appconfig.ShowConfig(cmd.OutOrStdout(), viper.ConfigFileUsed(), GetConfig(), fallback)
	},
}

func init() {
	showCmd.AddCommand(showConfigCmd)
}
