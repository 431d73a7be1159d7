// Package configcmder provides the config command for managing persistent
// uistream configuration stored in the .uistream/ directory.
package configcmder

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/uistream/pkg/cliui"
	"github.com/papercomputeco/uistream/pkg/config"
)

const configLongDesc string = `Manage persistent uistream configuration.

Configuration is stored as config.toml in the .uistream/ directory and
provides default values for command flags. Environment variables prefixed
with UISTREAM_ override the file, and CLI flags override both.

Keys use dotted notation matching the TOML section structure:
  assistant.endpoint, assistant.token_endpoint,
  assistant.app_id, assistant.api_key,
  assistant.index_name, assistant.assistant_id,
  client.timeout, client.sdk_version,
  eventstream.provider, eventstream.brokers, eventstream.topic,
  mock.listen, mock.delay

Use subcommands to get, set, or list configuration values:
  uistream config set <key> <value>    Set a configuration value
  uistream config get <key>            Get a configuration value
  uistream config list                 List all configuration values

Examples:
  uistream config set assistant.assistant_id my-assistant
  uistream config set eventstream.provider kafka
  uistream config get assistant.endpoint
  uistream config list`

const configShortDesc string = "Manage persistent uistream configuration"

func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: configShortDesc,
		Long:  configLongDesc,
	}

	cmd.AddCommand(newSetCmd())
	cmd.AddCommand(newGetCmd())
	cmd.AddCommand(newListCmd())

	return cmd
}

func completeKeys(_ *cobra.Command, args []string, _ string) ([]string, cobra.ShellCompDirective) {
	if len(args) == 0 {
		return config.ValidConfigKeys(), cobra.ShellCompDirectiveNoFileComp
	}
	return nil, cobra.ShellCompDirectiveNoFileComp
}

func checkKey(key string) error {
	if !config.IsValidConfigKey(key) {
		return fmt.Errorf("unknown config key: %q\n\nValid keys: %s",
			key, strings.Join(config.ValidConfigKeys(), ", "))
	}
	return nil
}

// openConfiger resolves the config file for the --config-dir persistent flag
// of the root command, when present.
func openConfiger(cmd *cobra.Command) (*config.Configer, error) {
	configDir, _ := cmd.Flags().GetString("config-dir")

	cfger, err := config.NewConfiger(configDir)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfger, nil
}

func printTarget(w io.Writer, cfger *config.Configer) {
	if target := cfger.GetTarget(); target != "" {
		fmt.Fprintf(w, "\n  %s %s\n\n",
			cliui.KeyStyle.Render("Config file:"),
			cliui.DimStyle.Render(target),
		)
		return
	}
	fmt.Fprintf(w, "\n  %s\n\n", cliui.DimStyle.Render("No config file found. Using defaults."))
}
