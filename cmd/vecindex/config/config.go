// Package configcmder provides the config command for managing persistent
// vecindex configuration stored in the .vecindex/ directory.
package configcmder

import (
	"github.com/spf13/cobra"
)

const configLongDesc string = `Manage persistent vecindex configuration.

Configuration is stored as config.toml in the .vecindex/ directory and
provides default values for command flags. CLI flags and VECINDEX_*
environment variables always take precedence over config file values.

Keys use dotted notation matching the TOML section structure, for example
vector_store.provider, embedding.model or indexing.auto_index. Entities are
declared as [[entities]] tables and are edited in the file directly.

Use subcommands to get, set, or list configuration values:
  vecindex config set <key> <value>    Set a configuration value
  vecindex config get <key>            Get a configuration value
  vecindex config list                 List all configuration values

Examples:
  vecindex config set vector_store.provider qdrant
  vecindex config set embedding.model text-embedding-3-large
  vecindex config set events.brokers kafka-1:9092,kafka-2:9092
  vecindex config get embedding.provider
  vecindex config list`

const configShortDesc string = "Manage persistent vecindex configuration"

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
		return validKeys(), cobra.ShellCompDirectiveNoFileComp
	}
	return nil, cobra.ShellCompDirectiveNoFileComp
}
