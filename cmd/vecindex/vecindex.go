// Package vecindexcmder is the root vecindex command.
package vecindexcmder

import (
	"github.com/spf13/cobra"

	authcmder "github.com/papercomputeco/vecindex/cmd/vecindex/auth"
	configcmder "github.com/papercomputeco/vecindex/cmd/vecindex/config"
	embeddingcmder "github.com/papercomputeco/vecindex/cmd/vecindex/embedding"
	eventscmder "github.com/papercomputeco/vecindex/cmd/vecindex/events"
	initcmder "github.com/papercomputeco/vecindex/cmd/vecindex/init"
	reindexcmder "github.com/papercomputeco/vecindex/cmd/vecindex/reindex"
	searchcmder "github.com/papercomputeco/vecindex/cmd/vecindex/search"
	servecmder "github.com/papercomputeco/vecindex/cmd/vecindex/serve"
	versioncmder "github.com/papercomputeco/vecindex/cmd/version"
)

const vecindexLongDesc string = `vecindex keeps a semantic search index in step with your records.

Records are embedded with the configured provider and stored in a vector
store; searches are re-hydrated against the live records so results are
never stale.

Run services using:
  vecindex serve              Run the API server, MCP endpoint and event workers
  vecindex search <query>     Search a running server
  vecindex reindex [entity]   Rebuild the index for a tenant`

const vecindexShortDesc string = "vecindex - semantic record search"

func NewVecindexCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "vecindex",
		Short:        vecindexShortDesc,
		Long:         vecindexLongDesc,
		SilenceUsage: true,
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Override path to .vecindex/ config directory")

	// Add subcommands
	cmd.AddCommand(servecmder.NewServeCmd())
	cmd.AddCommand(searchcmder.NewSearchCmd())
	cmd.AddCommand(reindexcmder.NewReindexCmd())
	cmd.AddCommand(embeddingcmder.NewEmbeddingCmd())
	cmd.AddCommand(eventscmder.NewEventsCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(initcmder.NewInitCmd())
	cmd.AddCommand(authcmder.NewAuthCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}
