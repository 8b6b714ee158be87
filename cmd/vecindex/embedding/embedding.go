// Package embeddingcmder provides the embedding command group for checking
// the embedding provider and listing the supported providers.
package embeddingcmder

import (
	"github.com/spf13/cobra"
)

const embeddingLongDesc string = `Inspect the embedding provider.

The embedding provider decides the width of every vector written to the
vector store. Changing the provider, the model, or the dimension makes the
stored vectors incomparable and requires a reindex.

Examples:
  vecindex embedding check
  vecindex embedding check --probe
  vecindex embedding providers`

const embeddingShortDesc string = "Inspect the embedding provider"

func NewEmbeddingCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "embedding",
		Short: embeddingShortDesc,
		Long:  embeddingLongDesc,
	}

	cmd.AddCommand(newCheckCmd())
	cmd.AddCommand(newProvidersCmd())

	return cmd
}
