package embeddingcmder

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/vecindex/pkg/cliui"
	"github.com/papercomputeco/vecindex/pkg/credentials"
	"github.com/papercomputeco/vecindex/pkg/embeddings"
	"github.com/papercomputeco/vecindex/pkg/logger"
)

const providersLongDesc string = `List the supported embedding providers.

Shows each provider's default model and dimension, the credentials it
requires, and whether they are present in the environment or in
credentials.toml. Credential values are never printed.`

const providersShortDesc string = "List the supported embedding providers"

func newProvidersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "providers",
		Short: providersShortDesc,
		Long:  providersLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			debug, _ := cmd.Flags().GetBool("debug")
			log := logger.NewLoggerWithWriters(debug, os.Stderr)
			defer func() { _ = log.Sync() }()

			printProviders(cmd.OutOrStdout(), credentials.ResolveLookup(configDir, log))
			return nil
		},
	}
}

func printProviders(w io.Writer, lookup embeddings.CredentialLookup) {
	fmt.Fprintln(w)
	for _, id := range embeddings.SupportedProviders() {
		d := embeddings.ProviderConfig{ProviderID: id}.WithDefaults()
		names, _ := embeddings.RequiredCredentials(id)

		mark := cliui.SuccessMark
		if !embeddings.IsConfigured(id, lookup) {
			mark = cliui.FailMark
		}

		required := "none"
		if len(names) > 0 {
			required = strings.Join(names, ", ")
		}

		fmt.Fprintf(w, "  %s %s  %s\n", mark,
			cliui.NameStyle.Render(fmt.Sprintf("%-8s", id)),
			cliui.DimStyle.Render(fmt.Sprintf("%s (%d dims)", d.Model, d.Dimension)),
		)
		fmt.Fprintf(w, "      %s %s\n", cliui.DimStyle.Render("requires:"), required)
	}
	fmt.Fprintln(w)
}
