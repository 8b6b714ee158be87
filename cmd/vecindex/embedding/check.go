package embeddingcmder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/vecindex/pkg/cliui"
	"github.com/papercomputeco/vecindex/pkg/config"
	"github.com/papercomputeco/vecindex/pkg/credentials"
	"github.com/papercomputeco/vecindex/pkg/embeddings"
	"github.com/papercomputeco/vecindex/pkg/logger"
	"github.com/papercomputeco/vecindex/pkg/stack"
)

// ErrReindexRequired is returned by check when the configured embedding
// provider does not match the vectors already stored.
var ErrReindexRequired = errors.New("stored vectors do not match the embedding configuration: run 'vecindex reindex'")

type checkCommander struct {
	probe bool

	vectorProvider string
	vectorTarget   string
	embedProvider  string
	embedModel     string
	embedDims      uint

	debug     bool
	configDir string
	cfg       *config.Config
}

var checkFlags = []string{
	config.FlagVectorStoreProv,
	config.FlagVectorStoreTgt,
	config.FlagEmbeddingProv,
	config.FlagEmbeddingModel,
	config.FlagEmbeddingDims,
}

const checkLongDesc string = `Check the embedding provider against the vector store.

Reports the configured provider, model and dimension, whether its
credentials are present, and the width of the vectors already stored. Exits
with an error when the stored vectors were produced by a different
configuration and a reindex is required.

With --probe, also embeds a short text to verify the provider answers.`

const checkShortDesc string = "Check the embedding provider against the vector store"

func newCheckCmd() *cobra.Command {
	cmder := &checkCommander{}

	cmd := &cobra.Command{
		Use:   "check",
		Short: checkShortDesc,
		Long:  checkLongDesc,
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			_, cfg, err := config.ResolveForCommand(cmd, checkFlags...)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			cmder.cfg = cfg
			cmder.configDir, _ = cmd.Flags().GetString("config-dir")
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}
			return cmder.run(cmd.Context(), cmd.OutOrStdout())
		},
	}

	config.AddStringFlag(cmd, config.Flags, config.FlagVectorStoreProv, &cmder.vectorProvider)
	config.AddStringFlag(cmd, config.Flags, config.FlagVectorStoreTgt, &cmder.vectorTarget)
	config.AddStringFlag(cmd, config.Flags, config.FlagEmbeddingProv, &cmder.embedProvider)
	config.AddStringFlag(cmd, config.Flags, config.FlagEmbeddingModel, &cmder.embedModel)
	config.AddUintFlag(cmd, config.Flags, config.FlagEmbeddingDims, &cmder.embedDims)
	cmd.Flags().BoolVar(&cmder.probe, "probe", false, "Embed a short text to verify the provider answers")

	return cmd
}

func (c *checkCommander) run(ctx context.Context, w io.Writer) error {
	log := logger.NewLoggerWithWriters(c.debug, os.Stderr)
	defer func() { _ = log.Sync() }()

	st, err := stack.New(ctx, stack.Options{
		Config: c.cfg,
		Lookup: credentials.ResolveLookup(c.configDir, log),
		Logger: log,
	})
	if err != nil {
		return err
	}
	defer st.Close()

	active := st.Service.EmbeddingConfig()
	available := st.Service.EmbeddingAvailable()
	indexed := st.Service.IndexedDimension(ctx)
	decision := embeddings.DetectConfigChange(nil, active, indexed)

	fmt.Fprintf(w, "\n  %s\n\n", cliui.TitleStyle.Render("Embedding"))
	printRow(w, "provider", active.ProviderID)
	printRow(w, "model", active.Model)
	printRow(w, "dimension", fmt.Sprintf("%d", active.EffectiveDimension()))
	printRow(w, "credentials", availability(available))
	printRow(w, "vector store", st.Driver.ID())
	if indexed != nil {
		printRow(w, "indexed dimension", fmt.Sprintf("%d", *indexed))
	} else {
		printRow(w, "indexed dimension", "unknown")
	}
	fmt.Fprintln(w)

	if c.probe && available {
		probeErr := cliui.Step(w, "Embedding a probe text", func() error {
			vec, err := st.Embeddings.CreateEmbedding(ctx, []string{"vecindex probe"})
			if err != nil {
				return err
			}
			if len(vec) != active.EffectiveDimension() {
				return fmt.Errorf("provider returned %d dimensions, expected %d", len(vec), active.EffectiveDimension())
			}
			return nil
		})
		fmt.Fprintln(w)
		if probeErr != nil {
			return fmt.Errorf("probing embedding provider: %w", probeErr)
		}
	}

	if decision.RequiresReindex {
		fmt.Fprintf(w, "  %s %s\n\n", cliui.WarnMark, decision.Reason)
		return ErrReindexRequired
	}
	if !available {
		fmt.Fprintf(w, "  %s credentials for %q are missing: run 'vecindex auth %s'\n\n",
			cliui.WarnMark, active.ProviderID, active.ProviderID)
		return nil
	}

	fmt.Fprintf(w, "  %s %s\n\n", cliui.SuccessMark, "stored vectors match the embedding configuration")
	return nil
}

func printRow(w io.Writer, key, value string) {
	fmt.Fprintf(w, "  %s  %s\n", cliui.KeyStyle.Render(fmt.Sprintf("%-18s", key)), cliui.ValueStyle.Render(value))
}

func availability(ok bool) string {
	if ok {
		return "configured"
	}
	return "missing"
}
