// Package reindexcmder provides the reindex command, rebuilding the index
// of a tenant in-process.
package reindexcmder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/papercomputeco/vecindex/pkg/cliui"
	"github.com/papercomputeco/vecindex/pkg/config"
	"github.com/papercomputeco/vecindex/pkg/credentials"
	"github.com/papercomputeco/vecindex/pkg/indexer"
	"github.com/papercomputeco/vecindex/pkg/logger"
	"github.com/papercomputeco/vecindex/pkg/stack"
)

type reindexCommander struct {
	entityID       string
	tenantID       string
	organizationID string
	noPurge        bool

	vectorProvider string
	vectorTarget   string
	embedProvider  string
	embedModel     string
	recordsProv    string
	recordsTarget  string
	pageSize       uint

	debug     bool
	configDir string
	cfg       *config.Config
	logger    *zap.Logger
}

var reindexFlags = []string{
	config.FlagTenant,
	config.FlagOrganization,
	config.FlagVectorStoreProv,
	config.FlagVectorStoreTgt,
	config.FlagEmbeddingProv,
	config.FlagEmbeddingModel,
	config.FlagRecordsProv,
	config.FlagRecordsTgt,
	config.FlagPageSize,
}

const reindexLongDesc string = `Rebuild the index of a tenant.

Reads every record of the entity (or of every enabled entity) page by page
from the records database and indexes it. Existing documents of the entity
are purged first unless --no-purge is given, which keeps documents whose
checksum is unchanged and skips re-embedding them.

A purge covers every organization of the tenant, so a purging reindex
rebuilds all of them. --organization only narrows --no-purge runs.

Runs in-process against the configured vector store and records database;
no server is needed.

Examples:
  vecindex reindex --tenant acme
  vecindex reindex products:item --tenant acme
  vecindex reindex products:item --tenant acme --no-purge`

const reindexShortDesc string = "Rebuild the index of a tenant"

func NewReindexCmd() *cobra.Command {
	cmder := &reindexCommander{}

	cmd := &cobra.Command{
		Use:   "reindex [entity]",
		Short: reindexShortDesc,
		Long:  reindexLongDesc,
		Args:  cobra.MaximumNArgs(1),
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			_, cfg, err := config.ResolveForCommand(cmd, reindexFlags...)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			cmder.cfg = cfg
			cmder.tenantID = cfg.Client.TenantID
			cmder.organizationID = cfg.Client.OrganizationID
			cmder.configDir, _ = cmd.Flags().GetString("config-dir")
			if cmder.tenantID == "" {
				return errors.New("a tenant is required: pass --tenant or set client.tenant_id")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				cmder.entityID = args[0]
			}

			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return cmder.run(ctx, cmd.OutOrStdout())
		},
	}

	config.AddStringFlag(cmd, config.Flags, config.FlagTenant, &cmder.tenantID)
	config.AddStringFlag(cmd, config.Flags, config.FlagOrganization, &cmder.organizationID)
	config.AddStringFlag(cmd, config.Flags, config.FlagVectorStoreProv, &cmder.vectorProvider)
	config.AddStringFlag(cmd, config.Flags, config.FlagVectorStoreTgt, &cmder.vectorTarget)
	config.AddStringFlag(cmd, config.Flags, config.FlagEmbeddingProv, &cmder.embedProvider)
	config.AddStringFlag(cmd, config.Flags, config.FlagEmbeddingModel, &cmder.embedModel)
	config.AddStringFlag(cmd, config.Flags, config.FlagRecordsProv, &cmder.recordsProv)
	config.AddStringFlag(cmd, config.Flags, config.FlagRecordsTgt, &cmder.recordsTarget)
	config.AddUintFlag(cmd, config.Flags, config.FlagPageSize, &cmder.pageSize)
	cmd.Flags().BoolVar(&cmder.noPurge, "no-purge", false, "Keep existing documents instead of purging the entity first")

	return cmd
}

func (c *reindexCommander) run(ctx context.Context, w io.Writer) error {
	c.logger = logger.NewLoggerWithWriters(c.debug, os.Stderr)
	defer func() { _ = c.logger.Sync() }()

	st, err := stack.New(ctx, stack.Options{
		Config: c.cfg,
		Lookup: credentials.ResolveLookup(c.configDir, c.logger),
		Logger: c.logger,
	})
	if err != nil {
		return err
	}
	defer st.Close()

	if !st.Service.EmbeddingAvailable() {
		return fmt.Errorf("embedding provider %q is not configured: set its credentials or run 'vecindex auth %s'",
			c.cfg.Embedding.Provider, c.cfg.Embedding.Provider)
	}

	entities := st.Service.ListEnabledEntities()
	if c.entityID != "" {
		entities = []string{c.entityID}
	}
	if len(entities) == 0 {
		fmt.Fprintf(w, "\n  %s No entities are configured.\n\n", cliui.WarnMark)
		return nil
	}

	fmt.Fprintf(w, "\n  %s %s\n\n",
		cliui.TitleStyle.Render("Reindexing tenant"),
		cliui.EntityStyle.Render(c.tenantID),
	)

	var (
		results []indexer.ReindexResult
		failed  int
	)
	for _, entityID := range entities {
		var result indexer.ReindexResult
		err := cliui.Step(w, entityID, func() error {
			var err error
			result, err = st.Service.ReindexEntity(ctx, indexer.ReindexArgs{
				EntityID:       entityID,
				TenantID:       c.tenantID,
				OrganizationID: c.organizationID,
				SkipPurge:      c.noPurge,
			})
			return err
		})
		if err != nil {
			failed++
			fmt.Fprintf(w, "    %s\n", cliui.DimStyle.Render(err.Error()))
			if ctx.Err() != nil {
				return ctx.Err()
			}
			continue
		}
		results = append(results, result)
	}

	fmt.Fprintln(w)
	for _, r := range results {
		fmt.Fprintf(w, "  %s  %s\n",
			cliui.EntityStyle.Render(r.EntityID),
			cliui.DimStyle.Render(fmt.Sprintf("%d indexed, %d unchanged, %d ignored, %d pages in %s",
				r.Indexed, r.Unchanged, r.Ignored, r.Pages, cliui.FormatDuration(r.Duration))),
		)
	}
	fmt.Fprintln(w)

	if failed > 0 {
		return fmt.Errorf("%d of %d entities failed to reindex", failed, len(entities))
	}
	return nil
}
