// Package servecmder provides the serve command running the API server, the
// MCP endpoint and the event workers together.
package servecmder

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/papercomputeco/vecindex/api"
	"github.com/papercomputeco/vecindex/api/mcp"
	"github.com/papercomputeco/vecindex/pkg/config"
	"github.com/papercomputeco/vecindex/pkg/credentials"
	"github.com/papercomputeco/vecindex/pkg/logger"
	"github.com/papercomputeco/vecindex/pkg/stack"
)

type serveCommander struct {
	listen         string
	vectorProvider string
	vectorTarget   string
	embedProvider  string
	embedModel     string
	recordsProv    string
	recordsTarget  string
	eventsProvider string
	workers        uint

	debug     bool
	jsonLogs  bool
	configDir string

	viper  *viper.Viper
	cfg    *config.Config
	logger *zap.Logger
}

var serveFlags = []string{
	config.FlagAPIListen,
	config.FlagVectorStoreProv,
	config.FlagVectorStoreTgt,
	config.FlagEmbeddingProv,
	config.FlagEmbeddingModel,
	config.FlagRecordsProv,
	config.FlagRecordsTgt,
	config.FlagEventsProv,
	config.FlagWorkers,
}

const serveLongDesc string = `Run the vecindex server.

Serves the HTTP API (search, index maintenance, event intake, health and
metrics), the MCP search tool at /mcp when an MCP tenant is configured, and
the workers applying record events from the configured event stream.

Changes to config.toml are picked up while running: embedding settings are
swapped in place and the auto-index switch is applied. A change that makes
stored vectors incomparable is logged with the reason a reindex is needed.

Set VECINDEX_AUTO_INDEX_DISABLED=true to stop all automatic indexing
regardless of configuration.

Examples:
  vecindex serve
  vecindex serve --listen :9090 --vector-store-provider pgvector \
    --vector-store-target postgres://localhost/vecindex
  vecindex serve --events-provider kafka`

const serveShortDesc string = "Run the vecindex server"

func NewServeCmd() *cobra.Command {
	cmder := &serveCommander{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.viper, cmder.cfg, err = config.ResolveForCommand(cmd, serveFlags...)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			cmder.configDir, _ = cmd.Flags().GetString("config-dir")
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}
			return cmder.run()
		},
	}

	config.AddStringFlag(cmd, config.Flags, config.FlagAPIListen, &cmder.listen)
	config.AddStringFlag(cmd, config.Flags, config.FlagVectorStoreProv, &cmder.vectorProvider)
	config.AddStringFlag(cmd, config.Flags, config.FlagVectorStoreTgt, &cmder.vectorTarget)
	config.AddStringFlag(cmd, config.Flags, config.FlagEmbeddingProv, &cmder.embedProvider)
	config.AddStringFlag(cmd, config.Flags, config.FlagEmbeddingModel, &cmder.embedModel)
	config.AddStringFlag(cmd, config.Flags, config.FlagRecordsProv, &cmder.recordsProv)
	config.AddStringFlag(cmd, config.Flags, config.FlagRecordsTgt, &cmder.recordsTarget)
	config.AddStringFlag(cmd, config.Flags, config.FlagEventsProv, &cmder.eventsProvider)
	config.AddUintFlag(cmd, config.Flags, config.FlagWorkers, &cmder.workers)
	cmd.Flags().BoolVar(&cmder.jsonLogs, "json-logs", false, "Emit logs as JSON")

	return cmd
}

func (c *serveCommander) run() error {
	if c.jsonLogs {
		c.logger = logger.NewJSONLogger(c.debug)
	} else {
		c.logger = logger.NewLogger(c.debug)
	}
	defer func() { _ = c.logger.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	st, err := stack.New(ctx, stack.Options{
		Config:     c.cfg,
		Lookup:     credentials.ResolveLookup(c.configDir, c.logger),
		Registerer: registry,
		Logger:     c.logger,
	})
	if err != nil {
		return err
	}
	defer st.Close()

	for id, err := range st.Service.Readiness(ctx) {
		if err != nil {
			c.logger.Warn("vector driver not ready", zap.String("driver", id), zap.Error(err))
		}
	}

	pool, err := st.NewPool()
	if err != nil {
		return fmt.Errorf("creating worker pool: %w", err)
	}
	defer pool.Close()

	subscriber, err := st.NewSubscriber()
	if err != nil {
		return err
	}
	defer subscriber.Close()

	apiConfig := api.Config{
		ListenAddr: c.cfg.API.Listen,
		Events:     pool,
		Gatherer:   registry,
	}

	if c.cfg.MCP.TenantID != "" {
		mcpServer, err := mcp.NewServer(mcp.Config{
			Searcher:       st.Service,
			TenantID:       c.cfg.MCP.TenantID,
			OrganizationID: c.cfg.MCP.OrganizationID,
			Logger:         c.logger,
		})
		if err != nil {
			return fmt.Errorf("creating MCP server: %w", err)
		}
		apiConfig.MCP = mcpServer.Handler()
	} else {
		c.logger.Info("MCP search disabled, no mcp.tenant_id configured")
	}

	apiServer, err := api.NewServer(apiConfig, st.Service, c.logger)
	if err != nil {
		return err
	}

	config.Watch(c.viper, c.logger, func(next *config.Config) {
		st.Reload(ctx, next)
	})

	c.logger.Info("starting vecindex",
		zap.String("api_addr", c.cfg.API.Listen),
		zap.String("vector_store", c.cfg.VectorStore.Provider),
		zap.String("embedding_provider", c.cfg.Embedding.Provider),
		zap.String("records", c.cfg.Records.Provider),
		zap.String("events", c.cfg.Events.Provider),
		zap.Bool("auto_index", st.Gate.Enabled()),
	)

	// Channel to capture errors from goroutines
	errChan := make(chan error, 2)

	go func() {
		if err := apiServer.Run(); err != nil {
			errChan <- fmt.Errorf("API server error: %w", err)
		}
	}()

	go func() {
		if err := subscriber.Subscribe(ctx, pool.Handle); err != nil && !errors.Is(err, context.Canceled) {
			errChan <- fmt.Errorf("event subscriber error: %w", err)
		}
	}()

	// Wait for interrupt signal or error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return err
	case sig := <-sigChan:
		c.logger.Info("received signal, shutting down", zap.String("signal", sig.String()))
		cancel()
		return apiServer.Shutdown()
	}
}
