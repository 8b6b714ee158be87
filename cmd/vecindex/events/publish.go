package eventscmder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/papercomputeco/vecindex/api"
	"github.com/papercomputeco/vecindex/pkg/cliui"
	"github.com/papercomputeco/vecindex/pkg/config"
	"github.com/papercomputeco/vecindex/pkg/eventstream"
	"github.com/papercomputeco/vecindex/pkg/logger"
	"github.com/papercomputeco/vecindex/pkg/stack"
)

type publishCommander struct {
	eventType      string
	entityID       string
	recordID       string
	tenantID       string
	organizationID string
	viaAPI         bool

	apiTarget      string
	eventsProvider string

	debug bool
	cfg   *config.Config
}

var publishFlags = []string{
	config.FlagTenant,
	config.FlagOrganization,
	config.FlagAPITarget,
	config.FlagEventsProv,
}

const publishLongDesc string = `Publish one record mutation event.

By default the event is written to the configured event stream
(events.provider). With --api it is posted to the /v1/events endpoint of a
running server instead, which queues it for the indexing workers directly.`

const publishShortDesc string = "Publish one record mutation event"

func newPublishCmd() *cobra.Command {
	cmder := &publishCommander{}

	cmd := &cobra.Command{
		Use:   "publish",
		Short: publishShortDesc,
		Long:  publishLongDesc,
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			_, cfg, err := config.ResolveForCommand(cmd, publishFlags...)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			cmder.cfg = cfg
			cmder.tenantID = cfg.Client.TenantID
			cmder.organizationID = cfg.Client.OrganizationID
			cmder.apiTarget = cfg.Client.APITarget
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

	cmd.Flags().StringVar(&cmder.eventType, "type", eventstream.EventTypeUpdated, "Event type (created, updated, deleted)")
	cmd.Flags().StringVar(&cmder.entityID, "entity", "", "Entity id of the record (e.g. products:item)")
	cmd.Flags().StringVar(&cmder.recordID, "record", "", "Id of the record")
	cmd.Flags().BoolVar(&cmder.viaAPI, "api", false, "Post the event to a running server instead of the event stream")
	config.AddStringFlag(cmd, config.Flags, config.FlagTenant, &cmder.tenantID)
	config.AddStringFlag(cmd, config.Flags, config.FlagOrganization, &cmder.organizationID)
	config.AddStringFlag(cmd, config.Flags, config.FlagAPITarget, &cmder.apiTarget)
	config.AddStringFlag(cmd, config.Flags, config.FlagEventsProv, &cmder.eventsProvider)

	return cmd
}

func (c *publishCommander) event() *eventstream.RecordEvent {
	return &eventstream.RecordEvent{
		SchemaVersion:  eventstream.SchemaVersionV1,
		EventType:      c.eventType,
		EventID:        uuid.NewString(),
		EmittedAt:      time.Now().UTC(),
		EntityID:       c.entityID,
		RecordID:       c.recordID,
		TenantID:       c.tenantID,
		OrganizationID: c.organizationID,
	}
}

func (c *publishCommander) run(ctx context.Context, w io.Writer) error {
	event := c.event()
	if err := event.Validate(); err != nil {
		return err
	}

	if c.viaAPI {
		if err := postEvent(ctx, c.apiTarget, event); err != nil {
			return err
		}
		fmt.Fprintf(w, "  %s queued %s event %s\n", cliui.SuccessMark, event.EventType, cliui.EntityStyle.Render(event.Key()))
		return nil
	}

	log := logger.NewLoggerWithWriters(c.debug, os.Stderr)
	defer func() { _ = log.Sync() }()

	pub, err := stack.NewPublisher(c.cfg.Events, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := pub.Close(); err != nil {
			log.Warn("closing publisher", zap.Error(err))
		}
	}()

	if err := pub.Publish(ctx, event); err != nil {
		return fmt.Errorf("publishing event: %w", err)
	}

	provider := c.cfg.Events.Provider
	if provider == "" || provider == stack.EventsNone {
		fmt.Fprintf(w, "  %s events are disabled (events.provider = %q); nothing was sent\n", cliui.WarnMark, stack.EventsNone)
		return nil
	}
	fmt.Fprintf(w, "  %s published %s event %s\n", cliui.SuccessMark, event.EventType, cliui.EntityStyle.Render(event.Key()))
	return nil
}

// postEvent sends the event to the /v1/events endpoint of a running server.
func postEvent(ctx context.Context, target string, event *eventstream.RecordEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encoding event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target+"/v1/events", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(api.HeaderTenant, event.TenantID)
	if event.OrganizationID != "" {
		req.Header.Set(api.HeaderOrganization, event.OrganizationID)
	}

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("cannot reach vecindex API at %s: %w", target, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusAccepted {
		return nil
	}

	var errResp api.ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&errResp); err != nil || errResp.Error == "" {
		return fmt.Errorf("posting event failed (%d)", resp.StatusCode)
	}
	return fmt.Errorf("posting event failed (%d): %s", resp.StatusCode, errResp.Error)
}
