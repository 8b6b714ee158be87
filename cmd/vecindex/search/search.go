// Package searchcmder provides the search command for semantic search over
// indexed records.
package searchcmder

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/papercomputeco/vecindex/api"
	"github.com/papercomputeco/vecindex/pkg/cliui"
	"github.com/papercomputeco/vecindex/pkg/config"
	"github.com/papercomputeco/vecindex/pkg/indexer"
	"github.com/papercomputeco/vecindex/pkg/logger"
	"github.com/papercomputeco/vecindex/pkg/utils"
)

const requestTimeout = 30 * time.Second

type searchCommander struct {
	query    string
	limit    int
	quiet    bool
	entities []string

	apiTarget      string
	tenantID       string
	organizationID string

	debug  bool
	logger *zap.Logger
}

const searchLongDesc string = `Search indexed records via the vecindex API.

Returns the records most similar to the query text, ranked by score, for
the given tenant. Requires a running vecindex server with an available
embedding provider.

Use --quiet to output only entity/record pairs, one per line.

Example:
  vecindex search "red kettle" --tenant acme
  vecindex search "overdue invoices" --tenant acme --entities billing:invoice
  vecindex search "red kettle" --tenant acme --limit 20 --api-target http://localhost:8081
  vecindex search "red kettle" --tenant acme --quiet`

const searchShortDesc string = "Search indexed records"

func NewSearchCmd() *cobra.Command {
	cmder := &searchCommander{}

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: searchShortDesc,
		Long:  searchLongDesc,
		Args:  cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			_, cfg, err := config.ResolveForCommand(cmd, config.FlagAPITarget, config.FlagTenant, config.FlagOrganization)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			cmder.apiTarget = cfg.Client.APITarget
			cmder.tenantID = cfg.Client.TenantID
			cmder.organizationID = cfg.Client.OrganizationID
			if cmder.tenantID == "" {
				return fmt.Errorf("a tenant is required: pass --tenant or set client.tenant_id")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cmder.query = args[0]

			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}

			return cmder.run(cmd.OutOrStdout())
		},
	}

	config.AddStringFlag(cmd, config.Flags, config.FlagAPITarget, &cmder.apiTarget)
	config.AddStringFlag(cmd, config.Flags, config.FlagTenant, &cmder.tenantID)
	config.AddStringFlag(cmd, config.Flags, config.FlagOrganization, &cmder.organizationID)
	cmd.Flags().IntVarP(&cmder.limit, "limit", "k", 10, "Number of results to return (max 50)")
	cmd.Flags().BoolVarP(&cmder.quiet, "quiet", "q", false, "Output only entity/record pairs, one per line")
	cmd.Flags().StringSliceVar(&cmder.entities, "entities", nil, "Restrict the search to these entity ids")

	return cmd
}

func (c *searchCommander) run(w io.Writer) error {
	c.logger = logger.NewLogger(c.debug)
	defer func() { _ = c.logger.Sync() }()

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	output, err := SearchAPI(ctx, Request{
		APITarget:      c.apiTarget,
		TenantID:       c.tenantID,
		OrganizationID: c.organizationID,
		Query:          c.query,
		Limit:          c.limit,
		Entities:       c.entities,
	})
	if err != nil {
		return err
	}

	c.logger.Debug("search complete",
		zap.String("query", output.Query),
		zap.Int("count", output.Count),
	)

	if c.quiet {
		for _, hit := range output.Results {
			fmt.Fprintf(w, "%s/%s\n", hit.EntityID, hit.RecordID)
		}
		return nil
	}

	if len(output.Results) == 0 {
		fmt.Fprintln(w, "No results found.")
		return nil
	}

	fmt.Fprintf(w, "\n%s %s\n\n",
		cliui.TitleStyle.Render("Search results for:"),
		cliui.EntityStyle.Render(strconv.Quote(output.Query)),
	)
	for i, hit := range output.Results {
		printHit(w, i+1, hit)
	}
	return nil
}

func printHit(w io.Writer, rank int, hit indexer.SearchHit) {
	title := hit.RecordID
	subtitle := ""
	if hit.Presenter != nil {
		if hit.Presenter.Title != "" {
			title = hit.Presenter.Title
		}
		subtitle = hit.Presenter.Subtitle
	}

	fmt.Fprintf(w, "  %s  %s  %s\n",
		cliui.RankStyle.Render(fmt.Sprintf("#%d", rank)),
		cliui.ScoreStyle.Render(fmt.Sprintf("score: %.4f", hit.Score)),
		cliui.EntityStyle.Render(hit.EntityID+"/"+hit.RecordID),
	)
	fmt.Fprintf(w, "  %s\n", cliui.TitleStyle.Render(utils.Truncate(oneLine(title), 80)))
	if subtitle != "" {
		fmt.Fprintf(w, "  %s\n", utils.Truncate(oneLine(subtitle), 80))
	}
	if hit.URL != "" {
		fmt.Fprintf(w, "  %s\n", cliui.DimStyle.Render(hit.URL))
	}
	fmt.Fprintln(w)
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Request is a search against a running vecindex API.
type Request struct {
	APITarget      string
	TenantID       string
	OrganizationID string
	Query          string
	Limit          int
	Entities       []string
}

// SearchAPI calls GET /v1/search on the API server and decodes the result.
// Non-2xx responses are turned into errors carrying the server's message.
func SearchAPI(ctx context.Context, r Request) (*indexer.SearchOutput, error) {
	params := url.Values{}
	params.Set("q", r.Query)
	if r.Limit > 0 {
		params.Set("limit", strconv.Itoa(r.Limit))
	}
	if len(r.Entities) > 0 {
		params.Set("entities", strings.Join(r.Entities, ","))
	}

	endpoint := strings.TrimRight(r.APITarget, "/") + "/v1/search?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("building search request: %w", err)
	}
	req.Header.Set(api.HeaderTenant, r.TenantID)
	if r.OrganizationID != "" {
		req.Header.Set(api.HeaderOrganization, r.OrganizationID)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("cannot reach vecindex API at %s: %w", r.APITarget, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading search response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr api.ErrorResponse
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error != "" {
			return nil, fmt.Errorf("search failed (%d): %s", resp.StatusCode, apiErr.Error)
		}
		return nil, fmt.Errorf("search failed (%d)", resp.StatusCode)
	}

	var output indexer.SearchOutput
	if err := json.Unmarshal(body, &output); err != nil {
		return nil, fmt.Errorf("decoding search response: %w", err)
	}
	return &output, nil
}
