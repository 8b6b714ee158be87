// Package initcmder provides the init command for initializing a local
// .vecindex directory in the current working directory.
package initcmder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/vecindex/pkg/cliui"
	"github.com/papercomputeco/vecindex/pkg/config"
)

const (
	dirName = ".vecindex"

	// maxRemoteConfig bounds the size of a config fetched with --preset <url>.
	maxRemoteConfig = 1 << 20
)

const initLongDesc string = `Initialize a new .vecindex/ directory in the current working directory.

Creates a local .vecindex/ directory that takes precedence over the default
~/.vecindex/ directory for configuration, credentials and the local vector
store, and writes a config.toml with default values.

This is useful for maintaining separate indexing setups per project.

Use --preset to start from an embedding provider's defaults, or from a
config.toml served at an http(s) URL. A preset overwrites an existing
config.toml; without one an existing file is left untouched.

Examples:
  vecindex init
  vecindex init --preset openai
  vecindex init --preset https://example.com/vecindex/config.toml`

const initShortDesc string = "Initialize a local .vecindex/ directory"

func NewInitCmd() *cobra.Command {
	var preset string

	cmd := &cobra.Command{
		Use:   "init",
		Short: initShortDesc,
		Long:  initLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runInit(cmd.Context(), cmd.OutOrStdout(), preset)
		},
	}

	cmd.Flags().StringVar(&preset, "preset", "",
		fmt.Sprintf("Embedding provider preset (%s) or URL of a config.toml", strings.Join(config.ValidPresetNames(), ", ")))

	return cmd
}

func runInit(ctx context.Context, w io.Writer, preset string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("getting current directory: %w", err)
	}
	dir := filepath.Join(cwd, dirName)

	// Resolve the config before touching the filesystem so a bad preset
	// leaves nothing behind.
	var cfg *config.Config
	if preset != "" {
		if cfg, err = resolvePreset(ctx, preset); err != nil {
			return err
		}
	}

	info, statErr := os.Stat(dir)
	existed := statErr == nil && info.IsDir()
	if !existed {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating .vecindex directory: %w", err)
		}
	}

	configPath := filepath.Join(dir, "config.toml")
	_, err = os.Stat(configPath)
	hasConfig := err == nil

	if cfg == nil && hasConfig {
		fmt.Fprintf(w, "  %s Already initialized: %s\n", cliui.SuccessMark, dir)
		return nil
	}
	if cfg == nil {
		cfg = config.NewDefaultConfig()
	}

	cfger, err := config.NewConfiger(dir)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfger.SaveConfig(cfg); err != nil {
		return err
	}

	if existed {
		fmt.Fprintf(w, "  %s Wrote %s\n", cliui.SuccessMark, configPath)
	} else {
		fmt.Fprintf(w, "  %s Initialized .vecindex directory: %s\n", cliui.SuccessMark, dir)
	}
	fmt.Fprintf(w, "    %s\n", cliui.DimStyle.Render("Declare [[entities]] in config.toml, then run 'vecindex reindex'."))
	return nil
}

func resolvePreset(ctx context.Context, preset string) (*config.Config, error) {
	if strings.HasPrefix(preset, "http://") || strings.HasPrefix(preset, "https://") {
		return fetchRemoteConfig(ctx, preset)
	}
	return config.PresetConfig(preset)
}

func fetchRemoteConfig(ctx context.Context, url string) (*config.Config, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("fetching remote config: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching remote config: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching remote config: HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxRemoteConfig+1))
	if err != nil {
		return nil, fmt.Errorf("fetching remote config: %w", err)
	}
	if len(data) > maxRemoteConfig {
		return nil, errors.New("fetching remote config: file is larger than 1 MiB")
	}

	cfg, err := config.ParseConfigTOML(data)
	if err != nil {
		return nil, fmt.Errorf("parsing remote config: %w", err)
	}
	return cfg, nil
}
