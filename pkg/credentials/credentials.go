// Package credentials stores provider credentials in credentials.toml in the
// .vecindex/ directory. Stored values are consulted after the process
// environment, never instead of it.
package credentials

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"go.uber.org/zap"

	"github.com/papercomputeco/vecindex/pkg/dotdir"
	"github.com/papercomputeco/vecindex/pkg/embeddings"
)

const (
	credentialsFile = "credentials.toml"

	currentVersion = 0
)

// VectorStoreNames are credentials read by vector store drivers.
var VectorStoreNames = []string{"QDRANT_API_KEY"}

// ErrUnknownName is returned when storing a value no provider reads.
var ErrUnknownName = errors.New("unknown credential name")

// Manager manages reading and writing credentials.toml in the .vecindex/ directory.
type Manager struct {
	targetPath string
}

// NewManager creates a new credentials Manager. If override is non-empty it is
// used as the .vecindex/ directory; otherwise the standard dotdir resolution
// applies. When no .vecindex/ directory is found, one is created at ~/.vecindex/.
func NewManager(override string) (*Manager, error) {
	target, err := dotdir.NewManager().Init(override)
	if err != nil {
		return nil, err
	}

	return &Manager{
		targetPath: filepath.Join(target, credentialsFile),
	}, nil
}

// Load reads credentials.toml from the target directory.
// Returns an empty Credentials if the file does not exist.
func (m *Manager) Load() (*Credentials, error) {
	data, err := os.ReadFile(m.targetPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Credentials{
				Version: currentVersion,
				Values:  make(map[string]string),
			}, nil
		}
		return nil, fmt.Errorf("reading credentials: %w", err)
	}

	creds := &Credentials{}
	if err := toml.Unmarshal(data, creds); err != nil {
		return nil, fmt.Errorf("parsing credentials: %w", err)
	}

	if creds.Values == nil {
		creds.Values = make(map[string]string)
	}

	return creds, nil
}

// Save writes credentials to credentials.toml with 0600 permissions.
func (m *Manager) Save(creds *Credentials) error {
	if creds == nil {
		return errors.New("cannot save nil credentials")
	}

	var buf bytes.Buffer
	encoder := toml.NewEncoder(&buf)
	if err := encoder.Encode(creds); err != nil {
		return fmt.Errorf("encoding credentials: %w", err)
	}

	if err := os.WriteFile(m.targetPath, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("writing credentials: %w", err)
	}

	return nil
}

// Set stores value under name, which must be read by some provider.
func (m *Manager) Set(name, value string) error {
	if !IsKnownName(name) {
		return fmt.Errorf("%w: %s", ErrUnknownName, name)
	}

	creds, err := m.Load()
	if err != nil {
		return err
	}

	creds.Values[name] = value

	return m.Save(creds)
}

// Remove deletes the stored values for names.
func (m *Manager) Remove(names ...string) error {
	creds, err := m.Load()
	if err != nil {
		return err
	}

	for _, name := range names {
		delete(creds.Values, name)
	}

	return m.Save(creds)
}

// Names returns the names of stored credentials, sorted.
func (m *Manager) Names() ([]string, error) {
	creds, err := m.Load()
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(creds.Values))
	for name := range creds.Values {
		names = append(names, name)
	}

	sort.Strings(names)

	return names, nil
}

// GetTarget returns the resolved path to the credentials file.
func (m *Manager) GetTarget() string {
	return m.targetPath
}

// Lookup resolves a name from primary first and falls back to the stored
// values. Blank values count as missing.
func (c *Credentials) Lookup(primary embeddings.CredentialLookup) embeddings.CredentialLookup {
	if primary == nil {
		primary = embeddings.EnvLookup
	}
	return func(name string) (string, bool) {
		if v, ok := primary(name); ok && strings.TrimSpace(v) != "" {
			return v, true
		}
		if c == nil {
			return "", false
		}
		v, ok := c.Values[name]
		return v, ok
	}
}

// ProviderNames returns the credential names an embedding provider reads,
// required ones first. Unknown providers return false.
func ProviderNames(provider string) ([]string, bool) {
	required, ok := embeddings.RequiredCredentials(provider)
	if !ok {
		return nil, false
	}
	return append(slices.Clone(required), embeddings.OptionalCredentials(provider)...), true
}

// IsKnownName reports whether any provider or vector store reads name.
func IsKnownName(name string) bool {
	if slices.Contains(VectorStoreNames, name) {
		return true
	}
	for _, provider := range embeddings.SupportedProviders() {
		names, _ := ProviderNames(provider)
		if slices.Contains(names, name) {
			return true
		}
	}
	return false
}

// ResolveLookup returns a lookup reading the environment first and the
// credentials file of configDir second. An unreadable credentials file
// leaves the environment alone in charge. Values are never logged.
func ResolveLookup(configDir string, logger *zap.Logger) embeddings.CredentialLookup {
	if logger == nil {
		logger = zap.NewNop()
	}

	mgr, err := NewManager(configDir)
	if err != nil {
		logger.Warn("credentials file unavailable", zap.Error(err))
		return embeddings.EnvLookup
	}
	creds, err := mgr.Load()
	if err != nil {
		logger.Warn("credentials file unreadable", zap.String("path", mgr.GetTarget()), zap.Error(err))
		return embeddings.EnvLookup
	}
	return creds.Lookup(embeddings.EnvLookup)
}
