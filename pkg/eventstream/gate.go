package eventstream

import (
	"os"
	"strconv"
	"strings"
	"sync/atomic"
)

// KillSwitchEnv disables automatic indexing when set to a truthy value,
// whatever the configured flag says.
const KillSwitchEnv = "VECINDEX_AUTO_INDEX_DISABLED"

// Gate decides whether mutation events may touch the index.
type Gate struct {
	enabled atomic.Bool
	lookup  func(string) (string, bool)
}

// NewGate creates a gate with the configured auto-index flag. A nil lookup
// reads the process environment.
func NewGate(enabled bool, lookup func(string) (string, bool)) *Gate {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	g := &Gate{lookup: lookup}
	g.enabled.Store(enabled)
	return g
}

// SetEnabled updates the configured flag.
func (g *Gate) SetEnabled(enabled bool) {
	g.enabled.Store(enabled)
}

// Enabled reports whether automatic indexing is on. The kill switch is read
// on every call so it can be flipped without a restart.
func (g *Gate) Enabled() bool {
	if g.KillSwitchEngaged() {
		return false
	}
	return g.enabled.Load()
}

// KillSwitchEngaged reports whether KillSwitchEnv is truthy.
func (g *Gate) KillSwitchEngaged() bool {
	raw, ok := g.lookup(KillSwitchEnv)
	if !ok {
		return false
	}
	raw = strings.TrimSpace(raw)
	if strings.EqualFold(raw, "yes") || strings.EqualFold(raw, "on") {
		return true
	}
	v, err := strconv.ParseBool(raw)
	return err == nil && v
}
