//go:build !cgo

package sqlitevec

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/papercomputeco/vecindex/pkg/vector"
)

// NewSQLiteVecDriver fails in builds without cgo, which sqlite-vec needs.
func NewSQLiteVecDriver(_ Config, _ *zap.Logger) (vector.Driver, error) {
	return nil, fmt.Errorf("%w: sqlitevec needs a cgo build", vector.ErrDriverNotImplemented)
}
