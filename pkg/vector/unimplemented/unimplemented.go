// Package unimplemented provides a registered placeholder for vector store
// backends that have no implementation yet. Every operation fails with
// vector.ErrDriverNotImplemented.
package unimplemented

import (
	"context"

	"github.com/papercomputeco/vecindex/pkg/vector"
)

// Driver fails every call.
type Driver struct {
	id string
}

// NewDriver creates a stub driver for id.
func NewDriver(id string) *Driver {
	return &Driver{id: id}
}

func (d *Driver) fail(op string) error {
	return &vector.NotImplementedError{DriverID: d.id, Op: op}
}

// ID returns the driver id.
func (d *Driver) ID() string { return d.id }

func (d *Driver) EnsureReady(_ context.Context) error { return d.fail("EnsureReady") }

func (d *Driver) Upsert(_ context.Context, _ vector.Document) error { return d.fail("Upsert") }

func (d *Driver) Delete(_ context.Context, _, _, _ string) error { return d.fail("Delete") }

func (d *Driver) GetChecksum(_ context.Context, _, _, _ string) (string, bool, error) {
	return "", false, d.fail("GetChecksum")
}

func (d *Driver) Purge(_ context.Context, _, _ string) error { return d.fail("Purge") }

func (d *Driver) Query(_ context.Context, _ []float32, _ int, _ vector.QueryFilter) ([]vector.Hit, error) {
	return nil, d.fail("Query")
}

func (d *Driver) List(_ context.Context, _ vector.ListParams) ([]vector.Document, error) {
	return nil, d.fail("List")
}

// Close succeeds so a registry holding stubs can shut down cleanly.
func (d *Driver) Close() error { return nil }

var _ vector.Driver = (*Driver)(nil)
