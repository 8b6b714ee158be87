// Package api provides the HTTP surface of the index: search, index
// inspection and maintenance, event intake and health.
package api

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/papercomputeco/vecindex/pkg/eventstream"
)

// Config is the API server configuration.
type Config struct {
	// ListenAddr is the address to listen on (e.g., ":8081")
	ListenAddr string

	// Events receives POST /v1/events. The route is not registered when nil.
	Events EventSink

	// Gatherer backs /metrics. Defaults to prometheus.DefaultGatherer.
	Gatherer prometheus.Gatherer

	// MCP is mounted at /mcp when set.
	MCP http.Handler
}

// EventSink accepts record events without blocking. It reports false when
// the event could not be queued.
type EventSink interface {
	Enqueue(event *eventstream.RecordEvent) bool
}
