// Package http_client provides the http_request block and the pooled
// client every request unit shares.
package http_client

import (
	"net/http"
	"time"

	"github.com/vk/blockgrid/internal/registry"
)

// DefaultTimeout bounds a request whose block sets no "timeout".
const DefaultTimeout = 30 * time.Second

// Module implements the registry.Module interface. Client, when set,
// replaces the pooled client built by Register.
type Module struct {
	Client *http.Client
}

// newClient returns a client with a pooled transport. Per-request
// deadlines come from the unit's context, so the client has no timeout.
func newClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}

// Register registers the http_request block with the registry.
func (m *Module) Register(r *registry.Registry) {
	client := m.Client
	if client == nil {
		client = newClient()
	}
	r.RegisterUnit(&registry.UnitDefinition{
		Kind:        "http_request",
		Description: "Performs an HTTP request and emits the status code and body.",
		New:         newRequest(client),
	})
}
