package connector

import (
	"net/http"

	"taskhub/internal/model"
)

// Registry maps each syncable source to its connector. It is built once and
// only read afterwards.
type Registry struct {
	connectors map[model.Source]Connector
}

func NewRegistry(connectors ...Connector) *Registry {
	r := &Registry{connectors: make(map[model.Source]Connector, len(connectors))}
	for _, c := range connectors {
		if c == nil {
			continue
		}
		r.connectors[c.Source()] = c
	}
	return r
}

// Lookup returns the connector for source.
func (r *Registry) Lookup(source model.Source) (Connector, bool) {
	if r == nil {
		return nil, false
	}
	c, ok := r.connectors[source]
	return c, ok
}

// Sources lists registered sources in sync order.
func (r *Registry) Sources() []model.Source {
	var out []model.Source
	for _, s := range model.SyncSources {
		if _, ok := r.connectors[s]; ok {
			out = append(out, s)
		}
	}
	return out
}

// Endpoints overrides provider API roots. Empty fields use the public APIs.
type Endpoints struct {
	CanvasBaseURL    string
	GraphBaseURL     string
	GoogleEndpoint   string
	HandshakeBaseURL string
}

// DefaultRegistry wires the four production connectors over one HTTP client.
func DefaultRegistry(endpoints Endpoints, httpClient *http.Client) *Registry {
	opts := ClientOptions{HTTPClient: httpClient}
	return NewRegistry(
		NewCanvas(endpoints.CanvasBaseURL, opts),
		NewOutlook(endpoints.GraphBaseURL, opts),
		NewGoogleCalendar(endpoints.GoogleEndpoint, httpClient),
		NewHandshake(endpoints.HandshakeBaseURL, opts),
	)
}
