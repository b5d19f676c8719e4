// Package obplatform exposes the connector builder for the ASHRAE occupant
// behavior database.
package obplatform

import (
	"github.com/obplatform/obplatform-go/connector"
)

// DefaultEndpoint is the public database API.
const DefaultEndpoint = connector.DefaultEndpoint

// NewConnector instantiates a new *connector.Connector with the provided
// options. If not specified, DefaultEndpoint and slog.Default() are used.
func NewConnector(opts ...connector.Option) (*connector.Connector, error) {
	return connector.New(opts...)
}
