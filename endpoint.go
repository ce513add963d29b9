package confab

import (
	"errors"

	"github.com/casualjim/confab/provider"
	"github.com/casualjim/confab/provider/builtin"
	"github.com/fogfish/opts"
)

// Endpoint binds a provider to the registry that resolves its adapter and the
// transport that carries its requests. Endpoints are immutable and can be shared
// by many conversations.
type Endpoint struct {
	provider  provider.ID
	registry  *provider.Registry
	transport provider.Transport
}

// EndpointOption configures an Endpoint.
type EndpointOption = opts.Option[Endpoint]

// WithRegistry resolves adapters from r instead of the built-in registry.
var WithRegistry = opts.ForName[Endpoint, *provider.Registry]("registry")

// NewEndpoint creates an endpoint for the given provider. Unregistered providers
// fail here, before any request is built.
func NewEndpoint(id provider.ID, transport provider.Transport, options ...EndpointOption) (*Endpoint, error) {
	e := &Endpoint{provider: id, transport: transport}
	if err := opts.Apply(e, options); err != nil {
		return nil, err
	}
	if e.registry == nil {
		e.registry = builtin.Global()
	}
	if e.transport == nil {
		return nil, errors.New("endpoint requires a transport")
	}
	if _, err := e.registry.Lookup(id); err != nil {
		return nil, err
	}
	return e, nil
}

// Provider returns the provider this endpoint talks to.
func (e *Endpoint) Provider() provider.ID {
	return e.provider
}

// Adapter returns the adapter registered for the endpoint's provider.
func (e *Endpoint) Adapter() (provider.Adapter, error) {
	return e.registry.Lookup(e.provider)
}

// Transport returns the transport requests are sent with.
func (e *Endpoint) Transport() provider.Transport {
	return e.transport
}
