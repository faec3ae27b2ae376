package llm

import (
	"context"
	"fmt"
	"sync"
)

// Factory constructs the underlying model client
type Factory func(ctx context.Context) (Model, error)

// Provider is the process-scoped model handle. The client is constructed on
// first use; until construction succeeds every call reports ErrUnavailable.
type Provider struct {
	factory Factory

	mu    sync.Mutex
	model Model
}

// NewProvider creates a provider around a factory
func NewProvider(factory Factory) *Provider {
	return &Provider{factory: factory}
}

// Ready initializes the model if needed and reports whether it is usable
func (p *Provider) Ready(ctx context.Context) error {
	_, err := p.get(ctx)
	return err
}

// Generate implements Model
func (p *Provider) Generate(ctx context.Context, req Request) (*Response, error) {
	m, err := p.get(ctx)
	if err != nil {
		return nil, err
	}
	return m.Generate(ctx, req)
}

func (p *Provider) get(ctx context.Context) (Model, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.model != nil {
		return p.model, nil
	}
	if p.factory == nil {
		return nil, fmt.Errorf("%w: no model factory configured", ErrUnavailable)
	}
	m, err := p.factory(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if m == nil {
		return nil, fmt.Errorf("%w: factory returned no model", ErrUnavailable)
	}
	p.model = m
	return m, nil
}
