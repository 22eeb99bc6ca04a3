package adapters

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/smallbiznis/paycore/internal/config"
	"github.com/smallbiznis/paycore/internal/payment/domain"
)

// Registry holds the adapter factories and the adapters built from the
// gateway configuration. Adapters are read-only once configured.
type Registry struct {
	factories map[string]domain.AdapterFactory

	mu       sync.RWMutex
	adapters map[string]domain.GatewayAdapter
}

func NewRegistry(factories ...domain.AdapterFactory) *Registry {
	registry := &Registry{
		factories: map[string]domain.AdapterFactory{},
		adapters:  map[string]domain.GatewayAdapter{},
	}
	for _, factory := range factories {
		if factory == nil {
			continue
		}
		provider := normalize(factory.Provider())
		if provider == "" {
			continue
		}
		registry.factories[provider] = factory
	}
	return registry
}

func (r *Registry) ProviderExists(provider string) bool {
	if r == nil {
		return false
	}
	_, ok := r.factories[normalize(provider)]
	return ok
}

// NewAdapter builds an adapter without registering it.
func (r *Registry) NewAdapter(provider string, cfg domain.AdapterConfig) (domain.GatewayAdapter, error) {
	if r == nil {
		return nil, domain.ErrProviderNotFound
	}
	factory, ok := r.factories[normalize(provider)]
	if !ok {
		return nil, domain.ErrProviderNotFound
	}
	return factory.NewAdapter(cfg)
}

// Configure builds one adapter per configured gateway. Any credential
// problem fails the whole configuration.
func (r *Registry) Configure(gateways config.Gateways) error {
	for _, name := range gateways.Names() {
		gw := gateways[name]
		if !r.ProviderExists(gw.Provider) {
			return &domain.ConfigurationError{Gateway: name, Field: "provider"}
		}
		adapter, err := r.NewAdapter(gw.Provider, domain.AdapterConfig{
			Name:        name,
			Environment: gw.Environment,
			Currencies:  gw.Currencies,
			BaseURL:     gw.BaseURL,
			Timeout:     gw.Timeout,
			Config:      gw.Settings,
			HTTPClient:  NewHTTPClient(gw.Timeout),
		})
		if err != nil {
			return fmt.Errorf("configure gateway %s: %w", name, err)
		}
		r.Register(adapter)
	}
	return nil
}

func (r *Registry) Register(adapter domain.GatewayAdapter) {
	if adapter == nil {
		return
	}
	r.mu.Lock()
	r.adapters[normalize(adapter.Name())] = adapter
	r.mu.Unlock()
}

// Adapter returns the adapter bound to a gateway name.
func (r *Registry) Adapter(name string) (domain.GatewayAdapter, error) {
	if r == nil {
		return nil, domain.ErrProviderNotFound
	}
	r.mu.RLock()
	adapter, ok := r.adapters[normalize(name)]
	r.mu.RUnlock()
	if !ok {
		return nil, domain.ErrProviderNotFound
	}
	return adapter, nil
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
