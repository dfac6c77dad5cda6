// Package provider defines the adapter capability interfaces (C6) and the
// immutable name-keyed registry (C8) the engine resolves providers through.
package provider

import (
	"context"

	"github.com/dexmeta/aggregator/internal/models"
)

// Provider is the capability every market-order adapter exposes.
type Provider interface {
	Name() string
	GetPrice(ctx context.Context, req models.PriceRequest) (models.PriceQuote, error)
	GetQuote(ctx context.Context, req models.PriceRequest) (models.TxQuote, error)
}

// LimitOrderProvider is the optional limit-order capability set. An
// adapter implements it only if the upstream aggregator exposes limit
// orders.
type LimitOrderProvider interface {
	Provider
	ListOrdersByTrader(ctx context.Context, chainID int64, trader, makerToken, takerToken string, statuses []string) (interface{}, error)
	GetOrderByHash(ctx context.Context, chainID int64, orderHash string) (interface{}, error)
	PostLimitOrder(ctx context.Context, chainID int64, orderHash, signature string, orderData map[string]interface{}) (interface{}, error)
}

// CrossChainProvider is the optional cross-chain capability set.
type CrossChainProvider interface {
	Name() string
	RequiresGasPrice() bool
	CrossChainGetPrice(ctx context.Context, req models.CrossChainPriceRequest) (models.PriceQuote, error)
	CrossChainGetQuote(ctx context.Context, req models.CrossChainPriceRequest) (models.TxQuote, error)
}

// Registry is an immutable name→adapter map built at startup. Separate
// registries are kept for single-chain and cross-chain providers, per
// spec's C8 contract.
type Registry struct {
	order       []string // insertion order; ties in ranking break on this order
	byName      map[string]Provider
	descriptors map[string]models.ProviderDescriptor
}

// NewRegistry builds a registry from descriptors and adapters. Adapters
// without a matching descriptor are dropped; a descriptor with Enabled ==
// false is kept in the catalog but excluded from ChainProviders.
func NewRegistry(descriptors []models.ProviderDescriptor, adapters map[string]Provider) *Registry {
	r := &Registry{
		byName:      make(map[string]Provider),
		descriptors: make(map[string]models.ProviderDescriptor),
	}
	for _, d := range descriptors {
		r.descriptors[d.Name] = d
		if p, ok := adapters[d.Name]; ok {
			r.byName[d.Name] = p
			r.order = append(r.order, d.Name)
		}
	}
	return r
}

// Get looks up a provider by name.
func (r *Registry) Get(name string) (Provider, bool) {
	p, ok := r.byName[name]
	return p, ok
}

// Capability selects which spender slot ChainProviders filters on.
type Capability int

const (
	MarketOrder Capability = iota
	LimitOrder
)

// ChainProviderEntry pairs a provider with the spender address it exposes
// on a given chain for a given capability.
type ChainProviderEntry struct {
	Name    string
	Spender string
	Provider
}

// ChainProviders enumerates enabled providers that advertise a spender
// address on chainID for the given capability, in registry (insertion)
// order — the order the engine's tie-breaking relies on.
func (r *Registry) ChainProviders(chainID int64, capability Capability) []ChainProviderEntry {
	var out []ChainProviderEntry
	for _, name := range r.order {
		desc := r.descriptors[name]
		if !desc.Enabled {
			continue
		}
		pair, ok := desc.Spenders[chainID]
		if !ok {
			continue
		}
		spender := pair.MarketOrder
		if capability == LimitOrder {
			spender = pair.LimitOrder
		}
		if spender == "" {
			continue
		}
		out = append(out, ChainProviderEntry{Name: name, Spender: spender, Provider: r.byName[name]})
	}
	return out
}

// SpenderFor looks up the descriptor-declared spender address for name on
// chainID/capability regardless of whether name is also a registered
// single-chain adapter — the descriptor table spans both registries, so a
// cross-chain-only provider's spender is still reachable here.
func (r *Registry) SpenderFor(name string, chainID int64, capability Capability) (string, bool) {
	desc, ok := r.descriptors[name]
	if !ok {
		return "", false
	}
	pair, ok := desc.Spenders[chainID]
	if !ok {
		return "", false
	}
	spender := pair.MarketOrder
	if capability == LimitOrder {
		spender = pair.LimitOrder
	}
	return spender, spender != ""
}

// CrossChainRegistry mirrors Registry for cross-chain-capable providers.
type CrossChainRegistry struct {
	order  []string
	byName map[string]CrossChainProvider
}

// NewCrossChainRegistry builds a cross-chain registry from a name-ordered
// adapter list.
func NewCrossChainRegistry(names []string, adapters map[string]CrossChainProvider) *CrossChainRegistry {
	r := &CrossChainRegistry{byName: make(map[string]CrossChainProvider)}
	for _, name := range names {
		if p, ok := adapters[name]; ok {
			r.byName[name] = p
			r.order = append(r.order, name)
		}
	}
	return r
}

// Get looks up a cross-chain provider by name.
func (r *CrossChainRegistry) Get(name string) (CrossChainProvider, bool) {
	p, ok := r.byName[name]
	return p, ok
}
