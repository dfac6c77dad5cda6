package provider

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dexmeta/aggregator/internal/models"
)

type stubProvider struct{ name string }

func (s stubProvider) Name() string { return s.name }
func (s stubProvider) GetPrice(context.Context, models.PriceRequest) (models.PriceQuote, error) {
	return models.PriceQuote{Provider: s.name}, nil
}
func (s stubProvider) GetQuote(context.Context, models.PriceRequest) (models.TxQuote, error) {
	return models.TxQuote{}, nil
}

func TestRegistryChainProvidersPreservesInsertionOrderAndSkipsUnsupported(t *testing.T) {
	descriptors := []models.ProviderDescriptor{
		{Name: "0x", Enabled: true, Spenders: map[int64]models.SpenderPair{
			1: {MarketOrder: "0xspender0x"},
		}},
		{Name: "1inch", Enabled: true, Spenders: map[int64]models.SpenderPair{
			1: {MarketOrder: "0xspender1inch"},
		}},
		{Name: "paraswap", Enabled: true, Spenders: map[int64]models.SpenderPair{
			137: {MarketOrder: "0xspenderparaswap"}, // not on chain 1
		}},
		{Name: "disabled-provider", Enabled: false, Spenders: map[int64]models.SpenderPair{
			1: {MarketOrder: "0xspenderdisabled"},
		}},
	}
	adapters := map[string]Provider{
		"0x":                 stubProvider{name: "0x"},
		"1inch":              stubProvider{name: "1inch"},
		"paraswap":           stubProvider{name: "paraswap"},
		"disabled-provider":  stubProvider{name: "disabled-provider"},
	}

	reg := NewRegistry(descriptors, adapters)
	entries := reg.ChainProviders(1, MarketOrder)

	require.Len(t, entries, 2)
	assert.Equal(t, "0x", entries[0].Name)
	assert.Equal(t, "1inch", entries[1].Name)
	assert.Equal(t, "0xspender0x", entries[0].Spender)
}

func TestRegistryChainProvidersFiltersByCapability(t *testing.T) {
	descriptors := []models.ProviderDescriptor{
		{Name: "0x", Enabled: true, Spenders: map[int64]models.SpenderPair{
			1: {MarketOrder: "0xmarket"}, // no limit-order spender
		}},
	}
	adapters := map[string]Provider{"0x": stubProvider{name: "0x"}}
	reg := NewRegistry(descriptors, adapters)

	assert.Len(t, reg.ChainProviders(1, MarketOrder), 1)
	assert.Empty(t, reg.ChainProviders(1, LimitOrder))
}

func TestRegistryGet(t *testing.T) {
	reg := NewRegistry(
		[]models.ProviderDescriptor{{Name: "0x", Enabled: true}},
		map[string]Provider{"0x": stubProvider{name: "0x"}},
	)
	p, ok := reg.Get("0x")
	require.True(t, ok)
	assert.Equal(t, "0x", p.Name())

	_, ok = reg.Get("unknown")
	assert.False(t, ok)
}

func TestChainCatalogLookup(t *testing.T) {
	catalog := NewChainCatalog([]models.ChainInfo{
		{ChainID: 1, ShortName: "ethereum"},
		{ChainID: 137, ShortName: "polygon"},
	})

	ch, ok := catalog.GetByID(1)
	require.True(t, ok)
	assert.Equal(t, "ethereum", ch.ShortName)

	ch, ok = catalog.GetByName("polygon")
	require.True(t, ok)
	assert.Equal(t, int64(137), ch.ChainID)

	_, ok = catalog.GetByID(999)
	assert.False(t, ok)

	assert.Len(t, catalog.All(), 2)
}
