package limitorder

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dexmeta/aggregator/internal/apperror"
	"github.com/dexmeta/aggregator/internal/models"
	"github.com/dexmeta/aggregator/internal/provider"
)

// fullAdapter implements both Provider and LimitOrderProvider.
type fullAdapter struct{ name string }

func (f fullAdapter) Name() string { return f.name }
func (f fullAdapter) GetPrice(context.Context, models.PriceRequest) (models.PriceQuote, error) {
	return models.PriceQuote{}, nil
}
func (f fullAdapter) GetQuote(context.Context, models.PriceRequest) (models.TxQuote, error) {
	return models.TxQuote{}, nil
}
func (f fullAdapter) ListOrdersByTrader(_ context.Context, chainID int64, trader, _, _ string, _ []string) (interface{}, error) {
	return map[string]interface{}{"trader": trader, "chainId": chainID}, nil
}
func (f fullAdapter) GetOrderByHash(_ context.Context, _ int64, orderHash string) (interface{}, error) {
	return map[string]interface{}{"orderHash": orderHash}, nil
}
func (f fullAdapter) PostLimitOrder(_ context.Context, _ int64, orderHash, signature string, data map[string]interface{}) (interface{}, error) {
	return map[string]interface{}{"orderHash": orderHash, "signature": signature, "data": data}, nil
}

// marketOnlyAdapter implements Provider but not LimitOrderProvider.
type marketOnlyAdapter struct{ name string }

func (m marketOnlyAdapter) Name() string { return m.name }
func (m marketOnlyAdapter) GetPrice(context.Context, models.PriceRequest) (models.PriceQuote, error) {
	return models.PriceQuote{}, nil
}
func (m marketOnlyAdapter) GetQuote(context.Context, models.PriceRequest) (models.TxQuote, error) {
	return models.TxQuote{}, nil
}

func newRegistryWith(name string, p provider.Provider) *provider.Registry {
	return provider.NewRegistry(
		[]models.ProviderDescriptor{{Name: name, Enabled: true}},
		map[string]provider.Provider{name: p},
	)
}

func TestFacadeListByTraderForwardsVerbatim(t *testing.T) {
	reg := newRegistryWith("0x", fullAdapter{name: "0x"})
	f := New(reg)

	result, err := f.ListByTrader(context.Background(), 1, "0x", "0xtrader", "", "", nil)
	require.NoError(t, err)
	assert.Equal(t, "0xtrader", result.(map[string]interface{})["trader"])
}

func TestFacadeGetByHash(t *testing.T) {
	reg := newRegistryWith("0x", fullAdapter{name: "0x"})
	f := New(reg)

	result, err := f.GetByHash(context.Background(), 1, "0x", "0xhash")
	require.NoError(t, err)
	assert.Equal(t, "0xhash", result.(map[string]interface{})["orderHash"])
}

func TestFacadeSubmit(t *testing.T) {
	reg := newRegistryWith("0x", fullAdapter{name: "0x"})
	f := New(reg)

	result, err := f.Submit(context.Background(), 1, "0x", "0xhash", "0xsig", map[string]interface{}{"maker": "0xm"})
	require.NoError(t, err)
	assert.Equal(t, "0xsig", result.(map[string]interface{})["signature"])
}

func TestFacadeRejectsUnknownProvider(t *testing.T) {
	reg := newRegistryWith("0x", fullAdapter{name: "0x"})
	f := New(reg)

	_, err := f.GetByHash(context.Background(), 1, "nonexistent", "0xhash")
	require.Error(t, err)
	assert.True(t, apperror.As(err, apperror.KindProviderNotFound))
}

func TestFacadeRejectsProviderWithoutLimitOrderCapability(t *testing.T) {
	reg := newRegistryWith("1inch", marketOnlyAdapter{name: "1inch"})
	f := New(reg)

	_, err := f.ListByTrader(context.Background(), 1, "1inch", "0xtrader", "", "", nil)
	require.Error(t, err)
	assert.True(t, apperror.As(err, apperror.KindProviderNotFound))
}
