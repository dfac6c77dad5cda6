package providers

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dexmeta/aggregator/internal/apperror"
	"github.com/dexmeta/aggregator/internal/cache"
	"github.com/dexmeta/aggregator/internal/models"
)

func newTestOneInch(t *testing.T, handler http.HandlerFunc) *OneInchAdapter {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewOneInchAdapter(srv.URL, "", srv.Client(), cache.NewMemoryBackend())
}

func TestOneInchGetPriceFlattensNestedProtocolHops(t *testing.T) {
	adapter := newTestOneInch(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{
			"toTokenAmount": "2000000",
			"fromTokenAmount": "1000000",
			"estimatedGas": 180000,
			"protocols": [[
				{"name": "UNISWAP_V3", "part": 70},
				{"name": "CURVE", "part": 30}
			]]
		}`)
	})

	quote, err := adapter.GetPrice(context.Background(), models.PriceRequest{
		ChainID: 1, SellToken: "0xsell", BuyToken: "0xbuy", SellAmount: "1000000",
	})
	require.NoError(t, err)
	require.Len(t, quote.Sources, 2, "each protocol hop becomes a leaf source carrying the path's 100% weight")
	for _, s := range quote.Sources {
		assert.Equal(t, float64(100), s.Proportion)
	}
	assert.Equal(t, "2.000000000000000000", quote.Price)
	assert.Equal(t, "180000", quote.Gas)
}

func TestOneInchGetPriceDefaultsGasPriceWhenCallerOmitsIt(t *testing.T) {
	adapter := newTestOneInch(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"toTokenAmount": "2", "fromTokenAmount": "1", "estimatedGas": 1, "protocols": []}`)
	})

	quote, err := adapter.GetPrice(context.Background(), models.PriceRequest{
		ChainID: 1, SellToken: "0xsell", BuyToken: "0xbuy", SellAmount: "1",
	})
	require.NoError(t, err)
	assert.Equal(t, "0", quote.GasPrice)
}

func TestOneInchClassifiesInsufficientAllowance(t *testing.T) {
	adapter := newTestOneInch(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"description": "not enough allowance"}`)
	})

	_, err := adapter.GetQuote(context.Background(), models.PriceRequest{
		ChainID: 1, SellToken: "0xsell", BuyToken: "0xbuy", SellAmount: "1", TakerAddress: "0xtaker",
	})
	require.Error(t, err)
	assert.True(t, apperror.As(err, apperror.KindInsufficientAllowance))
}
