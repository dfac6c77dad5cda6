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

func newTestKyberSwap(t *testing.T, handler http.HandlerFunc) *KyberSwapAdapter {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewKyberSwapAdapter(srv.URL, "", srv.Client(), cache.NewMemoryBackend())
}

func TestKyberSwapGetPriceDropsZeroProportionHops(t *testing.T) {
	adapter := newTestKyberSwap(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{
			"inputAmount": "1000000",
			"outputAmount": "500000000000000",
			"totalGas": 150000,
			"gasPriceGwei": "20",
			"routerAddress": "0xrouter",
			"encodedSwapData": "0xdead",
			"swaps": [[{"exchange": "uniswap"}, {"exchange": "curve"}]]
		}`)
	})

	quote, err := adapter.GetPrice(context.Background(), models.PriceRequest{ChainID: 1, SellToken: "0xsell", BuyToken: "0xbuy", SellAmount: "1000000"})
	require.NoError(t, err)
	assert.Empty(t, quote.Sources, "KyberSwap never supplies per-leg proportions, so every source is dropped")
	assert.Equal(t, "20000000000", quote.GasPrice)
}

func TestKyberSwapGetPriceRejectsUnsupportedChain(t *testing.T) {
	adapter := newTestKyberSwap(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("must not reach the network for an unsupported chain")
	})

	_, err := adapter.GetPrice(context.Background(), models.PriceRequest{ChainID: 999, SellToken: "0xsell", BuyToken: "0xbuy", SellAmount: "1"})
	require.Error(t, err)
	assert.True(t, apperror.As(err, apperror.KindInvalidTokens))
}

func TestKyberSwapGetQuoteRequiresTakerAddress(t *testing.T) {
	adapter := newTestKyberSwap(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("must not reach the network without a taker address")
	})

	_, err := adapter.GetQuote(context.Background(), models.PriceRequest{ChainID: 1, SellToken: "0xsell", BuyToken: "0xbuy", SellAmount: "1"})
	require.Error(t, err)
	assert.True(t, apperror.As(err, apperror.KindValidationFailed))
}

func TestKyberSwapGetQuoteRejectsMalformedCalldata(t *testing.T) {
	adapter := newTestKyberSwap(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"inputAmount": "1", "outputAmount": "2", "totalGas": 1, "gasPriceGwei": "1", "routerAddress": "0xrouter", "encodedSwapData": "not-hex", "swaps": []}`)
	})

	_, err := adapter.GetQuote(context.Background(), models.PriceRequest{ChainID: 1, SellToken: "0xsell", BuyToken: "0xbuy", SellAmount: "1", TakerAddress: "0xtaker"})
	require.Error(t, err)
	assert.True(t, apperror.As(err, apperror.KindParseResponse))
}

func TestKyberSwapGetPriceClassifiesInsufficientLiquidity(t *testing.T) {
	adapter := newTestKyberSwap(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"message": "insufficient liquidity for this route"}`)
	})

	_, err := adapter.GetPrice(context.Background(), models.PriceRequest{ChainID: 1, SellToken: "0xsell", BuyToken: "0xbuy", SellAmount: "1"})
	require.Error(t, err)
	assert.True(t, apperror.As(err, apperror.KindInsufficientLiquidity))
}
