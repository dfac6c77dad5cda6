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

func newTestZeroX(t *testing.T, handler http.HandlerFunc) (*ZeroXAdapter, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	adapter := NewZeroXAdapter(srv.URL, "", srv.Client(), map[int64]string{1: "0xwrappedweth"}, cache.NewMemoryBackend())
	return adapter, srv
}

func TestZeroXGetPriceRecomputesPriceAndNormalizesSources(t *testing.T) {
	adapter, _ := newTestZeroX(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{
			"sellAmount": "1000000",
			"buyAmount": "500000000000000",
			"gas": "150000",
			"gasPrice": "20000000000",
			"value": "0",
			"allowanceTarget": "0xdef1c0ded9bec7f1a1670819833240f027b25eff",
			"sources": [
				{"name": "uniswapV3", "proportion": "0.6"},
				{"name": "curve", "proportion": "0.4"},
				{"name": "SushiSwap", "proportion": "0"}
			]
		}`)
	})

	quote, err := adapter.GetPrice(context.Background(), models.PriceRequest{
		ChainID: 1, SellToken: "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48",
		BuyToken: "0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2", SellAmount: "1000000",
	})
	require.NoError(t, err)
	assert.Equal(t, "500000000.000000000000000000", quote.Price)
	assert.Len(t, quote.Sources, 2, "zero-proportion source must be dropped")
	assert.Equal(t, "0xdef1c0ded9bec7f1a1670819833240f027b25eff", quote.AllowanceTarget)
	assert.Equal(t, "0", quote.Value)
}

func TestZeroXGetPriceSetsValueWhenSellingNative(t *testing.T) {
	adapter, _ := newTestZeroX(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"sellAmount": "1000000000000000000", "buyAmount": "2000000", "gas": "21000", "gasPrice": "1", "sources": []}`)
	})

	quote, err := adapter.GetPrice(context.Background(), models.PriceRequest{
		ChainID: 1, SellToken: models.NativeTokenSentinel,
		BuyToken: "0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2", SellAmount: "1000000000000000000",
	})
	require.NoError(t, err)
	assert.Equal(t, "1000000000000000000", quote.Value)
}

func TestZeroXGetPriceCachesResult(t *testing.T) {
	calls := 0
	adapter, _ := newTestZeroX(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		fmt.Fprint(w, `{"sellAmount": "1000000", "buyAmount": "2000000", "gas": "100000", "gasPrice": "1", "sources": []}`)
	})
	req := models.PriceRequest{ChainID: 1, SellToken: "0xsell", BuyToken: "0xbuy", SellAmount: "1000000"}

	_, err := adapter.GetPrice(context.Background(), req)
	require.NoError(t, err)
	_, err = adapter.GetPrice(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 1, calls, "second call within TTL must hit cache, not the network")
}

func TestZeroXGetPriceClassifiesInsufficientLiquidity(t *testing.T) {
	adapter, _ := newTestZeroX(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"code": 100, "reason": "INSUFFICIENT_ASSET_LIQUIDITY"}`)
	})

	_, err := adapter.GetPrice(context.Background(), models.PriceRequest{ChainID: 1, SellToken: "0xsell", BuyToken: "0xbuy", SellAmount: "1"})
	require.Error(t, err)
	assert.True(t, apperror.As(err, apperror.KindInsufficientLiquidity))
}

func TestZeroXGetQuoteRequiresTakerAddress(t *testing.T) {
	adapter, _ := newTestZeroX(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("must not reach the network without a taker address")
	})

	_, err := adapter.GetQuote(context.Background(), models.PriceRequest{ChainID: 1, SellToken: "0xsell", BuyToken: "0xbuy", SellAmount: "1"})
	require.Error(t, err)
	assert.True(t, apperror.As(err, apperror.KindValidationFailed))
}

func TestZeroXGetQuoteRejectsMalformedCalldata(t *testing.T) {
	adapter, _ := newTestZeroX(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"sellAmount": "1", "buyAmount": "2", "gas": "1", "gasPrice": "1", "to": "0xrouter", "data": "not-hex", "sources": []}`)
	})

	_, err := adapter.GetQuote(context.Background(), models.PriceRequest{
		ChainID: 1, SellToken: "0xsell", BuyToken: "0xbuy", SellAmount: "1", TakerAddress: "0xtaker",
	})
	require.Error(t, err)
	assert.True(t, apperror.As(err, apperror.KindParseResponse))
}
