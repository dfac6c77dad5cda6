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

func newTestParaSwap(t *testing.T, handler http.HandlerFunc) *ParaSwapAdapter {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewParaSwapAdapter(srv.URL, "", srv.Client(), cache.NewMemoryBackend())
}

const paraswapPriceBody = `{
	"priceRoute": {
		"srcAmount": "1000000",
		"destAmount": "500000000000000",
		"srcDecimals": 6,
		"destDecimals": 18,
		"gasCost": "150000",
		"tokenTransferProxy": "0xproxy",
		"network": 1,
		"bestRoute": [{"swaps": [{"swapExchanges": [{"exchange": "UniswapV3", "percent": 60}, {"exchange": "Curve", "percent": 40}]}]}]
	}
}`

func TestParaSwapGetPriceFlattensNestedSwapExchanges(t *testing.T) {
	adapter := newTestParaSwap(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, paraswapPriceBody)
	})

	quote, err := adapter.GetPrice(context.Background(), models.PriceRequest{ChainID: 1, SellToken: "0xsell", BuyToken: "0xbuy", SellAmount: "1000000"})
	require.NoError(t, err)
	assert.Len(t, quote.Sources, 2)
	assert.Equal(t, "0xproxy", quote.AllowanceTarget)
	assert.Equal(t, "500000000.000000000000000000", quote.Price)
}

func TestParaSwapGetQuoteBuildsTransactionFromPriceRoute(t *testing.T) {
	adapter := newTestParaSwap(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			fmt.Fprint(w, paraswapPriceBody)
			return
		}
		fmt.Fprint(w, `{"to": "0xrouter", "data": "0xdead", "value": "0", "gasPrice": "1", "gas": "21000"}`)
	})

	quote, err := adapter.GetQuote(context.Background(), models.PriceRequest{
		ChainID: 1, SellToken: "0xsell", BuyToken: "0xbuy", SellAmount: "1000000", TakerAddress: "0xtaker",
	})
	require.NoError(t, err)
	assert.Equal(t, "0xrouter", quote.To)
	assert.Equal(t, "0xdead", quote.Data)
	assert.Len(t, quote.Sources, 2)
}

func TestParaSwapGetQuoteRequiresTakerAddress(t *testing.T) {
	adapter := newTestParaSwap(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("must not reach the network without a taker address")
	})

	_, err := adapter.GetQuote(context.Background(), models.PriceRequest{ChainID: 1, SellToken: "0xsell", BuyToken: "0xbuy", SellAmount: "1"})
	require.Error(t, err)
	assert.True(t, apperror.As(err, apperror.KindValidationFailed))
}

func TestParaSwapGetQuoteRejectsMalformedCalldata(t *testing.T) {
	adapter := newTestParaSwap(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			fmt.Fprint(w, paraswapPriceBody)
			return
		}
		fmt.Fprint(w, `{"to": "0xrouter", "data": "not-hex", "value": "0", "gasPrice": "1", "gas": "21000"}`)
	})

	_, err := adapter.GetQuote(context.Background(), models.PriceRequest{
		ChainID: 1, SellToken: "0xsell", BuyToken: "0xbuy", SellAmount: "1000000", TakerAddress: "0xtaker",
	})
	require.Error(t, err)
	assert.True(t, apperror.As(err, apperror.KindParseResponse))
}

func TestParaSwapGetPriceClassifiesAllowanceError(t *testing.T) {
	adapter := newTestParaSwap(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `not enough TOKEN allowance`)
	})

	_, err := adapter.GetPrice(context.Background(), models.PriceRequest{ChainID: 1, SellToken: "0xsell", BuyToken: "0xbuy", SellAmount: "1"})
	require.Error(t, err)
	assert.True(t, apperror.As(err, apperror.KindInsufficientAllowance))
}
