package gas

import (
	"context"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dexmeta/aggregator/internal/cache"
	"github.com/dexmeta/aggregator/internal/chainclient"
	"github.com/dexmeta/aggregator/internal/models"
)

type stubChains struct {
	chain models.ChainInfo
}

func (s stubChains) GetByID(chainID int64) (models.ChainInfo, bool) {
	if chainID != s.chain.ChainID {
		return models.ChainInfo{}, false
	}
	return s.chain, true
}

func bigRow(vals ...int64) []*big.Int {
	out := make([]*big.Int, len(vals))
	for i, v := range vals {
		out[i] = big.NewInt(v)
	}
	return out
}

// TestGetGasPricesEIP1559 reproduces end-to-end scenario 6 from the spec:
// feeHistory with baseFeePerGas=[10,20,30,40,50] and a uniform
// reward=[[1,2,3]]x4 must yield fast/instant/overkill tiers of
// baseFee=50 with priority 1/2/3 and maxFee 51/52/53.
func TestGetGasPricesEIP1559(t *testing.T) {
	chains := stubChains{chain: models.ChainInfo{ChainID: 1, EIP1559: true}}
	client := chainclient.NewMockChainClient(big.NewInt(1))
	client.SeedFeeHistory(&chainclient.FeeHistory{
		BaseFeePerGas: bigRow(10, 20, 30, 40, 50),
		Reward: [][]*big.Int{
			bigRow(1, 2, 3),
			bigRow(1, 2, 3),
			bigRow(1, 2, 3),
			bigRow(1, 2, 3),
		},
	})
	svc := NewService(chains, client, cache.NewMemoryBackend())

	report, err := svc.GetGasPrices(context.Background(), 1)
	require.NoError(t, err)
	require.NotNil(t, report.EIP1559)
	assert.Equal(t, "DEXGURU", report.Source)

	assert.Equal(t, "50", report.EIP1559.Fast.BaseFee)
	assert.Equal(t, "1", report.EIP1559.Fast.MaxPriorityFee)
	assert.Equal(t, "51", report.EIP1559.Fast.MaxFee)

	assert.Equal(t, "2", report.EIP1559.Instant.MaxPriorityFee)
	assert.Equal(t, "52", report.EIP1559.Instant.MaxFee)

	assert.Equal(t, "3", report.EIP1559.Overkill.MaxPriorityFee)
	assert.Equal(t, "53", report.EIP1559.Overkill.MaxFee)
}

func TestGetGasPricesLegacyChainUsesFlatGasPrice(t *testing.T) {
	chains := stubChains{chain: models.ChainInfo{ChainID: 56, EIP1559: false}}
	client := chainclient.NewMockChainClient(big.NewInt(5_000_000_000))
	svc := NewService(chains, client, cache.NewMemoryBackend())

	report, err := svc.GetGasPrices(context.Background(), 56)
	require.NoError(t, err)
	require.NotNil(t, report.Legacy)
	assert.Equal(t, "5000000000", report.Legacy.Fast.GasPrice)
	assert.Equal(t, report.Legacy.Fast, report.Legacy.Instant)
	assert.Equal(t, report.Legacy.Fast, report.Legacy.Overkill)
}

// TestGetGasPricesEmptyFeeHistoryFallsBackToLegacy exercises the boundary
// behavior: fee_history returning no rows at all still yields a GasReport,
// falling back to the legacy gasPrice() call.
func TestGetGasPricesEmptyFeeHistoryFallsBackToLegacy(t *testing.T) {
	chains := stubChains{chain: models.ChainInfo{ChainID: 1, EIP1559: true}}
	client := chainclient.NewMockChainClient(big.NewInt(7))
	client.SeedFeeHistory(&chainclient.FeeHistory{})
	svc := NewService(chains, client, cache.NewMemoryBackend())

	report, err := svc.GetGasPrices(context.Background(), 1)
	require.NoError(t, err)
	require.NotNil(t, report.Legacy)
	assert.Equal(t, "7", report.Legacy.Fast.GasPrice)
}

func TestGetGasPricesFeeHistoryWithFewerThanFourBlocksStillEmitsThreeTiers(t *testing.T) {
	chains := stubChains{chain: models.ChainInfo{ChainID: 1, EIP1559: true}}
	client := chainclient.NewMockChainClient(big.NewInt(1))
	client.SeedFeeHistory(&chainclient.FeeHistory{
		BaseFeePerGas: bigRow(100),
		Reward:        [][]*big.Int{bigRow(4, 8, 12)},
	})
	svc := NewService(chains, client, cache.NewMemoryBackend())

	report, err := svc.GetGasPrices(context.Background(), 1)
	require.NoError(t, err)
	require.NotNil(t, report.EIP1559)
	assert.Equal(t, "4", report.EIP1559.Fast.MaxPriorityFee)
	assert.Equal(t, "8", report.EIP1559.Instant.MaxPriorityFee)
	assert.Equal(t, "12", report.EIP1559.Overkill.MaxPriorityFee)
}

// countingGasPriceClient wraps MockChainClient to count GasPrice calls,
// proving a second GetGasPrices within the TTL hits the cache.
type countingGasPriceClient struct {
	*chainclient.MockChainClient
	calls int
}

func (c *countingGasPriceClient) GasPrice(ctx context.Context, chainID int64) (*big.Int, error) {
	c.calls++
	return c.MockChainClient.GasPrice(ctx, chainID)
}

func TestGetGasPricesCaches(t *testing.T) {
	chains := stubChains{chain: models.ChainInfo{ChainID: 1, EIP1559: false}}
	client := &countingGasPriceClient{MockChainClient: chainclient.NewMockChainClient(big.NewInt(10))}
	svc := NewService(chains, client, cache.NewMemoryBackend())

	_, err := svc.GetGasPrices(context.Background(), 1)
	require.NoError(t, err)
	_, err = svc.GetGasPrices(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 1, client.calls, "second call within the 5s TTL must be served from cache")
}

func TestGetBaseGasPriceReturnsFastTierEIP1559(t *testing.T) {
	chains := stubChains{chain: models.ChainInfo{ChainID: 1, EIP1559: true}}
	client := chainclient.NewMockChainClient(big.NewInt(1))
	client.SeedFeeHistory(&chainclient.FeeHistory{
		BaseFeePerGas: bigRow(100),
		Reward:        [][]*big.Int{bigRow(5, 5, 5)},
	})
	svc := NewService(chains, client, cache.NewMemoryBackend())

	price, err := svc.GetBaseGasPrice(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(105), price)
}
