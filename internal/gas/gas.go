// Package gas implements the gas-pricing subsystem (C9): EIP-1559 vs
// legacy detection and fee-history aggregation, cached short because gas
// prices move block to block.
package gas

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/dexmeta/aggregator/internal/apperror"
	"github.com/dexmeta/aggregator/internal/cache"
	"github.com/dexmeta/aggregator/internal/chainclient"
	"github.com/dexmeta/aggregator/internal/logger"
	"github.com/dexmeta/aggregator/internal/models"
	"github.com/dexmeta/aggregator/internal/provider"
)

const source = "DEXGURU"

// rewardPercentiles matches scenario 6 in the testable properties: the
// 60th/75th/90th percentile reward columns become the fast/instant/
// overkill priority tiers.
var rewardPercentiles = []float64{60, 75, 90}

const feeHistoryBlocks = 4
const maxRetries = 3

// Service is the gas-pricing subsystem.
type Service struct {
	chains ChainLookup
	client chainclient.ChainClient
	cache  cache.Backend
}

// ChainLookup is the narrow slice of provider.ChainCatalog the gas service
// needs, kept as an interface so tests can stub it without a full catalog.
type ChainLookup interface {
	GetByID(chainID int64) (models.ChainInfo, bool)
}

var _ ChainLookup = (*provider.ChainCatalog)(nil)

// NewService builds a gas service over a chain catalog and chain client.
func NewService(chains ChainLookup, client chainclient.ChainClient, cacheBackend cache.Backend) *Service {
	return &Service{chains: chains, client: client, cache: cacheBackend}
}

// GetGasPrices returns the full GasReport for chainID, caching the result
// for 5 seconds.
func (s *Service) GetGasPrices(ctx context.Context, chainID int64) (*models.GasReport, error) {
	key := cache.BuildKey("gas.GetGasPrices", chainID)
	if cached, ok := s.readCache(ctx, key); ok {
		return cached, nil
	}

	chain, ok := s.chains.GetByID(chainID)
	if !ok {
		return nil, apperror.New(apperror.KindProviderUnspecified, "", fmt.Sprintf("unknown chain %d", chainID), nil)
	}

	var report *models.GasReport
	var err error
	if chain.EIP1559 {
		report, err = s.eip1559Report(ctx, chainID)
	} else {
		report, err = s.legacyReport(ctx, chainID)
	}
	if err != nil {
		return nil, err
	}

	s.writeCache(ctx, key, report, cache.TTLGasPrices)
	return report, nil
}

// GetBaseGasPrice returns a single wei gas-price value suitable as the
// "fast" tier's gas price, caching the result for 5 seconds. This is what
// the aggregation engine calls when the caller omits gasPrice.
func (s *Service) GetBaseGasPrice(ctx context.Context, chainID int64) (*big.Int, error) {
	report, err := s.GetGasPrices(ctx, chainID)
	if err != nil {
		return nil, err
	}
	if report.EIP1559 != nil {
		v, ok := new(big.Int).SetString(report.EIP1559.Fast.MaxFee, 10)
		if !ok {
			return nil, apperror.ParseResponse("", "malformed maxFee", nil)
		}
		return v, nil
	}
	v, ok := new(big.Int).SetString(report.Legacy.Fast.GasPrice, 10)
	if !ok {
		return nil, apperror.ParseResponse("", "malformed gasPrice", nil)
	}
	return v, nil
}

func (s *Service) eip1559Report(ctx context.Context, chainID int64) (*models.GasReport, error) {
	fh, err := s.feeHistoryWithRetry(ctx, chainID)
	if err != nil {
		return nil, err
	}
	if len(fh.BaseFeePerGas) == 0 {
		logger.Warn("empty fee history, falling back to legacy gas price", logger.Fields{"chain_id": chainID})
		return s.legacyReport(ctx, chainID)
	}

	baseFee := fh.BaseFeePerGas[len(fh.BaseFeePerGas)-1]

	means := make([]*big.Rat, len(rewardPercentiles))
	for i := range rewardPercentiles {
		means[i] = meanRewardColumn(fh.Reward, i)
	}

	tier := func(i int) models.GasTierEIP1559 {
		priority := ratToBigIntFloor(means[i])
		maxFee := new(big.Int).Add(baseFee, priority)
		return models.GasTierEIP1559{
			MaxFee:         maxFee.String(),
			BaseFee:        baseFee.String(),
			MaxPriorityFee: priority.String(),
		}
	}

	return &models.GasReport{
		Source:    source,
		Timestamp: time.Now().Unix(),
		EIP1559: &models.EIP1559GasTiers{
			Fast:     tier(0),
			Instant:  tier(1),
			Overkill: tier(2),
		},
	}, nil
}

func (s *Service) legacyReport(ctx context.Context, chainID int64) (*models.GasReport, error) {
	price, err := s.gasPriceWithRetry(ctx, chainID)
	if err != nil {
		return nil, err
	}
	tier := models.GasTierLegacy{GasPrice: price.String()}
	return &models.GasReport{
		Source:    source,
		Timestamp: time.Now().Unix(),
		Legacy: &models.LegacyGasTiers{
			Fast:     tier,
			Instant:  tier,
			Overkill: tier,
		},
	}, nil
}

// meanRewardColumn averages column idx of reward across all rows; rows
// with fewer than idx+1 columns are skipped. fee_history returning fewer
// than 4 blocks still yields three tiers over whatever rows exist; an
// empty reward set yields a zero mean.
func meanRewardColumn(reward [][]*big.Int, idx int) *big.Rat {
	sum := big.NewInt(0)
	count := 0
	for _, row := range reward {
		if idx < len(row) && row[idx] != nil {
			sum.Add(sum, row[idx])
			count++
		}
	}
	if count == 0 {
		return big.NewRat(0, 1)
	}
	return new(big.Rat).SetFrac(sum, big.NewInt(int64(count)))
}

func ratToBigIntFloor(r *big.Rat) *big.Int {
	q := new(big.Int)
	q.Quo(r.Num(), r.Denom())
	return q
}

func (s *Service) feeHistoryWithRetry(ctx context.Context, chainID int64) (*chainclient.FeeHistory, error) {
	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		fh, err := s.client.FeeHistory(ctx, chainID, feeHistoryBlocks, "latest", rewardPercentiles)
		if err == nil {
			return fh, nil
		}
		lastErr = err
		if !isTimeout(err) {
			break
		}
		logger.Warn("fee_history read timeout, retrying", logger.Fields{"chain_id": chainID, "attempt": attempt + 1})
	}
	return nil, apperror.ProviderUnspecified("", "fee_history failed", lastErr)
}

func (s *Service) gasPriceWithRetry(ctx context.Context, chainID int64) (*big.Int, error) {
	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		price, err := s.client.GasPrice(ctx, chainID)
		if err == nil {
			return price, nil
		}
		lastErr = err
		if !isTimeout(err) {
			break
		}
		logger.Warn("gas_price read timeout, retrying", logger.Fields{"chain_id": chainID, "attempt": attempt + 1})
	}
	return nil, apperror.ProviderUnspecified("", "gas_price failed", lastErr)
}

func isTimeout(err error) bool {
	type timeouter interface{ Timeout() bool }
	if t, ok := err.(timeouter); ok {
		return t.Timeout()
	}
	return err == context.DeadlineExceeded
}

func (s *Service) readCache(ctx context.Context, key string) (*models.GasReport, bool) {
	raw, found, err := s.cache.Get(ctx, key)
	if err != nil || !found {
		return nil, false
	}
	report, err := decodeGasReport(raw)
	if err != nil {
		return nil, false
	}
	return report, true
}

func (s *Service) writeCache(ctx context.Context, key string, report *models.GasReport, ttl time.Duration) {
	raw, err := encodeGasReport(report)
	if err != nil {
		return
	}
	_ = s.cache.Set(ctx, key, raw, ttl)
}
