package tokeninfo

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/dexmeta/aggregator/internal/models"
)

// MockTokenInfo is a sync.RWMutex-guarded stand-in for a real
// token-metadata service, seeded per test the way the teacher's stateful
// mock providers are seeded with canned responses instead of hitting a
// network.
type MockTokenInfo struct {
	mu       sync.RWMutex
	decimals map[string]uint8
	prices   map[string]*big.Rat
	chains   []models.ChainInfo
}

// NewMockTokenInfo creates an empty mock; seed it with SeedDecimals and
// SeedPrice before use.
func NewMockTokenInfo(chains []models.ChainInfo) *MockTokenInfo {
	return &MockTokenInfo{
		decimals: make(map[string]uint8),
		prices:   make(map[string]*big.Rat),
		chains:   chains,
	}
}

func key(chainID int64, token string) string {
	return fmt.Sprintf("%d|%s", chainID, models.NormalizeAddress(token))
}

func (m *MockTokenInfo) SeedDecimals(chainID int64, token string, decimals uint8) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.decimals[key(chainID, token)] = decimals
}

func (m *MockTokenInfo) SeedPrice(chainID int64, token string, price *big.Rat) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prices[key(chainID, token)] = price
}

func (m *MockTokenInfo) Decimals(_ context.Context, chainID int64, tokenAddress string) (uint8, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if d, ok := m.decimals[key(chainID, tokenAddress)]; ok {
		return d, nil
	}
	return 18, nil
}

func (m *MockTokenInfo) NativePrice(_ context.Context, chainID int64, tokenAddress string) (*big.Rat, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if p, ok := m.prices[key(chainID, tokenAddress)]; ok {
		return p, nil
	}
	return big.NewRat(0, 1), nil
}

func (m *MockTokenInfo) ListChains(_ context.Context) ([]models.ChainInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.chains, nil
}
