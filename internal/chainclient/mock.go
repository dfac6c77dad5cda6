package chainclient

import (
	"context"
	"fmt"
	"math/big"
	"sync"
)

// MockChainClient is an in-memory, sync.RWMutex-guarded stand-in for a
// real JSON-RPC-backed ChainClient, used by engine tests and local
// development in place of a live node. Modeled on the stateful mock
// clients in the teacher's payment package: a guarded map of canned
// responses instead of outbound calls.
type MockChainClient struct {
	mu sync.RWMutex

	allowances    map[string]*big.Int // key: chainID|token|spender|owner
	approveCosts  map[string]*big.Int // key: chainID|owner|spender
	gasPrice      *big.Int
	feeHistory    *FeeHistory
	defaultApprove *big.Int
}

// NewMockChainClient creates a mock with a default gas price and approve
// cost; individual allowances can be seeded with SeedAllowance, while
// EstimateApprove always returns the default approve cost.
func NewMockChainClient(defaultGasPrice *big.Int) *MockChainClient {
	return &MockChainClient{
		allowances:     make(map[string]*big.Int),
		approveCosts:   make(map[string]*big.Int),
		gasPrice:       defaultGasPrice,
		defaultApprove: big.NewInt(46000),
	}
}

func allowanceKey(chainID int64, token, spender, owner string) string {
	return fmt.Sprintf("%d|%s|%s|%s", chainID, token, spender, owner)
}

// SeedAllowance sets the allowance returned for a given (token, spender,
// owner) tuple.
func (m *MockChainClient) SeedAllowance(chainID int64, token, spender, owner string, amount *big.Int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.allowances[allowanceKey(chainID, token, spender, owner)] = amount
}

// SeedFeeHistory sets the fee history FeeHistory returns.
func (m *MockChainClient) SeedFeeHistory(fh *FeeHistory) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.feeHistory = fh
}

func (m *MockChainClient) Allowance(_ context.Context, chainID int64, tokenAddr, spender, owner string) (*big.Int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if v, ok := m.allowances[allowanceKey(chainID, tokenAddr, spender, owner)]; ok {
		return v, nil
	}
	// Unseeded pairs default to zero allowance, forcing an approve-cost
	// probe — the conservative default for tests.
	return big.NewInt(0), nil
}

func (m *MockChainClient) EstimateApprove(_ context.Context, _ int64, _, _ string) (*big.Int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return new(big.Int).Set(m.defaultApprove), nil
}

func (m *MockChainClient) GasPrice(_ context.Context, _ int64) (*big.Int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return new(big.Int).Set(m.gasPrice), nil
}

func (m *MockChainClient) FeeHistory(_ context.Context, _ int64, _ int, _ string, _ []float64) (*FeeHistory, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.feeHistory == nil {
		return &FeeHistory{}, nil
	}
	return m.feeHistory, nil
}
