// Package models holds the uniform data shapes every provider adapter
// normalizes into and the aggregation engine ranks over.
package models

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// NativeTokenSentinel is the reserved address denoting a chain's native coin
// in place of a real ERC-20 contract.
const NativeTokenSentinel = "0xeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeee"

// NormalizeAddress lowercases and trims an address string. Idempotent:
// NormalizeAddress(NormalizeAddress(a)) == NormalizeAddress(a).
func NormalizeAddress(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}

// ValidAddress reports whether addr is a well-formed 42-character hex
// address, using go-ethereum's own address parser as the ground truth.
func ValidAddress(addr string) bool {
	return strings.HasPrefix(addr, "0x") && common.IsHexAddress(addr)
}

// ValidCalldata reports whether data is a well-formed "0x"-prefixed hex
// string, using go-ethereum's hexutil decoder as the ground truth for the
// TxQuote.Data invariant. Empty calldata (a plain native transfer) is
// valid.
func ValidCalldata(data string) bool {
	if data == "" {
		return true
	}
	_, err := hexutil.Decode(data)
	return err == nil
}

// TokenRef is a lowercased hex address fixed to a chain.
type TokenRef struct {
	ChainID int64
	Address string
}

// NewTokenRef normalizes addr at construction time.
func NewTokenRef(chainID int64, addr string) TokenRef {
	return TokenRef{ChainID: chainID, Address: NormalizeAddress(addr)}
}

// IsNativeSentinel reports whether this ref is the native-token sentinel.
func (t TokenRef) IsNativeSentinel() bool {
	return t.Address == NativeTokenSentinel
}

// ChainInfo describes a chain's identity and native token, loaded once at
// startup from the chain catalog file (config.LoadChainCatalog) and
// immutable for the process lifetime; the TokenInfo port is not consulted.
type ChainInfo struct {
	ChainID     int64
	ShortName   string
	NativeToken TokenRef
	// NativeDecimals is the wrapped-native token's decimals, used to scale
	// gas quantities (wei) into native-token units.
	NativeDecimals uint8
	EIP1559        bool
}

// ProviderDescriptor is the static, per-provider configuration loaded at
// startup: display metadata plus a spender address pair per supported
// chain.
type ProviderDescriptor struct {
	Name        string
	DisplayName string
	Enabled     bool
	Spenders    map[int64]SpenderPair
}

// SpenderPair holds the two spender contracts a provider may expose on a
// chain: one for market-order routing, one for limit-order posting. Either
// may be empty if the provider doesn't support that mode on the chain.
type SpenderPair struct {
	MarketOrder string
	LimitOrder  string
}

// SwapSource is a symbolic liquidity-venue name plus a proportion in
// percent [0,100]. A quote carries an ordered list of these; order is
// informational only.
type SwapSource struct {
	Name       string
	Proportion float64
}

// PriceQuote is what a provider advertises without commitment to execute.
type PriceQuote struct {
	Provider string
	Sources  []SwapSource

	// SellAmount/BuyAmount are integers in base units (token smallest unit),
	// carried as decimal strings to preserve 256-bit precision.
	SellAmount string
	BuyAmount  string

	// Gas/GasPrice are integers in wei units of the chain's native token.
	Gas      string
	GasPrice string

	// Value is nonzero iff the sell token is the native-token sentinel; in
	// that case it equals SellAmount.
	Value string

	// Price is buyAmount/sellAmount as a raw base-unit ratio, informational
	// only; it is not adjusted for the two tokens' decimals.
	Price string

	// AllowanceTarget optionally overrides the descriptor's spender.
	AllowanceTarget string
}

// TxQuote extends PriceQuote with a ready-to-broadcast transaction body; it
// omits Provider and AllowanceTarget.
type TxQuote struct {
	Sources    []SwapSource
	SellAmount string
	BuyAmount  string
	Gas        string
	GasPrice   string
	Value      string
	Price      string

	To   string
	Data string // opaque calldata, hex-encoded
}

// MetaPrice is the engine's output: a PriceQuote plus the ranking context.
type MetaPrice struct {
	Provider      string
	PriceResponse PriceQuote
	ApproveCost   string // integer gas units
	IsAllowed     bool
	IsBest        bool
}

// GasTierLegacy is a single legacy fee tier: one wei number.
type GasTierLegacy struct {
	GasPrice string
}

// GasTierEIP1559 is a single EIP-1559 fee tier.
type GasTierEIP1559 struct {
	MaxFee         string
	BaseFee        string
	MaxPriorityFee string
}

// GasReport is the gas service's output: either a legacy tier set or an
// EIP-1559 tier set, never both.
type GasReport struct {
	Source    string
	Timestamp int64

	Legacy  *LegacyGasTiers
	EIP1559 *EIP1559GasTiers
}

// LegacyGasTiers holds the three legacy fee tiers.
type LegacyGasTiers struct {
	Fast     GasTierLegacy
	Instant  GasTierLegacy
	Overkill GasTierLegacy
}

// EIP1559GasTiers holds the three EIP-1559 fee tiers.
type EIP1559GasTiers struct {
	Fast     GasTierEIP1559
	Instant  GasTierEIP1559
	Overkill GasTierEIP1559
}

// PriceRequest is the logical input envelope shared by getPrice/getQuote.
type PriceRequest struct {
	BuyToken               string
	SellToken              string
	SellAmount             string // positive integer string
	ChainID                int64
	GasPrice               string // optional
	SlippagePercentage     *float64
	TakerAddress           string // optional
	FeeRecipient           string // optional
	BuyTokenPercentageFee  *float64
	IgnoreChecks           bool
}

// CrossChainPriceRequest extends PriceRequest with a destination chain.
type CrossChainPriceRequest struct {
	PriceRequest
	ChainIDTo int64
}
