package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/dexmeta/aggregator/internal/models"
)

// providerDescriptorJSON mirrors the on-disk shape of providers.json: one
// entry per adapter, spenders keyed by chain id string (JSON object keys
// are always strings).
type providerDescriptorJSON struct {
	Name        string                           `json:"name"`
	DisplayName string                           `json:"displayName"`
	Enabled     bool                             `json:"enabled"`
	Spenders    map[string]spenderPairJSON       `json:"spenders"`
}

type spenderPairJSON struct {
	MarketOrder string `json:"marketOrder"`
	LimitOrder  string `json:"limitOrder"`
}

// LoadProviderDescriptors reads the static per-provider descriptor file
// named by ProvidersConfig.DescriptorPath.
func LoadProviderDescriptors(path string) ([]models.ProviderDescriptor, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading provider descriptors: %w", err)
	}
	var entries []providerDescriptorJSON
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("parsing provider descriptors: %w", err)
	}

	out := make([]models.ProviderDescriptor, 0, len(entries))
	for _, e := range entries {
		spenders := make(map[int64]models.SpenderPair, len(e.Spenders))
		for chainIDStr, pair := range e.Spenders {
			var chainID int64
			if _, err := fmt.Sscanf(chainIDStr, "%d", &chainID); err != nil {
				return nil, fmt.Errorf("provider %s: invalid chain id %q: %w", e.Name, chainIDStr, err)
			}
			spenders[chainID] = models.SpenderPair{
				MarketOrder: pair.MarketOrder,
				LimitOrder:  pair.LimitOrder,
			}
		}
		out = append(out, models.ProviderDescriptor{
			Name:        e.Name,
			DisplayName: e.DisplayName,
			Enabled:     e.Enabled,
			Spenders:    spenders,
		})
	}
	return out, nil
}

// chainInfoJSON mirrors chains.json: one entry per supported chain.
type chainInfoJSON struct {
	ChainID        int64  `json:"chainId"`
	ShortName      string `json:"shortName"`
	NativeToken    string `json:"nativeToken"`
	NativeDecimals uint8  `json:"nativeDecimals"`
	EIP1559        bool   `json:"eip1559"`
	WrappedNative  string `json:"wrappedNative"`
}

// LoadChainCatalog reads the static chain list from path and also returns
// the chain-id -> wrapped-native-address map adapters need to translate
// the native-token sentinel for APIs that don't accept it directly.
func LoadChainCatalog(path string) ([]models.ChainInfo, map[int64]string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("reading chain catalog: %w", err)
	}
	var entries []chainInfoJSON
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, nil, fmt.Errorf("parsing chain catalog: %w", err)
	}

	chains := make([]models.ChainInfo, 0, len(entries))
	wrappedNative := make(map[int64]string, len(entries))
	for _, e := range entries {
		chains = append(chains, models.ChainInfo{
			ChainID:        e.ChainID,
			ShortName:      e.ShortName,
			NativeToken:    models.NewTokenRef(e.ChainID, e.NativeToken),
			NativeDecimals: e.NativeDecimals,
			EIP1559:        e.EIP1559,
		})
		if e.WrappedNative != "" {
			wrappedNative[e.ChainID] = e.WrappedNative
		}
	}
	return chains, wrappedNative, nil
}
