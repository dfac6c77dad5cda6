// Package providers holds the concrete per-aggregator adapters (C7): each
// encapsulates its own URL template, parameter naming, and response
// schema behind the provider.Provider interface.
package providers

import (
	"strings"

	"github.com/dexmeta/aggregator/internal/models"
)

// sourceAliases maps a handful of upstream venue spellings to the
// canonical display name the original service special-cased (SUSHI →
// SushiSwap being the best-known example).
var sourceAliases = map[string]string{
	"SUSHI":      "SushiSwap",
	"Sushi":      "SushiSwap",
	"Sushiswap":  "SushiSwap",
	"Uniswapv2":  "UniswapV2",
	"Uniswapv3":  "UniswapV3",
	"Pancakeswap": "PancakeSwap",
}

// rawSource is the shape a provider's JSON source/hop entry decodes into
// before normalization; adapters populate this from their own schema.
type rawSource struct {
	Name       string
	Proportion float64
	Hops       []rawSource // nested venues; each hop inherits the parent's proportion
}

// NormalizeSources converts camelCase upstream venue names into a
// canonical snake→CapCamel form, applies the alias table, drops
// zero-proportion entries, and flattens nested hop structures into one
// source per leaf venue carrying the parent's proportion.
func NormalizeSources(raw []rawSource) []models.SwapSource {
	var out []models.SwapSource
	for _, r := range raw {
		out = append(out, flatten(r)...)
	}
	var filtered []models.SwapSource
	for _, s := range out {
		if s.Proportion == 0 {
			continue
		}
		filtered = append(filtered, s)
	}
	return filtered
}

func flatten(r rawSource) []models.SwapSource {
	if len(r.Hops) > 0 {
		var out []models.SwapSource
		for _, hop := range r.Hops {
			hop.Proportion = r.Proportion
			out = append(out, flatten(hop)...)
		}
		return out
	}
	return []models.SwapSource{{Name: canonicalName(r.Name), Proportion: r.Proportion}}
}

// canonicalName implements the two-step transform the original service
// used: camelCase to snake_case, then snake_case to CapCamel by
// re-capitalizing each underscore-split word.
func canonicalName(name string) string {
	if alias, ok := sourceAliases[name]; ok {
		return alias
	}
	snake := camelToSnake(name)
	capCamel := snakeToCapCamel(snake)
	if alias, ok := sourceAliases[capCamel]; ok {
		return alias
	}
	return capCamel
}

func camelToSnake(s string) string {
	var b strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(r + ('a' - 'A'))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func snakeToCapCamel(s string) string {
	words := strings.Split(s, "_")
	var b strings.Builder
	for _, w := range words {
		if w == "" {
			continue
		}
		b.WriteString(strings.ToUpper(w[:1]))
		b.WriteString(w[1:])
	}
	return b.String()
}
