package provider

import "github.com/dexmeta/aggregator/internal/models"

// ChainCatalog is the immutable, process-wide set of chains the service
// knows about, built once at startup from the chain catalog file (not from
// the TokenInfo port). It
// replaces dynamic attribute lookup (chain-by-name on a live object) with a
// plain keyed map.
type ChainCatalog struct {
	byID   map[int64]models.ChainInfo
	byName map[string]models.ChainInfo
}

// NewChainCatalog builds a catalog from a fixed chain list.
func NewChainCatalog(chains []models.ChainInfo) *ChainCatalog {
	c := &ChainCatalog{
		byID:   make(map[int64]models.ChainInfo, len(chains)),
		byName: make(map[string]models.ChainInfo, len(chains)),
	}
	for _, ch := range chains {
		c.byID[ch.ChainID] = ch
		c.byName[ch.ShortName] = ch
	}
	return c
}

// GetByID looks up a chain by its numeric id.
func (c *ChainCatalog) GetByID(chainID int64) (models.ChainInfo, bool) {
	ch, ok := c.byID[chainID]
	return ch, ok
}

// GetByName looks up a chain by its short name.
func (c *ChainCatalog) GetByName(name string) (models.ChainInfo, bool) {
	ch, ok := c.byName[name]
	return ch, ok
}

// All returns every known chain, in no particular order.
func (c *ChainCatalog) All() []models.ChainInfo {
	out := make([]models.ChainInfo, 0, len(c.byID))
	for _, ch := range c.byID {
		out = append(out, ch)
	}
	return out
}
