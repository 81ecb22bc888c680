package arbitrage

import (
	"fmt"
	"sync"

	"github.com/alanyoungcy/polyarb/internal/domain"
)

// Registry holds the tokens and venues the scanner iterates, in the order
// they were registered. Order matters: it fixes pair enumeration and breaks
// price ties.
type Registry struct {
	mu     sync.RWMutex
	tokens []domain.TokenAsset
	venues []domain.ExchangeVenue
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// RegisterToken appends a token. Symbols must be unique.
func (r *Registry) RegisterToken(t domain.TokenAsset) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.tokens {
		if existing.Symbol == t.Symbol {
			return fmt.Errorf("arbitrage: token %q already registered", t.Symbol)
		}
	}
	r.tokens = append(r.tokens, t)
	return nil
}

// RegisterVenue appends a venue. Names must be unique.
func (r *Registry) RegisterVenue(v domain.ExchangeVenue) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.venues {
		if existing.Name == v.Name {
			return fmt.Errorf("arbitrage: venue %q already registered", v.Name)
		}
	}
	r.venues = append(r.venues, v)
	return nil
}

// Tokens returns a copy of the registered tokens in order.
func (r *Registry) Tokens() []domain.TokenAsset {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]domain.TokenAsset(nil), r.tokens...)
}

// Venues returns a copy of the registered venues in order.
func (r *Registry) Venues() []domain.ExchangeVenue {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]domain.ExchangeVenue(nil), r.venues...)
}

// Token looks up a token by symbol.
func (r *Registry) Token(symbol string) (domain.TokenAsset, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, t := range r.tokens {
		if t.Symbol == symbol {
			return t, true
		}
	}
	return domain.TokenAsset{}, false
}

// Pairs returns every unordered pair (i<j) in registration order.
func (r *Registry) Pairs() [][2]domain.TokenAsset {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := len(r.tokens)
	pairs := make([][2]domain.TokenAsset, 0, n*(n-1)/2)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			pairs = append(pairs, [2]domain.TokenAsset{r.tokens[i], r.tokens[j]})
		}
	}
	return pairs
}
