package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Endpoint is one remote JSON-RPC URL. Lower Priority is tried first.
type Endpoint struct {
	URL      string `json:"url"`
	Priority int    `json:"priority"`
}

// EndpointStatus is an Endpoint annotated with whether it is the one in use.
type EndpointStatus struct {
	Endpoint
	Index  int  `json:"index"`
	Active bool `json:"active"`
}

// ConnectionState is the chain-access layer's view of its link to the ledger.
// Only the chain manager mutates it; everyone else sees copies.
type ConnectionState struct {
	ActiveIndex         int       `json:"active_index"`
	ActiveURL           string    `json:"active_url"`
	Connected           bool      `json:"connected"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	ChainID             uint64    `json:"chain_id"`
	LastBlock           uint64    `json:"last_block"`
	LastValidatedAt     time.Time `json:"last_validated_at"`
}

// NetworkInfo is a point-in-time summary of the connected network.
type NetworkInfo struct {
	ChainID      uint64          `json:"chain_id"`
	BlockHeight  uint64          `json:"block_height"`
	GasPriceGwei decimal.Decimal `json:"gas_price_gwei"`
	Endpoint     string          `json:"endpoint"`
}
