package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// Portfolio is a point-in-time valuation derived from the ledger.
// It is recomputed for every request and never stored.
type Portfolio struct {
	// Cash is the user's uninvested balance.
	Cash decimal.Decimal `json:"cash"`

	// Holdings lists every symbol with a positive net position, sorted by symbol.
	Holdings []Holding `json:"holdings"`

	// TotalAssets is Cash plus the market value of every priced holding.
	TotalAssets decimal.Decimal `json:"total_assets"`

	// PricedAt is when the valuation was computed.
	PricedAt time.Time `json:"priced_at"`
}

// Holding is the derived position in a single symbol.
type Holding struct {
	// Symbol is the uppercase ticker symbol.
	Symbol string `json:"symbol"`

	// Name is the current display name, or the last recorded one when the
	// oracle could not be reached.
	Name string `json:"name"`

	// Shares is the net number of shares held.
	Shares int64 `json:"shares"`

	// AverageCost is the average-cost basis per share of the open position.
	AverageCost decimal.Decimal `json:"average_cost"`

	// Price is the current unit price. Nil when unavailable.
	Price *decimal.Decimal `json:"price"`

	// MarketValue is Shares times Price. Nil when unavailable.
	MarketValue *decimal.Decimal `json:"market_value"`

	// Available reports whether a current price could be obtained.
	Available bool `json:"available"`
}
