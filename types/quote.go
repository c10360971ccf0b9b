package types

import "github.com/shopspring/decimal"

// Quote is the price oracle's answer for a single symbol.
type Quote struct {
	// Symbol is the uppercase ticker symbol.
	Symbol string `json:"symbol"`

	// Name is the security's display name.
	Name string `json:"name"`

	// Price is the latest unit price.
	Price decimal.Decimal `json:"price"`
}
