// Package quotes looks up current security prices.
package quotes

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/papertrade/apiserver/config"
	"github.com/papertrade/apiserver/types"
	"github.com/shopspring/decimal"
)

const (
	ProviderIEX    = "iex"
	ProviderYahoo  = "yahoo"
	ProviderStatic = "static"

	// PricePrecision matches the scale of the price and cash columns.
	PricePrecision = 4

	userAgent = "papertrade/1.0"
)

// ErrNotFound is returned when the provider has no price for a symbol.
var ErrNotFound = errors.New("quote not found")

// Oracle returns the current quote for a symbol.
type Oracle interface {
	Lookup(ctx context.Context, symbol string) (types.Quote, error)
}

// New builds the oracle selected by cfg.Provider.
func New(cfg config.QuotesConfig) (Oracle, error) {
	switch cfg.Provider {
	case ProviderIEX, "":
		return NewIEXClient(cfg.BaseURL, cfg.APIKey, cfg.Timeout)
	case ProviderYahoo:
		return NewYahooClient(cfg.BaseURL, cfg.Timeout), nil
	case ProviderStatic:
		return LoadStatic(cfg.PricesFile)
	default:
		return nil, fmt.Errorf("unsupported quotes provider %q", cfg.Provider)
	}
}

// NormalizeSymbol trims and uppercases a ticker symbol.
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// newQuote rounds the price to PricePrecision and rejects non-positive prices.
func newQuote(symbol, name string, price decimal.Decimal) (types.Quote, error) {
	price = price.Round(PricePrecision)
	if !price.IsPositive() {
		return types.Quote{}, fmt.Errorf("%w: %s", ErrNotFound, symbol)
	}
	if strings.TrimSpace(name) == "" {
		name = symbol
	}
	return types.Quote{Symbol: symbol, Name: name, Price: price}, nil
}
