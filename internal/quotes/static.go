package quotes

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/papertrade/apiserver/types"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v2"
)

// priceSheet is the YAML layout read by LoadStatic:
//
//	prices:
//	  NFLX:
//	    name: Netflix, Inc.
//	    price: "512.35"
type priceSheet struct {
	Prices map[string]struct {
		Name  string `yaml:"name"`
		Price string `yaml:"price"`
	} `yaml:"prices"`
}

// Static serves quotes from an in-memory table. It backs offline runs and
// tests, where prices are changed with Set.
type Static struct {
	mu     sync.RWMutex
	quotes map[string]types.Quote
}

func NewStatic() *Static {
	return &Static{quotes: make(map[string]types.Quote)}
}

// LoadStatic reads a YAML price sheet.
func LoadStatic(path string) (*Static, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read price sheet: %w", err)
	}

	var sheet priceSheet
	if err := yaml.Unmarshal(data, &sheet); err != nil {
		return nil, fmt.Errorf("parse price sheet: %w", err)
	}

	s := NewStatic()
	for symbol, entry := range sheet.Prices {
		price, err := decimal.NewFromString(entry.Price)
		if err != nil {
			return nil, fmt.Errorf("price sheet: %s: %w", symbol, err)
		}
		if err := s.Set(symbol, entry.Name, price); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Set adds or replaces the quote for symbol.
func (s *Static) Set(symbol, name string, price decimal.Decimal) error {
	symbol = NormalizeSymbol(symbol)
	quote, err := newQuote(symbol, name, price)
	if err != nil {
		return fmt.Errorf("price sheet: invalid price %s for %s", price, symbol)
	}

	s.mu.Lock()
	s.quotes[symbol] = quote
	s.mu.Unlock()
	return nil
}

// Remove drops symbol so later lookups fail.
func (s *Static) Remove(symbol string) {
	s.mu.Lock()
	delete(s.quotes, NormalizeSymbol(symbol))
	s.mu.Unlock()
}

func (s *Static) Lookup(ctx context.Context, symbol string) (types.Quote, error) {
	if err := ctx.Err(); err != nil {
		return types.Quote{}, err
	}

	symbol = NormalizeSymbol(symbol)
	s.mu.RLock()
	quote, ok := s.quotes[symbol]
	s.mu.RUnlock()
	if !ok {
		return types.Quote{}, fmt.Errorf("%w: %s", ErrNotFound, symbol)
	}
	return quote, nil
}
