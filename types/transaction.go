package types

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType labels a ledger entry as a purchase or a sale. It mirrors
// the sign of Transaction.Shares and exists for display.
type TransactionType string

const (
	// TransactionBought marks an entry with positive shares.
	TransactionBought TransactionType = "BOUGHT"

	// TransactionSold marks an entry with negative shares.
	TransactionSold TransactionType = "SOLD"
)

// Valid reports whether t is one of the known transaction types.
func (t TransactionType) Valid() bool {
	return t == TransactionBought || t == TransactionSold
}

// Transaction is a single immutable ledger entry.
// Entries are only ever appended; corrections are new offsetting entries.
type Transaction struct {
	// ID is the unique, monotonically assigned identifier of the entry.
	ID int64 `json:"id" db:"id"`

	// UserID identifies the user owning this entry.
	UserID int `json:"user_id" db:"user_id"`

	// Symbol is the uppercase ticker symbol that was traded.
	Symbol string `json:"symbol" db:"symbol"`

	// Name is the security's display name at the time of the trade.
	Name string `json:"name" db:"name"`

	// Shares is positive for a buy and negative for a sell. Never zero.
	Shares int64 `json:"shares" db:"shares"`

	// Price is the unit price at execution time.
	Price decimal.Decimal `json:"price" db:"price"`

	// Type is BOUGHT or SOLD.
	Type TransactionType `json:"type" db:"type"`

	// Time is the server-assigned execution timestamp (UTC).
	Time time.Time `json:"time" db:"time"`
}

// Amount returns the signed cash effect of the entry: negative for a buy,
// positive for a sell.
func (t Transaction) Amount() decimal.Decimal {
	return t.Price.Mul(decimal.NewFromInt(t.Shares)).Neg()
}

// Validate checks the structural rules every stored entry must satisfy.
func (t Transaction) Validate() error {
	if t.UserID < 1 {
		return fmt.Errorf("%w: user id is required", ErrValidation)
	}
	if strings.TrimSpace(t.Symbol) == "" {
		return fmt.Errorf("%w: symbol is required", ErrValidation)
	}
	if t.Shares == 0 {
		return fmt.Errorf("%w: shares must not be zero", ErrValidation)
	}
	if !t.Price.IsPositive() {
		return fmt.Errorf("%w: price must be positive", ErrValidation)
	}
	switch t.Type {
	case TransactionBought:
		if t.Shares < 0 {
			return fmt.Errorf("%w: bought entries must have positive shares", ErrValidation)
		}
	case TransactionSold:
		if t.Shares > 0 {
			return fmt.Errorf("%w: sold entries must have negative shares", ErrValidation)
		}
	default:
		return fmt.Errorf("%w: unknown transaction type %q", ErrValidation, t.Type)
	}
	return nil
}
