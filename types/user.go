package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// User represents a trading account in the system.
// Cash is the only field that changes after registration.
type User struct {
	// ID is the unique identifier of the user.
	ID int `json:"id" db:"id"`

	// Username is the unique, case-sensitive login name chosen by the user.
	Username string `json:"username" db:"username"`

	// PasswordHash stores the hashed representation of the user's password.
	// This field is never exposed in API responses.
	PasswordHash string `json:"-" db:"password_hash"`

	// Cash is the uninvested balance available for buying shares.
	Cash decimal.Decimal `json:"cash" db:"cash"`

	// InitialCash is the balance granted at registration. Replaying the
	// ledger from this amount must yield Cash.
	InitialCash decimal.Decimal `json:"initial_cash" db:"initial_cash"`

	// CreatedAt is the timestamp when the user account was created.
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
