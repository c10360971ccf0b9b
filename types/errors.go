package types

import "errors"

// Rejection reasons surfaced to clients. Callers wrap these with detail via
// fmt.Errorf("%w: ...") and match them with errors.Is.
var (
	ErrValidation         = errors.New("invalid request")
	ErrUnknownSymbol      = errors.New("unknown symbol")
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrInsufficientShares = errors.New("insufficient shares")
	ErrAuth               = errors.New("invalid username and/or password")
	ErrDuplicateUsername  = errors.New("username already exists")
	ErrPersistence        = errors.New("persistence failure")
	ErrUnauthorized       = errors.New("unauthorized")
)
