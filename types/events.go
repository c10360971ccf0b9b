package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// TradeEvent is published after a trade settles.
type TradeEvent struct {
	TransactionID int64           `json:"transaction_id"`
	UserID        int             `json:"user_id"`
	Symbol        string          `json:"symbol"`
	Shares        int64           `json:"shares"`
	Price         decimal.Decimal `json:"price"`
	Type          TransactionType `json:"type"`
	CashAfter     decimal.Decimal `json:"cash_after"`
	Time          time.Time       `json:"time"`
}
