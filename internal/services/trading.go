package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/papertrade/apiserver/internal/quotes"
	"github.com/papertrade/apiserver/internal/store"
	"github.com/papertrade/apiserver/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Trade lifecycle states, logged at debug level.
const (
	stateReceived  = "RECEIVED"
	stateValidated = "VALIDATED"
	statePriced    = "PRICED"
	stateSettled   = "SETTLED"
	stateRejected  = "REJECTED"
)

// TradePublisher announces settled trades.
type TradePublisher interface {
	PublishTrade(ctx context.Context, event types.TradeEvent) error
}

// TradingService executes market buys and sells against the ledger.
type TradingService struct {
	ledger    LedgerRepository
	oracle    quotes.Oracle
	publisher TradePublisher
	locks     *userLocks
}

// NewTradingService builds the engine. publisher may be nil.
func NewTradingService(ledger LedgerRepository, oracle quotes.Oracle, publisher TradePublisher) *TradingService {
	return &TradingService{
		ledger:    ledger,
		oracle:    oracle,
		publisher: publisher,
		locks:     newUserLocks(),
	}
}

// Buy purchases shares at the current price, debiting cash.
func (s *TradingService) Buy(ctx context.Context, userID int, symbol string, shares int64) (types.Transaction, error) {
	log := tradeLogger(userID, types.TransactionBought, symbol, shares)
	log.Debug(stateReceived)

	symbol = quotes.NormalizeSymbol(symbol)
	if err := validateOrder(symbol, shares); err != nil {
		return reject(log, err)
	}
	log.Debug(stateValidated)

	quote, err := s.lookup(ctx, symbol)
	if err != nil {
		return reject(log, err)
	}
	cost := quote.Price.Mul(decimal.NewFromInt(shares))
	log.Debug(statePriced, zap.String("price", quote.Price.String()), zap.String("cost", cost.String()))

	unlock := s.locks.lock(userID)
	defer unlock()

	var entry types.Transaction
	var cashAfter decimal.Decimal
	err = s.ledger.WithinTx(ctx, func(tx store.LedgerTx) error {
		cash, err := tx.Cash(ctx, userID)
		if err != nil {
			return err
		}
		if cash.LessThan(cost) {
			return fmt.Errorf("%w: need %s, have %s", types.ErrInsufficientFunds, cost, cash)
		}

		cashAfter = cash.Sub(cost)
		if err := tx.AdjustCash(ctx, userID, cashAfter); err != nil {
			return err
		}

		entry, err = tx.AppendTransaction(ctx, types.Transaction{
			UserID: userID,
			Symbol: symbol,
			Name:   quote.Name,
			Shares: shares,
			Price:  quote.Price,
			Type:   types.TransactionBought,
		})
		return err
	})
	if err != nil {
		return reject(log, err)
	}

	s.settle(ctx, log, entry, cashAfter)
	return entry, nil
}

// Sell disposes of held shares at the current price, crediting cash.
func (s *TradingService) Sell(ctx context.Context, userID int, symbol string, shares int64) (types.Transaction, error) {
	log := tradeLogger(userID, types.TransactionSold, symbol, shares)
	log.Debug(stateReceived)

	symbol = quotes.NormalizeSymbol(symbol)
	if err := validateOrder(symbol, shares); err != nil {
		return reject(log, err)
	}

	aggregate, err := s.ledger.AggregateSharesBySymbol(ctx, userID)
	if err != nil {
		return reject(log, err)
	}
	if held := aggregate[symbol]; held < shares {
		return reject(log, fmt.Errorf("%w: hold %d %s, selling %d", types.ErrInsufficientShares, held, symbol, shares))
	}
	log.Debug(stateValidated)

	quote, err := s.lookup(ctx, symbol)
	if err != nil {
		return reject(log, err)
	}
	proceeds := quote.Price.Mul(decimal.NewFromInt(shares))
	log.Debug(statePriced, zap.String("price", quote.Price.String()), zap.String("proceeds", proceeds.String()))

	unlock := s.locks.lock(userID)
	defer unlock()

	var entry types.Transaction
	var cashAfter decimal.Decimal
	err = s.ledger.WithinTx(ctx, func(tx store.LedgerTx) error {
		cash, err := tx.Cash(ctx, userID)
		if err != nil {
			return err
		}

		held, err := tx.SharesOf(ctx, userID, symbol)
		if err != nil {
			return err
		}
		if held < shares {
			return fmt.Errorf("%w: hold %d %s, selling %d", types.ErrInsufficientShares, held, symbol, shares)
		}

		cashAfter = cash.Add(proceeds)
		if err := tx.AdjustCash(ctx, userID, cashAfter); err != nil {
			return err
		}

		entry, err = tx.AppendTransaction(ctx, types.Transaction{
			UserID: userID,
			Symbol: symbol,
			Name:   quote.Name,
			Shares: -shares,
			Price:  quote.Price,
			Type:   types.TransactionSold,
		})
		return err
	})
	if err != nil {
		return reject(log, err)
	}

	s.settle(ctx, log, entry, cashAfter)
	return entry, nil
}

// Quote looks up the current price of symbol.
func (s *TradingService) Quote(ctx context.Context, symbol string) (types.Quote, error) {
	symbol = quotes.NormalizeSymbol(symbol)
	if symbol == "" {
		return types.Quote{}, fmt.Errorf("%w: symbol is required", types.ErrValidation)
	}
	return s.lookup(ctx, symbol)
}

// lookup maps every oracle failure except cancellation to ErrUnknownSymbol.
func (s *TradingService) lookup(ctx context.Context, symbol string) (types.Quote, error) {
	quote, err := s.oracle.Lookup(ctx, symbol)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return types.Quote{}, err
		}
		if !errors.Is(err, quotes.ErrNotFound) {
			zap.L().Warn("Price lookup failed", zap.String("symbol", symbol), zap.Error(err))
		}
		return types.Quote{}, fmt.Errorf("%w: %s", types.ErrUnknownSymbol, symbol)
	}
	quote.Symbol = symbol
	return quote, nil
}

func (s *TradingService) settle(ctx context.Context, log *zap.Logger, entry types.Transaction, cashAfter decimal.Decimal) {
	log.Debug(stateSettled,
		zap.Int64("transaction_id", entry.ID),
		zap.String("cash_after", cashAfter.String()))

	if s.publisher == nil {
		return
	}
	event := types.TradeEvent{
		TransactionID: entry.ID,
		UserID:        entry.UserID,
		Symbol:        entry.Symbol,
		Shares:        entry.Shares,
		Price:         entry.Price,
		Type:          entry.Type,
		CashAfter:     cashAfter,
		Time:          entry.Time,
	}
	if err := s.publisher.PublishTrade(ctx, event); err != nil {
		log.Warn("Failed to publish trade event", zap.Int64("transaction_id", entry.ID), zap.Error(err))
	}
}

func validateOrder(symbol string, shares int64) error {
	if symbol == "" {
		return fmt.Errorf("%w: symbol is required", types.ErrValidation)
	}
	if shares <= 0 {
		return fmt.Errorf("%w: shares must be a positive integer", types.ErrValidation)
	}
	return nil
}

func tradeLogger(userID int, side types.TransactionType, symbol string, shares int64) *zap.Logger {
	return zap.L().With(
		zap.Int("user_id", userID),
		zap.String("side", string(side)),
		zap.String("symbol", symbol),
		zap.Int64("shares", shares))
}

func reject(log *zap.Logger, err error) (types.Transaction, error) {
	log.Debug(stateRejected, zap.Error(err))
	return types.Transaction{}, err
}
