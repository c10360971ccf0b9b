package services

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sort"

	"github.com/papertrade/apiserver/internal/quotes"
	"github.com/papertrade/apiserver/internal/store"
	"github.com/papertrade/apiserver/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ErrLedgerInconsistent is returned when replaying a ledger breaks a
// position or cash invariant.
var ErrLedgerInconsistent = errors.New("ledger is inconsistent")

// LedgerRepository defines the ledger operations used by the services.
type LedgerRepository interface {
	GetCash(ctx context.Context, userID int) (decimal.Decimal, error)
	AggregateSharesBySymbol(ctx context.Context, userID int) (map[string]int64, error)
	Transactions(ctx context.Context, userID int) iter.Seq2[types.Transaction, error]
	ListTransactions(ctx context.Context, userID, offset, limit int) ([]types.Transaction, int, error)
	Snapshot(ctx context.Context, userID int) (store.LedgerSnapshot, error)
	WithinTx(ctx context.Context, fn func(tx store.LedgerTx) error) error
}

// Position is a symbol's open position rebuilt from the ledger.
type Position struct {
	Symbol string
	Name   string
	Shares int64
	// Cost is the average-cost basis of the open shares.
	Cost decimal.Decimal
}

// AverageCost returns the per-share cost basis, or zero for a closed position.
func (p Position) AverageCost() decimal.Decimal {
	if p.Shares <= 0 {
		return decimal.Zero
	}
	return p.Cost.Div(decimal.NewFromInt(p.Shares)).Round(quotes.PricePrecision)
}

// Replay is the state obtained by folding a user's ledger.
type Replay struct {
	Cash      decimal.Decimal
	Positions map[string]Position
	Entries   int
}

// apply folds a single entry into the positions. A position that goes
// negative returns ErrLedgerInconsistent.
func (r *Replay) apply(entry types.Transaction) error {
	r.Entries++

	pos := r.Positions[entry.Symbol]
	pos.Symbol = entry.Symbol
	if entry.Name != "" {
		pos.Name = entry.Name
	}

	if entry.Shares > 0 {
		pos.Cost = pos.Cost.Add(entry.Price.Mul(decimal.NewFromInt(entry.Shares)))
	} else if pos.Shares > 0 {
		sold := decimal.NewFromInt(-entry.Shares)
		pos.Cost = pos.Cost.Sub(pos.Cost.Mul(sold).Div(decimal.NewFromInt(pos.Shares)))
	}
	pos.Shares += entry.Shares
	if pos.Shares == 0 {
		pos.Cost = decimal.Zero
	}
	if pos.Shares < 0 {
		return fmt.Errorf("%w: %s position negative after transaction %d",
			ErrLedgerInconsistent, entry.Symbol, entry.ID)
	}
	r.Positions[entry.Symbol] = pos

	r.Cash = r.Cash.Add(entry.Amount())
	return nil
}

// ReplayPositions rebuilds per-symbol positions without tracking cash.
func ReplayPositions(entries iter.Seq2[types.Transaction, error]) (map[string]Position, error) {
	replay := Replay{Positions: make(map[string]Position)}
	for entry, err := range entries {
		if err != nil {
			return nil, err
		}
		if err := replay.apply(entry); err != nil {
			return nil, err
		}
	}
	return replay.Positions, nil
}

// Entries adapts a slice of ledger entries to the sequence the replays take.
func Entries(entries []types.Transaction) iter.Seq2[types.Transaction, error] {
	return func(yield func(types.Transaction, error) bool) {
		for _, entry := range entries {
			if !yield(entry, nil) {
				return
			}
		}
	}
}

// ReplayLedger folds entries over initialCash in order. Cash moves by each
// entry's amount and shares accumulate per symbol; a negative position or a
// negative cash balance at any point returns ErrLedgerInconsistent.
func ReplayLedger(initialCash decimal.Decimal, entries iter.Seq2[types.Transaction, error]) (Replay, error) {
	replay := Replay{
		Cash:      initialCash,
		Positions: make(map[string]Position),
	}

	for entry, err := range entries {
		if err != nil {
			return Replay{}, err
		}
		if err := replay.apply(entry); err != nil {
			return Replay{}, err
		}
		if replay.Cash.IsNegative() {
			return Replay{}, fmt.Errorf("%w: cash negative after transaction %d",
				ErrLedgerInconsistent, entry.ID)
		}
	}
	return replay, nil
}

// Reconciliation compares the stored cash and share aggregates with a replay
// of the ledger.
type Reconciliation struct {
	UserID       int              `json:"user_id"`
	Entries      int              `json:"entries"`
	StoredCash   decimal.Decimal  `json:"stored_cash"`
	ReplayedCash decimal.Decimal  `json:"replayed_cash"`
	Shares       map[string]int64 `json:"shares"`
	Mismatches   []string         `json:"mismatches,omitempty"`
}

// Consistent reports whether the replay matched the stored state.
func (r Reconciliation) Consistent() bool {
	return len(r.Mismatches) == 0
}

// UserLister lists every user id.
type UserLister interface {
	GetByID(ctx context.Context, id int) (types.User, error)
	ListIDs(ctx context.Context) ([]int, error)
}

// LedgerService exposes read-side ledger operations.
type LedgerService struct {
	users  UserLister
	ledger LedgerRepository
}

func NewLedgerService(users UserLister, ledger LedgerRepository) *LedgerService {
	return &LedgerService{users: users, ledger: ledger}
}

// History returns the user's transactions in execution order.
func (s *LedgerService) History(ctx context.Context, userID int) ([]types.Transaction, error) {
	entries := []types.Transaction{}
	for entry, err := range s.ledger.Transactions(ctx, userID) {
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// HistoryPage returns one page of the user's transactions and the total
// number of entries.
func (s *LedgerService) HistoryPage(ctx context.Context, userID, offset, limit int) ([]types.Transaction, int, error) {
	return s.ledger.ListTransactions(ctx, userID, offset, limit)
}

// Reconcile replays a user's ledger from their initial cash and reports
// every difference with the stored balance and share aggregates. The stored
// state and the ledger come from one snapshot.
func (s *LedgerService) Reconcile(ctx context.Context, userID int) (Reconciliation, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return Reconciliation{}, err
	}

	snapshot, err := s.ledger.Snapshot(ctx, userID)
	if err != nil {
		return Reconciliation{}, err
	}

	result := Reconciliation{
		UserID:     userID,
		StoredCash: snapshot.Cash,
		Shares:     map[string]int64{},
	}

	replay, err := ReplayLedger(user.InitialCash, Entries(snapshot.Entries))
	if err != nil {
		if !errors.Is(err, ErrLedgerInconsistent) {
			return Reconciliation{}, err
		}
		result.Mismatches = append(result.Mismatches, err.Error())
		return result, nil
	}
	result.Entries = replay.Entries
	result.ReplayedCash = replay.Cash

	if !replay.Cash.Equal(snapshot.Cash) {
		result.Mismatches = append(result.Mismatches,
			fmt.Sprintf("cash: stored %s, replayed %s", snapshot.Cash, replay.Cash))
	}

	aggregate := snapshot.Shares
	symbols := make([]string, 0, len(aggregate))
	for symbol := range aggregate {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)
	for _, symbol := range symbols {
		shares := aggregate[symbol]
		result.Shares[symbol] = shares
		if replayed := replay.Positions[symbol].Shares; replayed != shares {
			result.Mismatches = append(result.Mismatches,
				fmt.Sprintf("%s: aggregated %d shares, replayed %d", symbol, shares, replayed))
		}
	}

	if !result.Consistent() {
		zap.L().Warn("Ledger reconciliation found mismatches",
			zap.Int("user_id", userID),
			zap.Strings("mismatches", result.Mismatches))
	}
	return result, nil
}

// ReconcileAll reconciles every user in id order.
func (s *LedgerService) ReconcileAll(ctx context.Context) ([]Reconciliation, error) {
	ids, err := s.users.ListIDs(ctx)
	if err != nil {
		return nil, err
	}

	results := make([]Reconciliation, 0, len(ids))
	for _, id := range ids {
		result, err := s.Reconcile(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("reconcile user %d: %w", id, err)
		}
		results = append(results, result)
	}
	return results, nil
}
