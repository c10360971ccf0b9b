package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"iter"
	"strings"
	"time"

	"github.com/papertrade/apiserver/config"
	"github.com/papertrade/apiserver/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// LedgerTx is the set of ledger operations available inside a single
// database transaction. Cash must be called before any write so that the
// user's row is locked for the rest of the transaction.
type LedgerTx interface {
	Cash(ctx context.Context, userID int) (decimal.Decimal, error)
	SharesOf(ctx context.Context, userID int, symbol string) (int64, error)
	AdjustCash(ctx context.Context, userID int, balance decimal.Decimal) error
	AppendTransaction(ctx context.Context, entry types.Transaction) (types.Transaction, error)
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// LedgerRepository persists the append-only transaction log and the cash
// column kept beside it.
type LedgerRepository struct {
	db     *sql.DB
	driver string
	now    func() time.Time
}

func NewLedgerRepository(db *sql.DB, driver string) *LedgerRepository {
	return &LedgerRepository{
		db:     db,
		driver: driver,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// GetCash returns the user's current balance or ErrNotFound.
func (r *LedgerRepository) GetCash(ctx context.Context, userID int) (decimal.Decimal, error) {
	return getCash(ctx, r.db, queryGetCash, userID)
}

// AggregateSharesBySymbol returns the net shares per symbol, including
// symbols whose position has been fully closed.
func (r *LedgerRepository) AggregateSharesBySymbol(ctx context.Context, userID int) (map[string]int64, error) {
	return aggregateShares(ctx, r.db, userID)
}

func aggregateShares(ctx context.Context, q querier, userID int) (map[string]int64, error) {
	rows, err := q.QueryContext(ctx, queryAggregateShares, userID)
	if err != nil {
		return nil, persistenceError("aggregate shares", err)
	}
	defer rows.Close()

	holdings := make(map[string]int64)
	for rows.Next() {
		var symbol string
		var shares int64
		if err := rows.Scan(&symbol, &shares); err != nil {
			return nil, persistenceError("scan aggregate", err)
		}
		holdings[symbol] = shares
	}
	if err := rows.Err(); err != nil {
		return nil, persistenceError("aggregate shares", err)
	}
	return holdings, nil
}

// Transactions yields the user's ledger in execution order. The query runs
// each time the sequence is ranged over.
func (r *LedgerRepository) Transactions(ctx context.Context, userID int) iter.Seq2[types.Transaction, error] {
	return func(yield func(types.Transaction, error) bool) {
		rows, err := r.db.QueryContext(ctx, queryListTransactions, userID)
		if err != nil {
			yield(types.Transaction{}, persistenceError("list transactions", err))
			return
		}
		defer rows.Close()

		for rows.Next() {
			entry, err := scanTransaction(rows)
			if err != nil {
				yield(types.Transaction{}, err)
				return
			}
			if !yield(entry, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(types.Transaction{}, persistenceError("list transactions", err))
		}
	}
}

// LedgerSnapshot is a user's cash, share aggregates and ledger read at a
// single point in time.
type LedgerSnapshot struct {
	Cash    decimal.Decimal
	Shares  map[string]int64
	Entries []types.Transaction
}

// Snapshot reads the user's cash, share aggregates and ledger inside one
// read-only transaction, so a trade committing concurrently is either fully
// visible or not visible at all.
func (r *LedgerRepository) Snapshot(ctx context.Context, userID int) (LedgerSnapshot, error) {
	// SQLite transactions are opened with _txlock=immediate, which already
	// serializes them with writers.
	var opts *sql.TxOptions
	if r.driver == config.DriverPostgres {
		opts = &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true}
	}
	tx, err := r.db.BeginTx(ctx, opts)
	if err != nil {
		return LedgerSnapshot{}, persistenceError("begin snapshot", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	cash, err := getCash(ctx, tx, queryGetCash, userID)
	if err != nil {
		return LedgerSnapshot{}, err
	}
	shares, err := aggregateShares(ctx, tx, userID)
	if err != nil {
		return LedgerSnapshot{}, err
	}
	entries, err := listTransactions(ctx, tx, userID)
	if err != nil {
		return LedgerSnapshot{}, err
	}

	if err := tx.Commit(); err != nil {
		return LedgerSnapshot{}, persistenceError("commit snapshot", err)
	}
	return LedgerSnapshot{Cash: cash, Shares: shares, Entries: entries}, nil
}

// ListTransactions returns one page of the user's ledger in execution order
// together with the total number of entries.
func (r *LedgerRepository) ListTransactions(ctx context.Context, userID, offset, limit int) ([]types.Transaction, int, error) {
	if offset < 0 {
		offset = 0
	}
	if limit < 1 {
		limit = 20
	}

	var total int
	if err := r.db.QueryRowContext(ctx, queryCountTransactions, userID).Scan(&total); err != nil {
		return nil, 0, persistenceError("count transactions", err)
	}

	rows, err := r.db.QueryContext(ctx, queryListTransactionsPage, userID, limit, offset)
	if err != nil {
		return nil, 0, persistenceError("list transactions", err)
	}
	defer rows.Close()

	entries := make([]types.Transaction, 0, limit)
	for rows.Next() {
		entry, err := scanTransaction(rows)
		if err != nil {
			return nil, 0, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, persistenceError("list transactions", err)
	}
	return entries, total, nil
}

// WithinTx runs fn inside a database transaction. Every write made through
// the LedgerTx is committed together, or rolled back if fn returns an error.
func (r *LedgerRepository) WithinTx(ctx context.Context, fn func(tx LedgerTx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return persistenceError("begin transaction", err)
	}
	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			zap.L().Warn("Failed to roll back ledger transaction", zap.Error(err))
		}
	}()

	if err := fn(&ledgerTx{tx: tx, driver: r.driver, now: r.now}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return persistenceError("commit transaction", err)
	}
	return nil
}

type ledgerTx struct {
	tx     *sql.Tx
	driver string
	now    func() time.Time
}

func (t *ledgerTx) Cash(ctx context.Context, userID int) (decimal.Decimal, error) {
	query := queryGetCash
	if t.driver == config.DriverPostgres {
		query = queryGetCashForUpdate
	}
	return getCash(ctx, t.tx, query, userID)
}

func (t *ledgerTx) SharesOf(ctx context.Context, userID int, symbol string) (int64, error) {
	var shares int64
	if err := t.tx.QueryRowContext(ctx, querySharesOfSymbol, userID, symbol).Scan(&shares); err != nil {
		return 0, persistenceError("sum shares", err)
	}
	return shares, nil
}

func (t *ledgerTx) AdjustCash(ctx context.Context, userID int, balance decimal.Decimal) error {
	if balance.IsNegative() {
		return fmt.Errorf("%w: cash balance cannot be negative (%s)", types.ErrValidation, balance)
	}

	result, err := t.tx.ExecContext(ctx, queryUpdateCash, balance.String(), userID)
	if err != nil {
		return persistenceError("update cash", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return persistenceError("update cash", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// AppendTransaction validates and inserts a ledger entry. ID and Time are
// assigned here. Time never precedes the user's latest entry, even if the
// wall clock has stepped back.
func (t *ledgerTx) AppendTransaction(ctx context.Context, entry types.Transaction) (types.Transaction, error) {
	entry.Symbol = strings.ToUpper(strings.TrimSpace(entry.Symbol))
	if err := entry.Validate(); err != nil {
		return types.Transaction{}, err
	}

	entry.Time = t.now()
	var latest time.Time
	err := t.tx.QueryRowContext(ctx, queryLatestTransactionTime, entry.UserID).Scan(&latest)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return types.Transaction{}, persistenceError("latest transaction time", err)
	case entry.Time.Before(latest):
		zap.L().Warn("Clock behind latest ledger entry",
			zap.Int("user_id", entry.UserID),
			zap.Time("now", entry.Time),
			zap.Time("latest", latest))
		entry.Time = latest.UTC()
	}

	if err := t.tx.QueryRowContext(
		ctx,
		queryInsertTransaction,
		entry.UserID,
		entry.Symbol,
		entry.Name,
		entry.Shares,
		entry.Price.String(),
		string(entry.Type),
		entry.Time,
	).Scan(&entry.ID); err != nil {
		return types.Transaction{}, persistenceError("insert transaction", err)
	}
	return entry, nil
}

func listTransactions(ctx context.Context, q querier, userID int) ([]types.Transaction, error) {
	rows, err := q.QueryContext(ctx, queryListTransactions, userID)
	if err != nil {
		return nil, persistenceError("list transactions", err)
	}
	defer rows.Close()

	entries := []types.Transaction{}
	for rows.Next() {
		entry, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, persistenceError("list transactions", err)
	}
	return entries, nil
}

func getCash(ctx context.Context, q querier, query string, userID int) (decimal.Decimal, error) {
	var cashStr string
	if err := q.QueryRowContext(ctx, query, userID).Scan(&cashStr); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return decimal.Zero, ErrNotFound
		}
		return decimal.Zero, persistenceError("get cash", err)
	}
	return parseDecimal("cash", cashStr)
}

func scanTransaction(rows *sql.Rows) (types.Transaction, error) {
	var entry types.Transaction
	var priceStr, typeStr string
	if err := rows.Scan(
		&entry.ID,
		&entry.UserID,
		&entry.Symbol,
		&entry.Name,
		&entry.Shares,
		&priceStr,
		&typeStr,
		&entry.Time,
	); err != nil {
		return types.Transaction{}, persistenceError("scan transaction", err)
	}

	price, err := parseDecimal("price", priceStr)
	if err != nil {
		return types.Transaction{}, err
	}
	entry.Price = price
	entry.Type = types.TransactionType(typeStr)
	entry.Time = entry.Time.UTC()
	return entry, nil
}
