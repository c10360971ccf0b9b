package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/papertrade/apiserver/config"
	"github.com/papertrade/apiserver/internal/db/dbtest"
	"github.com/papertrade/apiserver/internal/store"
	"github.com/papertrade/apiserver/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newUser(t *testing.T, users *store.UserRepository, username, cash string) types.User {
	t.Helper()
	user, err := users.Create(context.Background(), types.User{
		Username:     username,
		PasswordHash: "hash",
		InitialCash:  decimal.RequireFromString(cash),
	})
	require.NoError(t, err)
	return user
}

func appendEntry(t *testing.T, ledger *store.LedgerRepository, userID int, symbol string, shares int64, price, cash string) types.Transaction {
	t.Helper()
	var stored types.Transaction
	err := ledger.WithinTx(context.Background(), func(tx store.LedgerTx) error {
		if _, err := tx.Cash(context.Background(), userID); err != nil {
			return err
		}
		kind := types.TransactionBought
		if shares < 0 {
			kind = types.TransactionSold
		}
		var err error
		stored, err = tx.AppendTransaction(context.Background(), types.Transaction{
			UserID: userID,
			Symbol: symbol,
			Name:   symbol + " Inc.",
			Shares: shares,
			Price:  decimal.RequireFromString(price),
			Type:   kind,
		})
		if err != nil {
			return err
		}
		return tx.AdjustCash(context.Background(), userID, decimal.RequireFromString(cash))
	})
	require.NoError(t, err)
	return stored
}

func collect(t *testing.T, ledger *store.LedgerRepository, userID int) []types.Transaction {
	t.Helper()
	var entries []types.Transaction
	for entry, err := range ledger.Transactions(context.Background(), userID) {
		require.NoError(t, err)
		entries = append(entries, entry)
	}
	return entries
}

func TestUserRepositoryCreateAndGet(t *testing.T) {
	conn := dbtest.Open(t)
	users := store.NewUserRepository(conn)
	ctx := context.Background()

	created := newUser(t, users, "alice", "10000")
	assert.Positive(t, created.ID)
	assert.True(t, created.Cash.Equal(decimal.NewFromInt(10000)))

	byID, err := users.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", byID.Username)
	assert.True(t, byID.InitialCash.Equal(decimal.NewFromInt(10000)))

	byName, err := users.GetByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, created.ID, byName.ID)

	_, err = users.GetByUsername(ctx, "bob")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestUserRepositoryDuplicateUsername(t *testing.T) {
	conn := dbtest.Open(t)
	users := store.NewUserRepository(conn)

	newUser(t, users, "alice", "10000")
	_, err := users.Create(context.Background(), types.User{
		Username:     "alice",
		PasswordHash: "other",
		InitialCash:  decimal.NewFromInt(5),
	})
	assert.ErrorIs(t, err, types.ErrDuplicateUsername)
}

func TestUserRepositoryListIDs(t *testing.T) {
	conn := dbtest.Open(t)
	users := store.NewUserRepository(conn)

	a := newUser(t, users, "alice", "1")
	b := newUser(t, users, "bob", "2")

	ids, err := users.ListIDs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int{a.ID, b.ID}, ids)
}

func TestLedgerAppendAndAggregate(t *testing.T) {
	conn := dbtest.Open(t)
	users := store.NewUserRepository(conn)
	ledger := store.NewLedgerRepository(conn, config.DriverSQLite)
	ctx := context.Background()

	user := newUser(t, users, "alice", "10000")
	first := appendEntry(t, ledger, user.ID, "nflx", 10, "100", "9000")
	appendEntry(t, ledger, user.ID, "NFLX", -4, "110", "9440")
	appendEntry(t, ledger, user.ID, "AAPL", 2, "150.25", "9139.5")
	appendEntry(t, ledger, user.ID, "AAPL", -2, "151", "9441.5")

	assert.Equal(t, "NFLX", first.Symbol)
	assert.Positive(t, first.ID)
	assert.Equal(t, time.UTC, first.Time.Location())

	cash, err := ledger.GetCash(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "9441.5", cash.String())

	holdings, err := ledger.AggregateSharesBySymbol(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"AAPL": 0, "NFLX": 6}, holdings)
}

func TestLedgerTransactionsOrderedAndRestartable(t *testing.T) {
	conn := dbtest.Open(t)
	users := store.NewUserRepository(conn)
	ledger := store.NewLedgerRepository(conn, config.DriverSQLite)

	user := newUser(t, users, "alice", "10000")
	other := newUser(t, users, "bob", "10000")
	appendEntry(t, ledger, user.ID, "NFLX", 10, "100", "9000")
	appendEntry(t, ledger, other.ID, "AAPL", 1, "100", "9900")
	appendEntry(t, ledger, user.ID, "NFLX", -10, "120", "10200")

	first := collect(t, ledger, user.ID)
	require.Len(t, first, 2)
	assert.Equal(t, int64(10), first[0].Shares)
	assert.Equal(t, types.TransactionBought, first[0].Type)
	assert.Equal(t, int64(-10), first[1].Shares)
	assert.Equal(t, types.TransactionSold, first[1].Type)
	assert.True(t, first[1].Price.Equal(decimal.NewFromInt(120)))
	assert.Less(t, first[0].ID, first[1].ID)

	second := collect(t, ledger, user.ID)
	assert.Equal(t, first, second)

	var seen int
	for range ledger.Transactions(context.Background(), user.ID) {
		seen++
		break
	}
	assert.Equal(t, 1, seen)
}

func TestLedgerTimeNeverGoesBackwards(t *testing.T) {
	conn := dbtest.Open(t)
	users := store.NewUserRepository(conn)
	ledger := store.NewLedgerRepository(conn, config.DriverSQLite)

	user := newUser(t, users, "alice", "10000")
	other := newUser(t, users, "bob", "10000")
	start := time.Date(2026, 3, 2, 14, 30, 0, 0, time.UTC)

	ledger.SetClock(func() time.Time { return start })
	first := appendEntry(t, ledger, user.ID, "NFLX", 10, "100", "9000")

	// The wall clock steps back an hour.
	ledger.SetClock(func() time.Time { return start.Add(-time.Hour) })
	second := appendEntry(t, ledger, user.ID, "NFLX", -10, "100", "10000")
	assert.True(t, second.Time.Equal(first.Time), "got %s", second.Time)

	// Other users keep their own clock.
	unrelated := appendEntry(t, ledger, other.ID, "AAPL", 1, "100", "9900")
	assert.True(t, unrelated.Time.Equal(start.Add(-time.Hour)))

	entries := collect(t, ledger, user.ID)
	require.Len(t, entries, 2)
	assert.Equal(t, first.ID, entries[0].ID)
	assert.Equal(t, second.ID, entries[1].ID)
	assert.False(t, entries[1].Time.Before(entries[0].Time))
}

func TestLedgerSnapshot(t *testing.T) {
	conn := dbtest.Open(t)
	users := store.NewUserRepository(conn)
	ledger := store.NewLedgerRepository(conn, config.DriverSQLite)
	ctx := context.Background()

	user := newUser(t, users, "alice", "10000")
	appendEntry(t, ledger, user.ID, "NFLX", 10, "100", "9000")
	appendEntry(t, ledger, user.ID, "NFLX", -4, "110", "9440")

	snapshot, err := ledger.Snapshot(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "9440", snapshot.Cash.String())
	assert.Equal(t, map[string]int64{"NFLX": 6}, snapshot.Shares)
	require.Len(t, snapshot.Entries, 2)
	assert.Equal(t, int64(-4), snapshot.Entries[1].Shares)

	_, err = ledger.Snapshot(ctx, user.ID+100)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestLedgerListTransactionsPages(t *testing.T) {
	conn := dbtest.Open(t)
	users := store.NewUserRepository(conn)
	ledger := store.NewLedgerRepository(conn, config.DriverSQLite)
	ctx := context.Background()

	user := newUser(t, users, "alice", "10000")
	appendEntry(t, ledger, user.ID, "AAA", 1, "10", "9990")
	appendEntry(t, ledger, user.ID, "BBB", 1, "10", "9980")
	appendEntry(t, ledger, user.ID, "CCC", 1, "10", "9970")

	page, total, err := ledger.ListTransactions(ctx, user.ID, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, page, 1)
	assert.Equal(t, "BBB", page[0].Symbol)

	page, total, err = ledger.ListTransactions(ctx, user.ID, 2, 10)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, page, 1)
	assert.Equal(t, "CCC", page[0].Symbol)

	page, total, err = ledger.ListTransactions(ctx, user.ID+1, 0, 10)
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, page)
}

func TestLedgerWithinTxRollsBackOnError(t *testing.T) {
	conn := dbtest.Open(t)
	users := store.NewUserRepository(conn)
	ledger := store.NewLedgerRepository(conn, config.DriverSQLite)
	ctx := context.Background()

	user := newUser(t, users, "alice", "10000")
	boom := errors.New("boom")

	err := ledger.WithinTx(ctx, func(tx store.LedgerTx) error {
		if _, err := tx.Cash(ctx, user.ID); err != nil {
			return err
		}
		if _, err := tx.AppendTransaction(ctx, types.Transaction{
			UserID: user.ID,
			Symbol: "NFLX",
			Name:   "Netflix",
			Shares: 1,
			Price:  decimal.NewFromInt(100),
			Type:   types.TransactionBought,
		}); err != nil {
			return err
		}
		if err := tx.AdjustCash(ctx, user.ID, decimal.NewFromInt(9900)); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	cash, err := ledger.GetCash(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, cash.Equal(decimal.NewFromInt(10000)))
	assert.Empty(t, collect(t, ledger, user.ID))
}

func TestLedgerTxRejectsInvalidWrites(t *testing.T) {
	conn := dbtest.Open(t)
	users := store.NewUserRepository(conn)
	ledger := store.NewLedgerRepository(conn, config.DriverSQLite)
	ctx := context.Background()

	user := newUser(t, users, "alice", "100")

	tests := []struct {
		name string
		fn   func(tx store.LedgerTx) error
		want error
	}{
		{
			name: "negative cash",
			fn: func(tx store.LedgerTx) error {
				return tx.AdjustCash(ctx, user.ID, decimal.NewFromInt(-1))
			},
			want: types.ErrValidation,
		},
		{
			name: "unknown user",
			fn: func(tx store.LedgerTx) error {
				return tx.AdjustCash(ctx, user.ID+100, decimal.NewFromInt(1))
			},
			want: store.ErrNotFound,
		},
		{
			name: "zero shares",
			fn: func(tx store.LedgerTx) error {
				_, err := tx.AppendTransaction(ctx, types.Transaction{
					UserID: user.ID, Symbol: "NFLX", Price: decimal.NewFromInt(1), Type: types.TransactionBought,
				})
				return err
			},
			want: types.ErrValidation,
		},
		{
			name: "sign mismatch",
			fn: func(tx store.LedgerTx) error {
				_, err := tx.AppendTransaction(ctx, types.Transaction{
					UserID: user.ID, Symbol: "NFLX", Shares: 3, Price: decimal.NewFromInt(1), Type: types.TransactionSold,
				})
				return err
			},
			want: types.ErrValidation,
		},
		{
			name: "non-positive price",
			fn: func(tx store.LedgerTx) error {
				_, err := tx.AppendTransaction(ctx, types.Transaction{
					UserID: user.ID, Symbol: "NFLX", Shares: 3, Price: decimal.Zero, Type: types.TransactionBought,
				})
				return err
			},
			want: types.ErrValidation,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := ledger.WithinTx(ctx, tc.fn)
			assert.ErrorIs(t, err, tc.want)
		})
	}

	cash, err := ledger.GetCash(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, cash.Equal(decimal.NewFromInt(100)))
}

func TestLedgerTxSharesOf(t *testing.T) {
	conn := dbtest.Open(t)
	users := store.NewUserRepository(conn)
	ledger := store.NewLedgerRepository(conn, config.DriverSQLite)
	ctx := context.Background()

	user := newUser(t, users, "alice", "10000")
	appendEntry(t, ledger, user.ID, "NFLX", 10, "100", "9000")
	appendEntry(t, ledger, user.ID, "NFLX", -3, "100", "9300")

	err := ledger.WithinTx(ctx, func(tx store.LedgerTx) error {
		held, err := tx.SharesOf(ctx, user.ID, "NFLX")
		require.NoError(t, err)
		assert.Equal(t, int64(7), held)

		none, err := tx.SharesOf(ctx, user.ID, "AAPL")
		require.NoError(t, err)
		assert.Zero(t, none)
		return nil
	})
	require.NoError(t, err)
}

func TestLedgerIsAppendOnly(t *testing.T) {
	conn := dbtest.Open(t)
	users := store.NewUserRepository(conn)
	ledger := store.NewLedgerRepository(conn, config.DriverSQLite)
	ctx := context.Background()

	user := newUser(t, users, "alice", "10000")
	entry := appendEntry(t, ledger, user.ID, "NFLX", 10, "100", "9000")

	_, err := conn.ExecContext(ctx, `UPDATE transactions SET shares = 1 WHERE id = $1`, entry.ID)
	assert.Error(t, err)

	_, err = conn.ExecContext(ctx, `DELETE FROM transactions WHERE id = $1`, entry.ID)
	assert.Error(t, err)

	assert.Len(t, collect(t, ledger, user.ID), 1)
}

func TestGetCashUnknownUser(t *testing.T) {
	conn := dbtest.Open(t)
	ledger := store.NewLedgerRepository(conn, config.DriverSQLite)

	_, err := ledger.GetCash(context.Background(), 42)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestSessionRepository(t *testing.T) {
	conn := dbtest.Open(t)
	sessions := store.NewSessionRepository(conn)
	ctx := context.Background()
	now := time.Now().UTC()

	revoked, err := sessions.IsRevoked(ctx, "token-1")
	require.NoError(t, err)
	assert.False(t, revoked)

	require.NoError(t, sessions.Revoke(ctx, "token-1", now.Add(-time.Minute)))
	require.NoError(t, sessions.Revoke(ctx, "token-1", now.Add(-time.Minute)))
	require.NoError(t, sessions.Revoke(ctx, "token-2", now.Add(time.Hour)))

	revoked, err = sessions.IsRevoked(ctx, "token-1")
	require.NoError(t, err)
	assert.True(t, revoked)

	purged, err := sessions.PurgeExpired(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), purged)

	revoked, err = sessions.IsRevoked(ctx, "token-2")
	require.NoError(t, err)
	assert.True(t, revoked)
}
