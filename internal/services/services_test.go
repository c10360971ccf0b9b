package services_test

import (
	"context"
	"database/sql"
	"sync"
	"testing"

	"github.com/papertrade/apiserver/config"
	"github.com/papertrade/apiserver/internal/db/dbtest"
	"github.com/papertrade/apiserver/internal/quotes"
	"github.com/papertrade/apiserver/internal/services"
	"github.com/papertrade/apiserver/internal/store"
	"github.com/papertrade/apiserver/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type testEnv struct {
	conn      *sql.DB
	users     *store.UserRepository
	ledger    *store.LedgerRepository
	oracle    *quotes.Static
	userSvc   *services.UserService
	trading   *services.TradingService
	portfolio *services.PortfolioService
	ledgerSvc *services.LedgerService
	events    *recordingPublisher
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	conn := dbtest.Open(t)
	users := store.NewUserRepository(conn)
	ledger := store.NewLedgerRepository(conn, config.DriverSQLite)
	oracle := quotes.NewStatic()
	events := &recordingPublisher{}

	return &testEnv{
		conn:      conn,
		users:     users,
		ledger:    ledger,
		oracle:    oracle,
		userSvc:   services.NewUserService(users, decimal.NewFromInt(10000)).WithHashCost(bcrypt.MinCost),
		trading:   services.NewTradingService(ledger, oracle, events),
		portfolio: services.NewPortfolioService(ledger, oracle),
		ledgerSvc: services.NewLedgerService(users, ledger),
		events:    events,
	}
}

func (e *testEnv) setPrice(t *testing.T, symbol, price string) {
	t.Helper()
	require.NoError(t, e.oracle.Set(symbol, symbol+" Corp", decimal.RequireFromString(price)))
}

func (e *testEnv) newUser(t *testing.T, username, cash string) types.User {
	t.Helper()
	user, err := e.users.Create(context.Background(), types.User{
		Username:     username,
		PasswordHash: "hash",
		InitialCash:  decimal.RequireFromString(cash),
	})
	require.NoError(t, err)
	return user
}

func (e *testEnv) cash(t *testing.T, userID int) decimal.Decimal {
	t.Helper()
	cash, err := e.ledger.GetCash(context.Background(), userID)
	require.NoError(t, err)
	return cash
}

func (e *testEnv) history(t *testing.T, userID int) []types.Transaction {
	t.Helper()
	entries, err := e.ledgerSvc.History(context.Background(), userID)
	require.NoError(t, err)
	return entries
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []types.TradeEvent
	err    error
}

func (p *recordingPublisher) PublishTrade(_ context.Context, event types.TradeEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.err
}

func (p *recordingPublisher) published() []types.TradeEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]types.TradeEvent(nil), p.events...)
}

type mockOracle struct {
	mock.Mock
}

func (m *mockOracle) Lookup(ctx context.Context, symbol string) (types.Quote, error) {
	args := m.Called(ctx, symbol)
	return args.Get(0).(types.Quote), args.Error(1)
}
