package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/papertrade/apiserver/config"
	"github.com/papertrade/apiserver/internal/mq"
	"github.com/papertrade/apiserver/internal/quotes"
	"github.com/papertrade/apiserver/internal/storage"
	"github.com/papertrade/apiserver/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const priceSheet = `prices:
  AAA:
    name: AAA Corp
    price: "10"
`

func testConfig(t *testing.T) config.Config {
	t.Helper()

	dir := t.TempDir()
	prices := filepath.Join(dir, "prices.yaml")
	require.NoError(t, os.WriteFile(prices, []byte(priceSheet), 0o644))

	return config.Config{
		JWTSecret:   "secret",
		TokenTTL:    time.Hour,
		InitialCash: decimal.NewFromInt(10000),
		Database: config.DatabaseConfig{
			Driver: config.DriverSQLite,
			Path:   filepath.Join(dir, "papertrade.db"),
		},
		Quotes: config.QuotesConfig{
			Provider:   quotes.ProviderStatic,
			PricesFile: prices,
		},
		MQ: config.MQConfig{
			Backend:       mq.BackendMemory,
			TradesChannel: "trades.executed",
		},
		Storage: config.StorageConfig{
			Backend:  storage.BackendLocal,
			LocalDir: filepath.Join(dir, "exports"),
		},
	}
}

func TestNewRequiresSecret(t *testing.T) {
	cfg := testConfig(t)
	cfg.JWTSecret = ""
	_, err := New(context.Background(), cfg)
	assert.Error(t, err)
}

func TestNewRejectsUnknownProvider(t *testing.T) {
	cfg := testConfig(t)
	cfg.Quotes.Provider = "bloomberg"
	_, err := New(context.Background(), cfg)
	assert.Error(t, err)
}

func TestServerPublishesTrades(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv, err := New(ctx, testConfig(t))
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = srv.Shutdown(context.Background())
	})
	require.NotNil(t, srv.mq)

	var mu sync.Mutex
	var events []types.TradeEvent
	go func() {
		_ = mq.SubscribeTrades(ctx, srv.mq, "trades.executed", func(_ context.Context, event types.TradeEvent) error {
			mu.Lock()
			defer mu.Unlock()
			events = append(events, event)
			return nil
		})
	}()

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp := post(t, ts.URL+"/auth/register", "", map[string]string{
		"username": "alice", "password": "pw", "confirmation": "pw",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var auth struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&auth))
	_ = resp.Body.Close()

	// The subscriber registers asynchronously; keep trading until it sees one.
	require.Eventually(t, func() bool {
		resp := post(t, ts.URL+"/trades/buy", auth.Token, map[string]any{"symbol": "aaa", "shares": 1})
		_ = resp.Body.Close()
		if resp.StatusCode != http.StatusCreated {
			return false
		}
		mu.Lock()
		defer mu.Unlock()
		return len(events) > 0
	}, 5*time.Second, 20*time.Millisecond)

	mu.Lock()
	event := events[0]
	mu.Unlock()
	assert.Equal(t, "AAA", event.Symbol)
	assert.Equal(t, int64(1), event.Shares)
	assert.Equal(t, types.TransactionBought, event.Type)
	assert.True(t, decimal.NewFromInt(10).Equal(event.Price))

	resp = post(t, ts.URL+"/history/export", auth.Token, nil)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	_ = resp.Body.Close()

	resp, err = http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "no-cache", resp.Header.Get("Pragma"))
	_ = resp.Body.Close()
}

func post(t *testing.T, url, token string, body any) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(http.MethodPost, url, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}
