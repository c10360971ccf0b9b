package quotes_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/papertrade/apiserver/config"
	"github.com/papertrade/apiserver/internal/quotes"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIEXClientLookup(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.URL.Query().Get("token"))
		switch r.URL.Path {
		case "/stock/NFLX/quote":
			_, _ = w.Write([]byte(`{"symbol":"NFLX","companyName":"Netflix, Inc.","latestPrice":512.12345}`))
		case "/stock/ZERO/quote":
			_, _ = w.Write([]byte(`{"symbol":"ZERO","companyName":"Zero","latestPrice":0}`))
		case "/stock/BAD/quote":
			_, _ = w.Write([]byte(`not json`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	client, err := quotes.NewIEXClient(srv.URL, "secret", time.Second)
	require.NoError(t, err)
	ctx := context.Background()

	quote, err := client.Lookup(ctx, " nflx ")
	require.NoError(t, err)
	assert.Equal(t, "NFLX", quote.Symbol)
	assert.Equal(t, "Netflix, Inc.", quote.Name)
	assert.Equal(t, "512.1235", quote.Price.String())

	for _, symbol := range []string{"ZERO", "BAD", "NOPE", ""} {
		_, err := client.Lookup(ctx, symbol)
		assert.ErrorIs(t, err, quotes.ErrNotFound, symbol)
	}
}

func TestIEXClientRequiresAPIKey(t *testing.T) {
	_, err := quotes.NewIEXClient("", " ", time.Second)
	assert.ErrorIs(t, err, quotes.ErrAPIKeyMissing)
}

func TestIEXClientServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client, err := quotes.NewIEXClient(srv.URL, "secret", time.Second)
	require.NoError(t, err)

	_, err = client.Lookup(context.Background(), "NFLX")
	require.Error(t, err)
	assert.NotErrorIs(t, err, quotes.ErrNotFound)
}

func TestYahooClientLookup(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v8/finance/chart/AAPL":
			_, _ = w.Write([]byte(`{"chart":{"result":[{"meta":{"symbol":"AAPL","longName":"Apple Inc.","regularMarketPrice":190.5},"indicators":{"quote":[{"close":[189.1,null]}]}}]}}`))
		case "/v8/finance/chart/MSFT":
			_, _ = w.Write([]byte(`{"chart":{"result":[{"meta":{"symbol":"MSFT","shortName":"Microsoft"},"indicators":{"quote":[{"close":[401.25,402.5,null]}]}}]}}`))
		case "/v8/finance/chart/EMPTY":
			_, _ = w.Write([]byte(`{"chart":{"result":[]}}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	client := quotes.NewYahooClient(srv.URL, time.Second)
	ctx := context.Background()

	quote, err := client.Lookup(ctx, "aapl")
	require.NoError(t, err)
	assert.Equal(t, "Apple Inc.", quote.Name)
	assert.True(t, quote.Price.Equal(decimal.RequireFromString("190.5")))

	quote, err = client.Lookup(ctx, "MSFT")
	require.NoError(t, err)
	assert.Equal(t, "Microsoft", quote.Name)
	assert.True(t, quote.Price.Equal(decimal.RequireFromString("402.5")))

	_, err = client.Lookup(ctx, "EMPTY")
	assert.ErrorIs(t, err, quotes.ErrNotFound)

	_, err = client.Lookup(ctx, "NOPE")
	assert.ErrorIs(t, err, quotes.ErrNotFound)
}

func TestStaticOracle(t *testing.T) {
	oracle := quotes.NewStatic()
	require.NoError(t, oracle.Set("nflx", "Netflix", decimal.NewFromInt(100)))
	assert.Error(t, oracle.Set("ZERO", "Zero", decimal.Zero))

	quote, err := oracle.Lookup(context.Background(), "NFLX")
	require.NoError(t, err)
	assert.Equal(t, "NFLX", quote.Symbol)
	assert.True(t, quote.Price.Equal(decimal.NewFromInt(100)))

	oracle.Remove("NFLX")
	_, err = oracle.Lookup(context.Background(), "NFLX")
	assert.ErrorIs(t, err, quotes.ErrNotFound)
}

func TestLoadStaticAndFactory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prices.yaml")
	sheet := "prices:\n  NFLX:\n    name: Netflix, Inc.\n    price: \"512.35\"\n  aapl:\n    price: \"190\"\n"
	require.NoError(t, os.WriteFile(path, []byte(sheet), 0o600))

	oracle, err := quotes.New(config.QuotesConfig{Provider: quotes.ProviderStatic, PricesFile: path})
	require.NoError(t, err)

	quote, err := oracle.Lookup(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, "AAPL", quote.Name)
	assert.Equal(t, "190", quote.Price.String())

	_, err = quotes.New(config.QuotesConfig{Provider: "bloomberg"})
	assert.Error(t, err)

	_, err = quotes.LoadStatic(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
