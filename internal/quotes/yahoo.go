package quotes

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/papertrade/apiserver/types"
	"github.com/shopspring/decimal"
)

const defaultYahooBaseURL = "https://query2.finance.yahoo.com"

// YahooClient reads the regular market price from the Yahoo Finance v8
// chart endpoint. No API key is needed.
type YahooClient struct {
	baseURL string
	cli     *http.Client
}

func NewYahooClient(baseURL string, timeout time.Duration) *YahooClient {
	if baseURL == "" {
		baseURL = defaultYahooBaseURL
	}
	return &YahooClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		cli:     &http.Client{Timeout: timeout},
	}
}

func (c *YahooClient) Lookup(ctx context.Context, symbol string) (types.Quote, error) {
	symbol = NormalizeSymbol(symbol)
	if symbol == "" {
		return types.Quote{}, ErrNotFound
	}

	endpoint := fmt.Sprintf("%s/v8/finance/chart/%s?interval=1m&range=1d", c.baseURL, url.PathEscape(symbol))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return types.Quote{}, err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.cli.Do(req)
	if err != nil {
		return types.Quote{}, fmt.Errorf("yahoo request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return types.Quote{}, fmt.Errorf("%w: %s", ErrNotFound, symbol)
	case resp.StatusCode != http.StatusOK:
		return types.Quote{}, fmt.Errorf("yahoo http %d", resp.StatusCode)
	}

	var raw struct {
		Chart struct {
			Result []struct {
				Meta struct {
					Symbol             string          `json:"symbol"`
					LongName           string          `json:"longName"`
					ShortName          string          `json:"shortName"`
					RegularMarketPrice decimal.Decimal `json:"regularMarketPrice"`
				} `json:"meta"`
				Indicators struct {
					Quote []struct {
						Close []decimal.NullDecimal `json:"close"`
					} `json:"quote"`
				} `json:"indicators"`
			} `json:"result"`
		} `json:"chart"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return types.Quote{}, fmt.Errorf("%w: %s: malformed response: %v", ErrNotFound, symbol, err)
	}
	if len(raw.Chart.Result) == 0 {
		return types.Quote{}, fmt.Errorf("%w: %s", ErrNotFound, symbol)
	}

	r := raw.Chart.Result[0]
	price := r.Meta.RegularMarketPrice

	// Fall back to the last non-null close when meta carries no price.
	if !price.IsPositive() && len(r.Indicators.Quote) > 0 {
		closes := r.Indicators.Quote[0].Close
		for i := len(closes) - 1; i >= 0; i-- {
			if closes[i].Valid && closes[i].Decimal.IsPositive() {
				price = closes[i].Decimal
				break
			}
		}
	}

	name := r.Meta.LongName
	if name == "" {
		name = r.Meta.ShortName
	}
	if r.Meta.Symbol != "" {
		symbol = NormalizeSymbol(r.Meta.Symbol)
	}
	return newQuote(symbol, name, price)
}
