package quotes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/papertrade/apiserver/types"
	"github.com/shopspring/decimal"
)

const defaultIEXBaseURL = "https://cloud.iexapis.com/stable"

var ErrAPIKeyMissing = errors.New("quotes API key not set")

// IEXClient queries an IEX Cloud compatible quote endpoint:
// GET {base}/stock/{symbol}/quote?token={key}.
type IEXClient struct {
	baseURL string
	apiKey  string
	cli     *http.Client
}

func NewIEXClient(baseURL, apiKey string, timeout time.Duration) (*IEXClient, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, ErrAPIKeyMissing
	}
	if baseURL == "" {
		baseURL = defaultIEXBaseURL
	}
	return &IEXClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		cli:     &http.Client{Timeout: timeout},
	}, nil
}

func (c *IEXClient) Lookup(ctx context.Context, symbol string) (types.Quote, error) {
	symbol = NormalizeSymbol(symbol)
	if symbol == "" {
		return types.Quote{}, ErrNotFound
	}

	endpoint := fmt.Sprintf("%s/stock/%s/quote?token=%s",
		c.baseURL, url.PathEscape(symbol), url.QueryEscape(c.apiKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return types.Quote{}, err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.cli.Do(req)
	if err != nil {
		return types.Quote{}, fmt.Errorf("iex request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return types.Quote{}, fmt.Errorf("%w: %s", ErrNotFound, symbol)
	case resp.StatusCode != http.StatusOK:
		return types.Quote{}, fmt.Errorf("iex http %d", resp.StatusCode)
	}

	var raw struct {
		Symbol      string          `json:"symbol"`
		CompanyName string          `json:"companyName"`
		LatestPrice decimal.Decimal `json:"latestPrice"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return types.Quote{}, fmt.Errorf("%w: %s: malformed response: %v", ErrNotFound, symbol, err)
	}
	if raw.Symbol != "" {
		symbol = NormalizeSymbol(raw.Symbol)
	}
	return newQuote(symbol, raw.CompanyName, raw.LatestPrice)
}
