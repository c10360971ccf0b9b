package services

import (
	"context"
	"sort"
	"time"

	"github.com/papertrade/apiserver/internal/quotes"
	"github.com/papertrade/apiserver/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const defaultQuoteConcurrency = 8

// PortfolioService values a user's holdings at current prices.
type PortfolioService struct {
	ledger      LedgerRepository
	oracle      quotes.Oracle
	concurrency int
	now         func() time.Time
}

func NewPortfolioService(ledger LedgerRepository, oracle quotes.Oracle) *PortfolioService {
	return &PortfolioService{
		ledger:      ledger,
		oracle:      oracle,
		concurrency: defaultQuoteConcurrency,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Project derives the user's portfolio from the ledger. A symbol the oracle
// cannot price is returned with Available=false and left out of TotalAssets.
func (s *PortfolioService) Project(ctx context.Context, userID int) (types.Portfolio, error) {
	// Cash and holdings come from one snapshot; quotes are fetched after it
	// so the read transaction stays short.
	snapshot, err := s.ledger.Snapshot(ctx, userID)
	if err != nil {
		return types.Portfolio{}, err
	}
	cash := snapshot.Cash

	holdings := make([]types.Holding, 0, len(snapshot.Shares))
	for symbol, shares := range snapshot.Shares {
		if shares <= 0 {
			continue
		}
		holdings = append(holdings, types.Holding{Symbol: symbol, Shares: shares})
	}
	sort.Slice(holdings, func(i, j int) bool {
		return holdings[i].Symbol < holdings[j].Symbol
	})

	if len(holdings) > 0 {
		positions, err := ReplayPositions(Entries(snapshot.Entries))
		if err != nil {
			return types.Portfolio{}, err
		}
		for i := range holdings {
			pos := positions[holdings[i].Symbol]
			holdings[i].Name = pos.Name
			holdings[i].AverageCost = pos.AverageCost()
		}
	}

	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for i := range holdings {
		h := &holdings[i]
		g.Go(func() error {
			quote, err := s.oracle.Lookup(ctx, h.Symbol)
			if err != nil {
				zap.L().Warn("Failed to price holding",
					zap.Int("user_id", userID),
					zap.String("symbol", h.Symbol),
					zap.Error(err))
				return nil
			}
			price := quote.Price
			value := price.Mul(decimal.NewFromInt(h.Shares))
			h.Price = &price
			h.MarketValue = &value
			h.Available = true
			if quote.Name != "" {
				h.Name = quote.Name
			}
			return nil
		})
	}
	_ = g.Wait()

	total := cash
	for _, h := range holdings {
		if h.Available {
			total = total.Add(*h.MarketValue)
		}
	}

	return types.Portfolio{
		Cash:        cash,
		Holdings:    holdings,
		TotalAssets: total,
		PricedAt:    s.now(),
	}, nil
}
