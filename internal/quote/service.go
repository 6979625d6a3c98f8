// Package quote resolves current stock prices through the market-data
// feed, with a short cache so the check loop and the API don't hammer
// the upstream.
package quote

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"golang.org/x/time/rate"

	"tradewatch/pkg/cache"
)

// ErrInvalidStockCode marks stock codes the service cannot resolve to a
// US market symbol.
var ErrInvalidStockCode = errors.New("invalid stock code")

// TradeFetcher is the slice of the market-data client the service needs.
// The trading simulator implements it too, so simulated runs answer
// price lookups from their scripted quotes.
type TradeFetcher interface {
	GetLatestTrade(symbol string, req marketdata.GetLatestTradeRequest) (*marketdata.Trade, error)
}

// ParseSymbol converts an exchange-qualified stock code to the bare
// symbol the feed expects. Codes may carry a "US." prefix; other markets
// are not served.
func ParseSymbol(stockCode string) (string, error) {
	if stockCode == "" {
		return "", fmt.Errorf("%w: empty stock code", ErrInvalidStockCode)
	}
	market, symbol, found := strings.Cut(stockCode, ".")
	if !found {
		return stockCode, nil
	}
	if market != "US" || symbol == "" {
		return "", fmt.Errorf("%w: %q, only US market codes are served", ErrInvalidStockCode, stockCode)
	}
	return symbol, nil
}

// Service answers price lookups against the feed, caching each symbol
// for a short window and rate limiting what still goes upstream.
type Service struct {
	fetcher TradeFetcher
	cache   *cache.TTL[string, float64]
	limiter *rate.Limiter
}

// NewService builds a Service. ttl bounds how stale a served price can
// be; requestsPerMinute caps upstream calls on cache misses.
func NewService(fetcher TradeFetcher, ttl time.Duration, requestsPerMinute int) *Service {
	if requestsPerMinute <= 0 {
		requestsPerMinute = 60
	}
	return &Service{
		fetcher: fetcher,
		cache:   cache.New[string, float64](ttl),
		limiter: rate.NewLimiter(rate.Limit(float64(requestsPerMinute))/60, 10),
	}
}

// Price returns the latest trade price for the given stock code. It
// satisfies the quote source the buy-order policy consumes.
func (s *Service) Price(ctx context.Context, stockCode string) (float64, error) {
	symbol, err := ParseSymbol(stockCode)
	if err != nil {
		return 0, err
	}

	return s.cache.GetOrFetch(symbol, func() (float64, error) {
		if err := s.limiter.Wait(ctx); err != nil {
			return 0, err
		}
		trade, err := s.fetcher.GetLatestTrade(symbol, marketdata.GetLatestTradeRequest{})
		if err != nil {
			return 0, fmt.Errorf("latest trade for %s: %w", symbol, err)
		}
		if trade == nil || trade.Price <= 0 {
			return 0, fmt.Errorf("no trade price for %s", symbol)
		}
		return trade.Price, nil
	})
}
