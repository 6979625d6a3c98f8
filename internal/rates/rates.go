// Package rates fetches the currency reference rates the alert tasks
// watch.
package rates

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Service answers currency-rate lookups from public reference APIs.
type Service struct {
	frankfurterURL string
	blockchainURL  string
	httpClient     *http.Client
}

// NewService creates a rate service against the public endpoints.
func NewService() *Service {
	return &Service{
		frankfurterURL: "https://api.frankfurter.app",
		blockchainURL:  "https://blockchain.info",
		httpClient:     &http.Client{Timeout: 10 * time.Second},
	}
}

// USDToSGD returns how many Singapore dollars one US dollar buys.
func (s *Service) USDToSGD(ctx context.Context) (float64, error) {
	var payload struct {
		Rates struct {
			SGD float64 `json:"SGD"`
		} `json:"rates"`
	}
	if err := s.getJSON(ctx, s.frankfurterURL+"/latest?from=USD&to=SGD", &payload); err != nil {
		return 0, fmt.Errorf("fetching USD/SGD rate: %w", err)
	}
	if payload.Rates.SGD == 0 {
		return 0, fmt.Errorf("USD/SGD rate missing from response")
	}
	return payload.Rates.SGD, nil
}

// USDToBitcoin returns the bitcoin price in US dollars, delayed up to
// fifteen minutes.
func (s *Service) USDToBitcoin(ctx context.Context) (float64, error) {
	var payload map[string]struct {
		FifteenMin float64 `json:"15m"`
	}
	if err := s.getJSON(ctx, s.blockchainURL+"/ticker", &payload); err != nil {
		return 0, fmt.Errorf("fetching bitcoin ticker: %w", err)
	}
	usd, ok := payload["USD"]
	if !ok || usd.FifteenMin == 0 {
		return 0, fmt.Errorf("USD entry missing from bitcoin ticker")
	}
	return usd.FifteenMin, nil
}

func (s *Service) getJSON(ctx context.Context, url string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
