package rates

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUSDToSGD(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/latest", r.URL.Path)
		assert.Equal(t, "USD", r.URL.Query().Get("from"))
		assert.Equal(t, "SGD", r.URL.Query().Get("to"))
		w.Write([]byte(`{"amount":1.0,"base":"USD","date":"2025-08-22","rates":{"SGD":1.3521}}`))
	}))
	defer server.Close()

	service := NewService()
	service.frankfurterURL = server.URL

	rate, err := service.USDToSGD(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1.3521, rate)
}

func TestUSDToSGDMissingRate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"rates":{}}`))
	}))
	defer server.Close()

	service := NewService()
	service.frankfurterURL = server.URL

	_, err := service.USDToSGD(context.Background())
	assert.Error(t, err)
}

func TestUSDToBitcoin(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/ticker", r.URL.Path)
		w.Write([]byte(`{"USD":{"15m":118432.17,"last":118432.17,"buy":118432.17,"sell":118432.17,"symbol":"$"},"EUR":{"15m":101200.5}}`))
	}))
	defer server.Close()

	service := NewService()
	service.blockchainURL = server.URL

	price, err := service.USDToBitcoin(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 118432.17, price)
}

func TestUSDToBitcoinMissingUSD(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"EUR":{"15m":101200.5}}`))
	}))
	defer server.Close()

	service := NewService()
	service.blockchainURL = server.URL

	_, err := service.USDToBitcoin(context.Background())
	assert.Error(t, err)
}

func TestRatesUpstreamFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer server.Close()

	service := NewService()
	service.frankfurterURL = server.URL
	service.blockchainURL = server.URL

	_, err := service.USDToSGD(context.Background())
	assert.Error(t, err)

	_, err = service.USDToBitcoin(context.Background())
	assert.Error(t, err)
}
