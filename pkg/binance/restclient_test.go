package binance

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"pricealerts/internal/models"

	"github.com/adshao/go-binance/v2/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newFakeExchange serves the spot and futures /ticker/price endpoints the
// go-binance clients call once their BaseURL points here.
func newFakeExchange(t *testing.T) (*httptest.Server, *[]string) {
	t.Helper()
	var seen []string

	spot := map[string]string{"BTCUSDT": "50125.00", "ETHUSDT": "3012.5", "DOGEUSDT": "0.08123"}
	fut := map[string]string{"BTCUSDT": "50150.10", "SOLUSDT": "140.2"}

	writeRows := func(w http.ResponseWriter, prices map[string]string, only []string) {
		rows := []map[string]string{}
		for _, s := range only {
			if p, ok := prices[s]; ok {
				rows = append(rows, map[string]string{"symbol": s, "price": p})
			}
		}
		_ = json.NewEncoder(w).Encode(rows)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v3/ticker/price", func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, r.URL.RawQuery)
		if s := r.URL.Query().Get("symbol"); s != "" {
			p, ok := spot[s]
			if !ok {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(`{"code":-1121,"msg":"Invalid symbol."}`))
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]string{"symbol": s, "price": p})
			return
		}
		var list []string
		_ = json.Unmarshal([]byte(r.URL.Query().Get("symbols")), &list)
		for _, s := range list {
			if _, ok := spot[s]; !ok {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(`{"code":-1121,"msg":"Invalid symbol."}`))
				return
			}
		}
		writeRows(w, spot, list)
	})
	mux.HandleFunc("/fapi/v1/ticker/price", func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, r.URL.RawQuery)
		if s := r.URL.Query().Get("symbol"); s != "" {
			_ = json.NewEncoder(w).Encode(map[string]any{"symbol": s, "price": fut[s], "time": 1})
			return
		}
		writeRows(w, fut, []string{"BTCUSDT", "SOLUSDT"})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &seen
}

// go test -v --run TestTickerPricesSpotBatch
func TestTickerPricesSpotBatch(t *testing.T) {
	srv, seen := newFakeExchange(t)
	client := NewRESTClient(srv.URL, srv.URL, 5*time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	prices, err := client.TickerPrices(ctx, models.MarketSpot, []string{"BTCUSDT", "ETHUSDT"})
	require.NoError(t, err)

	assert.True(t, decimal.RequireFromString("50125").Equal(prices["BTCUSDT"]))
	assert.True(t, decimal.RequireFromString("3012.5").Equal(prices["ETHUSDT"]))
	require.Len(t, *seen, 1)
	assert.Contains(t, (*seen)[0], "symbols=")
}

func TestTickerPricesSingleUsesSymbolParam(t *testing.T) {
	srv, seen := newFakeExchange(t)
	client := NewRESTClient(srv.URL, srv.URL, 5*time.Second)

	prices, err := client.TickerPrices(context.Background(), models.MarketSpot, []string{"DOGEUSDT"})
	require.NoError(t, err)
	assert.Equal(t, "0.08123", prices["DOGEUSDT"].String())
	assert.Equal(t, []string{"symbol=DOGEUSDT"}, *seen)
}

func TestTickerPricesFuturesFiltersSnapshot(t *testing.T) {
	srv, _ := newFakeExchange(t)
	client := NewRESTClient(srv.URL, srv.URL, 5*time.Second)

	prices, err := client.TickerPrices(context.Background(), models.MarketFutures, []string{"BTCUSDT", "XRPUSDT"})
	require.NoError(t, err)
	assert.Len(t, prices, 1)
	assert.Equal(t, "50150.1", prices["BTCUSDT"].String())
}

// go test -v --run TestTickerPriceAPIError
func TestTickerPriceAPIError(t *testing.T) {
	srv, _ := newFakeExchange(t)
	client := NewRESTClient(srv.URL, srv.URL, 5*time.Second)

	_, err := client.TickerPrice(context.Background(), models.MarketSpot, "NOPEUSDT")
	require.Error(t, err)

	var apiErr *common.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, int64(-1121), apiErr.Code)
}

func TestTickerPricesSpotBatchFailsAsOne(t *testing.T) {
	srv, _ := newFakeExchange(t)
	client := NewRESTClient(srv.URL, srv.URL, 5*time.Second)

	_, err := client.TickerPrices(context.Background(), models.MarketSpot, []string{"BTCUSDT", "NOPEUSDT"})
	assert.Error(t, err)
}

func TestTickerPriceFuturesSingle(t *testing.T) {
	srv, seen := newFakeExchange(t)
	client := NewRESTClient(srv.URL, srv.URL, 5*time.Second)

	p, err := client.TickerPrice(context.Background(), models.MarketFutures, "SOLUSDT")
	require.NoError(t, err)
	assert.Equal(t, "140.2", p.String())
	assert.Equal(t, []string{"symbol=SOLUSDT"}, *seen)
}

func TestTickerPricesRejectsOversizedSpotBatch(t *testing.T) {
	client := NewRESTClient("http://unused", "http://unused", time.Second)

	symbols := make([]string, spotMaxSymbols+1)
	for i := range symbols {
		symbols[i] = "S"
	}
	_, err := client.TickerPrices(context.Background(), models.MarketSpot, symbols)
	assert.Error(t, err)
}

func TestBatchLimit(t *testing.T) {
	client := NewRESTClient("", "", time.Second)
	assert.Equal(t, 100, client.BatchLimit(models.MarketSpot))
	assert.Equal(t, 0, client.BatchLimit(models.MarketFutures))
}
