package binance

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"pricealerts/internal/models"

	spot "github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/futures"
	"github.com/shopspring/decimal"
)

// spotMaxSymbols is the largest symbols=[...] list sent in one spot request.
const spotMaxSymbols = 100

// RESTClient reads last prices through the go-binance spot and futures
// clients. Both share one http.Client so the configured timeout applies to
// every call.
type RESTClient struct {
	spotAPI    *spot.Client
	futuresAPI *futures.Client
	httpClient *http.Client
}

func NewRESTClient(spotBaseURL, futuresBaseURL string, timeout time.Duration) *RESTClient {
	httpClient := &http.Client{Timeout: timeout}

	spotCli := spot.NewClient("", "")
	spotCli.BaseURL = spotBaseURL
	spotCli.HTTPClient = httpClient

	futuresCli := futures.NewClient("", "")
	futuresCli.BaseURL = futuresBaseURL
	futuresCli.HTTPClient = httpClient

	return &RESTClient{
		spotAPI:    spotCli,
		futuresAPI: futuresCli,
		httpClient: httpClient,
	}
}

func (c *RESTClient) HTTPClient() *http.Client {
	return c.httpClient
}

// BatchLimit is the number of symbols one TickerPrices call should carry for
// the market. Zero means no limit: futures prices are fetched as one full
// snapshot and filtered locally.
func (c *RESTClient) BatchLimit(market models.Market) int {
	if market == models.MarketSpot {
		return spotMaxSymbols
	}
	return 0
}

// TickerPrice fetches the last price of a single symbol.
func (c *RESTClient) TickerPrice(ctx context.Context, market models.Market, symbol string) (decimal.Decimal, error) {
	var rows map[string]string
	var err error

	switch market {
	case models.MarketSpot:
		rows, err = c.spotPrices(ctx, c.spotAPI.NewListPricesService().Symbol(symbol))
	case models.MarketFutures:
		rows, err = c.futuresPrices(ctx, c.futuresAPI.NewListPricesService().Symbol(symbol))
	default:
		return decimal.Zero, fmt.Errorf("unsupported market: %q", market)
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("price for %s: %w", symbol, err)
	}

	raw, ok := rows[symbol]
	if !ok {
		return decimal.Zero, fmt.Errorf("price for %s not returned", symbol)
	}
	return parsePrice(symbol, raw)
}

// TickerPrices fetches last prices for symbols and returns them keyed by symbol.
// Symbols missing from the response are absent from the map. Any request or
// parse failure fails the whole call.
func (c *RESTClient) TickerPrices(ctx context.Context, market models.Market,
	symbols []string) (map[string]decimal.Decimal, error) {
	if len(symbols) == 0 {
		return map[string]decimal.Decimal{}, nil
	}
	if len(symbols) == 1 {
		p, err := c.TickerPrice(ctx, market, symbols[0])
		if err != nil {
			return nil, err
		}
		return map[string]decimal.Decimal{symbols[0]: p}, nil
	}

	var rows map[string]string
	var err error

	switch market {
	case models.MarketSpot:
		if len(symbols) > spotMaxSymbols {
			return nil, fmt.Errorf("too many symbols in one request: %d > %d", len(symbols), spotMaxSymbols)
		}
		rows, err = c.spotPrices(ctx, c.spotAPI.NewListPricesService().Symbols(symbols))
	case models.MarketFutures:
		// no multi-symbol filter on futures; the full list is one request
		rows, err = c.futuresPrices(ctx, c.futuresAPI.NewListPricesService())
	default:
		return nil, fmt.Errorf("unsupported market: %q", market)
	}
	if err != nil {
		return nil, err
	}

	out := make(map[string]decimal.Decimal, len(symbols))
	for _, sym := range symbols {
		raw, ok := rows[sym]
		if !ok {
			continue
		}
		p, err := parsePrice(sym, raw)
		if err != nil {
			return nil, err
		}
		out[sym] = p
	}
	return out, nil
}

func (c *RESTClient) spotPrices(ctx context.Context, svc *spot.ListPricesService) (map[string]string, error) {
	res, err := svc.Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("spot ticker price: %w", err)
	}
	rows := make(map[string]string, len(res))
	for _, r := range res {
		rows[r.Symbol] = r.Price
	}
	return rows, nil
}

func (c *RESTClient) futuresPrices(ctx context.Context, svc *futures.ListPricesService) (map[string]string, error) {
	res, err := svc.Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("futures ticker price: %w", err)
	}
	rows := make(map[string]string, len(res))
	for _, r := range res {
		rows[r.Symbol] = r.Price
	}
	return rows, nil
}

// parsePrice keeps the exchange's decimal string exact.
func parsePrice(symbol, raw string) (decimal.Decimal, error) {
	p, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse price %q for %s: %w", raw, symbol, err)
	}
	return p, nil
}
