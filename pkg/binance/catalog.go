package binance

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"pricealerts/internal/models"

	spot "github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/futures"
	"github.com/patrickmn/go-cache"
)

const statusTrading = "TRADING"

// Catalog answers whether a symbol is currently tradable on a market.
// Exchange info is fetched through go-binance and cached per market.
type Catalog struct {
	spotAPI    *spot.Client
	futuresAPI *futures.Client
	cache      *cache.Cache
}

func NewCatalog(spotBaseURL, futuresBaseURL string, httpClient *http.Client, ttl time.Duration) *Catalog {
	spotCli := spot.NewClient("", "")
	spotCli.BaseURL = spotBaseURL
	futuresCli := futures.NewClient("", "")
	futuresCli.BaseURL = futuresBaseURL
	if httpClient != nil {
		spotCli.HTTPClient = httpClient
		futuresCli.HTTPClient = httpClient
	}

	return &Catalog{
		spotAPI:    spotCli,
		futuresAPI: futuresCli,
		cache:      cache.New(ttl, 2*ttl),
	}
}

func (c *Catalog) IsTradable(ctx context.Context, market models.Market, symbol string) (bool, error) {
	symbols, err := c.Symbols(ctx, market)
	if err != nil {
		return false, err
	}
	return symbols[symbol], nil
}

// Symbols returns the set of symbols in TRADING status for market.
func (c *Catalog) Symbols(ctx context.Context, market models.Market) (map[string]bool, error) {
	key := "symbols:" + string(market)
	if v, found := c.cache.Get(key); found {
		return v.(map[string]bool), nil
	}

	symbols := make(map[string]bool)
	switch market {
	case models.MarketSpot:
		info, err := c.spotAPI.NewExchangeInfoService().Do(ctx)
		if err != nil {
			return nil, fmt.Errorf("spot exchange info: %w", err)
		}
		for _, s := range info.Symbols {
			if s.Status == statusTrading {
				symbols[s.Symbol] = true
			}
		}
	case models.MarketFutures:
		info, err := c.futuresAPI.NewExchangeInfoService().Do(ctx)
		if err != nil {
			return nil, fmt.Errorf("futures exchange info: %w", err)
		}
		for _, s := range info.Symbols {
			if s.Status == statusTrading {
				symbols[s.Symbol] = true
			}
		}
	default:
		return nil, fmt.Errorf("unsupported market: %q", market)
	}

	c.cache.Set(key, symbols, cache.DefaultExpiration)
	return symbols, nil
}

// Invalidate drops the cached symbol sets so the next lookup refetches them.
func (c *Catalog) Invalidate() {
	c.cache.Flush()
}
