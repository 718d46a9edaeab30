package binance

import (
	"fmt"
	"regexp"
	"strings"

	"pricealerts/config"
	"pricealerts/internal/models"
)

// Endpoint selects the kind of upstream feed a stream relay attaches to.
type Endpoint string

const (
	EndpointTicker Endpoint = "ticker"
	EndpointTrade  Endpoint = "trade"
)

func ParseEndpoint(s string) (Endpoint, error) {
	switch e := Endpoint(strings.ToLower(strings.TrimSpace(s))); e {
	case EndpointTicker, EndpointTrade:
		return e, nil
	}
	return "", fmt.Errorf("invalid endpoint: %q", s)
}

// e.g. "btcusdt@ticker", "!miniTicker@arr", "ethusdt@kline_1m"
var streamNamePattern = regexp.MustCompile(`^[A-Za-z0-9@_!.\-]+$`)

// SplitStreams parses a comma or slash separated stream list, dropping blanks.
func SplitStreams(raw string) ([]string, error) {
	fields := strings.FieldsFunc(raw, func(r rune) bool { return r == ',' || r == '/' })

	streams := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		if !streamNamePattern.MatchString(f) {
			return nil, fmt.Errorf("invalid stream name: %q", f)
		}
		streams = append(streams, f)
	}
	return streams, nil
}

// StreamURL builds the combined-stream URL for market and endpoint.
// Futures streams share one host; spot ticker streams use the explicit
// secure port while spot trade streams do not.
func StreamURL(ws config.WSConfig, market models.Market, endpoint Endpoint, streams []string) (string, error) {
	if len(streams) == 0 {
		return "", fmt.Errorf("no streams requested")
	}

	var base string
	switch {
	case market == models.MarketFutures:
		base = ws.FuturesURL
	case market == models.MarketSpot && endpoint == EndpointTicker:
		base = ws.SpotTickerURL
	case market == models.MarketSpot && endpoint == EndpointTrade:
		base = ws.SpotTradeURL
	default:
		return "", fmt.Errorf("unsupported market/endpoint: %s/%s", market, endpoint)
	}

	return base + "?streams=" + strings.Join(streams, "/"), nil
}
