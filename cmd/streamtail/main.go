package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"syscall"

	"pricealerts/config"
	"pricealerts/logger"
	"pricealerts/pkg/sse"

	"go.uber.org/zap"
)

// streamtail prints the frames a running server relays on /stream, e.g.
//
//	streamtail -streams btcusdt@ticker,ethusdt@ticker
//	streamtail -market futures -endpoint trade -streams btcusdt@aggTrade
func main() {
	server := flag.String("server", "http://localhost:8080", "base URL of the price alerts server")
	streams := flag.String("streams", "btcusdt@ticker", "comma separated stream names")
	market := flag.String("market", "spot", "spot or futures")
	endpoint := flag.String("endpoint", "ticker", "ticker or trade")
	flag.Parse()

	log, err := logger.New("streamtail", config.LogConfig{Level: "info", Format: "console", Environment: "dev"})
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer log.Sync()

	target, err := url.Parse(*server)
	if err != nil {
		log.Fatal("invalid -server", zap.Error(err))
	}
	target.Path = "/stream"
	target.RawQuery = url.Values{
		"streams":  {*streams},
		"market":   {*market},
		"endpoint": {*endpoint},
	}.Encode()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := sse.NewClient(nil, log)
	err = client.Run(ctx, target.String(), func(ev sse.Event) error {
		fmt.Println(ev.Data)
		return nil
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal("stream ended", zap.Error(err))
	}
}
