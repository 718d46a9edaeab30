// Package sse consumes Server-Sent Event streams and reconnects with
// exponential backoff when the stream drops.
package sse

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

const maxLineSize = 1 << 20

// Event is one dispatched SSE event. Type defaults to "message".
type Event struct {
	Type string
	ID   string
	Data string
}

// Handler receives events. Returning an error stops Run with that error.
type Handler func(Event) error

type Client struct {
	http       *http.Client
	logger     *zap.Logger
	newBackOff func() backoff.BackOff
}

type Option func(*Client)

// WithBackOff replaces the reconnect policy.
func WithBackOff(f func() backoff.BackOff) Option {
	return func(c *Client) { c.newBackOff = f }
}

func NewClient(httpClient *http.Client, logger *zap.Logger, opts ...Option) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	c := &Client{http: httpClient, logger: logger, newBackOff: defaultBackOff}
	for _, o := range opts {
		o(c)
	}
	return c
}

// defaultBackOff waits 1s, growing to 30s, and never gives up.
func defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.MaxInterval = 30 * time.Second
	b.MaxElapsedTime = 0
	return b
}

type handlerError struct{ err error }

func (e *handlerError) Error() string { return e.err.Error() }
func (e *handlerError) Unwrap() error { return e.err }

// Run consumes url until ctx ends or h fails. Dropped or refused connections
// are retried; the delay resets after every successful connect.
func (c *Client) Run(ctx context.Context, url string, h Handler) error {
	b := c.newBackOff()

	for {
		connected, err := c.consume(ctx, url, h)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		var he *handlerError
		if errors.As(err, &he) {
			return he.err
		}
		if connected {
			b.Reset()
		}

		wait := b.NextBackOff()
		if wait == backoff.Stop {
			return fmt.Errorf("giving up on %s: %w", url, err)
		}
		c.logger.Warn("event stream dropped, reconnecting",
			zap.String("url", url),
			zap.Duration("wait", wait),
			zap.Error(err))

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// consume reads one connection. connected reports whether the server
// accepted the stream.
func (c *Client) consume(ctx context.Context, url string, h Handler) (connected bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, &handlerError{err: err}
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.http.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	c.logger.Info("event stream connected", zap.String("url", url))

	sc := bufio.NewScanner(resp.Body)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	var (
		ev   Event
		data []string
	)
	for sc.Scan() {
		line := sc.Text()

		if line == "" {
			if len(data) > 0 {
				ev.Data = strings.Join(data, "\n")
				if ev.Type == "" {
					ev.Type = "message"
				}
				if err := h(ev); err != nil {
					return true, &handlerError{err: err}
				}
			}
			ev, data = Event{}, data[:0]
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "event":
			ev.Type = value
		case "data":
			data = append(data, value)
		case "id":
			ev.ID = value
		}
	}
	if err := sc.Err(); err != nil {
		return true, err
	}
	return true, errors.New("stream closed by server")
}
