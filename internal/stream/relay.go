// Package stream relays Binance combined WebSocket streams to browsers as
// Server-Sent Events. Each relay owns one upstream connection for its
// lifetime and never reconnects; the browser's EventSource does that.
package stream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"pricealerts/config"
	"pricealerts/internal/apperr"
	"pricealerts/internal/metrics"
	"pricealerts/internal/models"
	"pricealerts/pkg/binance"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const defaultKeepAlive = 15 * time.Second

// Request is a validated /stream query.
type Request struct {
	Streams  []string
	Market   models.Market
	Endpoint binance.Endpoint
}

// ParseRequest reads streams, market and endpoint from q. Market defaults to
// spot and endpoint to ticker.
func ParseRequest(q url.Values) (Request, error) {
	streams, err := binance.SplitStreams(q.Get("streams"))
	if err != nil {
		return Request{}, apperr.New(http.StatusBadRequest, err.Error())
	}
	if len(streams) == 0 {
		return Request{}, apperr.ErrNoStreams
	}

	req := Request{Streams: streams, Market: models.MarketSpot, Endpoint: binance.EndpointTicker}
	if m := q.Get("market"); m != "" {
		if req.Market, err = models.ParseMarket(m); err != nil {
			return Request{}, apperr.New(http.StatusBadRequest, err.Error())
		}
	}
	if e := q.Get("endpoint"); e != "" {
		if req.Endpoint, err = binance.ParseEndpoint(e); err != nil {
			return Request{}, apperr.New(http.StatusBadRequest, err.Error())
		}
	}
	return req, nil
}

// Dialer opens the upstream WebSocket. *websocket.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, urlStr string, requestHeader http.Header) (*websocket.Conn, *http.Response, error)
}

// Frame is the JSON shape of relay-generated events.
type Frame struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	URL     string `json:"url,omitempty"`
	Code    int    `json:"code,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

type Relay struct {
	ws        config.WSConfig
	dialer    Dialer
	keepAlive time.Duration
	logger    *zap.Logger
}

func NewRelay(ws config.WSConfig, dialer Dialer, logger *zap.Logger) *Relay {
	if dialer == nil {
		dialer = &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: ws.DialTimeout,
		}
	}
	keepAlive := ws.KeepAlive
	if keepAlive <= 0 {
		keepAlive = defaultKeepAlive
	}
	return &Relay{ws: ws, dialer: dialer, keepAlive: keepAlive, logger: logger}
}

type upstreamMsg struct {
	data []byte
	err  error
}

// Serve streams req to w until the upstream closes or ctx ends. Ending ctx
// (the client went away) closes the upstream connection.
func (r *Relay) Serve(ctx context.Context, w http.ResponseWriter, req Request) error {
	target, err := binance.StreamURL(r.ws, req.Market, req.Endpoint, req.Streams)
	if err != nil {
		return apperr.New(http.StatusBadRequest, err.Error())
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		return apperr.New(http.StatusInternalServerError, "streaming unsupported")
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache, no-transform")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	sse := &eventWriter{w: w, flusher: flusher}
	log := r.logger.With(zap.String("url", target))

	conn, _, err := r.dialer.DialContext(ctx, target, nil)
	if err != nil {
		log.Warn("upstream connect failed", zap.Error(err))
		_ = sse.frame(Frame{Type: "error", Message: "upstream connect failed: " + err.Error()})
		return nil
	}
	defer conn.Close()

	metrics.StreamRelaysOpen.Inc()
	defer metrics.StreamRelaysOpen.Dec()
	log.Info("stream relay opened", zap.Strings("streams", req.Streams))

	if err := sse.frame(Frame{Type: "status", Message: "connected", URL: target}); err != nil {
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	msgs := make(chan upstreamMsg)
	go func() {
		for {
			_, data, err := conn.ReadMessage()
			select {
			case msgs <- upstreamMsg{data: data, err: err}:
			case <-ctx.Done():
				return
			}
			if err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(r.keepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			// unblocks the reader goroutine
			_ = conn.Close()
			log.Info("stream client disconnected")
			return nil

		case <-ticker.C:
			if err := sse.comment("keep-alive"); err != nil {
				return nil
			}

		case m := <-msgs:
			if m.err != nil {
				r.upstreamClosed(log, sse, m.err)
				return nil
			}
			if err := sse.passthrough(m.data); err != nil {
				return nil
			}
		}
	}
}

func (r *Relay) upstreamClosed(log *zap.Logger, sse *eventWriter, err error) {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		log.Info("upstream closed", zap.Int("code", ce.Code), zap.String("reason", ce.Text))
		_ = sse.frame(Frame{Type: "status", Message: "closed", Code: ce.Code, Reason: ce.Text})
		return
	}
	log.Warn("upstream read failed", zap.Error(err))
	_ = sse.frame(Frame{Type: "error", Message: "upstream read failed: " + err.Error()})
}

type eventWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func (e *eventWriter) data(b []byte) error {
	if _, err := fmt.Fprintf(e.w, "data: %s\n\n", b); err != nil {
		return err
	}
	e.flusher.Flush()
	return nil
}

func (e *eventWriter) frame(f Frame) error {
	b, err := json.Marshal(f)
	if err != nil {
		return err
	}
	metrics.StreamFrames.WithLabelValues(f.Type).Inc()
	return e.data(b)
}

func (e *eventWriter) comment(text string) error {
	if _, err := fmt.Fprintf(e.w, ": %s\n\n", text); err != nil {
		return err
	}
	e.flusher.Flush()
	return nil
}

// passthrough forwards an upstream JSON message as one data line. Invalid
// JSON becomes an error frame.
func (e *eventWriter) passthrough(msg []byte) error {
	if !json.Valid(msg) {
		return e.frame(Frame{Type: "error", Message: "malformed upstream message"})
	}
	if bytes.ContainsAny(msg, "\r\n") {
		var buf bytes.Buffer
		if err := json.Compact(&buf, msg); err != nil {
			return err
		}
		msg = buf.Bytes()
	}
	metrics.StreamFrames.WithLabelValues("data").Inc()
	return e.data(msg)
}
