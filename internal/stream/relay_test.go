package stream

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"pricealerts/config"
	"pricealerts/internal/apperr"
	"pricealerts/internal/models"
	"pricealerts/pkg/binance"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// newUpstream starts a fake exchange stream endpoint driven by script.
func newUpstream(t *testing.T, script func(conn *websocket.Conn, r *http.Request)) (*httptest.Server, config.WSConfig) {
	t.Helper()
	upgrader := websocket.Upgrader{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		script(conn, r)
	}))
	t.Cleanup(srv.Close)

	base := "ws" + strings.TrimPrefix(srv.URL, "http") + "/stream"
	return srv, config.WSConfig{
		SpotTickerURL: base,
		SpotTradeURL:  base,
		FuturesURL:    base,
		KeepAlive:     time.Hour,
		DialTimeout:   time.Second,
	}
}

func serveRelay(t *testing.T, relay *Relay, req Request) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = relay.Serve(r.Context(), w, req)
	}))
	t.Cleanup(srv.Close)
	return srv
}

// readEvents collects non-empty SSE lines until the stream ends.
func readEvents(t *testing.T, resp *http.Response) []string {
	t.Helper()
	var lines []string
	sc := bufio.NewScanner(resp.Body)
	for sc.Scan() {
		if line := sc.Text(); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

func decodeFrame(t *testing.T, line string) Frame {
	t.Helper()
	require.True(t, strings.HasPrefix(line, "data: "), line)
	var f Frame
	require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &f))
	return f
}

func TestParseRequest(t *testing.T) {
	testCases := []struct {
		query   string
		want    Request
		wantErr error
	}{
		{
			query: "streams=btcusdt@ticker,ethusdt@ticker",
			want:  Request{Streams: []string{"btcusdt@ticker", "ethusdt@ticker"}, Market: models.MarketSpot, Endpoint: binance.EndpointTicker},
		},
		{
			query: "streams=btcusdt@aggTrade&market=futures&endpoint=trade",
			want:  Request{Streams: []string{"btcusdt@aggTrade"}, Market: models.MarketFutures, Endpoint: binance.EndpointTrade},
		},
		{query: "streams=", wantErr: apperr.ErrNoStreams},
		{query: "market=spot", wantErr: apperr.ErrNoStreams},
	}

	for _, tt := range testCases {
		t.Run(tt.query, func(t *testing.T) {
			q, err := url.ParseQuery(tt.query)
			require.NoError(t, err)

			got, err := ParseRequest(q)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	for _, bad := range []string{"streams=a@b&market=margin", "streams=a@b&endpoint=depth", "streams=a b"} {
		q, _ := url.ParseQuery(bad)
		_, err := ParseRequest(q)

		var appErr apperr.Error
		require.ErrorAs(t, err, &appErr, bad)
		assert.Equal(t, http.StatusBadRequest, appErr.StatusCode)
	}
}

// go test -v --run TestRelayForwardsFrames
func TestRelayForwardsFrames(t *testing.T) {
	gotQuery := make(chan string, 1)
	_, ws := newUpstream(t, func(conn *websocket.Conn, r *http.Request) {
		gotQuery <- r.URL.Query().Get("streams")
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"stream":"btcusdt@ticker","data":{"c":"50125.00"}}`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{not json`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte("{\n  \"e\": 1\n}"))
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"))
		_, _, _ = conn.ReadMessage()
	})

	relay := NewRelay(ws, nil, zap.NewNop())
	srv := serveRelay(t, relay, Request{
		Streams:  []string{"btcusdt@ticker", "ethusdt@ticker"},
		Market:   models.MarketSpot,
		Endpoint: binance.EndpointTicker,
	})

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	lines := readEvents(t, resp)
	require.Len(t, lines, 5)

	connected := decodeFrame(t, lines[0])
	assert.Equal(t, "status", connected.Type)
	assert.Equal(t, "connected", connected.Message)
	assert.Contains(t, connected.URL, "streams=btcusdt@ticker/ethusdt@ticker")

	assert.Equal(t, `data: {"stream":"btcusdt@ticker","data":{"c":"50125.00"}}`, lines[1])
	assert.Equal(t, "error", decodeFrame(t, lines[2]).Type)
	assert.Equal(t, `data: {"e":1}`, lines[3])

	closed := decodeFrame(t, lines[4])
	assert.Equal(t, "status", closed.Type)
	assert.Equal(t, "closed", closed.Message)
	assert.Equal(t, websocket.CloseNormalClosure, closed.Code)
	assert.Equal(t, "bye", closed.Reason)

	assert.Equal(t, "btcusdt@ticker/ethusdt@ticker", <-gotQuery)
}

func TestRelayKeepAlive(t *testing.T) {
	_, ws := newUpstream(t, func(conn *websocket.Conn, _ *http.Request) {
		_, _, _ = conn.ReadMessage()
	})
	ws.KeepAlive = 20 * time.Millisecond

	srv := serveRelay(t, NewRelay(ws, nil, zap.NewNop()), Request{Streams: []string{"btcusdt@trade"}, Market: models.MarketSpot, Endpoint: binance.EndpointTrade})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	sc := bufio.NewScanner(resp.Body)
	for sc.Scan() {
		if sc.Text() == ": keep-alive" {
			return
		}
	}
	t.Fatal("no keep-alive comment received")
}

// go test -v --run TestRelayClientAbortClosesUpstream
func TestRelayClientAbortClosesUpstream(t *testing.T) {
	upstreamGone := make(chan struct{})
	_, ws := newUpstream(t, func(conn *websocket.Conn, _ *http.Request) {
		// blocks until the relay drops the connection
		_, _, _ = conn.ReadMessage()
		close(upstreamGone)
	})

	srv := serveRelay(t, NewRelay(ws, nil, zap.NewNop()), Request{Streams: []string{"btcusdt@ticker"}, Market: models.MarketFutures, Endpoint: binance.EndpointTicker})

	ctx, cancel := context.WithCancel(context.Background())
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)

	sc := bufio.NewScanner(resp.Body)
	require.True(t, sc.Scan())
	assert.Equal(t, "connected", decodeFrame(t, sc.Text()).Message)

	cancel()
	resp.Body.Close()

	select {
	case <-upstreamGone:
	case <-time.After(5 * time.Second):
		t.Fatal("upstream connection was not closed after client abort")
	}
}

func TestRelayUpstreamDialFailure(t *testing.T) {
	ws := config.WSConfig{SpotTickerURL: "ws://127.0.0.1:1/stream", DialTimeout: time.Second}
	srv := serveRelay(t, NewRelay(ws, nil, zap.NewNop()), Request{Streams: []string{"btcusdt@ticker"}, Market: models.MarketSpot, Endpoint: binance.EndpointTicker})

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	lines := readEvents(t, resp)
	require.Len(t, lines, 1)
	f := decodeFrame(t, lines[0])
	assert.Equal(t, "error", f.Type)
	assert.Contains(t, f.Message, "upstream connect failed")
}
