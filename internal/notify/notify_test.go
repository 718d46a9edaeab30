package notify

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"pricealerts/config"
	"pricealerts/internal/alert"
	"pricealerts/internal/models"

	webpush "github.com/SherClockHolmes/webpush-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockSender struct {
	mock.Mock
}

func (m *mockSender) Send(ctx context.Context, sub models.PushSubscription, payload []byte) (int, error) {
	args := m.Called(ctx, sub, payload)
	return args.Int(0), args.Error(1)
}

type memSubs struct {
	subs    []models.PushSubscription
	deleted []string
}

func (m *memSubs) SubscriptionsForUsers(_ context.Context, userIDs []string) ([]models.PushSubscription, error) {
	want := make(map[string]bool)
	for _, id := range userIDs {
		want[id] = true
	}
	var out []models.PushSubscription
	for _, s := range m.subs {
		if s.UserID != nil && want[*s.UserID] {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *memSubs) DeleteSubscriptions(_ context.Context, endpoints []string) error {
	m.deleted = append(m.deleted, endpoints...)
	return nil
}

func (m *memSubs) UpsertSubscription(context.Context, *models.PushSubscription) error { return nil }
func (m *memSubs) DeleteSubscription(context.Context, string, string) error           { return nil }

func sub(endpoint, user string) models.PushSubscription {
	return models.PushSubscription{Endpoint: endpoint, P256dh: "p", Auth: "a", UserID: &user}
}

func trigger(id, user, symbol string, typ models.AlertType, target, price string) alert.Trigger {
	return alert.Trigger{
		Alert: models.PriceAlert{
			ID: id, UserID: user, Symbol: symbol, Market: models.MarketSpot, Type: typ,
			TargetPrice: decimal.RequireFromString(target),
		},
		Price: decimal.RequireFromString(price),
		At:    time.Now(),
	}
}

func TestFormatPrice(t *testing.T) {
	testCases := []struct {
		in   string
		want string
	}{
		{"50125", "50,125.00"},
		{"1234567.891", "1,234,567.89"},
		{"1", "1.00"},
		{"0.5", "0.50"},
		{"0.08123", "0.08123"},
		{"0.00001234", "0.000012"},
		{"-2500.5", "-2,500.50"},
	}

	for _, tt := range testCases {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatPrice(decimal.RequireFromString(tt.in)))
		})
	}
}

// go test -v --run TestNotifyPerSubscription
func TestNotifyPerSubscription(t *testing.T) {
	subs := &memSubs{subs: []models.PushSubscription{
		sub("https://push/1", "alice"),
		sub("https://push/2", "alice"),
		sub("https://push/3", "bob"),
	}}
	sender := &mockSender{}
	sender.On("Send", mock.Anything, mock.Anything, mock.Anything).Return(http.StatusCreated, nil)

	d := NewDispatcher(subs, sender, "/alerts", zap.NewNop())
	n, err := d.Notify(context.Background(), []alert.Trigger{
		trigger("a1", "alice", "BTCUSDT", models.AlertAbove, "50000", "50125"),
	})
	require.NoError(t, err)

	assert.Equal(t, 1, n)
	sender.AssertNumberOfCalls(t, "Send", 2)
	assert.Empty(t, subs.deleted)
}

func TestNotifyDeletesPermanentFailures(t *testing.T) {
	subs := &memSubs{subs: []models.PushSubscription{
		sub("https://push/gone", "alice"),
		sub("https://push/missing", "alice"),
		sub("https://push/flaky", "alice"),
		sub("https://push/ok", "bob"),
	}}
	sender := &mockSender{}
	sender.On("Send", mock.Anything, mock.MatchedBy(func(s models.PushSubscription) bool { return s.Endpoint == "https://push/gone" }), mock.Anything).
		Return(http.StatusGone, errors.New("gone"))
	sender.On("Send", mock.Anything, mock.MatchedBy(func(s models.PushSubscription) bool { return s.Endpoint == "https://push/missing" }), mock.Anything).
		Return(http.StatusNotFound, errors.New("not found"))
	sender.On("Send", mock.Anything, mock.MatchedBy(func(s models.PushSubscription) bool { return s.Endpoint == "https://push/flaky" }), mock.Anything).
		Return(http.StatusServiceUnavailable, errors.New("unavailable"))
	sender.On("Send", mock.Anything, mock.MatchedBy(func(s models.PushSubscription) bool { return s.Endpoint == "https://push/ok" }), mock.Anything).
		Return(http.StatusCreated, nil)

	d := NewDispatcher(subs, sender, "/alerts", zap.NewNop())
	n, err := d.Notify(context.Background(), []alert.Trigger{
		trigger("a1", "alice", "BTCUSDT", models.AlertAbove, "50000", "50125"),
		trigger("a2", "bob", "ETHUSDT", models.AlertBelow, "3000", "2990"),
	})
	require.NoError(t, err)

	assert.Equal(t, 1, n)
	assert.ElementsMatch(t, []string{"https://push/gone", "https://push/missing"}, subs.deleted)
	sender.AssertExpectations(t)
}

func TestNotifyUserWithoutSubscriptions(t *testing.T) {
	sender := &mockSender{}
	d := NewDispatcher(&memSubs{}, sender, "/alerts", zap.NewNop())

	n, err := d.Notify(context.Background(), []alert.Trigger{
		trigger("a1", "carol", "BTCUSDT", models.AlertAbove, "1", "2"),
	})
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	sender.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything)
}

func TestBuildPayload(t *testing.T) {
	single := BuildPayload([]alert.Trigger{
		trigger("a1", "u", "BTCUSDT", models.AlertAbove, "50000", "50125"),
	}, "/alerts")
	assert.Equal(t, "BTCUSDT above 50,000.00", single.Title)
	assert.Equal(t, "BTCUSDT (spot) is now 50,125.00, above your target of 50,000.00", single.Body)
	assert.Equal(t, "price-alert-a1", single.Tag)

	multi := BuildPayload([]alert.Trigger{
		trigger("a1", "u", "BTCUSDT", models.AlertAbove, "50000", "50125"),
		trigger("a2", "u", "DOGEUSDT", models.AlertBelow, "0.1", "0.0812"),
	}, "/alerts")
	assert.Equal(t, "2 price alerts triggered", multi.Title)
	assert.Contains(t, multi.Body, "DOGEUSDT (spot) is now 0.0812, below your target of 0.10")
	assert.Equal(t, []string{"a1", "a2"}, multi.Data.AlertIDs)
}

func TestWebPushSenderStatus(t *testing.T) {
	priv, pub, err := webpush.GenerateVAPIDKeys()
	require.NoError(t, err)

	var status atomic.Int32
	status.Store(http.StatusCreated)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "aes128gcm", r.Header.Get("Content-Encoding"))
		w.WriteHeader(int(status.Load()))
	}))
	defer srv.Close()

	// a real P-256 public key and auth secret, as a browser would supply
	_, clientPub, err := webpush.GenerateVAPIDKeys()
	require.NoError(t, err)
	s := models.PushSubscription{Endpoint: srv.URL, P256dh: clientPub, Auth: "c2VjcmV0c2VjcmV0c2VjcmV0"}

	sender := NewWebPushSender(config.PushConfig{
		VAPIDPublicKey:  pub,
		VAPIDPrivateKey: priv,
		Subscriber:      "mailto:ops@example.com",
		TTL:             60,
	}, srv.Client())

	got, err := sender.Send(context.Background(), s, []byte(`{"title":"t"}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, got)

	status.Store(http.StatusGone)
	got, err = sender.Send(context.Background(), s, []byte(`{"title":"t"}`))
	assert.Error(t, err)
	assert.True(t, IsPermanent(got))
}
