package notify

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"pricealerts/config"
	"pricealerts/internal/models"

	webpush "github.com/SherClockHolmes/webpush-go"
)

// Sender delivers one encrypted payload to one browser subscription and
// returns the push service's HTTP status.
type Sender interface {
	Send(ctx context.Context, sub models.PushSubscription, payload []byte) (int, error)
}

// WebPushSender sends through the Web Push protocol with VAPID
// authentication.
type WebPushSender struct {
	opts   config.PushConfig
	client *http.Client
}

func NewWebPushSender(opts config.PushConfig, client *http.Client) *WebPushSender {
	if client == nil {
		client = http.DefaultClient
	}
	return &WebPushSender{opts: opts, client: client}
}

func (s *WebPushSender) Send(ctx context.Context, sub models.PushSubscription, payload []byte) (int, error) {
	resp, err := webpush.SendNotificationWithContext(ctx, payload, &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			Auth:   sub.Auth,
			P256dh: sub.P256dh,
		},
	}, &webpush.Options{
		HTTPClient:      s.client,
		Subscriber:      s.opts.Subscriber,
		TTL:             s.opts.TTL,
		Urgency:         webpush.UrgencyHigh,
		VAPIDPublicKey:  s.opts.VAPIDPublicKey,
		VAPIDPrivateKey: s.opts.VAPIDPrivateKey,
	})
	if err != nil {
		return 0, fmt.Errorf("send push: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= http.StatusBadRequest {
		return resp.StatusCode, fmt.Errorf("push service responded %d", resp.StatusCode)
	}
	return resp.StatusCode, nil
}

// IsPermanent reports whether a push service status means the subscription
// is gone for good.
func IsPermanent(status int) bool {
	return status == http.StatusNotFound || status == http.StatusGone
}
