package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"pricealerts/internal/alert"
	"pricealerts/internal/metrics"
	"pricealerts/internal/models"

	"go.uber.org/zap"
)

// SubscriptionStore persists browser push subscriptions.
type SubscriptionStore interface {
	SubscriptionsForUsers(ctx context.Context, userIDs []string) ([]models.PushSubscription, error)
	DeleteSubscriptions(ctx context.Context, endpoints []string) error
	UpsertSubscription(ctx context.Context, sub *models.PushSubscription) error
	DeleteSubscription(ctx context.Context, endpoint, userID string) error
}

// Payload is the JSON document the service worker receives.
type Payload struct {
	Title string      `json:"title"`
	Body  string      `json:"body"`
	Tag   string      `json:"tag"`
	URL   string      `json:"url"`
	Data  PayloadData `json:"data"`
}

type PayloadData struct {
	AlertIDs []string `json:"alertIds"`
}

// Dispatcher sends one notification per user to each of that user's
// subscriptions and removes subscriptions the push service reports gone.
type Dispatcher struct {
	subs   SubscriptionStore
	sender Sender
	url    string
	logger *zap.Logger
}

func NewDispatcher(subs SubscriptionStore, sender Sender, clickURL string, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{subs: subs, sender: sender, url: clickURL, logger: logger}
}

// Notify implements alert.Notifier. It returns the number of users with at
// least one successful delivery.
func (d *Dispatcher) Notify(ctx context.Context, triggers []alert.Trigger) (int, error) {
	byUser := make(map[string][]alert.Trigger)
	var users []string
	for _, t := range triggers {
		uid := t.Alert.UserID
		if _, ok := byUser[uid]; !ok {
			users = append(users, uid)
		}
		byUser[uid] = append(byUser[uid], t)
	}
	if len(users) == 0 {
		return 0, nil
	}

	subs, err := d.subs.SubscriptionsForUsers(ctx, users)
	if err != nil {
		return 0, fmt.Errorf("load push subscriptions: %w", err)
	}
	subsByUser := make(map[string][]models.PushSubscription)
	for _, s := range subs {
		if s.UserID != nil {
			subsByUser[*s.UserID] = append(subsByUser[*s.UserID], s)
		}
	}

	var (
		notified int
		gone     []string
	)
	for _, uid := range users {
		targets := subsByUser[uid]
		if len(targets) == 0 {
			continue
		}

		payload, err := json.Marshal(BuildPayload(byUser[uid], d.url))
		if err != nil {
			return notified, fmt.Errorf("encode push payload: %w", err)
		}

		delivered := false
		for _, sub := range targets {
			status, err := d.sender.Send(ctx, sub, payload)
			switch {
			case err == nil:
				delivered = true
				metrics.PushSends.WithLabelValues("ok").Inc()
			case IsPermanent(status):
				gone = append(gone, sub.Endpoint)
				metrics.PushSends.WithLabelValues("gone").Inc()
				d.logger.Info("push subscription expired",
					zap.String("user_id", uid),
					zap.Int("status", status))
			default:
				metrics.PushSends.WithLabelValues("failed").Inc()
				d.logger.Warn("push delivery failed",
					zap.String("user_id", uid),
					zap.Int("status", status),
					zap.Error(err))
			}
		}
		if delivered {
			notified++
		}
	}

	if len(gone) > 0 {
		if err := d.subs.DeleteSubscriptions(ctx, gone); err != nil {
			return notified, fmt.Errorf("delete expired subscriptions: %w", err)
		}
	}
	return notified, nil
}

// BuildPayload summarises one user's triggered alerts.
func BuildPayload(triggers []alert.Trigger, url string) Payload {
	p := Payload{Tag: "price-alert", URL: url}
	for _, t := range triggers {
		p.Data.AlertIDs = append(p.Data.AlertIDs, t.Alert.ID)
	}

	if len(triggers) == 1 {
		t := triggers[0]
		p.Title = fmt.Sprintf("%s %s %s", t.Alert.Symbol, t.Alert.Type, FormatPrice(t.Alert.TargetPrice))
		p.Body = describe(t)
		p.Tag = "price-alert-" + t.Alert.ID
		return p
	}

	lines := make([]string, 0, len(triggers))
	for _, t := range triggers {
		lines = append(lines, describe(t))
	}
	p.Title = fmt.Sprintf("%d price alerts triggered", len(triggers))
	p.Body = strings.Join(lines, "\n")
	return p
}

func describe(t alert.Trigger) string {
	return fmt.Sprintf("%s (%s) is now %s, %s your target of %s",
		t.Alert.Symbol, t.Alert.Market, FormatPrice(t.Price), t.Alert.Type, FormatPrice(t.Alert.TargetPrice))
}
