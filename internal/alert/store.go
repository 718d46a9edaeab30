package alert

import (
	"context"
	"time"

	"pricealerts/internal/models"

	"github.com/shopspring/decimal"
)

// Filter narrows the set of active alerts. Zero values mean no restriction.
type Filter struct {
	Market  models.Market
	Symbols []string
	Limit   int
}

// Trigger is an alert observed crossing its threshold at Price.
type Trigger struct {
	Alert models.PriceAlert
	Price decimal.Decimal
	At    time.Time
}

// Store is the persistence the alert service needs.
type Store interface {
	ActiveAlerts(ctx context.Context, filter Filter) ([]models.PriceAlert, error)
	GetAlert(ctx context.Context, id string) (*models.PriceAlert, error)
	ListAlerts(ctx context.Context, userID string) ([]models.PriceAlert, error)

	// CreateAlert inserts a together with its created event.
	CreateAlert(ctx context.Context, a *models.PriceAlert) error
	// UpdateAlert saves a together with an updated event.
	UpdateAlert(ctx context.Context, a *models.PriceAlert) error
	// DeleteAlert removes a and records a deleted event.
	DeleteAlert(ctx context.Context, a *models.PriceAlert) error

	// MarkTriggered deactivates the alerts and records one triggered event
	// per alert, all in one transaction. Alerts that are no longer active
	// are skipped; the returned slice holds the triggers actually applied.
	MarkTriggered(ctx context.Context, triggers []Trigger) ([]Trigger, error)

	CountEventsSince(ctx context.Context, userID string, kind models.EventKind, since time.Time) (int64, error)
}

// PriceSource fetches current exchange prices.
type PriceSource interface {
	BatchLimit(market models.Market) int
	TickerPrice(ctx context.Context, market models.Market, symbol string) (decimal.Decimal, error)
	TickerPrices(ctx context.Context, market models.Market, symbols []string) (map[string]decimal.Decimal, error)
}

// SymbolCatalog reports whether a symbol trades on a market.
type SymbolCatalog interface {
	IsTradable(ctx context.Context, market models.Market, symbol string) (bool, error)
}

// Notifier delivers notifications for applied triggers and reports how many
// users were reached.
type Notifier interface {
	Notify(ctx context.Context, triggers []Trigger) (int, error)
}

// EventPublisher forwards committed lifecycle events to other systems.
type EventPublisher interface {
	Publish(ctx context.Context, events ...models.AlertEvent) error
}
