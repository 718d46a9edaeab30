package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Market is the trading venue an alert or stream refers to.
type Market string

const (
	MarketSpot    Market = "spot"
	MarketFutures Market = "futures"
)

func ParseMarket(s string) (Market, error) {
	switch m := Market(strings.ToLower(strings.TrimSpace(s))); m {
	case MarketSpot, MarketFutures:
		return m, nil
	}
	return "", fmt.Errorf("invalid market: %q", s)
}

// AlertType is the crossing direction of an alert.
type AlertType string

const (
	AlertAbove AlertType = "above"
	AlertBelow AlertType = "below"
)

func ParseAlertType(s string) (AlertType, error) {
	switch t := AlertType(strings.ToLower(strings.TrimSpace(s))); t {
	case AlertAbove, AlertBelow:
		return t, nil
	}
	return "", fmt.Errorf("invalid alert type: %q", s)
}

// PriceAlert is a user-defined threshold on a symbol in a market.
// At most one alert exists per (user, symbol, market, type).
type PriceAlert struct {
	ID          string          `json:"id" gorm:"type:uuid;primaryKey"`
	UserID      string          `json:"userId" gorm:"type:text;not null;uniqueIndex:idx_alert_user_symbol_market_type"`
	Symbol      string          `json:"symbol" gorm:"type:varchar(32);not null;uniqueIndex:idx_alert_user_symbol_market_type;index:idx_alert_active_market_symbol,priority:3"`
	Market      Market          `json:"market" gorm:"type:varchar(10);not null;uniqueIndex:idx_alert_user_symbol_market_type;index:idx_alert_active_market_symbol,priority:2"`
	Type        AlertType       `json:"type" gorm:"type:varchar(10);not null;uniqueIndex:idx_alert_user_symbol_market_type"`
	TargetPrice decimal.Decimal `json:"targetPrice" gorm:"type:numeric;not null"`
	IsActive    bool            `json:"isActive" gorm:"not null;default:true;index:idx_alert_active_market_symbol,priority:1"`
	TriggeredAt *time.Time      `json:"triggeredAt,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// TableName overrides the default table name for GORM.
func (PriceAlert) TableName() string {
	return "price_alerts"
}

func (a *PriceAlert) BeforeCreate(*gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}

// Crossed reports whether price satisfies the alert's trigger rule:
// above fires at price >= target, below fires at price <= target.
func (a *PriceAlert) Crossed(price decimal.Decimal) bool {
	switch a.Type {
	case AlertAbove:
		return price.GreaterThanOrEqual(a.TargetPrice)
	case AlertBelow:
		return price.LessThanOrEqual(a.TargetPrice)
	}
	return false
}
