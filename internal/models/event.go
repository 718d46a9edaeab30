package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type EventKind string

const (
	EventCreated   EventKind = "created"
	EventUpdated   EventKind = "updated"
	EventDeleted   EventKind = "deleted"
	EventTriggered EventKind = "triggered"
)

// AlertEvent is the audit trail of an alert's lifecycle. Creation events
// also back the per-user daily creation cap.
type AlertEvent struct {
	ID             uint             `json:"id" gorm:"primaryKey"`
	AlertID        string           `json:"alertId" gorm:"type:uuid;not null;index"`
	UserID         string           `json:"userId" gorm:"type:text;not null;index:idx_event_user_kind_created,priority:1"`
	Kind           EventKind        `json:"kind" gorm:"type:varchar(16);not null;index:idx_event_user_kind_created,priority:2"`
	Symbol         string           `json:"symbol" gorm:"type:varchar(32);not null"`
	Market         Market           `json:"market" gorm:"type:varchar(10);not null"`
	Type           AlertType        `json:"type" gorm:"type:varchar(10);not null"`
	TargetPrice    decimal.Decimal  `json:"targetPrice" gorm:"type:numeric;not null"`
	TriggeredPrice *decimal.Decimal `json:"triggeredPrice,omitempty" gorm:"type:numeric"`
	CreatedAt      time.Time        `json:"createdAt" gorm:"not null;index:idx_event_user_kind_created,priority:3"`
}

func (AlertEvent) TableName() string {
	return "alert_events"
}

// NewAlertEvent snapshots a into an event of the given kind.
func NewAlertEvent(kind EventKind, a *PriceAlert, at time.Time) AlertEvent {
	return AlertEvent{
		AlertID:     a.ID,
		UserID:      a.UserID,
		Kind:        kind,
		Symbol:      a.Symbol,
		Market:      a.Market,
		Type:        a.Type,
		TargetPrice: a.TargetPrice,
		CreatedAt:   at,
	}
}
