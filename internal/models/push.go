package models

import "time"

// PushSubscription holds the information for a browser push subscription.
type PushSubscription struct {
	Endpoint  string    `json:"endpoint" gorm:"type:text;primaryKey"`
	P256dh    string    `json:"p256dh" gorm:"column:p256dh;type:text;not null"`
	Auth      string    `json:"auth" gorm:"type:text;not null"`
	UserID    *string   `json:"userId,omitempty" gorm:"type:text;index"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (PushSubscription) TableName() string {
	return "push_subscriptions"
}
