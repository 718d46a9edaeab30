package postgres

import (
	"context"
	"time"

	"pricealerts/internal/models"
	"pricealerts/internal/notify"

	"gorm.io/gorm/clause"
)

var _ notify.SubscriptionStore = (*PostgresClient)(nil)

func (p *PostgresClient) SubscriptionsForUsers(ctx context.Context, userIDs []string) ([]models.PushSubscription, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	var subs []models.PushSubscription
	err := p.DB.WithContext(ctx).Where("user_id IN ?", userIDs).Find(&subs).Error
	return subs, err
}

func (p *PostgresClient) DeleteSubscriptions(ctx context.Context, endpoints []string) error {
	if len(endpoints) == 0 {
		return nil
	}
	return p.DB.WithContext(ctx).
		Where("endpoint IN ?", endpoints).
		Delete(&models.PushSubscription{}).Error
}

// UpsertSubscription stores sub keyed by endpoint. A browser that re-subscribes
// under another user moves the endpoint to that user.
func (p *PostgresClient) UpsertSubscription(ctx context.Context, sub *models.PushSubscription) error {
	now := time.Now().UTC()
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = now
	}
	sub.UpdatedAt = now

	return p.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "endpoint"}},
		DoUpdates: clause.AssignmentColumns([]string{"p256dh", "auth", "user_id", "updated_at"}),
	}).Create(sub).Error
}

func (p *PostgresClient) DeleteSubscription(ctx context.Context, endpoint, userID string) error {
	return p.DB.WithContext(ctx).
		Where("endpoint = ? AND user_id = ?", endpoint, userID).
		Delete(&models.PushSubscription{}).Error
}
