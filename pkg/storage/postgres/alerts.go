package postgres

import (
	"context"
	"errors"
	"time"

	"pricealerts/internal/alert"
	"pricealerts/internal/apperr"
	"pricealerts/internal/models"

	"gorm.io/gorm"
)

var _ alert.Store = (*PostgresClient)(nil)

func (p *PostgresClient) ActiveAlerts(ctx context.Context, f alert.Filter) ([]models.PriceAlert, error) {
	q := p.DB.WithContext(ctx).Where("is_active = ?", true)
	if f.Market != "" {
		q = q.Where("market = ?", f.Market)
	}
	if len(f.Symbols) > 0 {
		q = q.Where("symbol IN ?", f.Symbols)
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}

	var alerts []models.PriceAlert
	if err := q.Order("created_at, id").Find(&alerts).Error; err != nil {
		return nil, err
	}
	return alerts, nil
}

func (p *PostgresClient) GetAlert(ctx context.Context, id string) (*models.PriceAlert, error) {
	var a models.PriceAlert
	err := p.DB.WithContext(ctx).Where("id = ?", id).First(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (p *PostgresClient) ListAlerts(ctx context.Context, userID string) ([]models.PriceAlert, error) {
	var alerts []models.PriceAlert
	err := p.DB.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&alerts).Error
	return alerts, err
}

func (p *PostgresClient) CreateAlert(ctx context.Context, a *models.PriceAlert) error {
	return p.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(a).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return apperr.ErrDuplicateAlert
			}
			return err
		}
		ev := models.NewAlertEvent(models.EventCreated, a, a.CreatedAt)
		return tx.Create(&ev).Error
	})
}

func (p *PostgresClient) UpdateAlert(ctx context.Context, a *models.PriceAlert) error {
	return p.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.PriceAlert{}).Where("id = ?", a.ID).Updates(map[string]any{
			"target_price": a.TargetPrice,
			"is_active":    a.IsActive,
			"triggered_at": a.TriggeredAt,
			"updated_at":   a.UpdatedAt,
		})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return apperr.ErrNotFound
		}
		ev := models.NewAlertEvent(models.EventUpdated, a, a.UpdatedAt)
		return tx.Create(&ev).Error
	})
}

func (p *PostgresClient) DeleteAlert(ctx context.Context, a *models.PriceAlert) error {
	return p.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("id = ?", a.ID).Delete(&models.PriceAlert{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return apperr.ErrNotFound
		}
		ev := models.NewAlertEvent(models.EventDeleted, a, time.Now().UTC())
		return tx.Create(&ev).Error
	})
}

// MarkTriggered deactivates every still-active alert in triggers and records
// its triggered event, all in one transaction. The conditional update makes
// concurrent triggers of the same alert apply once.
func (p *PostgresClient) MarkTriggered(ctx context.Context, triggers []alert.Trigger) ([]alert.Trigger, error) {
	var applied []alert.Trigger

	err := p.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		applied = applied[:0]
		events := make([]models.AlertEvent, 0, len(triggers))

		for _, t := range triggers {
			at := t.At
			res := tx.Model(&models.PriceAlert{}).
				Where("id = ? AND is_active = ?", t.Alert.ID, true).
				Updates(map[string]any{
					"is_active":    false,
					"triggered_at": at,
					"updated_at":   at,
				})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				continue
			}

			t.Alert.IsActive = false
			t.Alert.TriggeredAt = &at
			t.Alert.UpdatedAt = at

			ev := models.NewAlertEvent(models.EventTriggered, &t.Alert, at)
			price := t.Price
			ev.TriggeredPrice = &price
			events = append(events, ev)
			applied = append(applied, t)
		}

		if len(events) == 0 {
			return nil
		}
		return tx.Create(&events).Error
	})
	if err != nil {
		return nil, err
	}
	return applied, nil
}

func (p *PostgresClient) CountEventsSince(ctx context.Context, userID string, kind models.EventKind, since time.Time) (int64, error) {
	var n int64
	err := p.DB.WithContext(ctx).
		Model(&models.AlertEvent{}).
		Where("user_id = ? AND kind = ? AND created_at >= ?", userID, kind, since).
		Count(&n).Error
	return n, err
}
