package postgres_test

import (
	"context"
	"testing"
	"time"

	"pricealerts/internal/alert"
	"pricealerts/internal/apperr"
	"pricealerts/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPriceAlert(user, symbol string, typ models.AlertType, target string) *models.PriceAlert {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &models.PriceAlert{
		UserID:      user,
		Symbol:      symbol,
		Market:      models.MarketSpot,
		Type:        typ,
		TargetPrice: decimal.RequireFromString(target),
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// go test -v --run TestAlertCRUD
func TestAlertCRUD(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	a := newPriceAlert("u1", "BTCUSDT", models.AlertAbove, "50000")
	require.NoError(t, client.CreateAlert(ctx, a))
	require.NotEmpty(t, a.ID)

	err := client.CreateAlert(ctx, newPriceAlert("u1", "BTCUSDT", models.AlertAbove, "60000"))
	assert.ErrorIs(t, err, apperr.ErrDuplicateAlert)

	got, err := client.GetAlert(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, got.TargetPrice.Equal(decimal.NewFromInt(50000)))

	got.TargetPrice = decimal.NewFromInt(55000)
	got.UpdatedAt = time.Now().UTC()
	require.NoError(t, client.UpdateAlert(ctx, got))

	list, err := client.ListAlerts(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "55000", list[0].TargetPrice.String())

	require.NoError(t, client.DeleteAlert(ctx, got))
	_, err = client.GetAlert(ctx, a.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	created, err := client.CountEventsSince(ctx, "u1", models.EventCreated, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 1, created)
}

// go test -v --run TestMarkTriggered
func TestMarkTriggered(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	a := newPriceAlert("u1", "BTCUSDT", models.AlertAbove, "50000")
	b := newPriceAlert("u2", "ETHUSDT", models.AlertBelow, "3000")
	require.NoError(t, client.CreateAlert(ctx, a))
	require.NoError(t, client.CreateAlert(ctx, b))

	active, err := client.ActiveAlerts(ctx, alert.Filter{Market: models.MarketSpot, Symbols: []string{"BTCUSDT"}})
	require.NoError(t, err)
	require.Len(t, active, 1)

	at := time.Now().UTC().Truncate(time.Microsecond)
	trig := alert.Trigger{Alert: *a, Price: decimal.RequireFromString("50125"), At: at}

	applied, err := client.MarkTriggered(ctx, []alert.Trigger{trig})
	require.NoError(t, err)
	require.Len(t, applied, 1)
	assert.False(t, applied[0].Alert.IsActive)

	// second application is skipped
	applied, err = client.MarkTriggered(ctx, []alert.Trigger{trig})
	require.NoError(t, err)
	assert.Empty(t, applied)

	got, err := client.GetAlert(ctx, a.ID)
	require.NoError(t, err)
	assert.False(t, got.IsActive)
	require.NotNil(t, got.TriggeredAt)
	assert.True(t, at.Equal(*got.TriggeredAt))

	n, err := client.CountEventsSince(ctx, "u1", models.EventTriggered, at.Add(-time.Minute))
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	active, err = client.ActiveAlerts(ctx, alert.Filter{Limit: 10})
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, b.ID, active[0].ID)
}
