package postgres_test

import (
	"context"
	"testing"

	"pricealerts/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// go test -v --run TestPushSubscriptions
func TestPushSubscriptions(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	alice, bob := "alice", "bob"
	require.NoError(t, client.UpsertSubscription(ctx, &models.PushSubscription{Endpoint: "https://push/1", P256dh: "k1", Auth: "a1", UserID: &alice}))
	require.NoError(t, client.UpsertSubscription(ctx, &models.PushSubscription{Endpoint: "https://push/2", P256dh: "k2", Auth: "a2", UserID: &alice}))

	// same endpoint re-subscribed by another user moves to them
	require.NoError(t, client.UpsertSubscription(ctx, &models.PushSubscription{Endpoint: "https://push/2", P256dh: "k3", Auth: "a3", UserID: &bob}))

	subs, err := client.SubscriptionsForUsers(ctx, []string{alice})
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, "https://push/1", subs[0].Endpoint)

	subs, err = client.SubscriptionsForUsers(ctx, []string{bob})
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, "k3", subs[0].P256dh)

	require.NoError(t, client.DeleteSubscriptions(ctx, []string{"https://push/1"}))
	subs, err = client.SubscriptionsForUsers(ctx, []string{alice, bob})
	require.NoError(t, err)
	assert.Len(t, subs, 1)

	// only the owner can unsubscribe
	require.NoError(t, client.DeleteSubscription(ctx, "https://push/2", alice))
	subs, err = client.SubscriptionsForUsers(ctx, []string{bob})
	require.NoError(t, err)
	assert.Len(t, subs, 1)
}
