package docstore

import (
	"context"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/mongodb"

	"taskkash/internal/config"
	"taskkash/internal/model"
)

func checkDockerAvailable() bool {
	return exec.Command("docker", "info").Run() == nil
}

// setupTestMongo starts a MongoDB container and connects a Client to it.
// Skips the test if Docker is not available.
func setupTestMongo(t *testing.T) *Client {
	if !checkDockerAvailable() {
		t.Skip("Docker is not available, skipping integration test")
	}

	ctx := context.Background()
	container, err := mongodb.Run(ctx, "mongo:6")
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	uri, err := container.ConnectionString(ctx)
	require.NoError(t, err)

	client, err := Connect(ctx, config.MongoConfig{URI: uri, Database: "taskkash_test", Timeout: 30 * time.Second})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close(ctx) })
	return client
}

func TestActivityStore_RecordAndList(t *testing.T) {
	client := setupTestMongo(t)
	store := client.Activities()
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Hour)
	for i, typ := range []string{model.ActivityTaskStarted, model.ActivityTaskSubmitted, model.ActivityBonus} {
		a := &model.Activity{UserID: 1, Type: typ, Title: typ, CreatedAt: base.Add(time.Duration(i) * time.Minute)}
		require.NoError(t, store.Record(ctx, a))
		assert.False(t, a.ID.IsZero())
	}
	require.NoError(t, store.Record(ctx, &model.Activity{UserID: 2, Type: model.ActivityBonus}))

	activities, err := store.ListByUser(ctx, 1, 10, 0)
	require.NoError(t, err)
	require.Len(t, activities, 3)
	assert.Equal(t, model.ActivityBonus, activities[0].Type)
	assert.Equal(t, model.ActivityTaskStarted, activities[2].Type)

	paged, err := store.ListByUser(ctx, 1, 2, 2)
	require.NoError(t, err)
	assert.Len(t, paged, 1)
}

func TestNotificationStore_UnreadAndMarkRead(t *testing.T) {
	client := setupTestMongo(t)
	store := client.Notifications()
	ctx := context.Background()

	first := &model.Notification{UserID: 7, Title: "Approved", Body: "+30 TP"}
	second := &model.Notification{UserID: 7, Title: "Rejected", Body: "blurry"}
	require.NoError(t, store.Create(ctx, first))
	require.NoError(t, store.Create(ctx, second))
	require.NoError(t, store.Create(ctx, &model.Notification{UserID: 8, Title: "Other"}))

	unread, err := store.UnreadCount(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(2), unread)

	n, err := store.MarkRead(ctx, 7, []string{first.ID.Hex()})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = store.MarkRead(ctx, 7, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	unread, err = store.UnreadCount(ctx, 7)
	require.NoError(t, err)
	assert.Zero(t, unread)

	unread, err = store.UnreadCount(ctx, 8)
	require.NoError(t, err)
	assert.Equal(t, int64(1), unread)

	_, err = store.MarkRead(ctx, 7, []string{"not-an-id"})
	assert.ErrorIs(t, err, ErrInvalidID)
}

func TestAdminNotificationStore_ListUnread(t *testing.T) {
	client := setupTestMongo(t)
	store := client.AdminNotifications()
	ctx := context.Background()

	a := &model.AdminNotification{Title: "New user", UserID: 1}
	b := &model.AdminNotification{Title: "New submission", UserID: 1}
	require.NoError(t, store.Create(ctx, a))
	require.NoError(t, store.Create(ctx, b))

	_, err := store.MarkRead(ctx, []string{a.ID.Hex()})
	require.NoError(t, err)

	unread, err := store.List(ctx, true, 10, 0)
	require.NoError(t, err)
	require.Len(t, unread, 1)
	assert.Equal(t, "New submission", unread[0].Title)

	all, err := store.List(ctx, false, 10, 0)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
