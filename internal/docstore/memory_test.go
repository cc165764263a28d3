package docstore

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskkash/internal/model"
)

func TestMemory_Activities(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	for _, typ := range []string{model.ActivityTaskStarted, model.ActivityTaskSubmitted, model.ActivityTaskApproved} {
		require.NoError(t, m.Activities().Record(ctx, &model.Activity{UserID: 1, Type: typ}))
	}
	require.NoError(t, m.Activities().Record(ctx, &model.Activity{UserID: 2, Type: model.ActivityBonus}))

	list, err := m.Activities().ListByUser(ctx, 1, 2, 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, model.ActivityTaskApproved, list[0].Type)
	assert.Equal(t, model.ActivityTaskSubmitted, list[1].Type)

	list, err = m.Activities().ListByUser(ctx, 1, 2, 2)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, model.ActivityTaskStarted, list[0].Type)

	list, err = m.Activities().ListByUser(ctx, 1, 2, 10)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestMemory_Notifications(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	store := m.Notifications()

	first := &model.Notification{UserID: 1, Kind: "a", Title: "one"}
	require.NoError(t, store.Create(ctx, first))
	require.NoError(t, store.Create(ctx, &model.Notification{UserID: 1, Kind: "b", Title: "two"}))
	require.NoError(t, store.Create(ctx, &model.Notification{UserID: 2, Kind: "c", Title: "other"}))

	unread, err := store.UnreadCount(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), unread)

	n, err := store.MarkRead(ctx, 1, []string{first.ID.Hex()})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = store.MarkRead(ctx, 1, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	unread, err = store.UnreadCount(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(1), unread, "other users untouched")

	_, err = store.MarkRead(ctx, 1, []string{"nope"})
	assert.True(t, errors.Is(err, ErrInvalidID))
}

func TestMemory_AdminNotifications(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	store := m.AdminNotifications()

	require.NoError(t, store.Create(ctx, &model.AdminNotification{Kind: "user_registered", Title: "a"}))
	require.NoError(t, store.Create(ctx, &model.AdminNotification{Kind: "withdrawal_requested", Title: "b"}))

	_, err := store.MarkRead(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, store.Create(ctx, &model.AdminNotification{Kind: "submission_created", Title: "c"}))

	unread, err := store.List(ctx, true, 10, 0)
	require.NoError(t, err)
	require.Len(t, unread, 1)
	assert.Equal(t, "submission_created", unread[0].Kind)

	all, err := store.List(ctx, false, 10, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}
