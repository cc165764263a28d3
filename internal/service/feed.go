package service

import (
	"context"

	"taskkash/internal/model"
)

// ActivityLister reads a user's activity trail.
type ActivityLister interface {
	ListByUser(ctx context.Context, userID int64, limit, offset int) ([]*model.Activity, error)
}

// NotificationFeed reads and acknowledges user notifications.
type NotificationFeed interface {
	ListByUser(ctx context.Context, userID int64, limit, offset int) ([]*model.Notification, error)
	UnreadCount(ctx context.Context, userID int64) (int64, error)
	MarkRead(ctx context.Context, userID int64, ids []string) (int64, error)
}

// AdminNotificationFeed reads and acknowledges admin notifications.
type AdminNotificationFeed interface {
	List(ctx context.Context, unreadOnly bool, limit, offset int) ([]*model.AdminNotification, error)
	MarkRead(ctx context.Context, ids []string) (int64, error)
}

// Inbox is one page of notifications plus the unread total.
type Inbox struct {
	Items  []*model.Notification `json:"items"`
	Unread int64                 `json:"unread"`
}

// FeedService serves the activity trail and the notification inboxes.
type FeedService struct {
	activities ActivityLister
	inbox      NotificationFeed
	admin      AdminNotificationFeed
}

// NewFeedService creates a new FeedService instance.
func NewFeedService(activities ActivityLister, inbox NotificationFeed, admin AdminNotificationFeed) *FeedService {
	return &FeedService{activities: activities, inbox: inbox, admin: admin}
}

// Activities lists the user's activity trail, newest first.
func (s *FeedService) Activities(ctx context.Context, userID int64, limit, offset int) ([]*model.Activity, error) {
	return s.activities.ListByUser(ctx, userID, limit, offset)
}

// Notifications lists the user's notifications with the unread count.
func (s *FeedService) Notifications(ctx context.Context, userID int64, limit, offset int) (*Inbox, error) {
	items, err := s.inbox.ListByUser(ctx, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	unread, err := s.inbox.UnreadCount(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &Inbox{Items: items, Unread: unread}, nil
}

// MarkNotificationsRead marks notifications read; no ids marks all of them.
func (s *FeedService) MarkNotificationsRead(ctx context.Context, userID int64, ids []string) (int64, error) {
	return s.inbox.MarkRead(ctx, userID, ids)
}

// AdminNotifications lists notifications addressed to admins.
func (s *FeedService) AdminNotifications(ctx context.Context, unreadOnly bool, limit, offset int) ([]*model.AdminNotification, error) {
	return s.admin.List(ctx, unreadOnly, limit, offset)
}

// MarkAdminNotificationsRead marks admin notifications read.
func (s *FeedService) MarkAdminNotificationsRead(ctx context.Context, ids []string) (int64, error) {
	return s.admin.MarkRead(ctx, ids)
}
