package docstore

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"taskkash/internal/model"
)

// ActivityStore persists the per-user activity trail.
type ActivityStore struct {
	coll *mongo.Collection
	now  func() time.Time
}

// Record inserts an activity, stamping CreatedAt when unset.
func (s *ActivityStore) Record(ctx context.Context, a *model.Activity) error {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = s.now().UTC()
	}
	res, err := s.coll.InsertOne(ctx, a)
	if err != nil {
		return fmt.Errorf("failed to record activity: %w", err)
	}
	if id, ok := res.InsertedID.(primitive.ObjectID); ok {
		a.ID = id
	}
	return nil
}

// ListByUser returns a user's activities, newest first.
func (s *ActivityStore) ListByUser(ctx context.Context, userID int64, limit, offset int) ([]*model.Activity, error) {
	cur, err := s.coll.Find(ctx, bson.M{"user_id": userID}, findOptions(limit, offset))
	if err != nil {
		return nil, fmt.Errorf("failed to list activities: %w", err)
	}

	activities := make([]*model.Activity, 0)
	if err := cur.All(ctx, &activities); err != nil {
		return nil, fmt.Errorf("failed to decode activities: %w", err)
	}
	return activities, nil
}

// NotificationStore persists messages addressed to one user.
type NotificationStore struct {
	coll *mongo.Collection
	now  func() time.Time
}

// Create inserts an unread notification.
func (s *NotificationStore) Create(ctx context.Context, n *model.Notification) error {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = s.now().UTC()
	}
	n.Read = false
	res, err := s.coll.InsertOne(ctx, n)
	if err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}
	if id, ok := res.InsertedID.(primitive.ObjectID); ok {
		n.ID = id
	}
	return nil
}

// ListByUser returns a user's notifications, newest first.
func (s *NotificationStore) ListByUser(ctx context.Context, userID int64, limit, offset int) ([]*model.Notification, error) {
	cur, err := s.coll.Find(ctx, bson.M{"user_id": userID}, findOptions(limit, offset))
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}

	notifications := make([]*model.Notification, 0)
	if err := cur.All(ctx, &notifications); err != nil {
		return nil, fmt.Errorf("failed to decode notifications: %w", err)
	}
	return notifications, nil
}

// UnreadCount counts a user's unread notifications.
func (s *NotificationStore) UnreadCount(ctx context.Context, userID int64) (int64, error) {
	n, err := s.coll.CountDocuments(ctx, bson.M{"user_id": userID, "read": false})
	if err != nil {
		return 0, fmt.Errorf("failed to count unread notifications: %w", err)
	}
	return n, nil
}

// MarkRead marks the given notifications of the user as read. An empty ids
// slice marks every notification of the user.
func (s *NotificationStore) MarkRead(ctx context.Context, userID int64, ids []string) (int64, error) {
	filter := bson.M{"user_id": userID, "read": false}
	if len(ids) > 0 {
		oids, err := objectIDs(ids)
		if err != nil {
			return 0, err
		}
		filter["_id"] = bson.M{"$in": oids}
	}

	res, err := s.coll.UpdateMany(ctx, filter, bson.M{"$set": bson.M{"read": true}})
	if err != nil {
		return 0, fmt.Errorf("failed to mark notifications read: %w", err)
	}
	return res.ModifiedCount, nil
}

// AdminNotificationStore persists messages addressed to all admins.
type AdminNotificationStore struct {
	coll *mongo.Collection
	now  func() time.Time
}

// Create inserts an unread admin notification.
func (s *AdminNotificationStore) Create(ctx context.Context, n *model.AdminNotification) error {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = s.now().UTC()
	}
	n.Read = false
	res, err := s.coll.InsertOne(ctx, n)
	if err != nil {
		return fmt.Errorf("failed to create admin notification: %w", err)
	}
	if id, ok := res.InsertedID.(primitive.ObjectID); ok {
		n.ID = id
	}
	return nil
}

// List returns admin notifications, newest first.
func (s *AdminNotificationStore) List(ctx context.Context, unreadOnly bool, limit, offset int) ([]*model.AdminNotification, error) {
	filter := bson.M{}
	if unreadOnly {
		filter["read"] = false
	}

	cur, err := s.coll.Find(ctx, filter, findOptions(limit, offset))
	if err != nil {
		return nil, fmt.Errorf("failed to list admin notifications: %w", err)
	}

	notifications := make([]*model.AdminNotification, 0)
	if err := cur.All(ctx, &notifications); err != nil {
		return nil, fmt.Errorf("failed to decode admin notifications: %w", err)
	}
	return notifications, nil
}

// MarkRead marks the given admin notifications as read; empty ids marks all.
func (s *AdminNotificationStore) MarkRead(ctx context.Context, ids []string) (int64, error) {
	filter := bson.M{"read": false}
	if len(ids) > 0 {
		oids, err := objectIDs(ids)
		if err != nil {
			return 0, err
		}
		filter["_id"] = bson.M{"$in": oids}
	}

	res, err := s.coll.UpdateMany(ctx, filter, bson.M{"$set": bson.M{"read": true}})
	if err != nil {
		return 0, fmt.Errorf("failed to mark admin notifications read: %w", err)
	}
	return res.ModifiedCount, nil
}

func objectIDs(ids []string) ([]primitive.ObjectID, error) {
	oids := make([]primitive.ObjectID, 0, len(ids))
	for _, id := range ids {
		oid, err := primitive.ObjectIDFromHex(id)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrInvalidID, id)
		}
		oids = append(oids, oid)
	}
	return oids, nil
}
