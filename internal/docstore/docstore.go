// Package docstore keeps the non-authoritative documents (activity trail,
// user notifications, admin notifications) in MongoDB.
package docstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"taskkash/internal/config"
)

// Collection names.
const (
	ActivitiesCollection         = "activities"
	NotificationsCollection      = "notifications"
	AdminNotificationsCollection = "admin_notifications"
)

const defaultListLimit = 50

// ErrInvalidID is returned when a document id is not a valid ObjectID.
var ErrInvalidID = errors.New("invalid document id")

// Client wraps a connected mongo client and the application database.
type Client struct {
	client *mongo.Client
	db     *mongo.Database
}

// Connect dials MongoDB, verifies the connection and creates the indexes the
// stores rely on.
func Connect(ctx context.Context, cfg config.MongoConfig) (*Client, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("error connecting to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("error pinging MongoDB: %w", err)
	}

	c := &Client{client: client, db: client.Database(cfg.Database)}
	if err := c.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return c, nil
}

func (c *Client) ensureIndexes(ctx context.Context) error {
	userTimeline := mongo.IndexModel{
		Keys: bson.D{
			{Key: "user_id", Value: 1},
			{Key: "created_at", Value: -1},
		},
	}

	if _, err := c.db.Collection(ActivitiesCollection).Indexes().CreateOne(ctx, userTimeline); err != nil {
		return fmt.Errorf("error creating activities index: %w", err)
	}

	unread := mongo.IndexModel{
		Keys: bson.D{
			{Key: "user_id", Value: 1},
			{Key: "read", Value: 1},
		},
	}
	if _, err := c.db.Collection(NotificationsCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{userTimeline, unread}); err != nil {
		return fmt.Errorf("error creating notifications indexes: %w", err)
	}

	adminTimeline := mongo.IndexModel{
		Keys: bson.D{
			{Key: "read", Value: 1},
			{Key: "created_at", Value: -1},
		},
	}
	if _, err := c.db.Collection(AdminNotificationsCollection).Indexes().CreateOne(ctx, adminTimeline); err != nil {
		return fmt.Errorf("error creating admin notifications index: %w", err)
	}
	return nil
}

// Ping checks that the server is reachable.
func (c *Client) Ping(ctx context.Context) error {
	return c.client.Ping(ctx, nil)
}

// Close disconnects from the server.
func (c *Client) Close(ctx context.Context) error {
	return c.client.Disconnect(ctx)
}

// Activities returns the activity store.
func (c *Client) Activities() *ActivityStore {
	return &ActivityStore{coll: c.db.Collection(ActivitiesCollection), now: time.Now}
}

// Notifications returns the user notification store.
func (c *Client) Notifications() *NotificationStore {
	return &NotificationStore{coll: c.db.Collection(NotificationsCollection), now: time.Now}
}

// AdminNotifications returns the admin notification store.
func (c *Client) AdminNotifications() *AdminNotificationStore {
	return &AdminNotificationStore{coll: c.db.Collection(AdminNotificationsCollection), now: time.Now}
}

func findOptions(limit, offset int) *options.FindOptions {
	if limit <= 0 || limit > 200 {
		limit = defaultListLimit
	}
	if offset < 0 {
		offset = 0
	}
	return options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}).
		SetLimit(int64(limit)).
		SetSkip(int64(offset))
}
