package docstore

import (
	"context"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"taskkash/internal/model"
)

// Memory keeps the documents in process. It backs development runs without
// MongoDB and unit tests; contents are lost on restart.
type Memory struct {
	mu            sync.Mutex
	activities    []*model.Activity
	notifications []*model.Notification
	admin         []*model.AdminNotification
	now           func() time.Time
}

// NewMemory creates an empty in-memory document store.
func NewMemory() *Memory {
	return &Memory{now: time.Now}
}

// Activities returns the activity trail view.
func (m *Memory) Activities() *MemoryActivities { return (*MemoryActivities)(m) }

// Notifications returns the user notification view.
func (m *Memory) Notifications() *MemoryNotifications { return (*MemoryNotifications)(m) }

// AdminNotifications returns the admin notification view.
func (m *Memory) AdminNotifications() *MemoryAdminNotifications {
	return (*MemoryAdminNotifications)(m)
}

// window returns the [start, end) bounds of a newest-first page over n items
// stored oldest first.
func window(n, limit, offset int) (int, int) {
	if limit <= 0 || limit > 200 {
		limit = defaultListLimit
	}
	if offset < 0 {
		offset = 0
	}
	if offset >= n {
		return 0, 0
	}
	end := n - offset
	start := end - limit
	if start < 0 {
		start = 0
	}
	return start, end
}

func toSet(ids []string) (map[primitive.ObjectID]bool, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	oids, err := objectIDs(ids)
	if err != nil {
		return nil, err
	}
	set := make(map[primitive.ObjectID]bool, len(oids))
	for _, id := range oids {
		set[id] = true
	}
	return set, nil
}

// MemoryActivities is the in-memory counterpart of ActivityStore.
type MemoryActivities Memory

func (s *MemoryActivities) Record(_ context.Context, a *model.Activity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = s.now().UTC()
	}
	a.ID = primitive.NewObjectID()
	c := *a
	s.activities = append(s.activities, &c)
	return nil
}

func (s *MemoryActivities) ListByUser(_ context.Context, userID int64, limit, offset int) ([]*model.Activity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var mine []*model.Activity
	for _, a := range s.activities {
		if a.UserID == userID {
			mine = append(mine, a)
		}
	}
	start, end := window(len(mine), limit, offset)
	out := make([]*model.Activity, 0, end-start)
	for i := end - 1; i >= start; i-- {
		c := *mine[i]
		out = append(out, &c)
	}
	return out, nil
}

// MemoryNotifications is the in-memory counterpart of NotificationStore.
type MemoryNotifications Memory

func (s *MemoryNotifications) Create(_ context.Context, n *model.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n.CreatedAt.IsZero() {
		n.CreatedAt = s.now().UTC()
	}
	n.ID = primitive.NewObjectID()
	n.Read = false
	c := *n
	s.notifications = append(s.notifications, &c)
	return nil
}

func (s *MemoryNotifications) ListByUser(_ context.Context, userID int64, limit, offset int) ([]*model.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var mine []*model.Notification
	for _, n := range s.notifications {
		if n.UserID == userID {
			mine = append(mine, n)
		}
	}
	start, end := window(len(mine), limit, offset)
	out := make([]*model.Notification, 0, end-start)
	for i := end - 1; i >= start; i-- {
		c := *mine[i]
		out = append(out, &c)
	}
	return out, nil
}

func (s *MemoryNotifications) UnreadCount(_ context.Context, userID int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, item := range s.notifications {
		if item.UserID == userID && !item.Read {
			n++
		}
	}
	return n, nil
}

func (s *MemoryNotifications) MarkRead(_ context.Context, userID int64, ids []string) (int64, error) {
	set, err := toSet(ids)
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, item := range s.notifications {
		if item.UserID != userID || item.Read || (set != nil && !set[item.ID]) {
			continue
		}
		item.Read = true
		n++
	}
	return n, nil
}

// MemoryAdminNotifications is the in-memory counterpart of AdminNotificationStore.
type MemoryAdminNotifications Memory

func (s *MemoryAdminNotifications) Create(_ context.Context, n *model.AdminNotification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n.CreatedAt.IsZero() {
		n.CreatedAt = s.now().UTC()
	}
	n.ID = primitive.NewObjectID()
	n.Read = false
	c := *n
	s.admin = append(s.admin, &c)
	return nil
}

func (s *MemoryAdminNotifications) List(_ context.Context, unreadOnly bool, limit, offset int) ([]*model.AdminNotification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var items []*model.AdminNotification
	for _, n := range s.admin {
		if unreadOnly && n.Read {
			continue
		}
		items = append(items, n)
	}
	start, end := window(len(items), limit, offset)
	out := make([]*model.AdminNotification, 0, end-start)
	for i := end - 1; i >= start; i-- {
		c := *items[i]
		out = append(out, &c)
	}
	return out, nil
}

func (s *MemoryAdminNotifications) MarkRead(_ context.Context, ids []string) (int64, error) {
	set, err := toSet(ids)
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, item := range s.admin {
		if item.Read || (set != nil && !set[item.ID]) {
			continue
		}
		item.Read = true
		n++
	}
	return n, nil
}
