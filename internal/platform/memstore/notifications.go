package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"permitflow/internal/domain/notifications"
)

func (s *Store) CreateNotification(ctx context.Context, n notifications.Notification) error {
	defer s.lock(ctx)()
	n.ID = uuid.NewString()
	s.data.notifications = append(s.data.notifications, n)
	return nil
}

func (s *Store) UserEmail(ctx context.Context, userID string) (string, error) {
	defer s.lock(ctx)()
	return s.data.users[userID].Email, nil
}

func (s *Store) ListNotifications(ctx context.Context, userID string, limit, offset int) ([]notifications.Notification, error) {
	defer s.lock(ctx)()
	var all []notifications.Notification
	for _, n := range s.data.notifications {
		if n.UserID == userID {
			all = append(all, n)
		}
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	if offset >= len(all) {
		return nil, nil
	}
	all = all[offset:]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	return all, nil
}

func (s *Store) CountNotifications(ctx context.Context, userID string) (int, error) {
	defer s.lock(ctx)()
	n := 0
	for _, item := range s.data.notifications {
		if item.UserID == userID {
			n++
		}
	}
	return n, nil
}

func (s *Store) MarkRead(ctx context.Context, userID, notificationID string) error {
	defer s.lock(ctx)()
	for i, n := range s.data.notifications {
		if n.UserID == userID && n.ID == notificationID {
			if n.ReadAt == nil {
				now := time.Now()
				s.data.notifications[i].ReadAt = &now
			}
			return nil
		}
	}
	return notifications.ErrNotFound
}

// Events records emitted events in order.
type Events struct {
	mu     sync.Mutex
	events []notifications.Event
}

func (e *Events) Emit(_ context.Context, ev notifications.Event) {
	e.mu.Lock()
	e.events = append(e.events, ev)
	e.mu.Unlock()
}

// OfType returns the recorded events of one type, or all when eventType is empty.
func (e *Events) OfType(eventType string) []notifications.Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []notifications.Event
	for _, ev := range e.events {
		if eventType == "" || ev.Type == eventType {
			out = append(out, ev)
		}
	}
	return out
}
