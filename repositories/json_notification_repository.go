package repositories

import (
	"context"
	"sort"

	"github.com/petanque-connect/server/models"
	"github.com/petanque-connect/server/storage"
)

const notificationsCollection = "notifications"

type jsonNotificationRepository struct {
	store *storage.JSONStore
}

func NewJSONNotificationRepository(store *storage.JSONStore) NotificationRepository {
	return &jsonNotificationRepository{store: store}
}

func (r *jsonNotificationRepository) readAll() ([]*models.Notification, error) {
	notifications := []*models.Notification{}
	if err := r.store.Read(notificationsCollection, &notifications); err != nil {
		return nil, err
	}
	return notifications, nil
}

func (r *jsonNotificationRepository) Create(ctx context.Context, n *models.Notification) error {
	return r.store.Mutate(notificationsCollection, func() error {
		notifications, err := r.readAll()
		if err != nil {
			return err
		}
		notifications = append(notifications, n)
		return r.store.Write(notificationsCollection, notifications)
	})
}

func (r *jsonNotificationRepository) ListByUser(ctx context.Context, userID string) ([]*models.Notification, error) {
	notifications, err := r.readAll()
	if err != nil {
		return nil, err
	}
	mine := []*models.Notification{}
	for _, n := range notifications {
		if n.UserID == userID {
			mine = append(mine, n)
		}
	}
	sort.SliceStable(mine, func(i, j int) bool {
		return mine[i].CreatedAt.After(mine[j].CreatedAt)
	})
	return mine, nil
}

func (r *jsonNotificationRepository) MarkRead(ctx context.Context, notificationID, userID string) error {
	return r.store.Mutate(notificationsCollection, func() error {
		notifications, err := r.readAll()
		if err != nil {
			return err
		}
		for _, n := range notifications {
			if n.ID == notificationID && n.UserID == userID {
				n.Read = true
				return r.store.Write(notificationsCollection, notifications)
			}
		}
		return ErrNotificationNotFound
	})
}
