package repositories

import (
	"context"

	"github.com/petanque-connect/server/models"
	"github.com/petanque-connect/server/storage"
)

const usersCollection = "users"

type jsonUserRepository struct {
	store *storage.JSONStore
}

func NewJSONUserRepository(store *storage.JSONStore) UserRepository {
	return &jsonUserRepository{store: store}
}

func (r *jsonUserRepository) readAll() ([]*models.User, error) {
	users := []*models.User{}
	if err := r.store.Read(usersCollection, &users); err != nil {
		return nil, err
	}
	return users, nil
}

func (r *jsonUserRepository) GetByID(ctx context.Context, userID string) (*models.User, error) {
	users, err := r.readAll()
	if err != nil {
		return nil, err
	}
	for _, u := range users {
		if u.ID == userID {
			return u, nil
		}
	}
	return nil, ErrUserNotFound
}

func (r *jsonUserRepository) ListByIDs(ctx context.Context, userIDs []string) (map[string]*models.User, error) {
	users, err := r.readAll()
	if err != nil {
		return nil, err
	}
	wanted := make(map[string]bool, len(userIDs))
	for _, id := range userIDs {
		wanted[id] = true
	}
	result := make(map[string]*models.User, len(userIDs))
	for _, u := range users {
		if wanted[u.ID] {
			result[u.ID] = u
		}
	}
	return result, nil
}
