package repositories

import (
	"context"

	"github.com/petanque-connect/server/models"
	"github.com/petanque-connect/server/storage"
)

const teamsCollection = "teams"

// jsonTeamRepository keeps the original whole-collection read/overwrite
// shape on top of the JSON store, as a migration compatibility backend.
// Mutations run under the collection's writer lock so concurrent
// read-modify-write cycles cannot silently discard one another.
type jsonTeamRepository struct {
	store *storage.JSONStore
}

func NewJSONTeamRepository(store *storage.JSONStore) TeamRepository {
	return &jsonTeamRepository{store: store}
}

func (r *jsonTeamRepository) readAll() ([]*models.Team, error) {
	teams := []*models.Team{}
	if err := r.store.Read(teamsCollection, &teams); err != nil {
		return nil, err
	}
	for _, t := range teams {
		t.Normalize()
	}
	return teams, nil
}

func (r *jsonTeamRepository) List(ctx context.Context) ([]*models.Team, error) {
	return r.readAll()
}

func (r *jsonTeamRepository) ListByContest(ctx context.Context, contestID string) ([]*models.Team, error) {
	teams, err := r.readAll()
	if err != nil {
		return nil, err
	}
	filtered := []*models.Team{}
	for _, t := range teams {
		if t.ContestID == contestID {
			filtered = append(filtered, t)
		}
	}
	return filtered, nil
}

func (r *jsonTeamRepository) GetByID(ctx context.Context, teamID string) (*models.Team, error) {
	teams, err := r.readAll()
	if err != nil {
		return nil, err
	}
	for _, t := range teams {
		if t.ID == teamID {
			return t, nil
		}
	}
	return nil, ErrTeamNotFound
}

func (r *jsonTeamRepository) Create(ctx context.Context, team *models.Team) error {
	return r.store.Mutate(teamsCollection, func() error {
		teams, err := r.readAll()
		if err != nil {
			return err
		}
		for _, t := range teams {
			if t.ID == team.ID {
				return ErrTeamConflict
			}
		}
		teams = append(teams, team)
		return r.store.Write(teamsCollection, teams)
	})
}

func (r *jsonTeamRepository) Update(ctx context.Context, team *models.Team) error {
	return r.store.Mutate(teamsCollection, func() error {
		teams, err := r.readAll()
		if err != nil {
			return err
		}
		for i, t := range teams {
			if t.ID == team.ID {
				teams[i] = team
				return r.store.Write(teamsCollection, teams)
			}
		}
		return ErrTeamNotFound
	})
}

func (r *jsonTeamRepository) Delete(ctx context.Context, teamID string) error {
	return r.store.Mutate(teamsCollection, func() error {
		teams, err := r.readAll()
		if err != nil {
			return err
		}
		for i, t := range teams {
			if t.ID == teamID {
				teams = append(teams[:i], teams[i+1:]...)
				return r.store.Write(teamsCollection, teams)
			}
		}
		return ErrTeamNotFound
	})
}
