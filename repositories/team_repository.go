package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/petanque-connect/server/models"
)

type TeamRepository interface {
	List(ctx context.Context) ([]*models.Team, error)
	ListByContest(ctx context.Context, contestID string) ([]*models.Team, error)
	GetByID(ctx context.Context, teamID string) (*models.Team, error)
	Create(ctx context.Context, team *models.Team) error
	Update(ctx context.Context, team *models.Team) error
	Delete(ctx context.Context, teamID string) error
}

type postgresTeamRepository struct {
	db *sql.DB
}

func NewPostgresTeamRepository(db *sql.DB) TeamRepository {
	return &postgresTeamRepository{db: db}
}

const teamColumns = `id, name, contest_id, captain_id, members, max_members, join_requests, is_public, status, history, created_at, updated_at`

func scanTeam(row interface{ Scan(...interface{}) error }) (*models.Team, error) {
	var t models.Team
	var members, joinRequests, history []byte
	err := row.Scan(
		&t.ID, &t.Name, &t.ContestID, &t.CaptainID,
		&members, &t.MaxMembers, &joinRequests,
		&t.IsPublic, &t.Status, &history,
		&t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(members, &t.Members); err != nil {
		return nil, fmt.Errorf("failed to decode team members: %w", err)
	}
	if err := json.Unmarshal(joinRequests, &t.JoinRequests); err != nil {
		return nil, fmt.Errorf("failed to decode join requests: %w", err)
	}
	if err := json.Unmarshal(history, &t.History); err != nil {
		return nil, fmt.Errorf("failed to decode team history: %w", err)
	}
	t.Normalize()
	return &t, nil
}

func teamJSONColumns(t *models.Team) (members, joinRequests, history []byte, err error) {
	if members, err = json.Marshal(t.Members); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to encode team members: %w", err)
	}
	if joinRequests, err = json.Marshal(t.JoinRequests); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to encode join requests: %w", err)
	}
	if history, err = json.Marshal(t.History); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to encode team history: %w", err)
	}
	return members, joinRequests, history, nil
}

func (r *postgresTeamRepository) List(ctx context.Context) ([]*models.Team, error) {
	query := `SELECT ` + teamColumns + ` FROM teams ORDER BY created_at`
	return r.queryTeams(ctx, query)
}

func (r *postgresTeamRepository) ListByContest(ctx context.Context, contestID string) ([]*models.Team, error) {
	query := `SELECT ` + teamColumns + ` FROM teams WHERE contest_id = $1 ORDER BY created_at`
	return r.queryTeams(ctx, query, contestID)
}

func (r *postgresTeamRepository) queryTeams(ctx context.Context, query string, args ...interface{}) ([]*models.Team, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query teams: %w", err)
	}
	defer rows.Close()

	teams := []*models.Team{}
	for rows.Next() {
		t, err := scanTeam(rows)
		if err != nil {
			return nil, err
		}
		teams = append(teams, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate teams: %w", err)
	}
	return teams, nil
}

func (r *postgresTeamRepository) GetByID(ctx context.Context, teamID string) (*models.Team, error) {
	query := `SELECT ` + teamColumns + ` FROM teams WHERE id = $1`
	t, err := scanTeam(r.db.QueryRowContext(ctx, query, teamID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTeamNotFound
		}
		return nil, fmt.Errorf("failed to get team %s: %w", teamID, err)
	}
	return t, nil
}

func (r *postgresTeamRepository) Create(ctx context.Context, team *models.Team) error {
	members, joinRequests, history, err := teamJSONColumns(team)
	if err != nil {
		return err
	}
	query := `INSERT INTO teams (` + teamColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
	_, err = r.db.ExecContext(ctx, query,
		team.ID, team.Name, team.ContestID, team.CaptainID,
		members, team.MaxMembers, joinRequests,
		team.IsPublic, team.Status, history,
		team.CreatedAt, team.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return ErrTeamConflict
		}
		return fmt.Errorf("failed to insert team: %w", err)
	}
	return nil
}

func (r *postgresTeamRepository) Update(ctx context.Context, team *models.Team) error {
	members, joinRequests, history, err := teamJSONColumns(team)
	if err != nil {
		return err
	}
	query := `UPDATE teams
		SET name = $2, captain_id = $3, members = $4, join_requests = $5,
		    is_public = $6, status = $7, history = $8, updated_at = $9
		WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query,
		team.ID, team.Name, team.CaptainID,
		members, joinRequests,
		team.IsPublic, team.Status, history,
		team.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update team %s: %w", team.ID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result for team %s: %w", team.ID, err)
	}
	if affected == 0 {
		return ErrTeamNotFound
	}
	return nil
}

func (r *postgresTeamRepository) Delete(ctx context.Context, teamID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM teams WHERE id = $1`, teamID)
	if err != nil {
		return fmt.Errorf("failed to delete team %s: %w", teamID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result for team %s: %w", teamID, err)
	}
	if affected == 0 {
		return ErrTeamNotFound
	}
	return nil
}
