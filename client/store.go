// Package client implements the consumer-side team cache and realtime
// subscription used by frontends and bots talking to the server.
package client

import (
	"sync"

	"github.com/petanque-connect/server/models"
)

// TeamStore holds one contest's team list plus the derived "my team"
// pointer. Every apply reconciles the list by team id with the full
// record from the server — partial diffs are never merged — and then
// re-derives MyTeam as a pure projection of the configured user id.
type TeamStore struct {
	mu     sync.RWMutex
	userID string
	teams  []*models.Team
	myTeam *models.Team
}

// NewTeamStore takes the authenticated user id explicitly; the store
// never derives identity from a credential.
func NewTeamStore(userID string) *TeamStore {
	return &TeamStore{userID: userID}
}

// SetTeams replaces the whole list, e.g. after a fetch.
func (s *TeamStore) SetTeams(teams []*models.Team) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.teams = append([]*models.Team{}, teams...)
	s.computeMyTeam()
}

// ApplyCreated appends the team unless it is already known (the
// creator sees both the HTTP response and the broadcast).
func (s *TeamStore) ApplyCreated(team *models.Team) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.teams {
		if t.ID == team.ID {
			return
		}
	}
	s.teams = append(s.teams, team)
	s.computeMyTeam()
}

// ApplyUpdated replaces the stored record by id; an update for an
// unknown team (e.g. a private team that just became visible) appends.
func (s *TeamStore) ApplyUpdated(team *models.Team) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, t := range s.teams {
		if t.ID == team.ID {
			s.teams[i] = team
			s.computeMyTeam()
			return
		}
	}
	s.teams = append(s.teams, team)
	s.computeMyTeam()
}

func (s *TeamStore) ApplyDeleted(teamID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	teams := make([]*models.Team, 0, len(s.teams))
	for _, t := range s.teams {
		if t.ID != teamID {
			teams = append(teams, t)
		}
	}
	s.teams = teams
	s.computeMyTeam()
}

// Teams returns a snapshot of the current list.
func (s *TeamStore) Teams() []*models.Team {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]*models.Team{}, s.teams...)
}

// MyTeam returns the team the configured user belongs to, or nil.
func (s *TeamStore) MyTeam() *models.Team {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.myTeam
}

// Clear empties the store, e.g. on navigation away from a contest.
func (s *TeamStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.teams = nil
	s.myTeam = nil
}

// computeMyTeam re-derives the pointer from the fresh list. Callers
// hold the write lock.
func (s *TeamStore) computeMyTeam() {
	for _, t := range s.teams {
		if t.HasMember(s.userID) {
			s.myTeam = t
			return
		}
	}
	s.myTeam = nil
}
