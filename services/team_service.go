package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/petanque-connect/server/models"
	"github.com/petanque-connect/server/repositories"
)

type CreateTeamInput struct {
	Name       string `json:"name"`
	ContestID  string `json:"contestId"`
	IsPublic   *bool  `json:"isPublic"`
	MaxMembers int    `json:"maxMembers"`

	CreatorID string `json:"-"`
}

type UpdateTeamInput struct {
	Name     *string `json:"name"`
	IsPublic *bool   `json:"isPublic"`
}

// LeaveResult reports what leaving did: when the captain was the last
// member the team is gone and only the contest id survives, so clients
// can refetch the listing.
type LeaveResult struct {
	Deleted   bool
	ContestID string
	Team      *models.Team
}

type TeamService interface {
	ListTeams(ctx context.Context, contestID, requestingUserID string) ([]*models.Team, error)
	GetTeamByID(ctx context.Context, teamID string) (*models.Team, error)
	CreateTeam(ctx context.Context, input CreateTeamInput) (*models.Team, error)
	RequestToJoin(ctx context.Context, teamID, userID string) (*models.Team, error)
	CancelJoinRequest(ctx context.Context, teamID, userID string) (*models.Team, error)
	AcceptJoinRequest(ctx context.Context, teamID, captainID, userID string) (*models.Team, error)
	RefuseJoinRequest(ctx context.Context, teamID, captainID, userID string) (*models.Team, error)
	LeaveTeam(ctx context.Context, teamID, userID string) (*LeaveResult, error)
	KickMember(ctx context.Context, teamID, captainID, userID string) (*models.Team, error)
	ValidateTeam(ctx context.Context, teamID, captainID string) (*models.Team, error)
	UpdateTeam(ctx context.Context, teamID, captainID string, input UpdateTeamInput) (*models.Team, error)
	DeleteTeam(ctx context.Context, teamID, captainID string) error
}

// keyedMutex hands out one mutex per key. Team mutations lock their
// contest id, which serializes every membership change that could
// violate the one-team-per-contest invariant.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*sync.Mutex)}
}

func (k *keyedMutex) Lock(key string) (unlock func()) {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &sync.Mutex{}
		k.locks[key] = l
	}
	k.mu.Unlock()
	l.Lock()
	return l.Unlock
}

type teamService struct {
	teamRepo     repositories.TeamRepository
	userRepo     repositories.UserRepository
	dispatcher   *Dispatcher
	contestLocks *keyedMutex
	logger       *slog.Logger
}

func NewTeamService(
	teamRepo repositories.TeamRepository,
	userRepo repositories.UserRepository,
	dispatcher *Dispatcher,
	logger *slog.Logger,
) TeamService {
	return &teamService{
		teamRepo:     teamRepo,
		userRepo:     userRepo,
		dispatcher:   dispatcher,
		contestLocks: newKeyedMutex(),
		logger:       logger,
	}
}

func (s *teamService) ListTeams(ctx context.Context, contestID, requestingUserID string) ([]*models.Team, error) {
	var teams []*models.Team
	var err error
	if contestID != "" {
		teams, err = s.teamRepo.ListByContest(ctx, contestID)
	} else {
		teams, err = s.teamRepo.List(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list teams: %w", err)
	}

	visible := []*models.Team{}
	for _, t := range teams {
		if s.isVisibleTo(t, requestingUserID) {
			visible = append(visible, t)
		}
	}

	s.enrichTeams(ctx, visible)
	return visible, nil
}

// isVisibleTo hides private teams from everyone except members, the
// captain, and users with an outstanding join request.
func (s *teamService) isVisibleTo(t *models.Team, userID string) bool {
	if t.IsPublic {
		return true
	}
	if userID == "" {
		return false
	}
	return t.HasMember(userID) || t.CaptainID == userID || t.HasJoinRequest(userID)
}

func (s *teamService) GetTeamByID(ctx context.Context, teamID string) (*models.Team, error) {
	team, err := s.getTeam(ctx, teamID)
	if err != nil {
		return nil, err
	}
	s.enrichTeams(ctx, []*models.Team{team})
	return team, nil
}

func (s *teamService) CreateTeam(ctx context.Context, input CreateTeamInput) (*models.Team, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, ErrTeamNameRequired
	}
	if input.ContestID == "" {
		return nil, ErrContestRequired
	}
	if input.MaxMembers < 0 {
		return nil, ErrInvalidMaxMembers
	}
	maxMembers := input.MaxMembers
	if maxMembers == 0 {
		maxMembers = models.DefaultMaxMembers
	}

	unlock := s.contestLocks.Lock(input.ContestID)
	defer unlock()

	existing, err := s.teamRepo.ListByContest(ctx, input.ContestID)
	if err != nil {
		return nil, fmt.Errorf("failed to list contest teams: %w", err)
	}
	for _, t := range existing {
		if t.HasMember(input.CreatorID) {
			return nil, ErrAlreadyInContestTeam
		}
	}

	now := time.Now().UTC()
	isPublic := true
	if input.IsPublic != nil {
		isPublic = *input.IsPublic
	}
	creatorName := s.displayName(ctx, input.CreatorID)

	team := &models.Team{
		ID:           uuid.NewString(),
		Name:         name,
		ContestID:    input.ContestID,
		CaptainID:    input.CreatorID,
		Members:      []string{input.CreatorID},
		MaxMembers:   maxMembers,
		JoinRequests: []models.JoinRequest{},
		IsPublic:     isPublic,
		Status:       models.TeamStatusPending,
		History: []models.HistoryEntry{
			{Message: fmt.Sprintf("%s created the team", creatorName), Date: now},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.teamRepo.Create(ctx, team); err != nil {
		return nil, fmt.Errorf("failed to create team: %w", err)
	}

	s.enrichTeams(ctx, []*models.Team{team})
	s.dispatcher.Dispatch(ctx, []Event{
		broadcastEvent(EventTeamCreated, team.ContestID, team),
	})
	return team, nil
}

func (s *teamService) RequestToJoin(ctx context.Context, teamID, userID string) (*models.Team, error) {
	team, unlock, err := s.lockTeam(ctx, teamID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if team.HasMember(userID) {
		return nil, ErrAlreadyTeamMember
	}
	if err := s.checkNoOtherContestTeam(ctx, team, userID); err != nil {
		return nil, err
	}
	if team.IsFull() {
		return nil, ErrTeamFull
	}
	if team.HasJoinRequest(userID) {
		return nil, ErrJoinRequestAlreadySent
	}

	now := time.Now().UTC()
	userName := s.displayName(ctx, userID)
	team.JoinRequests = append(team.JoinRequests, models.JoinRequest{
		UserID:    userID,
		UserName:  userName,
		CreatedAt: now,
	})
	team.AppendHistory(fmt.Sprintf("%s asked to join", userName), now)

	if err := s.teamRepo.Update(ctx, team); err != nil {
		return nil, fmt.Errorf("failed to save join request: %w", err)
	}

	s.enrichTeams(ctx, []*models.Team{team})
	s.dispatcher.Dispatch(ctx, []Event{
		directEvent(EventTeamJoinRequest, team.CaptainID,
			JoinRequestPayload{TeamID: team.ID, UserID: userID, UserName: userName},
			fmt.Sprintf("%s asked to join %q", userName, team.Name)),
		broadcastEvent(EventTeamUpdated, team.ContestID, team),
	})
	return team, nil
}

func (s *teamService) CancelJoinRequest(ctx context.Context, teamID, userID string) (*models.Team, error) {
	team, unlock, err := s.lockTeam(ctx, teamID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	// Cancelling a request that does not exist is a no-op.
	if !team.HasJoinRequest(userID) {
		s.enrichTeams(ctx, []*models.Team{team})
		return team, nil
	}

	team.RemoveJoinRequest(userID)
	team.AppendHistory(fmt.Sprintf("%s cancelled their join request", s.displayName(ctx, userID)), time.Now().UTC())

	if err := s.teamRepo.Update(ctx, team); err != nil {
		return nil, fmt.Errorf("failed to cancel join request: %w", err)
	}

	s.enrichTeams(ctx, []*models.Team{team})
	s.dispatcher.Dispatch(ctx, []Event{
		broadcastEvent(EventTeamUpdated, team.ContestID, team),
	})
	return team, nil
}

func (s *teamService) AcceptJoinRequest(ctx context.Context, teamID, captainID, userID string) (*models.Team, error) {
	team, unlock, err := s.lockTeam(ctx, teamID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if team.CaptainID != captainID {
		return nil, ErrCaptainActionForbidden
	}
	if !team.HasJoinRequest(userID) {
		return nil, ErrJoinRequestNotFound
	}
	if team.IsFull() {
		return nil, ErrTeamFull
	}
	if err := s.checkNoOtherContestTeam(ctx, team, userID); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	userName := s.displayName(ctx, userID)
	team.RemoveJoinRequest(userID)
	team.Members = append(team.Members, userID)
	team.RecomputeStatus()
	team.AppendHistory(fmt.Sprintf("%s joined the team", userName), now)

	if err := s.teamRepo.Update(ctx, team); err != nil {
		return nil, fmt.Errorf("failed to accept join request: %w", err)
	}

	s.enrichTeams(ctx, []*models.Team{team})
	s.dispatcher.Dispatch(ctx, []Event{
		directEvent(EventTeamJoinResponse, userID,
			JoinResponsePayload{TeamID: team.ID, Accepted: true, TeamName: team.Name},
			fmt.Sprintf("Your request to join %q was accepted", team.Name)),
		broadcastEvent(EventTeamUpdated, team.ContestID, team),
	})
	return team, nil
}

func (s *teamService) RefuseJoinRequest(ctx context.Context, teamID, captainID, userID string) (*models.Team, error) {
	team, unlock, err := s.lockTeam(ctx, teamID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if team.CaptainID != captainID {
		return nil, ErrCaptainActionForbidden
	}

	team.RemoveJoinRequest(userID)
	team.AppendHistory(fmt.Sprintf("Request from %s refused", s.displayName(ctx, userID)), time.Now().UTC())

	if err := s.teamRepo.Update(ctx, team); err != nil {
		return nil, fmt.Errorf("failed to refuse join request: %w", err)
	}

	s.enrichTeams(ctx, []*models.Team{team})
	s.dispatcher.Dispatch(ctx, []Event{
		directEvent(EventTeamJoinResponse, userID,
			JoinResponsePayload{TeamID: team.ID, Accepted: false, TeamName: team.Name},
			fmt.Sprintf("Your request to join %q was refused", team.Name)),
		broadcastEvent(EventTeamUpdated, team.ContestID, team),
	})
	return team, nil
}

func (s *teamService) LeaveTeam(ctx context.Context, teamID, userID string) (*LeaveResult, error) {
	team, unlock, err := s.lockTeam(ctx, teamID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if !team.HasMember(userID) {
		return nil, ErrNotTeamMember
	}

	now := time.Now().UTC()
	leaverName := s.displayName(ctx, userID)

	if team.CaptainID == userID {
		if len(team.Members) == 1 {
			// Last member leaving deletes the team entirely.
			if err := s.teamRepo.Delete(ctx, team.ID); err != nil {
				return nil, fmt.Errorf("failed to delete empty team: %w", err)
			}
			s.dispatcher.Dispatch(ctx, []Event{
				broadcastEvent(EventTeamDeleted, team.ContestID,
					TeamDeletedPayload{TeamID: team.ID, ContestID: team.ContestID}),
			})
			return &LeaveResult{Deleted: true, ContestID: team.ContestID}, nil
		}

		// Captaincy transfers to the next member in roster order.
		var successor string
		for _, m := range team.Members {
			if m != userID {
				successor = m
				break
			}
		}
		team.CaptainID = successor
		team.AppendHistory(fmt.Sprintf("%s left. %s is the new captain", leaverName, s.displayName(ctx, successor)), now)
	} else {
		team.AppendHistory(fmt.Sprintf("%s left the team", leaverName), now)
	}

	team.RemoveMember(userID)
	team.DemoteOrRecompute()

	if err := s.teamRepo.Update(ctx, team); err != nil {
		return nil, fmt.Errorf("failed to save team after leave: %w", err)
	}

	s.enrichTeams(ctx, []*models.Team{team})
	s.dispatcher.Dispatch(ctx, []Event{
		broadcastEvent(EventTeamUpdated, team.ContestID, team),
	})
	return &LeaveResult{ContestID: team.ContestID, Team: team}, nil
}

func (s *teamService) KickMember(ctx context.Context, teamID, captainID, userID string) (*models.Team, error) {
	team, unlock, err := s.lockTeam(ctx, teamID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if team.CaptainID != captainID {
		return nil, ErrCaptainActionForbidden
	}
	if userID == captainID {
		return nil, ErrCaptainCannotKickSelf
	}
	if !team.HasMember(userID) {
		return nil, ErrNotTeamMember
	}

	team.RemoveMember(userID)
	team.DemoteOrRecompute()
	team.AppendHistory(fmt.Sprintf("%s was removed from the team", s.displayName(ctx, userID)), time.Now().UTC())

	if err := s.teamRepo.Update(ctx, team); err != nil {
		return nil, fmt.Errorf("failed to save team after kick: %w", err)
	}

	s.enrichTeams(ctx, []*models.Team{team})
	s.dispatcher.Dispatch(ctx, []Event{
		directEvent(EventTeamKicked, userID,
			KickedPayload{TeamID: team.ID, TeamName: team.Name},
			fmt.Sprintf("You were removed from team %q", team.Name)),
		broadcastEvent(EventTeamUpdated, team.ContestID, team),
	})
	return team, nil
}

func (s *teamService) ValidateTeam(ctx context.Context, teamID, captainID string) (*models.Team, error) {
	team, unlock, err := s.lockTeam(ctx, teamID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if team.CaptainID != captainID {
		return nil, ErrCaptainActionForbidden
	}
	if len(team.Members) < team.MaxMembers {
		return nil, ErrTeamNotComplete
	}

	team.Status = models.TeamStatusValidated
	team.AppendHistory(fmt.Sprintf("Team validated by %s", s.displayName(ctx, captainID)), time.Now().UTC())

	if err := s.teamRepo.Update(ctx, team); err != nil {
		return nil, fmt.Errorf("failed to validate team: %w", err)
	}

	s.enrichTeams(ctx, []*models.Team{team})
	s.dispatcher.Dispatch(ctx, []Event{
		broadcastEvent(EventTeamUpdated, team.ContestID, team),
	})
	return team, nil
}

func (s *teamService) UpdateTeam(ctx context.Context, teamID, captainID string, input UpdateTeamInput) (*models.Team, error) {
	team, unlock, err := s.lockTeam(ctx, teamID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if team.CaptainID != captainID {
		return nil, ErrCaptainActionForbidden
	}

	now := time.Now().UTC()
	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			return nil, ErrTeamNameRequired
		}
		team.Name = name
		team.AppendHistory(fmt.Sprintf("Team renamed to %q", name), now)
	}
	if input.IsPublic != nil {
		team.IsPublic = *input.IsPublic
		visibility := "private"
		if team.IsPublic {
			visibility = "public"
		}
		team.AppendHistory(fmt.Sprintf("Visibility changed to %s", visibility), now)
	}

	if err := s.teamRepo.Update(ctx, team); err != nil {
		return nil, fmt.Errorf("failed to update team: %w", err)
	}

	s.enrichTeams(ctx, []*models.Team{team})
	s.dispatcher.Dispatch(ctx, []Event{
		broadcastEvent(EventTeamUpdated, team.ContestID, team),
	})
	return team, nil
}

func (s *teamService) DeleteTeam(ctx context.Context, teamID, captainID string) error {
	team, unlock, err := s.lockTeam(ctx, teamID)
	if err != nil {
		return err
	}
	defer unlock()

	if team.CaptainID != captainID {
		return ErrCaptainActionForbidden
	}

	if err := s.teamRepo.Delete(ctx, team.ID); err != nil {
		return fmt.Errorf("failed to delete team: %w", err)
	}

	s.dispatcher.Dispatch(ctx, []Event{
		broadcastEvent(EventTeamDeleted, team.ContestID,
			TeamDeletedPayload{TeamID: team.ID, ContestID: team.ContestID}),
	})
	return nil
}

func (s *teamService) getTeam(ctx context.Context, teamID string) (*models.Team, error) {
	team, err := s.teamRepo.GetByID(ctx, teamID)
	if err != nil {
		if errors.Is(err, repositories.ErrTeamNotFound) {
			return nil, ErrTeamNotFound
		}
		return nil, fmt.Errorf("failed to get team %s: %w", teamID, err)
	}
	return team, nil
}

// lockTeam resolves the team's contest, takes the contest lock, then
// re-reads the team so the caller mutates a fresh copy. All precondition
// checks run under the lock, before any mutation.
func (s *teamService) lockTeam(ctx context.Context, teamID string) (*models.Team, func(), error) {
	team, err := s.getTeam(ctx, teamID)
	if err != nil {
		return nil, nil, err
	}

	unlock := s.contestLocks.Lock(team.ContestID)
	team, err = s.getTeam(ctx, teamID)
	if err != nil {
		unlock()
		return nil, nil, err
	}
	return team, unlock, nil
}

// checkNoOtherContestTeam rejects a user who is already a member of a
// different team in the same contest.
func (s *teamService) checkNoOtherContestTeam(ctx context.Context, team *models.Team, userID string) error {
	contestTeams, err := s.teamRepo.ListByContest(ctx, team.ContestID)
	if err != nil {
		return fmt.Errorf("failed to list contest teams: %w", err)
	}
	for _, t := range contestTeams {
		if t.ID != team.ID && t.HasMember(userID) {
			return ErrAlreadyInContestTeam
		}
	}
	return nil
}

// displayName resolves a user id for history and event texts; an
// unresolved id degrades to the raw id rather than failing.
func (s *teamService) displayName(ctx context.Context, userID string) string {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return userID
	}
	return user.DisplayName()
}

// enrichTeams attaches resolved member display info to each team. The
// lookup is batched across all rosters; a failed or partial lookup
// degrades to placeholder entries instead of failing the operation.
func (s *teamService) enrichTeams(ctx context.Context, teams []*models.Team) {
	ids := []string{}
	seen := map[string]bool{}
	for _, t := range teams {
		for _, m := range t.Members {
			if !seen[m] {
				seen[m] = true
				ids = append(ids, m)
			}
		}
	}
	if len(ids) == 0 {
		return
	}

	users, err := s.userRepo.ListByIDs(ctx, ids)
	if err != nil {
		s.logger.Warn("failed to resolve member details", slog.Any("error", err))
		users = map[string]*models.User{}
	}

	for _, t := range teams {
		details := make([]models.MemberDetail, 0, len(t.Members))
		for _, m := range t.Members {
			if u, ok := users[m]; ok {
				details = append(details, u.MemberDetail())
			} else {
				details = append(details, models.PlaceholderMemberDetail(m))
			}
		}
		t.MemberDetails = details
	}
}
