package services

import "errors"

// Shared errors used across services and the HTTP mapping layer.
var (
	// Not found
	ErrTeamNotFound         = errors.New("team not found")
	ErrUserNotFound         = errors.New("user not found")
	ErrNotificationNotFound = errors.New("notification not found")
	ErrJoinRequestNotFound  = errors.New("join request not found")

	// Validation and business rules
	ErrTeamNameRequired       = errors.New("team name is required")
	ErrContestRequired        = errors.New("contest id is required")
	ErrInvalidMaxMembers      = errors.New("max members must be a positive integer")
	ErrAlreadyInContestTeam   = errors.New("user already has a team for this contest")
	ErrAlreadyTeamMember      = errors.New("user is already a member of this team")
	ErrNotTeamMember          = errors.New("user is not a member of this team")
	ErrTeamFull               = errors.New("team is already full")
	ErrTeamNotComplete        = errors.New("team roster is not complete")
	ErrJoinRequestAlreadySent = errors.New("join request already sent")
	ErrCaptainCannotKickSelf  = errors.New("captain cannot remove themselves")
	ErrNoFieldsToUpdate       = errors.New("no fields provided for update")

	// Authorization
	ErrCaptainActionForbidden = errors.New("only the team captain can perform this action")
)
