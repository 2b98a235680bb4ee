package repositories

import "errors"

var (
	ErrTeamNotFound         = errors.New("team not found in repository")
	ErrTeamConflict         = errors.New("team id already exists")
	ErrUserNotFound         = errors.New("user not found in repository")
	ErrNotificationNotFound = errors.New("notification not found in repository")
)
