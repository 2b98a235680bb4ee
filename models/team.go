package models

import (
	"strings"
	"time"
)

type TeamStatus string

const (
	TeamStatusPending   TeamStatus = "pending"
	TeamStatusComplete  TeamStatus = "complete"
	TeamStatusValidated TeamStatus = "validated"
	TeamStatusModified  TeamStatus = "modified"
)

const DefaultMaxMembers = 3

// JoinRequest is a pending, captain-approvable request to join a team.
// A user holds at most one outstanding request per team.
type JoinRequest struct {
	UserID    string    `json:"userId"`
	UserName  string    `json:"userName"`
	CreatedAt time.Time `json:"createdAt"`
}

// HistoryEntry is one line of a team's append-only audit log.
type HistoryEntry struct {
	Message string    `json:"message"`
	Date    time.Time `json:"date"`
}

// MemberDetail is the resolved display info of one roster member,
// attached to teams returned by the API and carried in fanout payloads.
type MemberDetail struct {
	ID          string `json:"id"`
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	Pseudo      string `json:"pseudo"`
	AvatarColor string `json:"avatarColor"`
}

type Team struct {
	ID           string         `json:"id" db:"id"`
	Name         string         `json:"name" db:"name"`
	ContestID    string         `json:"contestId" db:"contest_id"`
	CaptainID    string         `json:"captainId" db:"captain_id"`
	Members      []string       `json:"members" db:"members"`
	MaxMembers   int            `json:"maxMembers" db:"max_members"`
	JoinRequests []JoinRequest  `json:"joinRequests" db:"join_requests"`
	IsPublic     bool           `json:"isPublic" db:"is_public"`
	Status       TeamStatus     `json:"status" db:"status"`
	History      []HistoryEntry `json:"history" db:"history"`
	CreatedAt    time.Time      `json:"createdAt" db:"created_at"`
	UpdatedAt    time.Time      `json:"updatedAt" db:"updated_at"`

	MemberDetails []MemberDetail `json:"memberDetails,omitempty" db:"-"`
}

func (t *Team) HasMember(userID string) bool {
	for _, m := range t.Members {
		if m == userID {
			return true
		}
	}
	return false
}

func (t *Team) HasJoinRequest(userID string) bool {
	for _, jr := range t.JoinRequests {
		if jr.UserID == userID {
			return true
		}
	}
	return false
}

func (t *Team) IsFull() bool {
	return len(t.Members) >= t.MaxMembers
}

// RemoveMember drops userID from the roster; the order of the remaining
// members is preserved (captaincy transfer depends on it).
func (t *Team) RemoveMember(userID string) {
	members := make([]string, 0, len(t.Members))
	for _, m := range t.Members {
		if m != userID {
			members = append(members, m)
		}
	}
	t.Members = members
}

// RemoveJoinRequest drops the request from userID if present. Removing a
// request that does not exist is a no-op.
func (t *Team) RemoveJoinRequest(userID string) {
	requests := make([]JoinRequest, 0, len(t.JoinRequests))
	for _, jr := range t.JoinRequests {
		if jr.UserID != userID {
			requests = append(requests, jr)
		}
	}
	t.JoinRequests = requests
}

// RecomputeStatus applies the roster-size rule: complete when full,
// otherwise pending. Validation and the validated-to-modified demotion
// are handled by the state machine, never here.
func (t *Team) RecomputeStatus() {
	if t.IsFull() {
		t.Status = TeamStatusComplete
	} else {
		t.Status = TeamStatusPending
	}
}

// DemoteOrRecompute adjusts the status after a roster loss: a validated
// roster becomes modified (a visible re-validation signal) instead of
// silently recomputing to pending or complete.
func (t *Team) DemoteOrRecompute() {
	if t.Status == TeamStatusValidated {
		t.Status = TeamStatusModified
		return
	}
	t.RecomputeStatus()
}

// AppendHistory adds an audit entry and refreshes UpdatedAt.
func (t *Team) AppendHistory(message string, now time.Time) {
	t.History = append(t.History, HistoryEntry{Message: message, Date: now})
	t.UpdatedAt = now
}

// Normalize fills defaults for fields that may be absent on older
// records. Called once at the deserialization boundary.
func (t *Team) Normalize() {
	if t.Members == nil {
		t.Members = []string{}
	}
	if t.JoinRequests == nil {
		t.JoinRequests = []JoinRequest{}
	}
	if t.History == nil {
		t.History = []HistoryEntry{}
	}
	if t.MaxMembers <= 0 {
		t.MaxMembers = DefaultMaxMembers
	}
	if strings.TrimSpace(string(t.Status)) == "" {
		t.RecomputeStatus()
	}
}
