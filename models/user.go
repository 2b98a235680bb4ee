package models

import "strings"

// PlaceholderAvatarColor is used for roster entries whose user record
// can no longer be resolved from the directory.
const PlaceholderAvatarColor = "#9ca3af"

type User struct {
	ID          string `json:"id"`
	Email       string `json:"email,omitempty"`
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	Pseudo      string `json:"pseudo"`
	Department  string `json:"department,omitempty"`
	Bio         string `json:"bio,omitempty"`
	AvatarColor string `json:"avatarColor"`
}

// DisplayName prefers the pseudo, then the full name, then the raw id.
func (u *User) DisplayName() string {
	if u.Pseudo != "" {
		return u.Pseudo
	}
	full := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if full != "" {
		return full
	}
	return u.ID
}

// MemberDetail projects the user into the display entry embedded in
// enriched team payloads.
func (u *User) MemberDetail() MemberDetail {
	return MemberDetail{
		ID:          u.ID,
		FirstName:   u.FirstName,
		LastName:    u.LastName,
		Pseudo:      u.Pseudo,
		AvatarColor: u.AvatarColor,
	}
}

// PlaceholderMemberDetail degrades gracefully when a member id has no
// matching user record.
func PlaceholderMemberDetail(userID string) MemberDetail {
	return MemberDetail{
		ID:          userID,
		FirstName:   userID,
		Pseudo:      userID,
		AvatarColor: PlaceholderAvatarColor,
	}
}
