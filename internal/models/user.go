package models

import "time"

// User is an account holder. FamilyID is nil until the user creates or joins a family.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	FullName     string    `json:"full_name"`
	AvatarURL    *string   `json:"avatar_url,omitempty"`
	FamilyID     *string   `json:"family_id,omitempty"`
	Role         Role      `json:"role"`
	Points       int       `json:"points"`
	CreatedAt    time.Time `json:"created_at"`
}

// IsAdmin reports whether the user administers their family
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// BelongsTo reports whether the user is a member of familyID
func (u *User) BelongsTo(familyID string) bool {
	return u.FamilyID != nil && *u.FamilyID == familyID
}
