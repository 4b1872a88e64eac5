package models

import "time"

// Family groups users. Its ID doubles as the invitation code.
type Family struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	AdminID   string    `json:"admin_id"`
	CreatedAt time.Time `json:"created_at"`
}

// FamilyWithMembers combines a family with its members, admins first
type FamilyWithMembers struct {
	Family  Family `json:"family"`
	Members []User `json:"members"`
}
