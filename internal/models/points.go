package models

import "time"

// PointTransaction is one journal entry written alongside every balance change.
// The sum of a user's deltas always equals their balance.
type PointTransaction struct {
	ID        string      `json:"id"`
	UserID    string      `json:"user_id"`
	Delta     int         `json:"delta"`
	Reason    PointReason `json:"reason"`
	TaskID    *string     `json:"task_id,omitempty"`
	ClaimID   *string     `json:"claim_id,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
}

// BalanceCheck compares a stored balance with its journal total
type BalanceCheck struct {
	UserID       string `json:"user_id"`
	Email        string `json:"email"`
	Balance      int    `json:"balance"`
	JournalTotal int    `json:"journal_total"`
}

// Consistent reports whether the balance matches the journal
func (b BalanceCheck) Consistent() bool {
	return b.Balance == b.JournalTotal
}
