package models

import "time"

// Notification is a message addressed to one user
type Notification struct {
	ID              string           `json:"id"`
	UserID          string           `json:"user_id"`
	Title           string           `json:"title"`
	Message         string           `json:"message"`
	Type            NotificationType `json:"type"`
	IsRead          bool             `json:"is_read"`
	RelatedTaskID   *string          `json:"related_task_id,omitempty"`
	RelatedRewardID *string          `json:"related_reward_id,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
}
