package models

import (
	"errors"
	"fmt"
)

// ErrUnknownEnumValue is returned when a stored string does not map onto a known enum value
var ErrUnknownEnumValue = errors.New("unknown enum value")

func unknownValue(kind, value string) error {
	return fmt.Errorf("%w: %s %q", ErrUnknownEnumValue, kind, value)
}

// Role is a user's role within their family
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
	// RoleUnknown stands for a missing role (NULL in the store)
	RoleUnknown Role = ""
)

// ParseRole converts a stored role. An empty string yields RoleUnknown.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleAdmin, RoleMember, RoleUnknown:
		return Role(s), nil
	}
	return RoleUnknown, unknownValue("role", s)
}

func (r Role) String() string {
	if r == RoleUnknown {
		return "unknown"
	}
	return string(r)
}

// TaskStatus is the lifecycle state of a task
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
	TaskApproved   TaskStatus = "approved"
)

func ParseTaskStatus(s string) (TaskStatus, error) {
	switch TaskStatus(s) {
	case TaskPending, TaskInProgress, TaskCompleted, TaskApproved:
		return TaskStatus(s), nil
	}
	return "", unknownValue("task status", s)
}

// taskTransitions lists the forward moves allowed from each status.
// approved is terminal.
var taskTransitions = map[TaskStatus][]TaskStatus{
	TaskPending:    {TaskInProgress},
	TaskInProgress: {TaskCompleted},
	TaskCompleted:  {TaskApproved},
}

// CanTransitionTo reports whether a task in status s may move to next
func (s TaskStatus) CanTransitionTo(next TaskStatus) bool {
	for _, allowed := range taskTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition is possible
func (s TaskStatus) IsTerminal() bool {
	return s == TaskApproved
}

// ClaimStatus is the lifecycle state of a reward claim
type ClaimStatus string

const (
	ClaimPending  ClaimStatus = "pending"
	ClaimApproved ClaimStatus = "approved"
	ClaimDenied   ClaimStatus = "denied"
)

func ParseClaimStatus(s string) (ClaimStatus, error) {
	switch ClaimStatus(s) {
	case ClaimPending, ClaimApproved, ClaimDenied:
		return ClaimStatus(s), nil
	}
	return "", unknownValue("claim status", s)
}

// IsResolved reports whether an admin has already decided the claim
func (s ClaimStatus) IsResolved() bool {
	return s == ClaimApproved || s == ClaimDenied
}

// ClaimDecision is an admin's verdict on a pending claim
type ClaimDecision string

const (
	DecisionApprove ClaimDecision = "approve"
	DecisionDeny    ClaimDecision = "deny"
)

func ParseClaimDecision(s string) (ClaimDecision, error) {
	switch ClaimDecision(s) {
	case DecisionApprove, DecisionDeny:
		return ClaimDecision(s), nil
	}
	return "", unknownValue("claim decision", s)
}

// TargetStatus is the claim status a decision resolves to
func (d ClaimDecision) TargetStatus() ClaimStatus {
	if d == DecisionApprove {
		return ClaimApproved
	}
	return ClaimDenied
}

// NotificationType categorises a notification
type NotificationType string

const (
	NotificationTaskAssigned  NotificationType = "task_assigned"
	NotificationTaskCompleted NotificationType = "task_completed"
	NotificationTaskApproved  NotificationType = "task_approved"
	NotificationRewardClaimed NotificationType = "reward_claimed"
	NotificationGeneral       NotificationType = "general"
)

func ParseNotificationType(s string) (NotificationType, error) {
	switch NotificationType(s) {
	case NotificationTaskAssigned, NotificationTaskCompleted, NotificationTaskApproved,
		NotificationRewardClaimed, NotificationGeneral:
		return NotificationType(s), nil
	}
	return "", unknownValue("notification type", s)
}

// PointReason records why a balance moved
type PointReason string

const (
	ReasonTaskApproved  PointReason = "task_approved"
	ReasonRewardClaimed PointReason = "reward_claimed"
	ReasonClaimApproved PointReason = "claim_approved"
)

func ParsePointReason(s string) (PointReason, error) {
	switch PointReason(s) {
	case ReasonTaskApproved, ReasonRewardClaimed, ReasonClaimApproved:
		return PointReason(s), nil
	}
	return "", unknownValue("point reason", s)
}
