package service

import (
	"errors"
	"fmt"
	"strings"

	"familypoints/internal/models"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrNotFamilyMember     = errors.New("user is not a member of this family")
	ErrRewardInactive      = errors.New("reward is no longer available")
	ErrPriceChanged        = errors.New("reward price has changed")
	ErrApprovalRequired    = errors.New("reward requires approval")
	ErrApprovalNotRequired = errors.New("reward does not require approval")
)

// PermissionError is returned when the caller's role does not allow an action
type PermissionError struct {
	Action string
	Reason string
}

func (e *PermissionError) Error() string {
	return e.Reason
}

// NotFoundOrForbiddenError is returned when a scoped write matched nothing.
// The caller cannot tell a missing row from one outside their reach.
type NotFoundOrForbiddenError struct {
	Entity string
	Op     string
}

func (e *NotFoundOrForbiddenError) Error() string {
	entity := strings.ToUpper(e.Entity[:1]) + e.Entity[1:]
	return fmt.Sprintf("%s could not be %s. You may not have permission or the %s may not exist.", entity, e.Op, e.Entity)
}

// InvalidTransitionError is returned for a status change the lifecycle does not allow
type InvalidTransitionError struct {
	Entity string
	From   string
	To     string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("%s cannot move from %s to %s", e.Entity, e.From, e.To)
}

// StoreError wraps a failure of the underlying store
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("failed to %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

func storeErr(op string, err error) error {
	return &StoreError{Op: op, Err: err}
}

// CompensationError is returned when a multi-step operation failed and undoing
// its completed steps failed too. Both errors stay reachable through errors.Is.
type CompensationError struct {
	Saga        string
	Cause       error
	RollbackErr error
}

func (e *CompensationError) Error() string {
	return fmt.Sprintf("%s failed (%v) and could not be rolled back: %v", e.Saga, e.Cause, e.RollbackErr)
}

func (e *CompensationError) Unwrap() []error {
	return []error{e.Cause, e.RollbackErr}
}

// NotificationDeliveryError records one recipient that could not be notified
type NotificationDeliveryError struct {
	UserID string
	Type   models.NotificationType
	Err    error
}

func (e *NotificationDeliveryError) Error() string {
	return fmt.Sprintf("failed to deliver %s notification to %s: %v", e.Type, e.UserID, e.Err)
}

func (e *NotificationDeliveryError) Unwrap() error {
	return e.Err
}
