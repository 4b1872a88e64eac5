package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"familypoints/internal/cache"
	"familypoints/internal/metrics"
	"familypoints/internal/models"
	"familypoints/internal/repository"
	"familypoints/internal/validation"

	log "github.com/sirupsen/logrus"
)

// errLostRace marks a compare-and-set that found the row already moved by someone else
var errLostRace = errors.New("status changed concurrently")

// CreateTaskInput holds the fields an admin supplies for a new task
type CreateTaskInput struct {
	Title       string
	Description string
	Points      int
	AssignedTo  string
	FamilyID    string
	CreatedBy   string
	DueDate     *time.Time
}

// TaskService runs the task lifecycle: pending, in_progress, completed, approved
type TaskService struct {
	tasks    TaskStore
	users    UserStore
	points   PointsLedger
	notifier *NotificationService
	gate     *Gate
	badges   cache.BadgeCache
	now      func() time.Time
}

// NewTaskService creates a new task service
func NewTaskService(tasks TaskStore, users UserStore, points PointsLedger, notifier *NotificationService, gate *Gate, badges cache.BadgeCache) *TaskService {
	if badges == nil {
		badges = cache.NopBadgeCache{}
	}
	return &TaskService{
		tasks:    tasks,
		users:    users,
		points:   points,
		notifier: notifier,
		gate:     gate,
		badges:   badges,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// CreateTask stores a pending task and tells the assignee about it
func (s *TaskService) CreateTask(ctx context.Context, in CreateTaskInput, actingRole models.Role) (*models.Task, error) {
	if err := s.gate.AssertRole(actingRole, models.RoleAdmin, "create tasks"); err != nil {
		return nil, err
	}
	if err := validation.ValidateTitle(in.Title); err != nil {
		return nil, err
	}
	if err := validation.ValidatePoints("points", in.Points); err != nil {
		return nil, err
	}

	assignee, err := s.users.GetUserByID(ctx, in.AssignedTo)
	if err != nil {
		return nil, storeErr("load assignee", err)
	}
	if assignee == nil || !assignee.BelongsTo(in.FamilyID) {
		return nil, validation.ValidationError{Field: "assigned_to", Message: ErrNotFamilyMember.Error()}
	}

	task := &models.Task{
		Title:       strings.TrimSpace(in.Title),
		Description: strings.TrimSpace(in.Description),
		Points:      in.Points,
		AssignedTo:  in.AssignedTo,
		CreatedBy:   in.CreatedBy,
		FamilyID:    in.FamilyID,
		Status:      models.TaskPending,
		DueDate:     in.DueDate,
	}
	if err := s.tasks.InsertTask(ctx, task); err != nil {
		return nil, storeErr("create task", err)
	}

	metrics.RecordTransition("task", string(models.TaskPending))
	log.WithFields(log.Fields{"task_id": task.ID, "family_id": task.FamilyID, "assigned_to": task.AssignedTo}).Info("Task created")

	s.notifier.NotifyBestEffort(ctx, taskAssignedNotice(task))
	return task, nil
}

// UpdateTaskStatus moves a task one step along its lifecycle.
// Asking for the status the task already has returns it unchanged.
func (s *TaskService) UpdateTaskStatus(ctx context.Context, taskID string, newStatus models.TaskStatus, actingUserID string) (*models.Task, error) {
	task, err := s.tasks.GetTaskByID(ctx, taskID)
	if err != nil {
		return nil, storeErr("load task", err)
	}
	if task == nil {
		return nil, &NotFoundOrForbiddenError{Entity: "task", Op: "updated"}
	}

	actor, err := s.users.GetUserByID(ctx, actingUserID)
	if err != nil {
		return nil, storeErr("load acting user", err)
	}
	// Tasks of other families are reported as missing, even for a no-op
	if actor == nil || !actor.BelongsTo(task.FamilyID) {
		return nil, &NotFoundOrForbiddenError{Entity: "task", Op: "updated"}
	}

	if task.Status == newStatus {
		return task, nil
	}
	if !task.Status.CanTransitionTo(newStatus) {
		return nil, &InvalidTransitionError{Entity: "task", From: string(task.Status), To: string(newStatus)}
	}

	if err := s.authorizeTransition(actor, task, newStatus); err != nil {
		return nil, err
	}

	at := s.now()
	if newStatus == models.TaskApproved {
		return s.approve(ctx, task, at)
	}

	ok, err := s.tasks.UpdateTaskStatus(ctx, task.ID, task.Status, newStatus, at)
	if err != nil {
		return nil, storeErr("update task status", err)
	}
	if !ok {
		return s.settleLostRace(ctx, task.ID, newStatus)
	}

	from := task.Status
	task.Status = newStatus
	task.UpdatedAt = at
	if newStatus == models.TaskCompleted {
		task.CompletedAt = &at
	}
	s.recordTransition(task, from)

	if newStatus == models.TaskCompleted {
		s.badges.InvalidatePendingApprovals(ctx, task.FamilyID)
		s.notifier.NotifyBestEffort(ctx, taskCompletedNotice(task))
	}
	return task, nil
}

// authorizeTransition checks who may make each move: the assignee starts and
// finishes a task, an admin of the task's family approves it
func (s *TaskService) authorizeTransition(actor *models.User, task *models.Task, to models.TaskStatus) error {
	switch to {
	case models.TaskInProgress, models.TaskCompleted:
		if actor.ID != task.AssignedTo {
			return &PermissionError{Action: "update task", Reason: "Only the assigned member can update this task"}
		}
	case models.TaskApproved:
		return s.gate.AssertRole(actor.Role, models.RoleAdmin, "approve tasks")
	}
	return nil
}

// approve marks the task approved and credits the assignee. If the credit fails
// the task goes back to completed so the approval can be retried.
func (s *TaskService) approve(ctx context.Context, task *models.Task, at time.Time) (*models.Task, error) {
	settlement := newSaga("task_settlement",
		sagaStep{
			name: "mark approved",
			run: func(ctx context.Context) error {
				ok, err := s.tasks.UpdateTaskStatus(ctx, task.ID, models.TaskCompleted, models.TaskApproved, at)
				if err != nil {
					return err
				}
				if !ok {
					return errLostRace
				}
				return nil
			},
			compensate: func(ctx context.Context) error {
				ok, err := s.tasks.UpdateTaskStatus(ctx, task.ID, models.TaskApproved, models.TaskCompleted, s.now())
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("task %s left approved state before it could be reverted", task.ID)
				}
				return nil
			},
		},
		sagaStep{
			name: "credit points",
			run: func(ctx context.Context) error {
				_, err := s.points.AddUserPoints(ctx, task.AssignedTo, task.Points, models.ReasonTaskApproved,
					repository.PointRef{TaskID: &task.ID})
				metrics.RecordPointAdjustment("credit", err)
				return err
			},
		},
	)

	if err := settlement.run(ctx); err != nil {
		if errors.Is(err, errLostRace) {
			return s.settleLostRace(ctx, task.ID, models.TaskApproved)
		}
		return nil, sagaFailure("approve task", err)
	}

	from := task.Status
	task.Status = models.TaskApproved
	task.ApprovedAt = &at
	task.UpdatedAt = at
	s.recordTransition(task, from)

	s.badges.InvalidatePendingApprovals(ctx, task.FamilyID)
	s.notifier.NotifyBestEffort(ctx, taskApprovedNotice(task))
	return task, nil
}

// settleLostRace handles a compare-and-set that matched nothing. If a
// concurrent request already moved the task to target, that outcome is
// returned as this request's result with no further side effects.
func (s *TaskService) settleLostRace(ctx context.Context, taskID string, target models.TaskStatus) (*models.Task, error) {
	current, err := s.tasks.GetTaskByID(ctx, taskID)
	if err != nil {
		return nil, storeErr("reload task", err)
	}
	if current == nil {
		return nil, &NotFoundOrForbiddenError{Entity: "task", Op: "updated"}
	}
	if current.Status == target {
		return current, nil
	}
	return nil, &InvalidTransitionError{Entity: "task", From: string(current.Status), To: string(target)}
}

func (s *TaskService) recordTransition(task *models.Task, from models.TaskStatus) {
	metrics.RecordTransition("task", string(task.Status))
	log.WithFields(log.Fields{
		"task_id": task.ID,
		"from":    string(from),
		"to":      string(task.Status),
	}).Info("Task status changed")
}

// DeleteTask removes a task of the capability's family. Approved tasks are kept
// because their points have already been paid.
func (s *TaskService) DeleteTask(ctx context.Context, taskID string, capability *DeleteCapability) error {
	if err := requireCapability(capability, "delete tasks"); err != nil {
		return err
	}

	n, err := s.tasks.DeleteTask(ctx, taskID, capability.FamilyID())
	if err != nil {
		return storeErr("delete task", err)
	}
	if n == 0 {
		task, err := s.tasks.GetTaskByID(ctx, taskID)
		if err == nil && task != nil && task.FamilyID == capability.FamilyID() && task.Status.IsTerminal() {
			return &InvalidTransitionError{Entity: "task", From: string(task.Status), To: "deleted"}
		}
		return &NotFoundOrForbiddenError{Entity: "task", Op: "deleted"}
	}

	log.WithFields(log.Fields{"task_id": taskID, "deleted_by": capability.ActorID()}).Info("Task deleted")
	s.badges.InvalidatePendingApprovals(ctx, capability.FamilyID())
	return nil
}

// GetTask returns a task visible to members of familyID
func (s *TaskService) GetTask(ctx context.Context, taskID, familyID string) (*models.Task, error) {
	task, err := s.tasks.GetTaskByID(ctx, taskID)
	if err != nil {
		return nil, storeErr("get task", err)
	}
	if task == nil || task.FamilyID != familyID {
		return nil, ErrNotFound
	}
	return task, nil
}

// GetFamilyTasks returns all tasks of a family, newest first
func (s *TaskService) GetFamilyTasks(ctx context.Context, familyID string) ([]models.Task, error) {
	tasks, err := s.tasks.ListTasks(ctx, models.TaskFilter{FamilyID: familyID})
	if err != nil {
		return nil, storeErr("get family tasks", err)
	}
	return tasks, nil
}

// GetUserTasks returns the tasks assigned to a user, newest first
func (s *TaskService) GetUserTasks(ctx context.Context, userID string) ([]models.Task, error) {
	tasks, err := s.tasks.ListTasks(ctx, models.TaskFilter{AssignedTo: userID})
	if err != nil {
		return nil, storeErr("get user tasks", err)
	}
	return tasks, nil
}

// GetPendingApprovalCount counts a family's completed tasks awaiting approval
func (s *TaskService) GetPendingApprovalCount(ctx context.Context, familyID string) (int, error) {
	count, lease, ok := s.badges.PendingApprovals(ctx, familyID)
	if ok {
		return count, nil
	}

	count, err := s.tasks.CountTasksByStatus(ctx, familyID, models.TaskCompleted)
	if err != nil {
		return 0, storeErr("count pending approvals", err)
	}
	s.badges.Fill(ctx, lease, count)
	return count, nil
}
