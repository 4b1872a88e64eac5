package service

import (
	"context"
	"errors"
	"testing"

	"familypoints/internal/models"
	"familypoints/internal/validation"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (fx *fixture) createTask(t *testing.T, points int) *models.Task {
	t.Helper()
	task, err := fx.tasks.CreateTask(context.Background(), CreateTaskInput{
		Title:      "Clean room",
		Points:     points,
		AssignedTo: fx.member.ID,
		FamilyID:   fx.familyID,
		CreatedBy:  fx.admin.ID,
	}, models.RoleAdmin)
	require.NoError(t, err)
	return task
}

func (fx *fixture) completeTask(t *testing.T, taskID string) {
	t.Helper()
	ctx := context.Background()
	_, err := fx.tasks.UpdateTaskStatus(ctx, taskID, models.TaskInProgress, fx.member.ID)
	require.NoError(t, err)
	_, err = fx.tasks.UpdateTaskStatus(ctx, taskID, models.TaskCompleted, fx.member.ID)
	require.NoError(t, err)
}

func TestCreateTaskByMemberIsRejected(t *testing.T) {
	fx := newFixture(true)

	_, err := fx.tasks.CreateTask(context.Background(), CreateTaskInput{
		Title:      "Clean room",
		Points:     10,
		AssignedTo: fx.member.ID,
		FamilyID:   fx.familyID,
		CreatedBy:  fx.member.ID,
	}, models.RoleMember)

	var permErr *PermissionError
	require.ErrorAs(t, err, &permErr)
	assert.Equal(t, "Only family admins can create tasks", permErr.Error())
	assert.Empty(t, fx.store.tasks)
	assert.Empty(t, fx.store.notifications)
}

func TestCreateTaskNotifiesAssignee(t *testing.T) {
	fx := newFixture(true)

	task := fx.createTask(t, 10)

	assert.Equal(t, models.TaskPending, task.Status)
	notes := fx.store.notificationsFor(fx.member.ID)
	require.Len(t, notes, 1)
	assert.Equal(t, models.NotificationTaskAssigned, notes[0].Type)
	assert.Equal(t, task.ID, *notes[0].RelatedTaskID)
}

func TestCreateTaskValidation(t *testing.T) {
	fx := newFixture(true)
	outsider := fx.store.seedUser("Neighbour", models.RoleMember, "")

	tests := []struct {
		name  string
		input CreateTaskInput
		field string
	}{
		{
			name:  "empty title",
			input: CreateTaskInput{Title: " ", Points: 5, AssignedTo: fx.member.ID, FamilyID: fx.familyID},
			field: "title",
		},
		{
			name:  "zero points",
			input: CreateTaskInput{Title: "Dishes", Points: 0, AssignedTo: fx.member.ID, FamilyID: fx.familyID},
			field: "points",
		},
		{
			name:  "assignee outside family",
			input: CreateTaskInput{Title: "Dishes", Points: 5, AssignedTo: outsider.ID, FamilyID: fx.familyID},
			field: "assigned_to",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := fx.tasks.CreateTask(context.Background(), tt.input, models.RoleAdmin)
			var vErr validation.ValidationError
			require.ErrorAs(t, err, &vErr)
			assert.Equal(t, tt.field, vErr.Field)
		})
	}
	assert.Empty(t, fx.store.tasks)
}

func TestTaskLifecycleCreditsAssigneeOnce(t *testing.T) {
	fx := newFixture(true)
	ctx := context.Background()
	task := fx.createTask(t, 10)
	fx.completeTask(t, task.ID)

	count, err := fx.tasks.GetPendingApprovalCount(ctx, fx.familyID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	approved, err := fx.tasks.UpdateTaskStatus(ctx, task.ID, models.TaskApproved, fx.admin.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskApproved, approved.Status)
	assert.NotNil(t, approved.ApprovedAt)
	assert.Equal(t, 10, fx.store.balance(fx.member.ID))

	again, err := fx.tasks.UpdateTaskStatus(ctx, task.ID, models.TaskApproved, fx.admin.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskApproved, again.Status)
	assert.Equal(t, 10, fx.store.balance(fx.member.ID))
	assert.Len(t, fx.store.journal, 1)

	creatorNotes := fx.store.notificationsFor(fx.admin.ID)
	require.Len(t, creatorNotes, 1)
	assert.Equal(t, models.NotificationTaskCompleted, creatorNotes[0].Type)

	assigneeNotes := fx.store.notificationsFor(fx.member.ID)
	require.Len(t, assigneeNotes, 2)
	assert.Equal(t, models.NotificationTaskApproved, assigneeNotes[1].Type)
}

func TestTaskOperationsSurviveNotificationFailures(t *testing.T) {
	hook := test.NewGlobal()
	defer hook.Reset()

	fx := newFixture(true)
	ctx := context.Background()
	fx.store.failNotifyFor[fx.member.ID] = errStore
	fx.store.failNotifyFor[fx.admin.ID] = errStore

	task := fx.createTask(t, 15)
	assert.Equal(t, models.TaskPending, fx.store.tasks[task.ID].Status)

	fx.completeTask(t, task.ID)
	assert.Equal(t, models.TaskCompleted, fx.store.tasks[task.ID].Status)

	approved, err := fx.tasks.UpdateTaskStatus(ctx, task.ID, models.TaskApproved, fx.admin.ID)

	require.NoError(t, err)
	assert.Equal(t, models.TaskApproved, approved.Status)
	stored := fx.store.tasks[task.ID]
	assert.Equal(t, models.TaskApproved, stored.Status)
	assert.NotNil(t, stored.ApprovedAt)
	assert.Equal(t, 15, fx.store.balance(fx.member.ID))
	assert.Len(t, fx.store.journal, 1)
	assert.Empty(t, fx.store.notifications)

	var failures int
	for _, entry := range hook.AllEntries() {
		if entry.Level == logrus.WarnLevel && entry.Message == "Notification delivery failed" {
			failures++
		}
	}
	assert.Equal(t, 3, failures) // assigned, completed, approved
}

func TestUpdateTaskStatusRejections(t *testing.T) {
	fx := newFixture(true)
	ctx := context.Background()
	task := fx.createTask(t, 10)
	outsider := fx.store.seedUser("Stranger", models.RoleAdmin, "other-family")

	tests := []struct {
		name    string
		status  models.TaskStatus
		actor   string
		wantErr interface{}
	}{
		{name: "skip to completed", status: models.TaskCompleted, actor: fx.member.ID, wantErr: &InvalidTransitionError{}},
		{name: "approve a pending task", status: models.TaskApproved, actor: fx.admin.ID, wantErr: &InvalidTransitionError{}},
		{name: "admin starts someone else's task", status: models.TaskInProgress, actor: fx.admin.ID, wantErr: &PermissionError{}},
		{name: "admin of another family starts task", status: models.TaskInProgress, actor: outsider.ID, wantErr: &NotFoundOrForbiddenError{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := fx.tasks.UpdateTaskStatus(ctx, task.ID, tt.status, tt.actor)
			require.Error(t, err)
			switch tt.wantErr.(type) {
			case *InvalidTransitionError:
				var target *InvalidTransitionError
				assert.ErrorAs(t, err, &target)
			case *PermissionError:
				var target *PermissionError
				assert.ErrorAs(t, err, &target)
			case *NotFoundOrForbiddenError:
				var target *NotFoundOrForbiddenError
				assert.ErrorAs(t, err, &target)
			}
		})
	}
	assert.Equal(t, models.TaskPending, fx.store.tasks[task.ID].Status)
}

func TestUpdateTaskStatusHidesOtherFamiliesTasks(t *testing.T) {
	fx := newFixture(true)
	ctx := context.Background()
	task := fx.createTask(t, 10)
	outsider := fx.store.seedUser("Stranger", models.RoleAdmin, "other-family")
	loner := fx.store.seedUser("Loner", models.RoleMember, "")

	tests := []struct {
		name   string
		actor  string
		status models.TaskStatus
	}{
		{name: "outsider repeats the current status", actor: outsider.ID, status: models.TaskPending},
		{name: "user without a family repeats the current status", actor: loner.ID, status: models.TaskPending},
		{name: "unknown user", actor: "no-such-user", status: models.TaskPending},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := fx.tasks.UpdateTaskStatus(ctx, task.ID, tt.status, tt.actor)
			var nfErr *NotFoundOrForbiddenError
			require.ErrorAs(t, err, &nfErr)
			assert.Nil(t, got)
		})
	}

	got, err := fx.tasks.UpdateTaskStatus(ctx, task.ID, models.TaskPending, fx.member.ID)
	require.NoError(t, err)
	assert.Equal(t, task.ID, got.ID)
}

func TestApproveTaskRequiresAdmin(t *testing.T) {
	fx := newFixture(true)
	ctx := context.Background()
	task := fx.createTask(t, 10)
	fx.completeTask(t, task.ID)

	_, err := fx.tasks.UpdateTaskStatus(ctx, task.ID, models.TaskApproved, fx.member.ID)

	var permErr *PermissionError
	require.ErrorAs(t, err, &permErr)
	assert.Equal(t, models.TaskCompleted, fx.store.tasks[task.ID].Status)
	assert.Equal(t, 0, fx.store.balance(fx.member.ID))
}

func TestApproveTaskRevertsWhenCreditFails(t *testing.T) {
	fx := newFixture(true)
	ctx := context.Background()
	task := fx.createTask(t, 10)
	fx.completeTask(t, task.ID)
	fx.store.failCredit = errStore

	_, err := fx.tasks.UpdateTaskStatus(ctx, task.ID, models.TaskApproved, fx.admin.ID)

	require.ErrorIs(t, err, errStore)
	var storeFailure *StoreError
	assert.ErrorAs(t, err, &storeFailure)
	stored := fx.store.tasks[task.ID]
	assert.Equal(t, models.TaskCompleted, stored.Status)
	assert.Nil(t, stored.ApprovedAt)
	assert.Empty(t, fx.store.notificationsFor(fx.member.ID)[1:])

	fx.store.failCredit = nil
	_, err = fx.tasks.UpdateTaskStatus(ctx, task.ID, models.TaskApproved, fx.admin.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, fx.store.balance(fx.member.ID))
}

func TestApproveTaskReportsFailedRevert(t *testing.T) {
	fx := newFixture(true)
	ctx := context.Background()
	task := fx.createTask(t, 10)
	fx.completeTask(t, task.ID)
	errRevert := errors.New("revert failed")
	fx.store.failCredit = errStore
	fx.store.failTaskRevert = errRevert

	_, err := fx.tasks.UpdateTaskStatus(ctx, task.ID, models.TaskApproved, fx.admin.ID)

	var compErr *CompensationError
	require.ErrorAs(t, err, &compErr)
	assert.Equal(t, "task_settlement", compErr.Saga)
	assert.ErrorIs(t, err, errStore)
	assert.ErrorIs(t, err, errRevert)
}

func TestApproveTaskLosingRaceDoesNotCreditTwice(t *testing.T) {
	fx := newFixture(true)
	ctx := context.Background()
	task := fx.createTask(t, 10)
	fx.completeTask(t, task.ID)

	// Another admin approves between our read and our compare-and-set.
	fx.store.beforeTaskCAS = func(id string) {
		fx.store.beforeTaskCAS = nil
		fx.store.tasks[id].Status = models.TaskApproved
	}

	result, err := fx.tasks.UpdateTaskStatus(ctx, task.ID, models.TaskApproved, fx.admin.ID)

	require.NoError(t, err)
	assert.Equal(t, models.TaskApproved, result.Status)
	assert.Equal(t, 0, fx.store.balance(fx.member.ID))
	assert.Empty(t, fx.store.journal)
}

func TestDeleteTask(t *testing.T) {
	fx := newFixture(true)
	ctx := context.Background()

	t.Run("without capability", func(t *testing.T) {
		task := fx.createTask(t, 5)
		err := fx.tasks.DeleteTask(ctx, task.ID, nil)
		var permErr *PermissionError
		require.ErrorAs(t, err, &permErr)
		assert.Contains(t, fx.store.tasks, task.ID)
	})

	t.Run("member cannot get a capability", func(t *testing.T) {
		_, err := fx.gate.GrantDelete(fx.member)
		var permErr *PermissionError
		assert.ErrorAs(t, err, &permErr)
	})

	t.Run("admin deletes a pending task", func(t *testing.T) {
		task := fx.createTask(t, 5)
		capability, err := fx.gate.GrantDelete(fx.admin)
		require.NoError(t, err)
		require.NoError(t, fx.tasks.DeleteTask(ctx, task.ID, capability))
		assert.NotContains(t, fx.store.tasks, task.ID)
	})

	t.Run("approved task is kept", func(t *testing.T) {
		task := fx.createTask(t, 5)
		fx.completeTask(t, task.ID)
		_, err := fx.tasks.UpdateTaskStatus(ctx, task.ID, models.TaskApproved, fx.admin.ID)
		require.NoError(t, err)

		capability, err := fx.gate.GrantDelete(fx.admin)
		require.NoError(t, err)
		err = fx.tasks.DeleteTask(ctx, task.ID, capability)
		var transErr *InvalidTransitionError
		require.ErrorAs(t, err, &transErr)
		assert.Contains(t, fx.store.tasks, task.ID)
	})

	t.Run("task of another family", func(t *testing.T) {
		task := fx.createTask(t, 5)
		otherAdmin := fx.store.seedUser("Other", models.RoleAdmin, "other-family")
		capability, err := fx.gate.GrantDelete(otherAdmin)
		require.NoError(t, err)

		err = fx.tasks.DeleteTask(ctx, task.ID, capability)
		var nfErr *NotFoundOrForbiddenError
		require.ErrorAs(t, err, &nfErr)
		assert.Equal(t, "Task could not be deleted. You may not have permission or the task may not exist.", err.Error())
		assert.Contains(t, fx.store.tasks, task.ID)
	})
}

func TestGetTaskIsFamilyScoped(t *testing.T) {
	fx := newFixture(true)
	task := fx.createTask(t, 5)

	got, err := fx.tasks.GetTask(context.Background(), task.ID, fx.familyID)
	require.NoError(t, err)
	assert.Equal(t, task.ID, got.ID)

	_, err = fx.tasks.GetTask(context.Background(), task.ID, "other-family")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUnknownRoleStrictAndLegacy(t *testing.T) {
	hook := test.NewGlobal()
	defer hook.Reset()

	t.Run("strict rejects", func(t *testing.T) {
		fx := newFixture(true)
		_, err := fx.tasks.CreateTask(context.Background(), CreateTaskInput{
			Title: "Dishes", Points: 5, AssignedTo: fx.member.ID, FamilyID: fx.familyID,
		}, models.RoleUnknown)
		var permErr *PermissionError
		require.ErrorAs(t, err, &permErr)
		assert.Contains(t, permErr.Error(), "could not be determined")
	})

	t.Run("legacy permits and warns", func(t *testing.T) {
		hook.Reset()
		fx := newFixture(false)
		task, err := fx.tasks.CreateTask(context.Background(), CreateTaskInput{
			Title: "Dishes", Points: 5, AssignedTo: fx.member.ID, FamilyID: fx.familyID,
		}, models.RoleUnknown)
		require.NoError(t, err)
		assert.NotEmpty(t, task.ID)

		var warned bool
		for _, entry := range hook.AllEntries() {
			if entry.Level == logrus.WarnLevel && entry.Data["action"] == "create tasks" {
				warned = true
			}
		}
		assert.True(t, warned)
	})
}
