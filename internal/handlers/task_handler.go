package handlers

import (
	"net/http"
	"time"

	"familypoints/internal/models"
	"familypoints/internal/service"
	"familypoints/internal/validation"
)

// TaskHandler handles task requests
type TaskHandler struct {
	taskService *service.TaskService
	gate        *service.Gate
}

// NewTaskHandler creates a new task handler
func NewTaskHandler(taskService *service.TaskService, gate *service.Gate) *TaskHandler {
	return &TaskHandler{taskService: taskService, gate: gate}
}

type createTaskRequest struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Points      int        `json:"points"`
	AssignedTo  string     `json:"assigned_to"`
	DueDate     *time.Time `json:"due_date"`
}

type updateTaskStatusRequest struct {
	Status string `json:"status"`
}

type countResponse struct {
	Count int `json:"count"`
}

// List returns all tasks of the caller's family
func (h *TaskHandler) List(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.taskService.GetFamilyTasks(r.Context(), familyOf(r))
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, nonNil(tasks))
}

// Mine returns the tasks assigned to the caller
func (h *TaskHandler) Mine(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r.Context())
	tasks, err := h.taskService.GetUserTasks(r.Context(), user.ID)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, nonNil(tasks))
}

// Get returns one task of the caller's family
func (h *TaskHandler) Get(w http.ResponseWriter, r *http.Request) {
	task, err := h.taskService.GetTask(r.Context(), r.PathValue("id"), familyOf(r))
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, task)
}

// Create adds a task assigned to a family member
func (h *TaskHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createTaskRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	user := GetUserFromContext(r.Context())
	task, err := h.taskService.CreateTask(r.Context(), service.CreateTaskInput{
		Title:       req.Title,
		Description: req.Description,
		Points:      req.Points,
		AssignedTo:  req.AssignedTo,
		FamilyID:    familyOf(r),
		CreatedBy:   user.ID,
		DueDate:     req.DueDate,
	}, user.Role)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, task)
}

// UpdateStatus moves a task along its lifecycle
func (h *TaskHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req updateTaskStatusRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	status, err := models.ParseTaskStatus(req.Status)
	if err != nil {
		respondWithServiceError(w, validation.ValidationError{Field: "status", Message: "unknown task status"})
		return
	}

	user := GetUserFromContext(r.Context())
	task, err := h.taskService.UpdateTaskStatus(r.Context(), r.PathValue("id"), status, user.ID)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, task)
}

// Delete removes a task that has not been approved
func (h *TaskHandler) Delete(w http.ResponseWriter, r *http.Request) {
	capability, err := h.gate.GrantDelete(GetUserFromContext(r.Context()))
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	if err := h.taskService.DeleteTask(r.Context(), r.PathValue("id"), capability); err != nil {
		respondWithServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// PendingApprovalCount returns how many tasks await approval
func (h *TaskHandler) PendingApprovalCount(w http.ResponseWriter, r *http.Request) {
	count, err := h.taskService.GetPendingApprovalCount(r.Context(), familyOf(r))
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, countResponse{Count: count})
}

// nonNil makes empty listings encode as [] rather than null
func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
