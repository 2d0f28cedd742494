package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/taskdeck/apiserver/internal/services"
	"github.com/taskdeck/apiserver/internal/store"
	"github.com/taskdeck/apiserver/types"
)

// TaskHandler provides owner-scoped task CRUD endpoints.
type TaskHandler struct {
	taskService *services.TaskService
}

func NewTaskHandler(taskService *services.TaskService) *TaskHandler {
	return &TaskHandler{taskService: taskService}
}

// TaskRouter registers task routes. All of them run behind the optional-auth
// middleware, so an unauthenticated caller becomes a guest rather than being
// rejected.
func TaskRouter(r chi.Router, taskService *services.TaskService, identity *Identity) {
	handler := NewTaskHandler(taskService)

	r.Use(identity.Optional)
	r.Get("/", handler.ListTasks)
	r.Post("/", handler.CreateTask)
	r.Route("/{taskID}", func(r chi.Router) {
		r.Get("/", handler.GetTask)
		r.Patch("/", handler.UpdateTask)
		r.Delete("/", handler.DeleteTask)
	})
}

// DueTime parses due dates from JSON. Values carrying a timezone offset are
// normalized to naive local wall-clock time before storage, matching the
// timestamp-without-timezone column; naive values are taken as-is.
type DueTime struct {
	time.Time
}

var naiveDueLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

func (d *DueTime) UnmarshalJSON(b []byte) error {
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		local := t.In(time.Local)
		d.Time = time.Date(local.Year(), local.Month(), local.Day(),
			local.Hour(), local.Minute(), local.Second(), 0, time.UTC)
		return nil
	}
	for _, layout := range naiveDueLayouts {
		if t, err := time.ParseInLocation(layout, raw, time.UTC); err == nil {
			d.Time = t
			return nil
		}
	}
	return fmt.Errorf("invalid due date %q", raw)
}

// optional distinguishes an absent JSON field from one explicitly set to
// null, which plain pointers cannot: PATCH leaves absent fields untouched
// but clears nulled ones.
type optional[T any] struct {
	Set   bool
	Null  bool
	Value T
}

func (o *optional[T]) UnmarshalJSON(b []byte) error {
	o.Set = true
	if string(b) == "null" {
		o.Null = true
		return nil
	}
	return json.Unmarshal(b, &o.Value)
}

type CreateTaskRequest struct {
	Title       string   `json:"title"`
	Description *string  `json:"description"`
	Status      *string  `json:"status"`
	Priority    *int     `json:"priority"`
	DueDate     *DueTime `json:"due_date"`
}

type UpdateTaskRequest struct {
	Title       optional[string]  `json:"title"`
	Description optional[string]  `json:"description"`
	Status      optional[string]  `json:"status"`
	Priority    optional[int]     `json:"priority"`
	DueDate     optional[DueTime] `json:"due_date"`
}

func validateTitle(title string) *FieldError {
	if title == "" || len(title) > types.MaxTitleLength {
		return &FieldError{Field: "title", Message: fmt.Sprintf("must be 1-%d characters", types.MaxTitleLength)}
	}
	return nil
}

func validatePriority(priority int) *FieldError {
	if priority < types.MinPriority || priority > types.MaxPriority {
		return &FieldError{Field: "priority", Message: fmt.Sprintf("must be %d-%d", types.MinPriority, types.MaxPriority)}
	}
	return nil
}

// ListTasks returns the caller's tasks filtered, sorted, and paginated per
// the query string.
func (h *TaskHandler) ListTasks(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	filter, details := parseTaskFilter(r)
	if len(details) > 0 {
		writeValidationError(w, details)
		return
	}

	tasks, err := h.taskService.List(r.Context(), user.ID, filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list tasks")
		return
	}

	writeJSON(w, http.StatusOK, tasks)
}

func parseTaskFilter(r *http.Request) (types.TaskFilter, []FieldError) {
	query := r.URL.Query()
	var details []FieldError

	filter := types.TaskFilter{
		Query: strings.TrimSpace(query.Get("q")),
		Sort:  types.ParseSortKey(query.Get("sort")),
	}

	if raw := strings.TrimSpace(query.Get("skip")); raw != "" {
		skip, err := strconv.Atoi(raw)
		if err != nil || skip < 0 {
			details = append(details, FieldError{Field: "skip", Message: "must be a non-negative integer"})
		} else {
			filter.Skip = skip
		}
	}

	if raw := strings.TrimSpace(query.Get("limit")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			details = append(details, FieldError{Field: "limit", Message: "must be a positive integer"})
		} else {
			filter.Limit = limit
		}
	}

	if raw := strings.TrimSpace(query.Get("status_in")); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			status := types.TaskStatus(part)
			if !status.Valid() {
				details = append(details, FieldError{Field: "status_in", Message: fmt.Sprintf("unknown status %q", part)})
				continue
			}
			filter.Statuses = append(filter.Statuses, status)
		}
	}

	return filter, details
}

// CreateTask stores a new task owned by the caller.
func (h *TaskHandler) CreateTask(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req CreateTaskRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var details []FieldError
	req.Title = strings.TrimSpace(req.Title)
	if fieldErr := validateTitle(req.Title); fieldErr != nil {
		details = append(details, *fieldErr)
	}

	task := types.Task{
		Title:       req.Title,
		Description: req.Description,
		UserID:      user.ID,
	}
	if req.Status != nil {
		status := types.TaskStatus(*req.Status)
		if !status.Valid() {
			details = append(details, FieldError{Field: "status", Message: fmt.Sprintf("unknown status %q", *req.Status)})
		}
		task.Status = status
	}
	if req.Priority != nil {
		if fieldErr := validatePriority(*req.Priority); fieldErr != nil {
			details = append(details, *fieldErr)
		}
		task.Priority = *req.Priority
	}
	if req.DueDate != nil {
		due := req.DueDate.Time
		task.DueDate = &due
	}
	if len(details) > 0 {
		writeValidationError(w, details)
		return
	}

	created, err := h.taskService.Create(r.Context(), task)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create task")
		return
	}

	writeJSON(w, http.StatusCreated, created)
}

// GetTask returns one of the caller's tasks. Another user's task id is
// indistinguishable from a missing one.
func (h *TaskHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	id, fieldErr := parseTaskID(r)
	if fieldErr != nil {
		writeValidationError(w, []FieldError{*fieldErr})
		return
	}

	task, err := h.taskService.Get(r.Context(), id, user.ID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "task not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to fetch task")
		return
	}

	writeJSON(w, http.StatusOK, task)
}

// UpdateTask applies a partial update: absent fields are untouched, fields
// explicitly set to null are cleared where the schema allows it.
func (h *TaskHandler) UpdateTask(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	id, fieldErr := parseTaskID(r)
	if fieldErr != nil {
		writeValidationError(w, []FieldError{*fieldErr})
		return
	}

	var req UpdateTaskRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	patch, details := buildTaskPatch(req)
	if len(details) > 0 {
		writeValidationError(w, details)
		return
	}

	updated, err := h.taskService.Update(r.Context(), id, user.ID, patch)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "task not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to update task")
		return
	}

	writeJSON(w, http.StatusOK, updated)
}

func buildTaskPatch(req UpdateTaskRequest) (services.TaskPatch, []FieldError) {
	var patch services.TaskPatch
	var details []FieldError

	if req.Title.Set {
		if req.Title.Null {
			details = append(details, FieldError{Field: "title", Message: "cannot be null"})
		} else {
			title := strings.TrimSpace(req.Title.Value)
			if fieldErr := validateTitle(title); fieldErr != nil {
				details = append(details, *fieldErr)
			} else {
				patch.Title = &title
			}
		}
	}

	if req.Description.Set {
		if req.Description.Null {
			patch.ClearDescription = true
		} else {
			patch.Description = &req.Description.Value
		}
	}

	if req.Status.Set {
		if req.Status.Null {
			details = append(details, FieldError{Field: "status", Message: "cannot be null"})
		} else {
			status := types.TaskStatus(req.Status.Value)
			if !status.Valid() {
				details = append(details, FieldError{Field: "status", Message: fmt.Sprintf("unknown status %q", req.Status.Value)})
			} else {
				patch.Status = &status
			}
		}
	}

	if req.Priority.Set {
		if req.Priority.Null {
			details = append(details, FieldError{Field: "priority", Message: "cannot be null"})
		} else if fieldErr := validatePriority(req.Priority.Value); fieldErr != nil {
			details = append(details, *fieldErr)
		} else {
			patch.Priority = &req.Priority.Value
		}
	}

	if req.DueDate.Set {
		if req.DueDate.Null {
			patch.ClearDueDate = true
		} else {
			due := req.DueDate.Value.Time
			patch.DueDate = &due
		}
	}

	return patch, details
}

// DeleteTask removes one of the caller's tasks.
func (h *TaskHandler) DeleteTask(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	id, fieldErr := parseTaskID(r)
	if fieldErr != nil {
		writeValidationError(w, []FieldError{*fieldErr})
		return
	}

	if err := h.taskService.Delete(r.Context(), id, user.ID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "task not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to delete task")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func parseTaskID(r *http.Request) (int64, *FieldError) {
	raw := chi.URLParam(r, "taskID")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 1 {
		return 0, &FieldError{Field: "id", Message: "must be a positive integer"}
	}
	return id, nil
}
