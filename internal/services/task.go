package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/taskdeck/apiserver/internal/logger"
	"github.com/taskdeck/apiserver/types"
	"go.uber.org/zap"
)

// TaskRepository defines persistence operations for tasks. All single-row
// operations are owner-scoped.
type TaskRepository interface {
	Create(ctx context.Context, task types.Task) (types.Task, error)
	GetByID(ctx context.Context, id int64, ownerID string) (types.Task, error)
	Update(ctx context.Context, task types.Task) (types.Task, error)
	Delete(ctx context.Context, id int64, ownerID string) error
	List(ctx context.Context, ownerID string, filter types.TaskFilter) ([]types.Task, error)
}

// EventPublisher sends a task lifecycle event to the configured broker.
type EventPublisher interface {
	Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error)
}

// TaskService encapsulates owner-scoped task use-cases.
type TaskService struct {
	repo   TaskRepository
	events EventPublisher
	topic  string
}

// NewTaskService constructs a TaskService. events may be nil when event
// publishing is disabled.
func NewTaskService(repo TaskRepository, events EventPublisher, topic string) *TaskService {
	return &TaskService{repo: repo, events: events, topic: topic}
}

// Create stores a task for the owner, filling in defaults for status and
// priority when the request omitted them.
func (s *TaskService) Create(ctx context.Context, task types.Task) (types.Task, error) {
	if task.Status == "" {
		task.Status = types.StatusTodo
	}
	if task.Priority == 0 {
		task.Priority = types.DefaultPriority
	}

	created, err := s.repo.Create(ctx, task)
	if err != nil {
		return types.Task{}, err
	}
	s.publish(ctx, "task.created", created)
	return created, nil
}

func (s *TaskService) Get(ctx context.Context, id int64, ownerID string) (types.Task, error) {
	return s.repo.GetByID(ctx, id, ownerID)
}

func (s *TaskService) List(ctx context.Context, ownerID string, filter types.TaskFilter) ([]types.Task, error) {
	return s.repo.List(ctx, ownerID, filter)
}

// TaskPatch carries a partial update: nil pointer fields are left untouched,
// the Clear flags null their nullable counterparts.
type TaskPatch struct {
	Title            *string
	Description      *string
	ClearDescription bool
	Status           *types.TaskStatus
	Priority         *int
	DueDate          *time.Time
	ClearDueDate     bool
}

// Update applies a partial update to the owner's task. The read and the
// write are both owner-scoped, so another user's task id behaves like a
// missing one throughout.
func (s *TaskService) Update(ctx context.Context, id int64, ownerID string, patch TaskPatch) (types.Task, error) {
	task, err := s.repo.GetByID(ctx, id, ownerID)
	if err != nil {
		return types.Task{}, err
	}

	if patch.Title != nil {
		task.Title = *patch.Title
	}
	if patch.ClearDescription {
		task.Description = nil
	} else if patch.Description != nil {
		task.Description = patch.Description
	}
	if patch.Status != nil {
		task.Status = *patch.Status
	}
	if patch.Priority != nil {
		task.Priority = *patch.Priority
	}
	if patch.ClearDueDate {
		task.DueDate = nil
	} else if patch.DueDate != nil {
		task.DueDate = patch.DueDate
	}

	updated, err := s.repo.Update(ctx, task)
	if err != nil {
		return types.Task{}, err
	}
	s.publish(ctx, "task.updated", updated)
	return updated, nil
}

func (s *TaskService) Delete(ctx context.Context, id int64, ownerID string) error {
	task, err := s.repo.GetByID(ctx, id, ownerID)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id, ownerID); err != nil {
		return err
	}
	s.publish(ctx, "task.deleted", task)
	return nil
}

type taskEvent struct {
	Event  string     `json:"event"`
	Task   types.Task `json:"task"`
	At     time.Time  `json:"at"`
	UserID string     `json:"user_id"`
}

// publish emits a lifecycle event best-effort: a broker failure is logged
// and never fails the request that caused it.
func (s *TaskService) publish(ctx context.Context, event string, task types.Task) {
	if s.events == nil {
		return
	}

	data, err := json.Marshal(taskEvent{
		Event:  event,
		Task:   task,
		At:     time.Now(),
		UserID: task.UserID,
	})
	if err != nil {
		logger.Error("marshal task event", err, zap.String("event", event))
		return
	}

	if _, err := s.events.Publish(ctx, s.topic, data, map[string]string{"event": event}); err != nil {
		logger.Error("publish task event", err,
			zap.String("event", event),
			zap.Int64("task_id", task.ID),
		)
	}
}
