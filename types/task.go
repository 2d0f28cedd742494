package types

import (
	"strings"
	"time"
)

// TaskStatus is the workflow state of a task.
type TaskStatus string

const (
	StatusTodo       TaskStatus = "todo"
	StatusInProgress TaskStatus = "in_progress"
	StatusDone       TaskStatus = "done"
)

// Valid reports whether the status is one of the known workflow states.
func (s TaskStatus) Valid() bool {
	switch s {
	case StatusTodo, StatusInProgress, StatusDone:
		return true
	}
	return false
}

// MaxTitleLength bounds task titles, matching the storage column.
const MaxTitleLength = 200

// Priority is an integer rank bounded to [MinPriority, MaxPriority];
// DefaultPriority is assigned when a create request omits it.
const (
	MinPriority     = 1
	MaxPriority     = 5
	DefaultPriority = 3
)

// Task is a single to-do item owned by exactly one user.
type Task struct {
	// ID is the task's serial identifier, unique across all users.
	ID int64 `json:"id" db:"id"`

	// Title is the required short summary, at most MaxTitleLength runes.
	Title string `json:"title" db:"title"`

	// Description is optional free text.
	Description *string `json:"description" db:"description"`

	// Status is the workflow state, defaulting to todo.
	Status TaskStatus `json:"status" db:"status"`

	// Priority is an integer rank; lower is less urgent.
	Priority int `json:"priority" db:"priority"`

	// DueDate is the optional deadline, stored as naive local time.
	DueDate *time.Time `json:"due_date" db:"due_date"`

	// UserID references the owning user. A task never outlives its owner.
	UserID string `json:"user_id" db:"user_id"`

	// CreatedAt is set once at insert time.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// UpdatedAt is refreshed on every mutation and never precedes CreatedAt.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// SortKey selects the ordering of a task listing.
type SortKey string

const (
	SortCreatedAsc   SortKey = "created_asc"
	SortCreatedDesc  SortKey = "created_desc"
	SortDueAsc       SortKey = "due_asc"
	SortDueDesc      SortKey = "due_desc"
	SortPriorityAsc  SortKey = "priority_asc"
	SortPriorityDesc SortKey = "priority_desc"
)

// ParseSortKey resolves a raw sort parameter. Unspecified or unrecognized
// values fall back to newest-first, which is what clients expect by default.
func ParseSortKey(raw string) SortKey {
	switch SortKey(strings.TrimSpace(raw)) {
	case SortCreatedAsc:
		return SortCreatedAsc
	case SortDueAsc:
		return SortDueAsc
	case SortDueDesc:
		return SortDueDesc
	case SortPriorityAsc:
		return SortPriorityAsc
	case SortPriorityDesc:
		return SortPriorityDesc
	default:
		return SortCreatedDesc
	}
}

// TaskFilter describes a filtered, sorted, paginated view over one user's
// tasks. The zero value lists everything newest-first with default paging.
type TaskFilter struct {
	// Query restricts results to tasks whose title or description contains
	// the string, matched case-insensitively. Empty means no restriction.
	Query string

	// Statuses restricts results to the given workflow states. Empty means
	// all states.
	Statuses []TaskStatus

	// Sort orders the listing; the zero value means SortCreatedDesc.
	Sort SortKey

	// Skip and Limit slice the ordered result to [Skip, Skip+Limit).
	Skip  int
	Limit int
}
