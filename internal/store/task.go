package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/taskdeck/apiserver/types"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// TaskRepository handles persistence for tasks. Every single-row operation is
// scoped by (id AND user_id), so a task owned by someone else behaves exactly
// like a missing one.
type TaskRepository struct {
	db *sql.DB
}

func NewTaskRepository(db *sql.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

const taskColumns = `id, title, description, status, priority, due_date, user_id, created_at, updated_at`

func scanTask(row interface{ Scan(...any) error }) (types.Task, error) {
	var task types.Task
	err := row.Scan(
		&task.ID,
		&task.Title,
		&task.Description,
		&task.Status,
		&task.Priority,
		&task.DueDate,
		&task.UserID,
		&task.CreatedAt,
		&task.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Task{}, ErrNotFound
		}
		return types.Task{}, err
	}
	return task, nil
}

func (r *TaskRepository) Create(ctx context.Context, task types.Task) (types.Task, error) {
	now := time.Now()
	task.CreatedAt = now
	task.UpdatedAt = now

	const query = `
		INSERT INTO tasks (title, description, status, priority, due_date, user_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		task.Title,
		task.Description,
		task.Status,
		task.Priority,
		task.DueDate,
		task.UserID,
		task.CreatedAt,
		task.UpdatedAt,
	).Scan(&task.ID); err != nil {
		return types.Task{}, translateError(err)
	}
	return task, nil
}

func (r *TaskRepository) GetByID(ctx context.Context, id int64, ownerID string) (types.Task, error) {
	const query = `
		SELECT ` + taskColumns + `
		FROM tasks
		WHERE id = $1 AND user_id = $2`
	return scanTask(r.db.QueryRowContext(ctx, query, id, ownerID))
}

func (r *TaskRepository) Update(ctx context.Context, task types.Task) (types.Task, error) {
	task.UpdatedAt = time.Now()

	const query = `
		UPDATE tasks
		SET title = $1,
			description = $2,
			status = $3,
			priority = $4,
			due_date = $5,
			updated_at = $6
		WHERE id = $7 AND user_id = $8`
	result, err := r.db.ExecContext(
		ctx,
		query,
		task.Title,
		task.Description,
		task.Status,
		task.Priority,
		task.DueDate,
		task.UpdatedAt,
		task.ID,
		task.UserID,
	)
	if err != nil {
		return types.Task{}, translateError(err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return types.Task{}, err
	}
	if affected == 0 {
		return types.Task{}, ErrNotFound
	}
	return task, nil
}

func (r *TaskRepository) Delete(ctx context.Context, id int64, ownerID string) error {
	const query = `DELETE FROM tasks WHERE id = $1 AND user_id = $2`
	result, err := r.db.ExecContext(ctx, query, id, ownerID)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// List returns the owner's tasks matching the filter, ordered and sliced per
// the filter's sort key and pagination.
func (r *TaskRepository) List(ctx context.Context, ownerID string, filter types.TaskFilter) ([]types.Task, error) {
	query, args := buildTaskListQuery(ownerID, filter)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tasks := make([]types.Task, 0)
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

// buildTaskListQuery assembles the filtered listing statement. Kept separate
// from List so ordering and clause placement are testable without a database.
func buildTaskListQuery(ownerID string, filter types.TaskFilter) (string, []any) {
	var sb strings.Builder
	sb.WriteString(`SELECT ` + taskColumns + ` FROM tasks WHERE user_id = $1`)
	args := []any{ownerID}

	if q := strings.TrimSpace(filter.Query); q != "" {
		args = append(args, "%"+q+"%")
		fmt.Fprintf(&sb, ` AND (title ILIKE $%d OR description ILIKE $%d)`, len(args), len(args))
	}

	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			statuses[i] = string(status)
		}
		args = append(args, pq.Array(statuses))
		fmt.Fprintf(&sb, ` AND status = ANY($%d)`, len(args))
	}

	sb.WriteString(` ORDER BY ` + orderClause(filter.Sort))

	skip := filter.Skip
	if skip < 0 {
		skip = 0
	}
	limit := filter.Limit
	if limit < 1 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	args = append(args, skip)
	fmt.Fprintf(&sb, ` OFFSET $%d`, len(args))
	args = append(args, limit)
	fmt.Fprintf(&sb, ` LIMIT $%d`, len(args))

	return sb.String(), args
}

// orderClause maps a sort key to SQL. Undated tasks sort after dated ones
// when asking for the earliest deadline first, and before them in the
// reverse direction; id breaks ties so pagination stays stable.
func orderClause(sort types.SortKey) string {
	switch sort {
	case types.SortCreatedAsc:
		return `created_at ASC, id ASC`
	case types.SortDueAsc:
		return `due_date ASC NULLS LAST, id ASC`
	case types.SortDueDesc:
		return `due_date DESC NULLS FIRST, id DESC`
	case types.SortPriorityAsc:
		return `priority ASC, id ASC`
	case types.SortPriorityDesc:
		return `priority DESC, id DESC`
	default:
		return `created_at DESC, id DESC`
	}
}

// TaskReport is one row of the administrative task listing.
type TaskReport struct {
	Task      types.Task
	OwnerName string
}

// ListAll returns every task joined with its owner's name, newest first, for
// operator reporting.
func (r *TaskRepository) ListAll(ctx context.Context) ([]TaskReport, error) {
	const query = `
		SELECT t.id, t.title, t.description, t.status, t.priority, t.due_date, t.user_id, t.created_at, t.updated_at,
			u.name
		FROM tasks t
		JOIN users u ON u.id = t.user_id
		ORDER BY t.created_at DESC`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reports []TaskReport
	for rows.Next() {
		var report TaskReport
		if err := rows.Scan(
			&report.Task.ID,
			&report.Task.Title,
			&report.Task.Description,
			&report.Task.Status,
			&report.Task.Priority,
			&report.Task.DueDate,
			&report.Task.UserID,
			&report.Task.CreatedAt,
			&report.Task.UpdatedAt,
			&report.OwnerName,
		); err != nil {
			return nil, err
		}
		reports = append(reports, report)
	}
	return reports, rows.Err()
}

// CountByStatus returns task counts per workflow state for operator stats.
func (r *TaskRepository) CountByStatus(ctx context.Context) (map[types.TaskStatus]int64, error) {
	const query = `SELECT status, COUNT(1) FROM tasks GROUP BY status`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[types.TaskStatus]int64)
	for rows.Next() {
		var status types.TaskStatus
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[status] = count
	}
	return counts, rows.Err()
}
