package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/taskdeck/apiserver/types"
)

// UserRepository handles persistence for users.
type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `id, name, mail, password_hash, avatar_url, session_id, created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (types.User, error) {
	var user types.User
	err := row.Scan(
		&user.ID,
		&user.Name,
		&user.Mail,
		&user.PasswordHash,
		&user.AvatarURL,
		&user.SessionID,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.User{}, ErrNotFound
		}
		return types.User{}, err
	}
	return user, nil
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (types.User, error) {
	const query = `
		SELECT ` + userColumns + `
		FROM users
		WHERE id = $1`
	return scanUser(r.db.QueryRowContext(ctx, query, id))
}

func (r *UserRepository) GetByMail(ctx context.Context, mail string) (types.User, error) {
	const query = `
		SELECT ` + userColumns + `
		FROM users
		WHERE mail = $1`
	return scanUser(r.db.QueryRowContext(ctx, query, mail))
}

func (r *UserRepository) GetBySessionID(ctx context.Context, sessionID string) (types.User, error) {
	const query = `
		SELECT ` + userColumns + `
		FROM users
		WHERE session_id = $1`
	return scanUser(r.db.QueryRowContext(ctx, query, sessionID))
}

// Create inserts the user. A duplicate mail or session id surfaces as
// ErrConflict, which is what breaks the pre-check race on registration.
func (r *UserRepository) Create(ctx context.Context, user types.User) (types.User, error) {
	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now

	const query = `
		INSERT INTO users (id, name, mail, password_hash, avatar_url, session_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	if _, err := r.db.ExecContext(
		ctx,
		query,
		user.ID,
		user.Name,
		user.Mail,
		user.PasswordHash,
		user.AvatarURL,
		user.SessionID,
		user.CreatedAt,
		user.UpdatedAt,
	); err != nil {
		return types.User{}, translateError(err)
	}
	return user, nil
}

// Update persists the user's mutable profile fields.
func (r *UserRepository) Update(ctx context.Context, user types.User) (types.User, error) {
	user.UpdatedAt = time.Now()

	const query = `
		UPDATE users
		SET name = $1,
			mail = $2,
			password_hash = $3,
			avatar_url = $4,
			updated_at = $5
		WHERE id = $6`
	result, err := r.db.ExecContext(
		ctx,
		query,
		user.Name,
		user.Mail,
		user.PasswordHash,
		user.AvatarURL,
		user.UpdatedAt,
		user.ID,
	)
	if err != nil {
		return types.User{}, translateError(err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return types.User{}, err
	}
	if affected == 0 {
		return types.User{}, ErrNotFound
	}
	return user, nil
}

// SetSessionID binds a fresh session token to the user, or clears it when
// sessionID is nil.
func (r *UserRepository) SetSessionID(ctx context.Context, userID string, sessionID *string) error {
	const query = `
		UPDATE users
		SET session_id = $1,
			updated_at = $2
		WHERE id = $3`
	result, err := r.db.ExecContext(ctx, query, sessionID, time.Now(), userID)
	if err != nil {
		return translateError(err)
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

// ClearSession removes the session binding matching the token. Unknown tokens
// are not an error; logout is idempotent.
func (r *UserRepository) ClearSession(ctx context.Context, sessionID string) error {
	const query = `
		UPDATE users
		SET session_id = NULL,
			updated_at = $1
		WHERE session_id = $2`
	_, err := r.db.ExecContext(ctx, query, time.Now(), sessionID)
	return err
}

// UserReport is one row of the administrative user listing.
type UserReport struct {
	User      types.User
	TaskCount int
}

// ListWithTaskCounts returns every account with its task count, ordered by
// name, for operator reporting.
func (r *UserRepository) ListWithTaskCounts(ctx context.Context) ([]UserReport, error) {
	const query = `
		SELECT u.id, u.name, u.mail, u.password_hash, u.avatar_url, u.session_id, u.created_at, u.updated_at,
			(SELECT COUNT(1) FROM tasks t WHERE t.user_id = u.id) AS task_count
		FROM users u
		ORDER BY u.name`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reports []UserReport
	for rows.Next() {
		var report UserReport
		if err := rows.Scan(
			&report.User.ID,
			&report.User.Name,
			&report.User.Mail,
			&report.User.PasswordHash,
			&report.User.AvatarURL,
			&report.User.SessionID,
			&report.User.CreatedAt,
			&report.User.UpdatedAt,
			&report.TaskCount,
		); err != nil {
			return nil, err
		}
		reports = append(reports, report)
	}
	return reports, rows.Err()
}

// DeleteGuests removes all auto-provisioned accounts; their tasks go with
// them via the foreign-key cascade. Returns the number of accounts removed.
func (r *UserRepository) DeleteGuests(ctx context.Context) (int64, error) {
	const query = `DELETE FROM users WHERE mail LIKE '%' || $1`
	result, err := r.db.ExecContext(ctx, query, types.GuestMailDomain)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// CountUsers returns total and guest account counts for operator stats.
func (r *UserRepository) CountUsers(ctx context.Context) (total, guests int64, err error) {
	const query = `
		SELECT COUNT(1),
			COUNT(1) FILTER (WHERE mail LIKE '%' || $1)
		FROM users`
	err = r.db.QueryRowContext(ctx, query, types.GuestMailDomain).Scan(&total, &guests)
	return total, guests, err
}
