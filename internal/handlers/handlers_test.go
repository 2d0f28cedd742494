package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
	"github.com/taskdeck/apiserver/internal/auth"
	"github.com/taskdeck/apiserver/internal/handlers"
	"github.com/taskdeck/apiserver/internal/services"
	"github.com/taskdeck/apiserver/internal/store"
	"github.com/taskdeck/apiserver/types"
)

// memUserRepo backs the handler tests with the same uniqueness rules the
// real schema enforces.
type memUserRepo struct {
	users map[string]types.User
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{users: make(map[string]types.User)}
}

func (r *memUserRepo) Create(ctx context.Context, user types.User) (types.User, error) {
	for _, existing := range r.users {
		if existing.Mail == user.Mail {
			return types.User{}, store.ErrConflict
		}
	}
	r.users[user.ID] = user
	return user, nil
}

func (r *memUserRepo) GetByID(ctx context.Context, id string) (types.User, error) {
	user, ok := r.users[id]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	return user, nil
}

func (r *memUserRepo) GetByMail(ctx context.Context, mail string) (types.User, error) {
	for _, user := range r.users {
		if user.Mail == mail {
			return user, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (r *memUserRepo) GetBySessionID(ctx context.Context, sessionID string) (types.User, error) {
	for _, user := range r.users {
		if user.SessionID != nil && *user.SessionID == sessionID {
			return user, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (r *memUserRepo) Update(ctx context.Context, user types.User) (types.User, error) {
	if _, ok := r.users[user.ID]; !ok {
		return types.User{}, store.ErrNotFound
	}
	for id, existing := range r.users {
		if id != user.ID && existing.Mail == user.Mail {
			return types.User{}, store.ErrConflict
		}
	}
	r.users[user.ID] = user
	return user, nil
}

func (r *memUserRepo) SetSessionID(ctx context.Context, userID string, sessionID *string) error {
	user, ok := r.users[userID]
	if !ok {
		return store.ErrNotFound
	}
	user.SessionID = sessionID
	r.users[userID] = user
	return nil
}

func (r *memUserRepo) ClearSession(ctx context.Context, sessionID string) error {
	for id, user := range r.users {
		if user.SessionID != nil && *user.SessionID == sessionID {
			user.SessionID = nil
			r.users[id] = user
		}
	}
	return nil
}

// memTaskRepo keeps tasks in memory with owner-scoped single-row operations.
type memTaskRepo struct {
	tasks  map[int64]types.Task
	nextID int64
}

func newMemTaskRepo() *memTaskRepo {
	return &memTaskRepo{tasks: make(map[int64]types.Task), nextID: 1}
}

func (r *memTaskRepo) Create(ctx context.Context, task types.Task) (types.Task, error) {
	task.ID = r.nextID
	r.nextID++
	now := time.Now()
	task.CreatedAt = now
	task.UpdatedAt = now
	r.tasks[task.ID] = task
	return task, nil
}

func (r *memTaskRepo) GetByID(ctx context.Context, id int64, ownerID string) (types.Task, error) {
	task, ok := r.tasks[id]
	if !ok || task.UserID != ownerID {
		return types.Task{}, store.ErrNotFound
	}
	return task, nil
}

func (r *memTaskRepo) Update(ctx context.Context, task types.Task) (types.Task, error) {
	existing, ok := r.tasks[task.ID]
	if !ok || existing.UserID != task.UserID {
		return types.Task{}, store.ErrNotFound
	}
	task.UpdatedAt = time.Now()
	r.tasks[task.ID] = task
	return task, nil
}

func (r *memTaskRepo) Delete(ctx context.Context, id int64, ownerID string) error {
	task, ok := r.tasks[id]
	if !ok || task.UserID != ownerID {
		return store.ErrNotFound
	}
	delete(r.tasks, id)
	return nil
}

// List applies the full filter contract in memory: substring match over
// title and description ignoring case, status set, sort, then the
// skip/limit slice with the store's clamping rules.
func (r *memTaskRepo) List(ctx context.Context, ownerID string, filter types.TaskFilter) ([]types.Task, error) {
	tasks := make([]types.Task, 0)
	for _, task := range r.tasks {
		if task.UserID != ownerID {
			continue
		}
		if !matchesQuery(task, filter.Query) {
			continue
		}
		if len(filter.Statuses) > 0 && !containsStatus(filter.Statuses, task.Status) {
			continue
		}
		tasks = append(tasks, task)
	}

	// IDs are assigned in creation order, so they stand in for created_at.
	sort.Slice(tasks, func(i, j int) bool {
		if filter.Sort == types.SortCreatedAsc {
			return tasks[i].ID < tasks[j].ID
		}
		return tasks[i].ID > tasks[j].ID
	})

	skip := filter.Skip
	if skip < 0 {
		skip = 0
	}
	limit := filter.Limit
	if limit < 1 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if skip >= len(tasks) {
		return []types.Task{}, nil
	}
	end := skip + limit
	if end > len(tasks) {
		end = len(tasks)
	}
	return tasks[skip:end], nil
}

func matchesQuery(task types.Task, query string) bool {
	if query == "" {
		return true
	}
	q := strings.ToLower(query)
	if strings.Contains(strings.ToLower(task.Title), q) {
		return true
	}
	return task.Description != nil && strings.Contains(strings.ToLower(*task.Description), q)
}

func containsStatus(statuses []types.TaskStatus, status types.TaskStatus) bool {
	for _, s := range statuses {
		if s == status {
			return true
		}
	}
	return false
}

// newTestRouter wires the full HTTP surface over in-memory stores, exactly as
// the server does minus database, broker, and object storage.
func newTestRouter() (*chi.Mux, *services.UserService) {
	userRepo := newMemUserRepo()
	userService := services.NewUserService(userRepo, auth.NewSessionIssuer(userRepo))
	taskService := services.NewTaskService(newMemTaskRepo(), nil, "")

	identity := handlers.NewIdentity(userService, false)
	userHandler := handlers.NewUserHandler(userService, identity, nil, "")

	r := chi.NewRouter()
	r.Get("/healthz", handlers.Healthz)
	r.Route("/users", func(r chi.Router) {
		handlers.UserRouter(r, userHandler)
	})
	r.Route("/tasks", func(r chi.Router) {
		handlers.TaskRouter(r, taskService, identity)
	})
	return r, userService
}

// doJSON performs one request against the router. A non-empty token rides as
// a bearer credential.
func doJSON(t *testing.T, router http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var value T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &value))
	return value
}

// newRequestWithCookie builds a request carrying the token as the session
// cookie instead of a bearer header.
func newRequestWithCookie(method, path, token string) (*http.Request, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(method, path, nil)
	req.AddCookie(&http.Cookie{Name: handlers.SessionCookieName, Value: token})
	return req, httptest.NewRecorder()
}

// sessionCookie returns the session cookie set on the response, or nil.
func sessionCookie(rec *httptest.ResponseRecorder) *http.Cookie {
	for _, cookie := range rec.Result().Cookies() {
		if cookie.Name == handlers.SessionCookieName {
			return cookie
		}
	}
	return nil
}

// registerAndLogin provisions a durable account and returns its session token.
func registerAndLogin(t *testing.T, router http.Handler, mail string) string {
	t.Helper()

	rec := doJSON(t, router, http.MethodPost, "/users/register", "", map[string]string{
		"name": "Test User", "mail": mail, "password": "hunter22",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/users/login", "", map[string]string{
		"mail": mail, "password": "hunter22",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	session := decodeBody[handlers.SessionResponse](t, rec)
	require.NotEmpty(t, session.SessionToken)
	return session.SessionToken
}
