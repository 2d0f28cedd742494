package services_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/taskdeck/apiserver/internal/auth"
	"github.com/taskdeck/apiserver/internal/services"
	"github.com/taskdeck/apiserver/internal/store"
	"github.com/taskdeck/apiserver/types"
)

// fakeUserRepo is an in-memory stand-in for the user store. It enforces the
// same uniqueness rules as the real schema: one row per mail address, one row
// per bound session id.
type fakeUserRepo struct {
	users map[string]types.User
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[string]types.User)}
}

func (r *fakeUserRepo) Create(ctx context.Context, user types.User) (types.User, error) {
	for _, existing := range r.users {
		if existing.Mail == user.Mail {
			return types.User{}, store.ErrConflict
		}
	}
	r.users[user.ID] = user
	return user, nil
}

func (r *fakeUserRepo) GetByID(ctx context.Context, id string) (types.User, error) {
	user, ok := r.users[id]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	return user, nil
}

func (r *fakeUserRepo) GetByMail(ctx context.Context, mail string) (types.User, error) {
	for _, user := range r.users {
		if user.Mail == mail {
			return user, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (r *fakeUserRepo) GetBySessionID(ctx context.Context, sessionID string) (types.User, error) {
	for _, user := range r.users {
		if user.SessionID != nil && *user.SessionID == sessionID {
			return user, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (r *fakeUserRepo) Update(ctx context.Context, user types.User) (types.User, error) {
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

func (r *fakeUserRepo) SetSessionID(ctx context.Context, userID string, sessionID *string) error {
	user, ok := r.users[userID]
	if !ok {
		return store.ErrNotFound
	}
	user.SessionID = sessionID
	r.users[userID] = user
	return nil
}

func (r *fakeUserRepo) ClearSession(ctx context.Context, sessionID string) error {
	for id, user := range r.users {
		if user.SessionID != nil && *user.SessionID == sessionID {
			user.SessionID = nil
			r.users[id] = user
		}
	}
	return nil
}

var _ services.UserRepository = (*fakeUserRepo)(nil)
var _ auth.SessionStore = (*fakeUserRepo)(nil)

func newUserService() (*services.UserService, *fakeUserRepo) {
	repo := newFakeUserRepo()
	return services.NewUserService(repo, auth.NewSessionIssuer(repo)), repo
}

func TestRegister(t *testing.T) {
	ctx := context.Background()
	svc, _ := newUserService()

	user, err := svc.Register(ctx, "Ann", "  Ann@Example.COM ", "hunter22")
	require.NoError(t, err)

	assert.NotEmpty(t, user.ID)
	assert.Equal(t, "Ann", user.Name)
	assert.Equal(t, "ann@example.com", user.Mail)
	assert.NotEqual(t, "hunter22", user.PasswordHash)
	assert.True(t, services.VerifyPassword("hunter22", user.PasswordHash))
}

func TestRegisterDuplicateMail(t *testing.T) {
	ctx := context.Background()
	svc, _ := newUserService()

	_, err := svc.Register(ctx, "Ann", "ann@example.com", "hunter22")
	require.NoError(t, err)

	// Same address in different case is the same account.
	_, err = svc.Register(ctx, "Other", "ANN@example.com", "hunter22")
	assert.ErrorIs(t, err, store.ErrConflict)
}

func TestLogin(t *testing.T) {
	ctx := context.Background()
	svc, _ := newUserService()

	registered, err := svc.Register(ctx, "Ann", "ann@example.com", "hunter22")
	require.NoError(t, err)

	user, token, err := svc.Login(ctx, "Ann@Example.com", "hunter22")
	require.NoError(t, err)
	assert.Equal(t, registered.ID, user.ID)
	assert.NotEmpty(t, token)

	resolved, err := svc.Resolve(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, registered.ID, resolved.ID)
}

func TestLoginFailuresAreIndistinguishable(t *testing.T) {
	ctx := context.Background()
	svc, _ := newUserService()

	_, err := svc.Register(ctx, "Ann", "ann@example.com", "hunter22")
	require.NoError(t, err)

	_, _, unknownMail := svc.Login(ctx, "nobody@example.com", "hunter22")
	_, _, wrongPassword := svc.Login(ctx, "ann@example.com", "wrong")

	assert.ErrorIs(t, unknownMail, services.ErrInvalidCredentials)
	assert.ErrorIs(t, wrongPassword, services.ErrInvalidCredentials)
	assert.Equal(t, unknownMail.Error(), wrongPassword.Error())
}

func TestLogout(t *testing.T) {
	ctx := context.Background()
	svc, _ := newUserService()

	_, err := svc.Register(ctx, "Ann", "ann@example.com", "hunter22")
	require.NoError(t, err)
	_, token, err := svc.Login(ctx, "ann@example.com", "hunter22")
	require.NoError(t, err)

	require.NoError(t, svc.Logout(ctx, token))
	_, err = svc.Resolve(ctx, token)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)

	// Logging out a dead token is not an error.
	assert.NoError(t, svc.Logout(ctx, token))
	assert.NoError(t, svc.Logout(ctx, ""))
}

func TestResolveOrCreateWithValidToken(t *testing.T) {
	ctx := context.Background()
	svc, _ := newUserService()

	_, err := svc.Register(ctx, "Ann", "ann@example.com", "hunter22")
	require.NoError(t, err)
	registered, token, err := svc.Login(ctx, "ann@example.com", "hunter22")
	require.NoError(t, err)

	user, newToken, err := svc.ResolveOrCreate(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, registered.ID, user.ID)
	assert.Empty(t, newToken, "an existing session must not be replaced")
}

func TestResolveOrCreateProvisionsGuest(t *testing.T) {
	ctx := context.Background()
	svc, repo := newUserService()

	tests := []struct {
		name  string
		token string
	}{
		{"no token", ""},
		{"stale token", "not-a-live-session"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			user, token, err := svc.ResolveOrCreate(ctx, tt.token)
			require.NoError(t, err)

			assert.True(t, user.IsGuest())
			assert.True(t, strings.HasPrefix(user.Name, "Guest-"))
			assert.NotEmpty(t, token)

			resolved, err := svc.Resolve(ctx, token)
			require.NoError(t, err)
			assert.Equal(t, user.ID, resolved.ID)
		})
	}

	// One guest row per provisioning call.
	assert.Len(t, repo.users, 2)
}

func TestGuestCannotLogIn(t *testing.T) {
	ctx := context.Background()
	svc, _ := newUserService()

	guest, _, err := svc.CreateGuest(ctx)
	require.NoError(t, err)

	_, _, err = svc.Login(ctx, guest.Mail, "")
	assert.ErrorIs(t, err, services.ErrInvalidCredentials)
}

func TestUpdateProfile(t *testing.T) {
	ctx := context.Background()
	svc, _ := newUserService()

	user, err := svc.Register(ctx, "Ann", "ann@example.com", "hunter22")
	require.NoError(t, err)

	name := "Anna"
	updated, err := svc.UpdateProfile(ctx, user.ID, services.ProfilePatch{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "Anna", updated.Name)
	assert.Equal(t, "ann@example.com", updated.Mail, "untouched fields keep their value")

	mail := "  Anna@Example.com "
	updated, err = svc.UpdateProfile(ctx, user.ID, services.ProfilePatch{Mail: &mail})
	require.NoError(t, err)
	assert.Equal(t, "anna@example.com", updated.Mail)
}

func TestUpdateProfileMailConflict(t *testing.T) {
	ctx := context.Background()
	svc, _ := newUserService()

	_, err := svc.Register(ctx, "Ann", "ann@example.com", "hunter22")
	require.NoError(t, err)
	bob, err := svc.Register(ctx, "Bob", "bob@example.com", "hunter22")
	require.NoError(t, err)

	taken := "ann@example.com"
	_, err = svc.UpdateProfile(ctx, bob.ID, services.ProfilePatch{Mail: &taken})
	assert.ErrorIs(t, err, store.ErrConflict)
}

func TestChangePassword(t *testing.T) {
	ctx := context.Background()
	svc, _ := newUserService()

	user, err := svc.Register(ctx, "Ann", "ann@example.com", "hunter22")
	require.NoError(t, err)

	err = svc.ChangePassword(ctx, user.ID, "wrong", "newsecret")
	assert.ErrorIs(t, err, services.ErrInvalidCredentials)

	require.NoError(t, svc.ChangePassword(ctx, user.ID, "hunter22", "newsecret"))

	_, _, err = svc.Login(ctx, "ann@example.com", "hunter22")
	assert.ErrorIs(t, err, services.ErrInvalidCredentials)
	_, _, err = svc.Login(ctx, "ann@example.com", "newsecret")
	assert.NoError(t, err)
}
