package handlers_test

import (
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/taskdeck/apiserver/internal/handlers"
	"github.com/taskdeck/apiserver/types"
)

func TestRegisterEndpoint(t *testing.T) {
	router, _ := newTestRouter()

	rec := doJSON(t, router, http.MethodPost, "/users/register", "", map[string]string{
		"name": "Ann", "mail": "Ann@Example.com", "password": "hunter22",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	user := decodeBody[types.User](t, rec)
	assert.Equal(t, "Ann", user.Name)
	assert.Equal(t, "ann@example.com", user.Mail)
	assert.NotContains(t, rec.Body.String(), "password")
	assert.Empty(t, rec.Result().Cookies(), "registration does not start a session")
}

func TestRegisterEndpointConflict(t *testing.T) {
	router, _ := newTestRouter()

	rec := doJSON(t, router, http.MethodPost, "/users/register", "", map[string]string{
		"name": "Ann", "mail": "ann@example.com", "password": "hunter22",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/users/register", "", map[string]string{
		"name": "Imposter", "mail": "ANN@example.com", "password": "hunter22",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestRegisterEndpointValidation(t *testing.T) {
	router, _ := newTestRouter()

	tests := []struct {
		name string
		body map[string]string
	}{
		{"empty name", map[string]string{"name": "  ", "mail": "a@b.com", "password": "hunter22"}},
		{"long name", map[string]string{"name": strings.Repeat("x", 51), "mail": "a@b.com", "password": "hunter22"}},
		{"bad mail", map[string]string{"name": "Ann", "mail": "not-a-mail", "password": "hunter22"}},
		{"short password", map[string]string{"name": "Ann", "mail": "a@b.com", "password": "12345"}},
		{"guest domain", map[string]string{"name": "Mallory", "mail": "mallory@guest.local", "password": "hunter22"}},
		{"guest domain mixed case", map[string]string{"name": "Mallory", "mail": "Mallory@Guest.LOCAL", "password": "hunter22"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(t, router, http.MethodPost, "/users/register", "", tt.body)
			assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

			resp := decodeBody[handlers.ValidationResponse](t, rec)
			assert.NotEmpty(t, resp.Details)
		})
	}
}

func TestLoginEndpoint(t *testing.T) {
	router, _ := newTestRouter()
	registerAndLogin(t, router, "ann@example.com")

	rec := doJSON(t, router, http.MethodPost, "/users/login", "", map[string]string{
		"mail": "ann@example.com", "password": "hunter22",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	session := decodeBody[handlers.SessionResponse](t, rec)
	assert.NotEmpty(t, session.SessionToken)
	assert.Equal(t, "ann@example.com", session.User.Mail)

	cookie := sessionCookie(rec)
	require.NotNil(t, cookie)
	assert.Equal(t, session.SessionToken, cookie.Value)
	assert.True(t, cookie.HttpOnly)
}

func TestLoginEndpointFailuresAreIdentical(t *testing.T) {
	router, _ := newTestRouter()
	registerAndLogin(t, router, "ann@example.com")

	unknownMail := doJSON(t, router, http.MethodPost, "/users/login", "", map[string]string{
		"mail": "nobody@example.com", "password": "hunter22",
	})
	wrongPassword := doJSON(t, router, http.MethodPost, "/users/login", "", map[string]string{
		"mail": "ann@example.com", "password": "wrong",
	})

	assert.Equal(t, http.StatusUnauthorized, unknownMail.Code)
	assert.Equal(t, http.StatusUnauthorized, wrongPassword.Code)
	assert.Equal(t, unknownMail.Body.String(), wrongPassword.Body.String())
}

func TestGuestEndpoint(t *testing.T) {
	router, _ := newTestRouter()

	rec := doJSON(t, router, http.MethodPost, "/users/guest", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	session := decodeBody[handlers.SessionResponse](t, rec)
	assert.True(t, session.User.IsGuest())
	assert.NotEmpty(t, session.SessionToken)

	cookie := sessionCookie(rec)
	require.NotNil(t, cookie)
	assert.Equal(t, session.SessionToken, cookie.Value)

	// The minted session is immediately usable.
	me := doJSON(t, router, http.MethodGet, "/users/me", session.SessionToken, nil)
	require.Equal(t, http.StatusOK, me.Code)
	assert.Equal(t, session.User.ID, decodeBody[types.User](t, me).ID)
}

func TestLogoutEndpoint(t *testing.T) {
	router, _ := newTestRouter()
	token := registerAndLogin(t, router, "ann@example.com")

	rec := doJSON(t, router, http.MethodPost, "/users/logout", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	cookie := sessionCookie(rec)
	require.NotNil(t, cookie)
	assert.Negative(t, cookie.MaxAge, "logout must expire the cookie")

	me := doJSON(t, router, http.MethodGet, "/users/me", token, nil)
	assert.Equal(t, http.StatusUnauthorized, me.Code)

	// Logout without any session still succeeds.
	rec = doJSON(t, router, http.MethodPost, "/users/logout", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMeEndpointRequiresSession(t *testing.T) {
	router, _ := newTestRouter()

	rec := doJSON(t, router, http.MethodGet, "/users/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/users/me", "stale-token", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMeEndpointAcceptsCookie(t *testing.T) {
	router, _ := newTestRouter()
	token := registerAndLogin(t, router, "ann@example.com")

	req, rec := newRequestWithCookie(http.MethodGet, "/users/me", token)
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ann@example.com", decodeBody[types.User](t, rec).Mail)
}

func TestUpdateMeEndpoint(t *testing.T) {
	router, _ := newTestRouter()
	token := registerAndLogin(t, router, "ann@example.com")

	rec := doJSON(t, router, http.MethodPatch, "/users/me", token, map[string]string{
		"name": "Anna",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	updated := decodeBody[types.User](t, rec)
	assert.Equal(t, "Anna", updated.Name)
	assert.Equal(t, "ann@example.com", updated.Mail)
}

func TestUpdateMeEndpointRejectsGuestDomain(t *testing.T) {
	router, _ := newTestRouter()
	token := registerAndLogin(t, router, "ann@example.com")

	// The guest mail namespace is swept by cleanup, so a durable account must
	// not be allowed to move into it.
	rec := doJSON(t, router, http.MethodPatch, "/users/me", token, map[string]string{
		"mail": "ann@guest.local",
	})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	resp := decodeBody[handlers.ValidationResponse](t, rec)
	require.NotEmpty(t, resp.Details)
	assert.Equal(t, "mail", resp.Details[0].Field)
}

func TestUpdateMeEndpointMailConflict(t *testing.T) {
	router, _ := newTestRouter()
	registerAndLogin(t, router, "ann@example.com")
	token := registerAndLogin(t, router, "bob@example.com")

	rec := doJSON(t, router, http.MethodPatch, "/users/me", token, map[string]string{
		"mail": "ann@example.com",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestChangePasswordEndpoint(t *testing.T) {
	router, _ := newTestRouter()
	token := registerAndLogin(t, router, "ann@example.com")

	rec := doJSON(t, router, http.MethodPost, "/users/change-password", token, map[string]string{
		"current_password": "wrong", "new_password": "newsecret",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/users/change-password", token, map[string]string{
		"current_password": "hunter22", "new_password": "short",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/users/change-password", token, map[string]string{
		"current_password": "hunter22", "new_password": "newsecret",
	})
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/users/login", "", map[string]string{
		"mail": "ann@example.com", "password": "newsecret",
	})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestUploadAvatarUnconfigured(t *testing.T) {
	router, _ := newTestRouter()
	token := registerAndLogin(t, router, "ann@example.com")

	rec := doJSON(t, router, http.MethodPut, "/users/me/avatar", token, nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
