package handlers

import (
	"errors"
	"net/http"

	"github.com/taskdeck/apiserver/internal/auth"
	"github.com/taskdeck/apiserver/internal/services"
)

// Identity builds the two authentication middlewares. The optional variant
// never rejects a request: a missing or stale token results in a freshly
// provisioned guest whose session cookie rides back on the response. The
// strict variant answers 401 instead.
type Identity struct {
	users        *services.UserService
	cookieSecure bool
}

func NewIdentity(users *services.UserService, cookieSecure bool) *Identity {
	return &Identity{users: users, cookieSecure: cookieSecure}
}

// setSessionCookie propagates a session token to the client. SameSite=None
// is required for the credentialed cross-origin deployments this service
// targets, and browsers only honor that with Secure set.
func (i *Identity) setSessionCookie(w http.ResponseWriter, token string) {
	sameSite := http.SameSiteLaxMode
	if i.cookieSecure {
		sameSite = http.SameSiteNoneMode
	}
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   i.cookieSecure,
		SameSite: sameSite,
	})
}

func (i *Identity) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   i.cookieSecure,
		MaxAge:   -1,
	})
}

// Optional resolves the caller's identity, creating a guest when no valid
// session is presented. Creating state on what looks like a read is the
// contract here: the client must reuse the propagated token or it will
// accumulate one guest account per request.
func (i *Identity) Optional(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, newToken, err := i.users.ResolveOrCreate(r.Context(), sessionToken(r))
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to resolve identity")
			return
		}
		if newToken != "" {
			i.setSessionCookie(w, newToken)
		}
		next.ServeHTTP(w, r.WithContext(withUser(r.Context(), user)))
	})
}

// Require resolves the caller's identity and answers 401 when no valid
// session is presented. Used by endpoints that must not auto-provision.
func (i *Identity) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := sessionToken(r)
		if token == "" {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		user, err := i.users.Resolve(r.Context(), token)
		if err != nil {
			if errors.Is(err, auth.ErrInvalidToken) {
				writeError(w, http.StatusUnauthorized, "unauthorized")
			} else {
				writeError(w, http.StatusInternalServerError, "failed to resolve identity")
			}
			return
		}
		next.ServeHTTP(w, r.WithContext(withUser(r.Context(), user)))
	})
}
