package handlers

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/taskdeck/apiserver/internal/services"
	"github.com/taskdeck/apiserver/internal/storage"
	"github.com/taskdeck/apiserver/internal/store"
	"github.com/taskdeck/apiserver/types"
)

const (
	minPasswordLength    = 6
	maxPasswordLength    = 128
	maxNameLength        = 50
	maxAvatarBytes       = 5 << 20
	maxAvatarFormMemory  = 8 << 20
	formFieldAvatar      = "avatar"
	invalidCredentialMsg = "incorrect email or password"
)

// UserHandler provides account, session, and profile endpoints.
type UserHandler struct {
	userService *services.UserService
	identity    *Identity
	avatars     *storage.Storage
	avatarBase  string
}

// NewUserHandler constructs a UserHandler. avatars may be nil when object
// storage is not configured; avatar uploads then answer 503.
func NewUserHandler(userService *services.UserService, identity *Identity, avatars *storage.Storage, avatarBase string) *UserHandler {
	return &UserHandler{
		userService: userService,
		identity:    identity,
		avatars:     avatars,
		avatarBase:  strings.TrimRight(avatarBase, "/"),
	}
}

// UserRouter registers user routes on the given router.
func UserRouter(r chi.Router, handler *UserHandler) {
	r.Post("/register", handler.Register)
	r.Post("/login", handler.Login)
	r.Post("/guest", handler.Guest)
	r.Post("/logout", handler.Logout)

	r.Group(func(r chi.Router) {
		r.Use(handler.identity.Require)
		r.Get("/me", handler.Me)
		r.Patch("/me", handler.UpdateMe)
		r.Put("/me/avatar", handler.UploadAvatar)
		r.Post("/change-password", handler.ChangePassword)
	})
}

type RegisterRequest struct {
	Name     string `json:"name"`
	Mail     string `json:"mail"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Mail     string `json:"mail"`
	Password string `json:"password"`
}

// SessionResponse carries the profile plus the session token, so
// non-browser clients can replay it as a bearer credential instead of the
// cookie.
type SessionResponse struct {
	User         types.User `json:"user"`
	SessionToken string     `json:"session_token"`
}

func validMail(mail string) bool {
	at := strings.Index(mail, "@")
	return at > 0 && at < len(mail)-1 && !strings.ContainsAny(mail, " \t")
}

// validateMail checks a normalized address. The guest domain is rejected so
// no durable account can land in the namespace that guest cleanup sweeps.
func validateMail(mail string) *FieldError {
	if !validMail(mail) {
		return &FieldError{Field: "mail", Message: "must be a valid email address"}
	}
	if strings.HasSuffix(mail, types.GuestMailDomain) {
		return &FieldError{Field: "mail", Message: "domain is reserved"}
	}
	return nil
}

func validatePassword(password string) *FieldError {
	if len(password) < minPasswordLength {
		return &FieldError{Field: "password", Message: fmt.Sprintf("must be at least %d characters", minPasswordLength)}
	}
	if len(password) > maxPasswordLength {
		return &FieldError{Field: "password", Message: fmt.Sprintf("must be at most %d characters", maxPasswordLength)}
	}
	return nil
}

// Register creates a durable account and returns the profile. No session is
// started; the client logs in afterwards.
func (h *UserHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var details []FieldError
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" || len(req.Name) > maxNameLength {
		details = append(details, FieldError{Field: "name", Message: fmt.Sprintf("must be 1-%d characters", maxNameLength)})
	}
	if fieldErr := validateMail(types.NormalizeMail(req.Mail)); fieldErr != nil {
		details = append(details, *fieldErr)
	}
	if fieldErr := validatePassword(req.Password); fieldErr != nil {
		details = append(details, *fieldErr)
	}
	if len(details) > 0 {
		writeValidationError(w, details)
		return
	}

	user, err := h.userService.Register(r.Context(), req.Name, req.Mail, req.Password)
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			writeError(w, http.StatusConflict, "mail already registered")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to register")
		return
	}

	writeJSON(w, http.StatusCreated, user)
}

// Login verifies credentials and starts a session. Unknown mail and wrong
// password produce byte-identical responses.
func (h *UserHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var details []FieldError
	if strings.TrimSpace(req.Mail) == "" {
		details = append(details, FieldError{Field: "mail", Message: "is required"})
	}
	if req.Password == "" {
		details = append(details, FieldError{Field: "password", Message: "is required"})
	}
	if len(details) > 0 {
		writeValidationError(w, details)
		return
	}

	user, token, err := h.userService.Login(r.Context(), req.Mail, req.Password)
	if err != nil {
		if errors.Is(err, services.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, invalidCredentialMsg)
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to authenticate")
		return
	}

	h.identity.setSessionCookie(w, token)
	writeJSON(w, http.StatusOK, SessionResponse{User: user, SessionToken: token})
}

// Guest provisions an anonymous account with an active session.
func (h *UserHandler) Guest(w http.ResponseWriter, r *http.Request) {
	user, token, err := h.userService.CreateGuest(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create guest")
		return
	}

	h.identity.setSessionCookie(w, token)
	writeJSON(w, http.StatusOK, SessionResponse{User: user, SessionToken: token})
}

// Logout ends the presented session, if any. Always succeeds.
func (h *UserHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if token := sessionToken(r); token != "" {
		if err := h.userService.Logout(r.Context(), token); err != nil {
			writeError(w, http.StatusInternalServerError, "failed to log out")
			return
		}
	}
	h.identity.clearSessionCookie(w)
	writeJSON(w, http.StatusOK, map[string]string{"status": "logged out"})
}

// Me returns the authenticated profile.
func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

type UpdateMeRequest struct {
	Name *string `json:"name"`
	Mail *string `json:"mail"`
}

// UpdateMe applies a partial profile update.
func (h *UserHandler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req UpdateMeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var details []FieldError
	if req.Name != nil {
		trimmed := strings.TrimSpace(*req.Name)
		if trimmed == "" || len(trimmed) > maxNameLength {
			details = append(details, FieldError{Field: "name", Message: fmt.Sprintf("must be 1-%d characters", maxNameLength)})
		}
		req.Name = &trimmed
	}
	if req.Mail != nil {
		if fieldErr := validateMail(types.NormalizeMail(*req.Mail)); fieldErr != nil {
			details = append(details, *fieldErr)
		}
	}
	if len(details) > 0 {
		writeValidationError(w, details)
		return
	}

	updated, err := h.userService.UpdateProfile(r.Context(), user.ID, services.ProfilePatch{
		Name: req.Name,
		Mail: req.Mail,
	})
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			writeError(w, http.StatusConflict, "mail already registered")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to update profile")
		return
	}

	writeJSON(w, http.StatusOK, updated)
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// ChangePassword rotates the caller's password; 401 when the current
// password does not verify.
func (h *UserHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req ChangePasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if fieldErr := validatePassword(req.NewPassword); fieldErr != nil {
		fieldErr.Field = "new_password"
		writeValidationError(w, []FieldError{*fieldErr})
		return
	}

	if err := h.userService.ChangePassword(r.Context(), user.ID, req.CurrentPassword, req.NewPassword); err != nil {
		if errors.Is(err, services.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, "current password is incorrect")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to change password")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// UploadAvatar stores the uploaded image in object storage and records its
// public URL on the profile.
func (h *UserHandler) UploadAvatar(w http.ResponseWriter, r *http.Request) {
	if h.avatars == nil {
		writeError(w, http.StatusServiceUnavailable, "avatar storage is not configured")
		return
	}

	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	if err := r.ParseMultipartForm(maxAvatarFormMemory); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	file, header, err := r.FormFile(formFieldAvatar)
	if err != nil {
		writeValidationError(w, []FieldError{{Field: formFieldAvatar, Message: "file is required"}})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxAvatarBytes+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read upload")
		return
	}
	if len(data) > maxAvatarBytes {
		writeValidationError(w, []FieldError{{Field: formFieldAvatar, Message: "file too large"}})
		return
	}

	contentType := header.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/") {
		writeValidationError(w, []FieldError{{Field: formFieldAvatar, Message: "must be an image"}})
		return
	}

	key := "avatars/" + user.ID
	if err := h.avatars.Put(r.Context(), key, bytes.NewReader(data), int64(len(data)), contentType); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to store avatar")
		return
	}

	url := key
	if h.avatarBase != "" {
		url = h.avatarBase + "/" + key
	}
	updated, err := h.userService.SetAvatarURL(r.Context(), user.ID, url)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to update profile")
		return
	}

	writeJSON(w, http.StatusOK, updated)
}
