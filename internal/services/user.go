package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/taskdeck/apiserver/internal/auth"
	"github.com/taskdeck/apiserver/internal/store"
	"github.com/taskdeck/apiserver/types"
	"golang.org/x/crypto/bcrypt"
)

// UserRepository defines persistence operations for users.
type UserRepository interface {
	Create(ctx context.Context, user types.User) (types.User, error)
	GetByID(ctx context.Context, id string) (types.User, error)
	GetByMail(ctx context.Context, mail string) (types.User, error)
	GetBySessionID(ctx context.Context, sessionID string) (types.User, error)
	Update(ctx context.Context, user types.User) (types.User, error)
	SetSessionID(ctx context.Context, userID string, sessionID *string) error
	ClearSession(ctx context.Context, sessionID string) error
}

// UserService encapsulates account and session use-cases.
type UserService struct {
	repo   UserRepository
	issuer auth.TokenIssuer
}

func NewUserService(repo UserRepository, issuer auth.TokenIssuer) *UserService {
	return &UserService{repo: repo, issuer: issuer}
}

// HashPassword produces a one-way salted hash of the plaintext.
func HashPassword(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// VerifyPassword compares a plaintext against a stored hash using the
// scheme's own constant-time comparison.
func VerifyPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// Register creates a durable account. The mail address is normalized before
// insert; a duplicate surfaces as store.ErrConflict from the uniqueness
// constraint, which also covers two registrations racing on the same address.
func (s *UserService) Register(ctx context.Context, name, mail, password string) (types.User, error) {
	hashed, err := HashPassword(password)
	if err != nil {
		return types.User{}, err
	}

	return s.repo.Create(ctx, types.User{
		ID:           uuid.NewString(),
		Name:         name,
		Mail:         types.NormalizeMail(mail),
		PasswordHash: hashed,
	})
}

// Login verifies credentials and mints a fresh session token. Unknown mail
// and wrong password are indistinguishable to the caller.
func (s *UserService) Login(ctx context.Context, mail, password string) (types.User, string, error) {
	user, err := s.repo.GetByMail(ctx, types.NormalizeMail(mail))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.User{}, "", ErrInvalidCredentials
		}
		return types.User{}, "", err
	}

	if !VerifyPassword(password, user.PasswordHash) {
		return types.User{}, "", ErrInvalidCredentials
	}

	token, err := s.issuer.Issue(ctx, user)
	if err != nil {
		return types.User{}, "", err
	}
	return user, token, nil
}

// Logout revokes the token. Unknown or absent tokens are not an error.
func (s *UserService) Logout(ctx context.Context, token string) error {
	return s.issuer.Revoke(ctx, token)
}

// Resolve maps a presented token to its user, or auth.ErrInvalidToken.
func (s *UserService) Resolve(ctx context.Context, token string) (types.User, error) {
	return s.issuer.Resolve(ctx, token)
}

// ResolveOrCreate is the optional-auth entry point: a valid token resolves to
// its user; anything else provisions a fresh guest. The second return value
// is non-empty exactly when a new session was minted, and the caller is then
// responsible for propagating it back to the client.
func (s *UserService) ResolveOrCreate(ctx context.Context, token string) (types.User, string, error) {
	if token != "" {
		user, err := s.issuer.Resolve(ctx, token)
		if err == nil {
			return user, "", nil
		}
		if !errors.Is(err, auth.ErrInvalidToken) {
			return types.User{}, "", err
		}
	}
	return s.CreateGuest(ctx)
}

// CreateGuest persists an anonymous account with a synthesized identity and
// an already-active session.
func (s *UserService) CreateGuest(ctx context.Context) (types.User, string, error) {
	id := uuid.NewString()

	// The placeholder secret can never be logged in with, so the cheapest
	// valid hash is enough. Guests are created on the request path and a
	// full-cost bcrypt round there is pure latency.
	hashed, err := bcrypt.GenerateFromPassword([]byte(uuid.NewString()), bcrypt.MinCost)
	if err != nil {
		return types.User{}, "", err
	}

	user, err := s.repo.Create(ctx, types.User{
		ID:           id,
		Name:         "Guest-" + id[:4],
		Mail:         fmt.Sprintf("guest-%s%s", id, types.GuestMailDomain),
		PasswordHash: string(hashed),
	})
	if err != nil {
		return types.User{}, "", err
	}

	token, err := s.issuer.Issue(ctx, user)
	if err != nil {
		return types.User{}, "", err
	}
	return user, token, nil
}

// ProfilePatch carries the fields a PATCH /users/me may change. Nil fields
// are left untouched.
type ProfilePatch struct {
	Name      *string
	Mail      *string
	AvatarURL *string
}

// UpdateProfile applies a partial profile update. A new mail address is
// normalized and may surface store.ErrConflict.
func (s *UserService) UpdateProfile(ctx context.Context, userID string, patch ProfilePatch) (types.User, error) {
	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return types.User{}, err
	}

	if patch.Name != nil {
		user.Name = *patch.Name
	}
	if patch.Mail != nil {
		user.Mail = types.NormalizeMail(*patch.Mail)
	}
	if patch.AvatarURL != nil {
		user.AvatarURL = patch.AvatarURL
	}

	return s.repo.Update(ctx, user)
}

// SetAvatarURL records the public location of an uploaded avatar.
func (s *UserService) SetAvatarURL(ctx context.Context, userID, url string) (types.User, error) {
	return s.UpdateProfile(ctx, userID, ProfilePatch{AvatarURL: &url})
}

// ChangePassword rotates the password after verifying the current one.
// A wrong current password is reported as ErrInvalidCredentials.
func (s *UserService) ChangePassword(ctx context.Context, userID, current, next string) error {
	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return err
	}

	if !VerifyPassword(current, user.PasswordHash) {
		return ErrInvalidCredentials
	}

	hashed, err := HashPassword(next)
	if err != nil {
		return err
	}
	user.PasswordHash = hashed
	_, err = s.repo.Update(ctx, user)
	return err
}
