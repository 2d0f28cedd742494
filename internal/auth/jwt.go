package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/taskdeck/apiserver/internal/store"
	"github.com/taskdeck/apiserver/types"
)

const defaultTokenTTL = 24 * time.Hour

// JWTIssuer implements TokenIssuer with HS256-signed tokens carrying the user
// id as subject and an expiry claim. No per-session state is written, which
// also means individual tokens cannot be revoked before they expire.
type JWTIssuer struct {
	users    SessionStore
	secret   []byte
	tokenTTL time.Duration
}

func NewJWTIssuer(users SessionStore, secret string) *JWTIssuer {
	return &JWTIssuer{
		users:    users,
		secret:   []byte(secret),
		tokenTTL: defaultTokenTTL,
	}
}

func (j *JWTIssuer) Issue(ctx context.Context, user types.User) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   user.ID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(j.tokenTTL)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(j.secret)
}

func (j *JWTIssuer) Resolve(ctx context.Context, token string) (types.User, error) {
	subject, err := j.parseSubject(token)
	if err != nil {
		return types.User{}, ErrInvalidToken
	}

	user, err := j.users.GetByID(ctx, subject)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.User{}, ErrInvalidToken
		}
		return types.User{}, err
	}
	return user, nil
}

// Revoke is a no-op: JWTs are stateless and expire on their own.
func (j *JWTIssuer) Revoke(ctx context.Context, token string) error {
	return nil
}

func (j *JWTIssuer) parseSubject(tokenString string) (string, error) {
	claims := jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return j.secret, nil
	})
	if err != nil {
		return "", err
	}
	if !token.Valid {
		return "", errors.New("invalid token")
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return "", errors.New("missing subject")
	}
	return claims.Subject, nil
}
