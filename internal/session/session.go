// Package session supplies the authenticated owner for every mutation.
package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrNoOwner is returned when no authenticated owner is present
	ErrNoOwner = errors.New("no authenticated owner")
	// ErrInvalidToken is returned for tokens that cannot be parsed or verified
	ErrInvalidToken = errors.New("invalid token")
)

// Provider supplies the current owner identifier
type Provider interface {
	Owner() (string, error)
}

// Static is a Provider with a fixed owner. An empty owner means signed out.
type Static struct {
	mu      sync.RWMutex
	ownerID string
}

// NewStatic creates a Provider for ownerID
func NewStatic(ownerID string) *Static {
	return &Static{ownerID: ownerID}
}

func (s *Static) Owner() (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.ownerID == "" {
		return "", ErrNoOwner
	}
	return s.ownerID, nil
}

// SignIn replaces the current owner
func (s *Static) SignIn(ownerID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ownerID = ownerID
}

// SignOut clears the current owner
func (s *Static) SignOut() {
	s.SignIn("")
}

// Claims are the JWT claims carried by a session token
type Claims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

// Manager issues and verifies HS256 session tokens
type Manager struct {
	Secret []byte
}

// NewManager creates a token manager for secret
func NewManager(secret string) *Manager {
	return &Manager{Secret: []byte(secret)}
}

// GenerateToken issues a token for userID valid for ttl
func (m *Manager) GenerateToken(userID string, ttl time.Duration) (string, error) {
	claims := Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.Secret)
}

// ParseToken verifies the signature and expiry of tokenString
func (m *Manager) ParseToken(tokenString string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return m.Secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.UserID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Token is a client-side Provider backed by a token issued by the remote.
// The client cannot verify the signature (the remote does that on every
// request); it only reads the owner and rejects expired tokens.
type Token struct {
	raw string
	now func() time.Time
}

// NewToken creates a Provider for a raw session token
func NewToken(raw string) *Token {
	return &Token{raw: raw, now: time.Now}
}

// Raw returns the bearer token to attach to remote requests
func (t *Token) Raw() string {
	return t.raw
}

func (t *Token) Owner() (string, error) {
	if strings.TrimSpace(t.raw) == "" {
		return "", ErrNoOwner
	}
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(t.raw, claims); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.ExpiresAt != nil && !claims.ExpiresAt.After(t.now()) {
		return "", fmt.Errorf("%w: token expired", ErrNoOwner)
	}
	if claims.UserID == "" {
		return "", ErrNoOwner
	}
	return claims.UserID, nil
}

// TokenFromRequest extracts a bearer token from the Authorization header
func TokenFromRequest(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return "", false
	}
	return parts[1], true
}

type contextKey string

const ownerKey contextKey = "ownerID"

// WithOwner returns a context carrying ownerID
func WithOwner(ctx context.Context, ownerID string) context.Context {
	return context.WithValue(ctx, ownerKey, ownerID)
}

// OwnerFromContext returns the owner stored by WithOwner
func OwnerFromContext(ctx context.Context) (string, bool) {
	ownerID, ok := ctx.Value(ownerKey).(string)
	return ownerID, ok && ownerID != ""
}
