// Package session owns the rider's auth token and the session-expired policy.
// An HTTP 403 from any authenticated call means the session is dead: the
// stored token is cleared and the shell is sent to the sign-in entry point.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/beekyynd/taxi/pkg/logger"
	"github.com/beekyynd/taxi/pkg/storage"
)

// ErrNoToken is returned when no session token is stored.
var ErrNoToken = errors.New("session: no token stored")

// Manager loads, stores and clears the bearer token.
type Manager struct {
	store storage.Store
}

// NewManager creates a session manager backed by the durable store.
func NewManager(store storage.Store) *Manager {
	return &Manager{store: store}
}

// Token returns the stored bearer token.
func (m *Manager) Token(ctx context.Context) (string, error) {
	token, err := m.store.Get(ctx, storage.KeyAuthToken)
	if errors.Is(err, storage.ErrNotFound) {
		return "", ErrNoToken
	}
	if err != nil {
		return "", err
	}
	return token, nil
}

// SetToken persists a new bearer token after sign-in.
func (m *Manager) SetToken(ctx context.Context, token string) error {
	return m.store.Set(ctx, storage.KeyAuthToken, token)
}

// Expire clears the stored token. Called on HTTP 403 before navigating to
// sign-in; clearing is best-effort, a failed delete still expires the session.
func (m *Manager) Expire(ctx context.Context) {
	if err := m.store.Remove(ctx, storage.KeyAuthToken); err != nil {
		logger.Warn("failed to clear expired token", zap.Error(err))
	}
}

// IsExpired inspects the token's exp claim without verifying the signature;
// verification belongs to the server. A token that cannot be parsed or has no
// exp claim is treated as live and left for the server to reject.
func (m *Manager) IsExpired(ctx context.Context, now time.Time) (bool, error) {
	token, err := m.Token(ctx)
	if err != nil {
		return false, err
	}

	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return false, nil
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false, nil
	}

	return now.After(exp.Time), nil
}
