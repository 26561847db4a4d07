package session

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beekyynd/taxi/pkg/storage"
)

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	claims := jwt.MapClaims{"sub": "rider-1"}
	if !exp.IsZero() {
		claims["exp"] = exp.Unix()
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return token
}

func TestTokenRoundTrip(t *testing.T) {
	ctx := context.Background()
	manager := NewManager(storage.NewMemoryStore())

	_, err := manager.Token(ctx)
	assert.ErrorIs(t, err, ErrNoToken)

	require.NoError(t, manager.SetToken(ctx, "abc123"))
	token, err := manager.Token(ctx)
	require.NoError(t, err)
	assert.Equal(t, "abc123", token)

	manager.Expire(ctx)
	_, err = manager.Token(ctx)
	assert.ErrorIs(t, err, ErrNoToken)
}

func TestExpireWithoutTokenIsSafe(t *testing.T) {
	manager := NewManager(storage.NewMemoryStore())
	manager.Expire(context.Background())
}

func TestIsExpired(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		token   string
		expired bool
	}{
		{"live token", "", false},
		{"expired token", "", true},
		{"opaque token left for the server", "not-a-jwt", false},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			manager := NewManager(storage.NewMemoryStore())

			token := tt.token
			if token == "" {
				exp := now.Add(time.Hour)
				if tt.expired {
					exp = now.Add(-time.Hour)
				}
				token = signedToken(t, exp)
			}
			require.NoError(t, manager.SetToken(ctx, token))

			expired, err := manager.IsExpired(ctx, now)
			require.NoError(t, err, "case %d", i)
			assert.Equal(t, tt.expired, expired)
		})
	}
}

func TestIsExpiredNoExpClaim(t *testing.T) {
	ctx := context.Background()
	manager := NewManager(storage.NewMemoryStore())
	require.NoError(t, manager.SetToken(ctx, signedToken(t, time.Time{})))

	expired, err := manager.IsExpired(ctx, time.Now())
	require.NoError(t, err)
	assert.False(t, expired)
}

func TestIsExpiredMissingToken(t *testing.T) {
	manager := NewManager(storage.NewMemoryStore())
	_, err := manager.IsExpired(context.Background(), time.Now())
	assert.ErrorIs(t, err, ErrNoToken)
}
