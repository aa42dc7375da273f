package credentials

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"droneops-console/internal/fleet"
)

func signed(t *testing.T, exp time.Time) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "u1", "exp": exp.Unix()})
	s, err := tok.SignedString([]byte("k"))
	require.NoError(t, err)
	return s
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "nested", "credentials.yaml"))
	require.NoError(t, err)
	return s
}

func TestSaveLoadClear(t *testing.T) {
	s := newTestStore(t)
	token := signed(t, time.Now().Add(time.Hour))
	require.NoError(t, s.Save(token, fleet.User{ID: "u1", Email: "ops@example.com"}))

	info, err := os.Stat(s.Path())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	rec, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, token, rec.Token)
	assert.Equal(t, "ops@example.com", rec.User.Email)

	got, err := s.Token()
	require.NoError(t, err)
	assert.Equal(t, token, got)

	require.NoError(t, s.Clear())
	_, err = s.Token()
	assert.True(t, errors.Is(err, fleet.ErrAuth))
	require.NoError(t, s.Clear(), "second clear is a no-op")
}

func TestTokenRejectsExpired(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Save(signed(t, time.Now().Add(-time.Minute)), fleet.User{}))
	_, err := s.Token()
	assert.True(t, errors.Is(err, fleet.ErrAuth))
}

func TestOpaqueTokenAccepted(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Save("opaque-token", fleet.User{}))
	got, err := s.Token()
	require.NoError(t, err)
	assert.Equal(t, "opaque-token", got)
}

func TestExpiry(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	got, ok := Expiry(signed(t, exp))
	require.True(t, ok)
	assert.True(t, got.Equal(exp))

	_, ok = Expiry("garbage")
	assert.False(t, ok)
}
