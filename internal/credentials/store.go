// Package credentials persists the operator's bearer token between runs.
package credentials

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"gopkg.in/yaml.v3"

	"droneops-console/internal/fleet"
)

// Record is the on-disk form.
type Record struct {
	Token   string     `yaml:"token"`
	User    fleet.User `yaml:"user"`
	SavedAt time.Time  `yaml:"saved_at"`
}

// Store is a file-backed token store. It is safe for concurrent use.
type Store struct {
	path string
	mu   sync.Mutex
	now  func() time.Time
}

// DefaultPath is $XDG_CONFIG_HOME/droneops-console/credentials.yaml (or the OS equivalent).
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "droneops-console", "credentials.yaml"), nil
}

// NewStore returns a store at path, or DefaultPath when path is "".
func NewStore(path string) (*Store, error) {
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, fmt.Errorf("resolve credentials path: %w", err)
		}
		path = p
	}
	return &Store{path: path, now: time.Now}, nil
}

// Path returns the backing file.
func (s *Store) Path() string { return s.path }

// Save writes token and user with owner-only permissions.
func (s *Store) Save(token string, user fleet.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return err
	}
	b, err := yaml.Marshal(Record{Token: token, User: user, SavedAt: s.now().UTC()})
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, b, 0o600)
}

// Load returns the stored record. A missing file yields ErrAuth.
func (s *Store) Load() (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return Record{}, fleet.NewError(fleet.CodeAuth, "not logged in", nil)
	}
	if err != nil {
		return Record{}, err
	}
	var rec Record
	if err := yaml.Unmarshal(b, &rec); err != nil {
		return Record{}, fmt.Errorf("parse credentials: %w", err)
	}
	if rec.Token == "" {
		return Record{}, fleet.NewError(fleet.CodeAuth, "not logged in", nil)
	}
	return rec, nil
}

// Token returns the stored bearer token, refusing tokens whose exp claim has passed.
func (s *Store) Token() (string, error) {
	rec, err := s.Load()
	if err != nil {
		return "", err
	}
	if exp, ok := Expiry(rec.Token); ok && !exp.After(s.now()) {
		return "", fleet.NewError(fleet.CodeAuth, "stored token expired at "+exp.Format(time.RFC3339), nil)
	}
	return rec.Token, nil
}

// Clear removes the stored token. Clearing an empty store is a no-op.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// Expiry reads the exp claim without verifying the signature; the registry
// remains the authority on validity.
func Expiry(token string) (time.Time, bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}
