package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// HomeEnvVar overrides the directory the session is stored in.
const HomeEnvVar = "DENOTE_HOME"

const sessionFile = "token"

// ErrNotLoggedIn is returned by RequireAuth for an empty session.
var ErrNotLoggedIn = errors.New("please log in")

// Session is the locally stored login. Holding a token is taken to mean
// being logged in; the server is the one that rejects a stale token.
type Session struct {
	Token    string `json:"token"`
	Username string `json:"username,omitempty"`
}

// Authenticated reports whether the session holds a token.
func (s Session) Authenticated() bool {
	return s.Token != ""
}

// RequireAuth guards commands that need a login.
func RequireAuth(s Session) error {
	if !s.Authenticated() {
		return ErrNotLoggedIn
	}
	return nil
}

// SessionStore persists a Session in a file readable only by its owner.
type SessionStore struct {
	path string
}

// NewSessionStore stores the session at path.
func NewSessionStore(path string) *SessionStore {
	return &SessionStore{path: path}
}

// DefaultSessionPath is $DENOTE_HOME/token, or denote/token under the user
// config directory.
func DefaultSessionPath() (string, error) {
	if home := os.Getenv(HomeEnvVar); home != "" {
		return filepath.Join(home, sessionFile), nil
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locate config dir: %w", err)
	}
	return filepath.Join(dir, "denote", sessionFile), nil
}

// Path returns the session file location.
func (s *SessionStore) Path() string {
	return s.path
}

// Load returns the stored session, or an empty one if none is stored.
func (s *SessionStore) Load() (Session, error) {
	raw, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return Session{}, nil
	}
	if err != nil {
		return Session{}, fmt.Errorf("read session: %w", err)
	}

	var sess Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		// a corrupt file is treated as logged out
		return Session{}, nil
	}
	return sess, nil
}

// Save writes the session with mode 0600.
func (s *SessionStore) Save(sess Session) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}
	raw, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	if err := os.WriteFile(s.path, raw, 0o600); err != nil {
		return fmt.Errorf("write session: %w", err)
	}
	return os.Chmod(s.path, 0o600)
}

// Clear removes the stored session.
func (s *SessionStore) Clear() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove session: %w", err)
	}
	return nil
}
