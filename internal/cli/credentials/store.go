// Package credentials persists admin API tokens for the smbconn CLI.
package credentials

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const (
	// DefaultConfigDir is the directory under XDG_CONFIG_HOME.
	DefaultConfigDir = "smbconn"
	// FileName is the credentials file inside DefaultConfigDir.
	FileName = "credentials.json"
	// FilePermissions for the credentials file (read/write for owner only).
	FilePermissions = 0600
	// DirPermissions for the credentials directory.
	DirPermissions = 0700

	expirySkew = 60 * time.Second
)

var (
	// ErrNoServer indicates no server was given and none was used before.
	ErrNoServer = errors.New("no server selected - pass --server or run 'smbconn login' first")
	// ErrNotLoggedIn indicates no usable token exists for the server.
	ErrNotLoggedIn = errors.New("not logged in - run 'smbconn login' first")
)

// Entry is the login state for one admin API endpoint.
type Entry struct {
	Username    string    `json:"username,omitempty"`
	AccessToken string    `json:"access_token,omitempty"`
	ExpiresAt   time.Time `json:"expires_at,omitempty"`
}

// IsExpired returns true if the token is missing or about to expire.
func (e *Entry) IsExpired() bool {
	if e.AccessToken == "" || e.ExpiresAt.IsZero() {
		return true
	}
	return time.Now().Add(expirySkew).After(e.ExpiresAt)
}

type file struct {
	Current string            `json:"current,omitempty"`
	Servers map[string]*Entry `json:"servers"`
}

// Store reads and writes the credentials file.
type Store struct {
	path string
	data file
}

// NewStore opens the store at the default location.
func NewStore() (*Store, error) {
	path, err := DefaultPath()
	if err != nil {
		return nil, err
	}
	return Open(path)
}

// Open opens the store at path. A missing file yields an empty store.
func Open(path string) (*Store, error) {
	s := &Store{path: path, data: file{Servers: make(map[string]*Entry)}}

	raw, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		return s, nil
	case err != nil:
		return nil, err
	}
	if err := json.Unmarshal(raw, &s.data); err != nil {
		return nil, fmt.Errorf("corrupt credentials file %s: %w", path, err)
	}
	if s.data.Servers == nil {
		s.data.Servers = make(map[string]*Entry)
	}
	return s, nil
}

// DefaultPath returns $XDG_CONFIG_HOME/smbconn/credentials.json.
func DefaultPath() (string, error) {
	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("cannot determine home directory: %w", err)
		}
		configHome = filepath.Join(home, ".config")
	}
	return filepath.Join(configHome, DefaultConfigDir, FileName), nil
}

// Path returns the file backing the store.
func (s *Store) Path() string {
	return s.path
}

// ResolveServer returns server normalized, or the last server used when
// server is empty.
func (s *Store) ResolveServer(server string) (string, error) {
	if server != "" {
		return normalize(server), nil
	}
	if s.data.Current == "" {
		return "", ErrNoServer
	}
	return s.data.Current, nil
}

// Token returns a non-expired token for server.
func (s *Store) Token(server string) (string, error) {
	e, ok := s.data.Servers[normalize(server)]
	if !ok || e.IsExpired() {
		return "", ErrNotLoggedIn
	}
	return e.AccessToken, nil
}

// Get returns the entry for server.
func (s *Store) Get(server string) (*Entry, bool) {
	e, ok := s.data.Servers[normalize(server)]
	return e, ok
}

// Save records a login and makes server the current one.
func (s *Store) Save(server string, e *Entry) error {
	server = normalize(server)
	s.data.Servers[server] = e
	s.data.Current = server
	return s.save()
}

// Clear drops the token for server but remembers the username.
func (s *Store) Clear(server string) error {
	e, ok := s.data.Servers[normalize(server)]
	if !ok {
		return nil
	}
	e.AccessToken = ""
	e.ExpiresAt = time.Time{}
	return s.save()
}

// Servers lists known servers in sorted order.
func (s *Store) Servers() []string {
	out := make([]string, 0, len(s.data.Servers))
	for k := range s.data.Servers {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (s *Store) save() error {
	if err := os.MkdirAll(filepath.Dir(s.path), DirPermissions); err != nil {
		return fmt.Errorf("cannot create credentials directory: %w", err)
	}
	raw, err := json.MarshalIndent(&s.data, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, raw, FilePermissions)
}

// normalize adds a scheme and drops trailing slashes so that
// "localhost:8080" and "http://localhost:8080/" share an entry.
func normalize(server string) string {
	server = strings.TrimRight(strings.TrimSpace(server), "/")
	if server != "" && !strings.Contains(server, "://") {
		server = "http://" + server
	}
	return server
}
