// Package file implements driven.ConfigSource against a fixed-schema TOML
// file, the way the teacher's flattened-map config store persisted the
// generic key/value settings this bridge no longer needs.
package file

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/pelletier/go-toml/v2"

	"github.com/feima-labs/feima-bridge/internal/core/ports/driven"
)

var _ driven.ConfigSource = (*ConfigStore)(nil)

type authSection struct {
	BaseURL            string   `toml:"base_url"`
	ClientID           string   `toml:"client_id"`
	Scopes             []string `toml:"scopes"`
	RedirectURIScheme  string   `toml:"redirect_uri_scheme"`
	ExtensionID        string   `toml:"extension_id"`
}

type apiSection struct {
	BaseURL string `toml:"base_url"`
}

type schema struct {
	Auth authSection `toml:"auth"`
	API  apiSection  `toml:"api"`
}

// ConfigStore reads the bridge's fixed configuration schema from a TOML
// file, loaded once at construction. Config is not hot-reloaded.
type ConfigStore struct {
	mu       sync.RWMutex
	filePath string
	data     schema
}

// NewConfigStore loads (or, if absent, prepares a location for) the bridge's
// config.toml. If configDir is empty, it defaults to ~/.feima/config.toml.
func NewConfigStore(configDir string) (*ConfigStore, error) {
	if configDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		configDir = filepath.Join(home, ".feima")
	}

	if err := os.MkdirAll(configDir, 0700); err != nil {
		return nil, err
	}

	s := &ConfigStore{filePath: filepath.Join(configDir, "config.toml")}
	if err := s.Load(); err != nil && !os.IsNotExist(err) {
		return nil, err
	}

	return s, nil
}

// Load re-reads the config file, replacing the in-memory schema.
func (s *ConfigStore) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := os.ReadFile(s.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			s.data = schema{}
			return nil
		}
		return err
	}

	var loaded schema
	if err := toml.Unmarshal(raw, &loaded); err != nil {
		return fmt.Errorf("parsing config file %s: %w", s.filePath, err)
	}
	s.data = loaded
	return nil
}

// Save persists the in-memory schema to disk with owner-only permissions.
func (s *ConfigStore) Save() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.save()
}

func (s *ConfigStore) save() error {
	raw, err := toml.Marshal(s.data)
	if err != nil {
		return err
	}
	return os.WriteFile(s.filePath, raw, 0600)
}

// SetAuth overwrites the auth section and persists it. Neither the runtime
// auth/catalog services nor any CLI command call it.
func (s *ConfigStore) SetAuth(authBaseURL, clientID string, scopes []string, redirectScheme, extensionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data.Auth = authSection{
		BaseURL:           authBaseURL,
		ClientID:          clientID,
		Scopes:            scopes,
		RedirectURIScheme: redirectScheme,
		ExtensionID:       extensionID,
	}
	return s.save()
}

// SetAPIBaseURL overwrites the gateway base URL and persists it.
func (s *ConfigStore) SetAPIBaseURL(apiBaseURL string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data.API.BaseURL = apiBaseURL
	return s.save()
}

func (s *ConfigStore) AuthBaseURL() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.Auth.BaseURL
}

func (s *ConfigStore) APIBaseURL() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.API.BaseURL
}

func (s *ConfigStore) ClientID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.Auth.ClientID
}

func (s *ConfigStore) Scopes() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.data.Auth.Scopes))
	copy(out, s.data.Auth.Scopes)
	return out
}

func (s *ConfigStore) RedirectURIScheme() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.Auth.RedirectURIScheme
}

func (s *ConfigStore) ExtensionID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.Auth.ExtensionID
}

// Path returns the config file's location on disk.
func (s *ConfigStore) Path() string {
	return s.filePath
}
