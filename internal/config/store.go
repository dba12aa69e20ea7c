package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"

	"audio-workbench/internal/domain"
)

// Store defines persistence operations for app settings.
type Store interface {
	Load() (domain.Settings, error)
	Save(domain.Settings) error
}

// JSONStore persists settings in a single JSON file on disk.
type JSONStore struct {
	path string
}

// NewJSONStore creates a JSON-backed settings store.
func NewJSONStore(path string) *JSONStore {
	return &JSONStore{path: path}
}

// Load reads settings from disk over the defaults, so keys missing from
// the file keep their default value.
func (s *JSONStore) Load() (domain.Settings, error) {
	cfg := DefaultSettings()
	if err := readJSON(s.path, &cfg); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return DefaultSettings(), nil
		}
		return domain.Settings{}, err
	}
	return cfg, nil
}

// Save writes settings as indented JSON and creates parent directories.
func (s *JSONStore) Save(cfg domain.Settings) error {
	return writeJSON(s.path, cfg, 0o644)
}

// SecretsStore persists credentials in a separate, owner-only file.
type SecretsStore struct {
	path string
}

// NewSecretsStore creates a JSON-backed credentials store.
func NewSecretsStore(path string) *SecretsStore {
	return &SecretsStore{path: path}
}

// Load reads credentials, returning empty credentials when the file is missing.
func (s *SecretsStore) Load() (domain.Secrets, error) {
	var secrets domain.Secrets
	if err := readJSON(s.path, &secrets); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return domain.Secrets{}, nil
		}
		return domain.Secrets{}, err
	}
	return secrets, nil
}

// Save writes credentials with 0600 permissions.
func (s *SecretsStore) Save(secrets domain.Secrets) error {
	return writeJSON(s.path, secrets, 0o600)
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

func writeJSON(path string, v any, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, perm)
}
