// Package settings owns the mutable process settings: currently the
// password accepted for authenticated uploads. It is not consulted by the
// document service.
package settings

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math/big"
	"os"
	"path/filepath"
	"sync"
)

// PasswordLength is the length of generated passwords.
const PasswordLength = 32

const passwordSymbols = "abcdefghijklmnopqrstuvwxyz0123456789"

type fileFormat struct {
	CurlPassword string `json:"curl_password"`
}

// Store holds the settings and persists them to a JSON file. An empty
// path keeps them in memory only.
type Store struct {
	path     string
	mu       sync.RWMutex
	password string
}

// Open loads the settings at path, creating them with a fresh password
// when the file does not exist.
func Open(path string) (*Store, error) {
	s := &Store{path: path}
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			var f fileFormat
			if err := json.Unmarshal(data, &f); err != nil {
				return nil, fmt.Errorf("parse settings %s: %w", path, err)
			}
			if f.CurlPassword != "" {
				s.password = f.CurlPassword
				return s, nil
			}
		case !errors.Is(err, fs.ErrNotExist):
			return nil, fmt.Errorf("read settings %s: %w", path, err)
		}
	}
	if _, err := s.Rotate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Password returns the current upload password.
func (s *Store) Password() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.password
}

// Rotate replaces the password with a new random one and persists it.
func (s *Store) Rotate() (string, error) {
	pass, err := GeneratePassword()
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.save(pass); err != nil {
		return "", err
	}
	s.password = pass
	return pass, nil
}

func (s *Store) save(pass string) error {
	if s.path == "" {
		return nil
	}
	data, err := json.MarshalIndent(fileFormat{CurlPassword: pass}, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create settings directory: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("write settings: %w", err)
	}
	return nil
}

// GeneratePassword returns a random lowercase alphanumeric password of
// PasswordLength characters.
func GeneratePassword() (string, error) {
	out := make([]byte, PasswordLength)
	n := big.NewInt(int64(len(passwordSymbols)))
	for i := range out {
		idx, err := rand.Int(rand.Reader, n)
		if err != nil {
			return "", err
		}
		out[i] = passwordSymbols[idx.Int64()]
	}
	return string(out), nil
}
