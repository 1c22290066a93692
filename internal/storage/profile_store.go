package storage

import (
	"errors"
	"fmt"
	"os"
)

// ProfileStore reads and writes the user profile document (USER.md).
type ProfileStore struct {
	path string
}

// NewProfileStore returns a store for the profile document at path.
func NewProfileStore(path string) *ProfileStore {
	return &ProfileStore{path: path}
}

// Read returns the profile and whether it exists.
func (s *ProfileStore) Read() (string, bool, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("storage: read profile: %w", err)
	}
	return string(data), true, nil
}

// Write replaces the profile document.
func (s *ProfileStore) Write(content string) error {
	return writeFileAtomic(s.path, []byte(content))
}
