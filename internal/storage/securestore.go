package storage

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// FileSecureStore is the desktop token store: a 0600 JSON file under the data
// directory. Get returns "" with a nil error when the key is absent, matching
// the secure store contract.
type FileSecureStore struct {
	path string

	mu     sync.Mutex
	values map[string]string
}

func NewFileSecureStore(path string) (*FileSecureStore, error) {
	s := &FileSecureStore{path: path, values: map[string]string{}}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return s, nil
		}
		return nil, err
	}
	if err := json.Unmarshal(data, &s.values); err != nil {
		// A corrupt store is unrecoverable; start over rather than fail boot.
		s.values = map[string]string{}
	}
	return s, nil
}

func (s *FileSecureStore) Get(key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.values[key], nil
}

func (s *FileSecureStore) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return s.flush()
}

func (s *FileSecureStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
	return s.flush()
}

func (s *FileSecureStore) flush() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return err
	}
	data, err := json.Marshal(s.values)
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, data, 0o600)
}
