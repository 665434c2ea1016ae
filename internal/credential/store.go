package credential

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Store persists a pool's entries. Every mutating pool operation saves the
// full entry list synchronously before returning.
type Store interface {
	Load() ([]Entry, error)
	Save(entries []Entry) error
}

// FileStore keeps one JSON array file per provider.
type FileStore struct {
	path string
}

func NewFileStore(baseDir, provider string) *FileStore {
	return &FileStore{
		path: filepath.Join(baseDir, provider+"-credentials.json"),
	}
}

// Load reads the entry list. A legacy file holding a single non-array entry
// is wrapped into a one-element list and the file is rewritten in array
// form, so the migration runs at most once.
func (s *FileStore) Load() ([]Entry, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("read credential file: %w", err)
	}

	var entries []Entry
	if err := json.Unmarshal(data, &entries); err == nil {
		return entries, nil
	}

	// Legacy layout: a single bare entry object.
	var legacy Entry
	if err := json.Unmarshal(data, &legacy); err != nil {
		return nil, fmt.Errorf("unmarshal credential file: %w", err)
	}

	if legacy.Status == "" {
		legacy.Status = StatusActive
	}

	entries = []Entry{legacy}
	if err := s.Save(entries); err != nil {
		return nil, fmt.Errorf("rewrite legacy credential file: %w", err)
	}

	return entries, nil
}

func (s *FileStore) Save(entries []Entry) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0750); err != nil {
		return fmt.Errorf("create credential dir: %w", err)
	}

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal credentials: %w", err)
	}

	if err := os.WriteFile(s.path, data, 0600); err != nil {
		return fmt.Errorf("write credential file: %w", err)
	}

	return nil
}

func (s *FileStore) Path() string {
	return s.path
}
