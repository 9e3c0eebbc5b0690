package metadata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// JSONStore keeps all records in a single JSON document which is read in full
// on every access and rewritten in full on every mutation.
type JSONStore struct {
	path string
	// mu serializes read-modify-write cycles within this process. Other
	// processes writing the same document still race.
	mu sync.Mutex
}

func NewJSONStore(path string) (*JSONStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("error creating metadata directory: %w", err)
	}
	return &JSONStore{path: path}, nil
}

// Load reads the document. A missing document is an empty list.
func (s *JSONStore) Load() ([]Record, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return []Record{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read metadata: %w", err)
	}
	records := []Record{}
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to decode metadata: %w", err)
	}
	if records == nil {
		// The document was the literal null
		records = []Record{}
	}
	return records, nil
}

// Save replaces the document with records. The new content is written to a
// temporary file next to the document and renamed over it, so readers see
// either the old or the new list.
func (s *JSONStore) Save(records []Record) error {
	if records == nil {
		records = []Record{}
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), "."+filepath.Base(s.path)+"-*")
	if err != nil {
		return fmt.Errorf("failed to create temporary metadata file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op once renamed

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write metadata: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync metadata: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close metadata file: %w", err)
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		return fmt.Errorf("failed to set metadata permissions: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("failed to replace metadata: %w", err)
	}
	return nil
}

func (s *JSONStore) List(_ context.Context) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Load()
}

func (s *JSONStore) Append(_ context.Context, record Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	records, err := s.Load()
	if err != nil {
		return err
	}
	return s.Save(append(records, record))
}

func (s *JSONStore) Remove(_ context.Context, filename string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	records, err := s.Load()
	if err != nil {
		return 0, err
	}
	kept := make([]Record, 0, len(records))
	for _, r := range records {
		if r.Filename != filename {
			kept = append(kept, r)
		}
	}
	removed := len(records) - len(kept)
	if removed == 0 {
		return 0, nil
	}
	if err := s.Save(kept); err != nil {
		return 0, err
	}
	return removed, nil
}
