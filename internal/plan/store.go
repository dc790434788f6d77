package plan

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/driftworks/conductor/internal/issue"
)

// DefaultPath is the plan file location relative to the project root.
const DefaultPath = "conductor-plan.json"

// Store reads and writes the plan document. Writes go through a temp file
// and rename so a crash mid-write never leaves a truncated plan.
type Store struct {
	path string
}

// NewStore creates a Store for the plan file at path.
func NewStore(path string) *Store {
	if path == "" {
		path = DefaultPath
	}
	return &Store{path: path}
}

// Path returns the plan file location.
func (s *Store) Path() string {
	return s.path
}

// Init writes a fresh plan document. It refuses to overwrite an existing
// plan.
func (s *Store) Init(doc *Document) error {
	if _, err := os.Stat(s.path); err == nil {
		return fmt.Errorf("plan already exists at %s", s.path)
	}
	now := time.Now().UTC()
	doc.CreatedAt = now
	doc.UpdatedAt = now
	if err := doc.Validate(); err != nil {
		return err
	}
	return s.write(doc)
}

// Load reads and validates the plan document.
func (s *Store) Load() (*Document, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("no plan at %s (run `conductor plan init` first)", s.path)
		}
		return nil, fmt.Errorf("read plan: %w", err)
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse plan %s: %w", s.path, err)
	}
	if err := doc.Validate(); err != nil {
		return nil, fmt.Errorf("plan %s: %w", s.path, err)
	}
	return &doc, nil
}

// Update performs a read-modify-write of the plan document.
func (s *Store) Update(fn func(*Document) error) error {
	doc, err := s.Load()
	if err != nil {
		return err
	}
	if err := fn(doc); err != nil {
		return err
	}
	doc.UpdatedAt = time.Now().UTC()
	return s.write(doc)
}

// UpdateStatus sets one issue's status in the plan.
func (s *Store) UpdateStatus(id int, status issue.Status) error {
	return s.Update(func(doc *Document) error {
		rec, err := doc.Find(id)
		if err != nil {
			return err
		}
		rec.Status = status
		return nil
	})
}

// write marshals the document and replaces the plan file atomically.
func (s *Store) write(doc *Document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal plan: %w", err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".plan-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		if tmpName != "" {
			os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("rename %s -> %s: %w", tmpName, s.path, err)
	}
	tmpName = "" // prevent deferred removal
	return nil
}
