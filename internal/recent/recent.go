// Package recent keeps the list of repositories opened most recently,
// persisted as a small YAML file that may be shared by several processes.
package recent

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

const maxFileBytes = 1 << 20

var ErrEmptyPath = errors.New("repository path is empty")

type document struct {
	Repositories []string `yaml:"repositories"`
}

// Store is safe for concurrent use. A Store with an empty file path keeps
// the list in memory only.
type Store struct {
	file  string
	limit int

	mu    sync.RWMutex
	paths []string

	watch watchState
}

// Open loads the list stored at file. A missing file yields an empty list.
func Open(file string, limit int) (*Store, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("recent: limit must be positive, got %d", limit)
	}
	s := &Store{file: file, limit: limit}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) File() string { return s.file }

// List returns the paths, most recent first.
func (s *Store) List() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.paths)
}

// Add moves repo to the front of the list, dropping the oldest entries past
// the limit, and persists the result.
func (s *Store) Add(repo string) ([]string, error) {
	repo = normalize(repo)
	if repo == "" {
		return nil, ErrEmptyPath
	}
	return s.update(func(paths []string) []string {
		paths = slices.DeleteFunc(paths, func(p string) bool { return p == repo })
		paths = slices.Insert(paths, 0, repo)
		return paths[:min(len(paths), s.limit)]
	})
}

// Remove drops repo from the list. Removing an absent path is not an error.
func (s *Store) Remove(repo string) ([]string, error) {
	repo = normalize(repo)
	if repo == "" {
		return nil, ErrEmptyPath
	}
	return s.update(func(paths []string) []string {
		return slices.DeleteFunc(paths, func(p string) bool { return p == repo })
	})
}

func (s *Store) update(fn func([]string) []string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := fn(slices.Clone(s.paths))
	if slices.Equal(next, s.paths) {
		return slices.Clone(next), nil
	}
	if err := s.persist(next); err != nil {
		return nil, err
	}
	s.paths = next
	return slices.Clone(next), nil
}

// Reload replaces the in-memory list with the file contents.
func (s *Store) Reload() error {
	if s.file == "" {
		return nil
	}
	paths, err := readFile(s.file, s.limit)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.paths = paths
	s.mu.Unlock()
	return nil
}

func readFile(file string, limit int) ([]string, error) {
	raw, err := os.ReadFile(file)
	if errors.Is(err, fs.ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read recent list: %w", err)
	}
	if len(raw) > maxFileBytes {
		return nil, fmt.Errorf("read recent list: %s exceeds %d bytes", file, maxFileBytes)
	}
	var doc document
	if len(bytes.TrimSpace(raw)) > 0 {
		if err := yaml.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("parse recent list %s: %w", file, err)
		}
	}
	paths := make([]string, 0, len(doc.Repositories))
	for _, p := range doc.Repositories {
		p = normalize(p)
		if p == "" || slices.Contains(paths, p) {
			continue
		}
		paths = append(paths, p)
	}
	return paths[:min(len(paths), limit)], nil
}

func (s *Store) persist(paths []string) error {
	if s.file == "" {
		return nil
	}
	raw, err := yaml.Marshal(document{Repositories: paths})
	if err != nil {
		return fmt.Errorf("save recent list: %w", err)
	}
	if err := atomicWrite(s.file, raw); err != nil {
		return fmt.Errorf("save recent list: %w", err)
	}
	slog.Debug("recent list saved", slog.String("file", s.file), slog.Int("count", len(paths)))
	return nil
}

// atomicWrite replaces file through a temporary sibling so readers never
// observe a partial list.
func atomicWrite(file string, data []byte) error {
	dir := filepath.Dir(file)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".recent.yaml.tmp.*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		return errors.Join(err, tmp.Close(), os.Remove(tmpPath))
	}
	if err := tmp.Close(); err != nil {
		return errors.Join(err, os.Remove(tmpPath))
	}
	if err := os.Rename(tmpPath, file); err != nil {
		return errors.Join(err, os.Remove(tmpPath))
	}
	return nil
}

func normalize(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return ""
	}
	return filepath.Clean(p)
}
