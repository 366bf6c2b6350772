// Package settings persists platform credentials and the default platform
// in a YAML file under the milestoner home directory.
package settings

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/arturoeanton/milestoner/internal/port"
)

// DefaultPlatform is used when the file names none.
const DefaultPlatform = "bluesky"

// Document is the on-disk layout.
type Document struct {
	Defaults  Defaults                     `yaml:"defaults"`
	Platforms map[string]map[string]string `yaml:"platforms,omitempty"`
}

// Defaults holds user-level defaults.
type Defaults struct {
	Platform string `yaml:"platform,omitempty"`
}

// FileStore implements port.ConfigStore on a YAML file. The file is read
// once at open and rewritten in full on every change.
type FileStore struct {
	path string

	mu  sync.RWMutex
	doc Document
}

var _ port.ConfigStore = (*FileStore)(nil)

// Open loads path, treating a missing file as empty settings.
func Open(path string) (*FileStore, error) {
	s := &FileStore{path: path, doc: Document{Platforms: map[string]map[string]string{}}}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading settings %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &s.doc); err != nil {
		return nil, fmt.Errorf("parsing settings %s: %w", path, err)
	}
	if s.doc.Platforms == nil {
		s.doc.Platforms = map[string]map[string]string{}
	}
	return s, nil
}

// Path returns the backing file.
func (s *FileStore) Path() string { return s.path }

// DefaultPlatform returns the configured default, falling back to bluesky.
func (s *FileStore) DefaultPlatform() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.doc.Defaults.Platform != "" {
		return s.doc.Defaults.Platform, true
	}
	return DefaultPlatform, true
}

// Credentials returns a copy of the stored credentials for platform.
func (s *FileStore) Credentials(platform string) (map[string]string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	creds, ok := s.doc.Platforms[platform]
	if !ok {
		return nil, false
	}
	out := make(map[string]string, len(creds))
	for k, v := range creds {
		out[k] = v
	}
	return out, true
}

// ConfiguredPlatforms lists platforms with stored credentials.
func (s *FileStore) ConfiguredPlatforms() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.doc.Platforms))
	for name := range s.doc.Platforms {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SaveCredentials replaces the credentials for platform and writes the file.
func (s *FileStore) SaveCredentials(platform string, credentials map[string]string, setDefault bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := Document{Defaults: s.doc.Defaults, Platforms: make(map[string]map[string]string, len(s.doc.Platforms)+1)}
	for k, v := range s.doc.Platforms {
		next.Platforms[k] = v
	}
	creds := make(map[string]string, len(credentials))
	for k, v := range credentials {
		creds[k] = v
	}
	next.Platforms[platform] = creds
	if setDefault || next.Defaults.Platform == "" {
		next.Defaults.Platform = platform
	}

	if err := s.write(next); err != nil {
		return err
	}
	s.doc = next
	return nil
}

// write replaces the file atomically with mode 0600.
func (s *FileStore) write(doc Document) error {
	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encoding settings: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return fmt.Errorf("creating settings directory: %w", err)
	}

	temporaryPath := s.path + ".tmp"
	file, err := os.OpenFile(temporaryPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("creating temporary settings file: %w", err)
	}
	if _, err := file.Write(data); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("writing temporary settings file: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("syncing temporary settings file: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("closing temporary settings file: %w", err)
	}
	if err := os.Rename(temporaryPath, s.path); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("renaming settings file into place: %w", err)
	}
	return nil
}
