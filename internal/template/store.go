// Package template loads named render documents and builds concrete render
// requests from them by placeholder substitution.
package template

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"forge/internal/models"
	"forge/internal/pkg/errors"
)

// Store loads templates from a directory tree. Template files are
// <name>.json, looked up in the root directory first and then one level of
// subdirectories. Loaded templates are cached for the process lifetime;
// Bust clears the cache.
type Store struct {
	dir string

	mu    sync.Mutex
	cache map[string]*models.Template
}

func NewStore(dir string) *Store {
	return &Store{
		dir:   dir,
		cache: make(map[string]*models.Template),
	}
}

// Load returns the named template, reading it from disk on first use.
func (s *Store) Load(name string) (*models.Template, error) {
	const op = "template.Store.Load"

	s.mu.Lock()
	if t, ok := s.cache[name]; ok {
		s.mu.Unlock()
		return t, nil
	}
	s.mu.Unlock()

	path, err := s.findPath(name)
	if err != nil {
		return nil, err
	}
	if path == "" {
		return nil, errors.NotFound("template", name)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, op, "reading template file")
	}

	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, errors.Validationf("template %q is not valid JSON: %v", name, err)
	}

	t := &models.Template{
		Name:        name,
		Description: describe(path, s.dir, name),
		Document:    doc,
	}

	s.mu.Lock()
	s.cache[name] = t
	s.mu.Unlock()

	return t, nil
}

// List returns every available template name mapped to its description.
func (s *Store) List() (map[string]string, error) {
	const op = "template.Store.List"

	out := make(map[string]string)

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, errors.Wrap(err, op, "reading template directory")
	}

	for _, e := range entries {
		if e.IsDir() {
			subEntries, err := os.ReadDir(filepath.Join(s.dir, e.Name()))
			if err != nil {
				continue
			}
			for _, se := range subEntries {
				if name, ok := templateName(se); ok {
					out[name] = fmt.Sprintf("Render template: %s (in %s/)", name, e.Name())
				}
			}
			continue
		}
		if name, ok := templateName(e); ok {
			out[name] = "Render template: " + name
		}
	}

	return out, nil
}

// Bust drops every cached template so the next Load re-reads from disk.
func (s *Store) Bust() {
	s.mu.Lock()
	s.cache = make(map[string]*models.Template)
	s.mu.Unlock()
}

func (s *Store) findPath(name string) (string, error) {
	const op = "template.Store.findPath"

	if strings.ContainsAny(name, `/\`) || name == "" || name == "." || name == ".." {
		return "", errors.Validationf("invalid template name %q", name)
	}

	rootPath := filepath.Join(s.dir, name+".json")
	if fileExists(rootPath) {
		return rootPath, nil
	}

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return "", errors.Wrap(err, op, "reading template directory")
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		p := filepath.Join(s.dir, e.Name(), name+".json")
		if fileExists(p) {
			return p, nil
		}
	}

	return "", nil
}

func templateName(e os.DirEntry) (string, bool) {
	if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
		return "", false
	}
	return strings.TrimSuffix(e.Name(), ".json"), true
}

func describe(path, root, name string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return "Render template: " + name
	}
	if dir := filepath.Dir(rel); dir != "." {
		return fmt.Sprintf("Render template: %s (in %s/)", name, dir)
	}
	return "Render template: " + name
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
