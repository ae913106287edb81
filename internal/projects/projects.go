package projects

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

var (
	ErrNotFound = errors.New("project not found")
	ErrExists   = errors.New("project already exists")
)

// Project is a directory under the projects root that the agent builds in.
type Project struct {
	Name     string    `json:"name"`
	Path     string    `json:"path"`
	Modified time.Time `json:"modified"`
}

// Manager lists and scaffolds projects under Root.
type Manager struct {
	Root string
	now  func() time.Time
}

func NewManager(root string) (*Manager, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, errors.New("projects root is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	return &Manager{Root: filepath.Clean(abs), now: time.Now}, nil
}

// List returns the visible project directories, most recently modified first.
// A missing root holds no projects.
func (m *Manager) List() ([]Project, error) {
	entries, err := os.ReadDir(m.Root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	out := make([]Project, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		out = append(out, Project{Name: entry.Name(), Path: filepath.Join(m.Root, entry.Name()), Modified: info.ModTime()})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Modified.Equal(out[j].Modified) {
			return out[i].Name < out[j].Name
		}
		return out[i].Modified.After(out[j].Modified)
	})
	return out, nil
}

func (m *Manager) Get(name string) (Project, error) {
	path, err := m.path(name)
	if err != nil {
		return Project{}, err
	}
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Project{}, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return Project{}, err
	}
	if !info.IsDir() {
		return Project{}, fmt.Errorf("%w: %s is not a directory", ErrNotFound, name)
	}
	return Project{Name: filepath.Base(path), Path: path, Modified: info.ModTime()}, nil
}

// Create scaffolds a project: src/, assets/ and a README naming it.
func (m *Manager) Create(name string) (Project, error) {
	path, err := m.path(name)
	if err != nil {
		return Project{}, err
	}
	if _, err := os.Stat(path); err == nil {
		return Project{}, fmt.Errorf("%w: %s", ErrExists, path)
	} else if !errors.Is(err, os.ErrNotExist) {
		return Project{}, err
	}
	for _, dir := range []string{path, filepath.Join(path, "src"), filepath.Join(path, "assets")} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return Project{}, err
		}
	}
	readme := fmt.Sprintf("# %s\n\nCreated: %s\n", filepath.Base(path), m.now().Format("2006-01-02 15:04:05"))
	if err := os.WriteFile(filepath.Join(path, "README.md"), []byte(readme), 0o644); err != nil {
		return Project{}, err
	}
	return m.Get(name)
}

func (m *Manager) Delete(name string) error {
	project, err := m.Get(name)
	if err != nil {
		return err
	}
	return os.RemoveAll(project.Path)
}

// Name returns the project name of directory when it sits directly under
// the root.
func (m *Manager) Name(directory string) (string, bool) {
	directory = strings.TrimSpace(directory)
	if directory == "" {
		return "", false
	}
	if filepath.Dir(filepath.Clean(directory)) != m.Root {
		return "", false
	}
	return filepath.Base(directory), true
}

// path resolves a project name under the root. Names are single path
// elements; anything that would escape the root is rejected.
func (m *Manager) path(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("project name is required")
	}
	if name == "." || name == ".." || strings.HasPrefix(name, ".") || strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("invalid project name %q", name)
	}
	return filepath.Join(m.Root, name), nil
}
