// Package project manages the registry of projects and guilds kept in the
// dungeonmaster home config file.
package project

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ShayCichocki/dungeonmaster/pkg/models"
)

var (
	// ErrNotFound is returned for an unknown project or guild id.
	ErrNotFound = errors.New("not found")
	// ErrDuplicatePath is returned when another entry already owns a path.
	ErrDuplicatePath = errors.New("duplicate path")
)

// Kind selects which registry list an operation works on.
type Kind string

const (
	KindProjects Kind = "projects"
	KindGuilds   Kind = "guilds"
)

// singular returns the entry name used in error messages.
func (k Kind) singular() string {
	return strings.TrimSuffix(string(k), "s")
}

// ConfigFileName is the registry file inside the home directory.
const ConfigFileName = "config.json"

// Store is the on-disk registry at <home>/config.json. Projects and guilds
// share the file; keys other than theirs are preserved on write.
type Store struct {
	home string
	mu   sync.Mutex
	now  func() time.Time
}

// NewStore returns a store rooted at home, usually ~/.dungeonmaster.
func NewStore(home string) *Store {
	return &Store{home: home, now: time.Now}
}

// Home returns the directory the store is rooted at.
func (s *Store) Home() string {
	return s.home
}

// Projects returns the project registry.
func (s *Store) Projects() *Registry {
	return &Registry{store: s, kind: KindProjects}
}

// Guilds returns the guild registry.
func (s *Store) Guilds() *Registry {
	return &Registry{store: s, kind: KindGuilds}
}

func (s *Store) path() string {
	return filepath.Join(s.home, ConfigFileName)
}

// read returns the raw config document and the entries of kind. A missing
// file reads as empty.
func (s *Store) read(kind Kind) (map[string]json.RawMessage, []models.Project, error) {
	doc := map[string]json.RawMessage{}
	data, err := os.ReadFile(s.path())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return doc, []models.Project{}, nil
		}
		return nil, nil, fmt.Errorf("read config %s: %w", s.path(), err)
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, nil, fmt.Errorf("parse config %s: %w", s.path(), err)
	}

	entries := []models.Project{}
	if raw, ok := doc[string(kind)]; ok && string(raw) != "null" {
		if err := json.Unmarshal(raw, &entries); err != nil {
			return nil, nil, fmt.Errorf("parse config %s: %s: %w", s.path(), kind, err)
		}
	}
	return doc, entries, nil
}

func (s *Store) write(doc map[string]json.RawMessage, kind Kind, entries []models.Project) error {
	raw, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("encode %s: %w", kind, err)
	}
	doc[string(kind)] = raw

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.MkdirAll(s.home, 0755); err != nil {
		return fmt.Errorf("create home %s: %w", s.home, err)
	}

	tmp, err := os.CreateTemp(s.home, ".config-*.json")
	if err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("write config: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path()); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Registry exposes the entries of one kind.
type Registry struct {
	store *Store
	kind  Kind
}

// Kind returns the list the registry operates on.
func (r *Registry) Kind() Kind {
	return r.kind
}

// QuestsDir returns the directory holding the quests of entry id.
func (r *Registry) QuestsDir(id string) string {
	return filepath.Join(r.store.home, string(r.kind), id, "quests")
}

func (r *Registry) notFound(id string) error {
	return fmt.Errorf("%s %w: %s", r.kind.singular(), ErrNotFound, id)
}

func (r *Registry) duplicate(path string) error {
	return fmt.Errorf("%w: a %s with path %s already exists", ErrDuplicatePath, r.kind.singular(), path)
}

// List returns every entry with its accessibility and quest count.
func (r *Registry) List() ([]models.ProjectListItem, error) {
	r.store.mu.Lock()
	_, entries, err := r.store.read(r.kind)
	r.store.mu.Unlock()
	if err != nil {
		return nil, err
	}

	items := make([]models.ProjectListItem, 0, len(entries))
	for _, p := range entries {
		item := models.ProjectListItem{Project: p}
		if info, err := os.Stat(p.Path); err == nil && info.IsDir() {
			item.Valid = true
		}
		item.QuestCount = countDirs(r.QuestsDir(p.ID))
		items = append(items, item)
	}
	return items, nil
}

func countDirs(dir string) int {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0
	}
	n := 0
	for _, e := range entries {
		if e.IsDir() {
			n++
		}
	}
	return n
}

// Get returns the entry with id.
func (r *Registry) Get(id string) (models.Project, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	_, entries, err := r.store.read(r.kind)
	if err != nil {
		return models.Project{}, err
	}
	for _, p := range entries {
		if p.ID == id {
			return p, nil
		}
	}
	return models.Project{}, r.notFound(id)
}

// Add registers a new entry for path under a fresh uuid.
func (r *Registry) Add(name, path string) (models.Project, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	doc, entries, err := r.store.read(r.kind)
	if err != nil {
		return models.Project{}, err
	}
	for _, p := range entries {
		if p.Path == path {
			return models.Project{}, r.duplicate(path)
		}
	}

	p := models.Project{
		ID:        uuid.NewString(),
		Name:      name,
		Path:      path,
		CreatedAt: r.store.now().UTC(),
	}
	if err := r.store.write(doc, r.kind, append(entries, p)); err != nil {
		return models.Project{}, err
	}
	return p, nil
}

// Update renames or moves an entry. Nil arguments leave the field as is.
func (r *Registry) Update(id string, name, path *string) (models.Project, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	doc, entries, err := r.store.read(r.kind)
	if err != nil {
		return models.Project{}, err
	}

	idx := -1
	for i, p := range entries {
		if p.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return models.Project{}, r.notFound(id)
	}
	if path != nil {
		for i, p := range entries {
			if i != idx && p.Path == *path {
				return models.Project{}, r.duplicate(*path)
			}
		}
		entries[idx].Path = *path
	}
	if name != nil {
		entries[idx].Name = *name
	}

	if err := r.store.write(doc, r.kind, entries); err != nil {
		return models.Project{}, err
	}
	return entries[idx], nil
}

// Remove deletes the entry with id. Its quests folder is left on disk.
func (r *Registry) Remove(id string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	doc, entries, err := r.store.read(r.kind)
	if err != nil {
		return err
	}
	kept := entries[:0]
	found := false
	for _, p := range entries {
		if p.ID == id {
			found = true
			continue
		}
		kept = append(kept, p)
	}
	if !found {
		return r.notFound(id)
	}
	return r.store.write(doc, r.kind, kept)
}
