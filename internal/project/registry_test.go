package project

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s := NewStore(filepath.Join(t.TempDir(), ".dungeonmaster"))
	s.now = func() time.Time { return time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC) }
	return s
}

func strPtr(s string) *string { return &s }

func TestList_Empty(t *testing.T) {
	s := newTestStore(t)
	items, err := s.Projects().List()
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(items) != 0 {
		t.Errorf("List() = %v, want empty", items)
	}
}

func TestList_ValidityAndQuestCount(t *testing.T) {
	s := newTestStore(t)
	projects := s.Projects()

	appDir := t.TempDir()
	app, err := projects.Add("My App", appDir)
	if err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	gone, err := projects.Add("Gone", filepath.Join(t.TempDir(), "deleted"))
	if err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	questsDir := projects.QuestsDir(app.ID)
	for _, name := range []string{"001-a", "002-b"} {
		if err := os.MkdirAll(filepath.Join(questsDir, name), 0755); err != nil {
			t.Fatal(err)
		}
	}
	// Plain files are not quests.
	if err := os.WriteFile(filepath.Join(questsDir, "notes.txt"), nil, 0644); err != nil {
		t.Fatal(err)
	}

	items, err := projects.List()
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("List() returned %d items", len(items))
	}
	if items[0].ID != app.ID || !items[0].Valid || items[0].QuestCount != 2 {
		t.Errorf("items[0] = %+v", items[0])
	}
	if items[1].ID != gone.ID || items[1].Valid || items[1].QuestCount != 0 {
		t.Errorf("items[1] = %+v", items[1])
	}
}

func TestAdd_DuplicatePath(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.Projects().Add("one", "/home/user/app"); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	_, err := s.Projects().Add("two", "/home/user/app")
	if !errors.Is(err, ErrDuplicatePath) {
		t.Fatalf("Add() error = %v, want ErrDuplicatePath", err)
	}
	if !strings.Contains(err.Error(), "a project with path /home/user/app already exists") {
		t.Errorf("error = %q", err)
	}
}

func TestGet(t *testing.T) {
	s := newTestStore(t)
	p, err := s.Projects().Add("My App", "/home/user/app")
	if err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	got, err := s.Projects().Get(p.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.ID != p.ID || got.Name != p.Name || got.Path != p.Path || !got.CreatedAt.Equal(p.CreatedAt) {
		t.Errorf("Get() = %+v, want %+v", got, p)
	}

	_, err = s.Projects().Get("aaaaaaaa-bbbb-cccc-dddd-eeeeeeeeeeee")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get() error = %v, want ErrNotFound", err)
	}
	if err.Error() != "project not found: aaaaaaaa-bbbb-cccc-dddd-eeeeeeeeeeee" {
		t.Errorf("error = %q", err)
	}
}

func TestUpdate(t *testing.T) {
	tests := []struct {
		name     string
		newName  *string
		newPath  *string
		wantName string
		wantPath string
		wantErr  error
	}{
		{name: "rename", newName: strPtr("Renamed"), wantName: "Renamed", wantPath: "/home/user/second"},
		{name: "move", newPath: strPtr("/home/user/moved"), wantName: "Second", wantPath: "/home/user/moved"},
		{name: "both", newName: strPtr("Both"), newPath: strPtr("/home/user/both"), wantName: "Both", wantPath: "/home/user/both"},
		{name: "own path", newPath: strPtr("/home/user/second"), wantName: "Second", wantPath: "/home/user/second"},
		{name: "taken path", newPath: strPtr("/home/user/taken-path"), wantErr: ErrDuplicatePath},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestStore(t)
			first, _ := s.Projects().Add("First", "/home/user/taken-path")
			second, _ := s.Projects().Add("Second", "/home/user/second")

			got, err := s.Projects().Update(second.ID, tt.newName, tt.newPath)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Update() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Update() error = %v", err)
			}
			if got.Name != tt.wantName || got.Path != tt.wantPath || got.ID != second.ID {
				t.Errorf("Update() = %+v", got)
			}

			untouched, _ := s.Projects().Get(first.ID)
			if untouched.Name != "First" || untouched.Path != "/home/user/taken-path" {
				t.Errorf("other project changed: %+v", untouched)
			}
		})
	}
}

func TestUpdate_NotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Guilds().Update("aaaaaaaa-bbbb-cccc-dddd-eeeeeeeeeeee", strPtr("x"), nil)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("Update() error = %v", err)
	}
	if err.Error() != "guild not found: aaaaaaaa-bbbb-cccc-dddd-eeeeeeeeeeee" {
		t.Errorf("error = %q", err)
	}
}

func TestRemove(t *testing.T) {
	s := newTestStore(t)
	p, _ := s.Projects().Add("A", "/a")
	if err := s.Projects().Remove(p.ID); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if _, err := s.Projects().Get(p.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() after Remove error = %v", err)
	}
	if err := s.Projects().Remove(p.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Remove() error = %v", err)
	}
}

func TestKindsShareFile(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.Projects().Add("P", "/p"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Guilds().Add("G", "/p"); err != nil {
		t.Fatalf("guild with a project's path should be allowed: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(s.Home(), ConfigFileName))
	if err != nil {
		t.Fatal(err)
	}
	var doc map[string][]map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("config is not valid JSON: %v", err)
	}
	if len(doc["projects"]) != 1 || len(doc["guilds"]) != 1 {
		t.Errorf("config = %s", data)
	}
}

func TestUnknownKeysPreserved(t *testing.T) {
	s := newTestStore(t)
	if err := os.MkdirAll(s.Home(), 0755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(s.Home(), ConfigFileName)
	if err := os.WriteFile(path, []byte(`{"theme":"dark","projects":[]}`), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Projects().Add("P", "/p"); err != nil {
		t.Fatal(err)
	}
	data, _ := os.ReadFile(path)
	if !strings.Contains(string(data), `"theme": "dark"`) {
		t.Errorf("unknown key dropped: %s", data)
	}
}
