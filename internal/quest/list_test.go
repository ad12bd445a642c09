package quest

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ShayCichocki/dungeonmaster/pkg/models"
)

// newProject creates a project root with a package.json and returns its
// quests folder.
func newProject(t *testing.T) (root, questsDir string) {
	t.Helper()
	root = t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "package.json"), []byte("{}"), 0644); err != nil {
		t.Fatal(err)
	}
	questsDir, err := QuestsFolder(root)
	if err != nil {
		t.Fatalf("QuestsFolder() error = %v", err)
	}
	return root, questsDir
}

func TestList(t *testing.T) {
	root, dir := newProject(t)
	writeQuestFile(t, dir, "001-add-auth", singleStepQuest)
	writeQuestFile(t, dir, "002-broken", `{"id":`)
	writeQuestFile(t, dir, "notes", `{"id":"ignored","folder":"notes"}`)
	writeQuestFile(t, dir, "003-fix-bug", `{"id":"fix-bug","folder":"003-fix-bug","title":"Fix bug","status":"pending","createdAt":"2024-02-01T09:00:00Z","steps":[]}`)

	items, err := List(filepath.Join(root, "src"))
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("List() returned %d items, want 2: %+v", len(items), items)
	}
	if items[0].ID != "add-auth" || items[0].StepProgress != "0/1" {
		t.Errorf("items[0] = %+v", items[0])
	}
	if items[1].ID != "fix-bug" || items[1].Status != models.QuestStatusPending {
		t.Errorf("items[1] = %+v", items[1])
	}
	if !items[1].CreatedAt.Equal(time.Date(2024, 2, 1, 9, 0, 0, 0, time.UTC)) {
		t.Errorf("createdAt = %v", items[1].CreatedAt)
	}
}

func TestListFolder_Missing(t *testing.T) {
	items, err := ListFolder(filepath.Join(t.TempDir(), "absent"))
	if err != nil {
		t.Fatalf("ListFolder() error = %v", err)
	}
	if len(items) != 0 {
		t.Errorf("ListFolder() = %v, want empty", items)
	}
}

func TestSlugify(t *testing.T) {
	tests := []struct {
		title string
		want  string
	}{
		{"Add Auth", "add-auth"},
		{"  Fix: login bug!! ", "fix-login-bug"},
		{"API v2 -- rollout", "api-v2-rollout"},
		{strings.Repeat("ab ", 30), strings.TrimRight(strings.Repeat("ab-", 17), "-")},
		{"!!!", ""},
	}
	for _, tt := range tests {
		if got := slugify(tt.title); got != tt.want {
			t.Errorf("slugify(%q) = %q, want %q", tt.title, got, tt.want)
		}
	}
}

func TestAdd(t *testing.T) {
	_, dir := newProject(t)
	writeQuestFile(t, dir, "007-older", `{"id":"older","folder":"007-older","title":"Older","status":"complete"}`)

	q, err := Add(dir, "Add Auth", "users need to log in")
	if err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if q.ID != "add-auth" || q.Folder != "008-add-auth" {
		t.Errorf("Add() = id %s folder %s", q.ID, q.Folder)
	}
	if q.Status != models.QuestStatusPending {
		t.Errorf("status = %s, want pending", q.Status)
	}

	loaded, err := Load(FilePath(dir, q.Folder))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.UserRequest != "users need to log in" || loaded.Phases == nil {
		t.Errorf("loaded quest = %+v", loaded)
	}
	if loaded.Phases.Discovery.Status != models.PhaseStatusPending {
		t.Errorf("discovery phase = %s", loaded.Phases.Discovery.Status)
	}
}

func TestAdd_DuplicateTitleGetsUniqueID(t *testing.T) {
	_, dir := newProject(t)
	first, err := Add(dir, "Add auth", "first")
	if err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	second, err := Add(dir, "Add auth", "second")
	if err != nil {
		t.Fatalf("second Add() error = %v", err)
	}
	third, err := Add(dir, "Add auth", "third")
	if err != nil {
		t.Fatalf("third Add() error = %v", err)
	}

	if first.ID != "add-auth" || second.ID != "add-auth-2" || third.ID != "add-auth-3" {
		t.Fatalf("ids = %s, %s, %s", first.ID, second.ID, third.ID)
	}
	for _, q := range []*models.Quest{first, second, third} {
		path, err := FindInFolder(dir, q.ID)
		if err != nil {
			t.Fatalf("FindInFolder(%s) error = %v", q.ID, err)
		}
		loaded, err := Load(path)
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if loaded.Folder != q.Folder || loaded.UserRequest != q.UserRequest {
			t.Errorf("FindInFolder(%s) found %s (%q)", q.ID, loaded.Folder, loaded.UserRequest)
		}
	}
}

func TestFindInFolder_OnlyQuestFolders(t *testing.T) {
	_, dir := newProject(t)
	writeQuestFile(t, dir, "drafts", `{"id":"add-auth","folder":"drafts"}`)
	want := writeQuestFile(t, dir, "002-add-auth", singleStepQuest)

	path, err := FindInFolder(dir, "add-auth")
	if err != nil {
		t.Fatalf("FindInFolder() error = %v", err)
	}
	if path != want {
		t.Errorf("FindInFolder() = %s, want %s", path, want)
	}

	writeQuestFile(t, dir, "notes", `{"id":"loose"}`)
	if _, err := FindInFolder(dir, "loose"); !errors.Is(err, ErrQuestNotFound) {
		t.Errorf("FindInFolder(loose) error = %v, want ErrQuestNotFound", err)
	}
}

func TestList_DoesNotCreateQuestsFolder(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "package.json"), []byte("{}"), 0644); err != nil {
		t.Fatal(err)
	}

	items, err := List(root)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(items) != 0 {
		t.Errorf("List() = %v, want empty", items)
	}
	if _, err := os.Stat(filepath.Join(root, FolderName)); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("quests folder stat error = %v, want not exist", err)
	}
}

func TestModify(t *testing.T) {
	root, dir := newProject(t)
	contextID := "f47ac10b-58cc-4372-a567-0e02b2c3d479"
	writeQuestFile(t, dir, "001-add-auth", `{"id":"add-auth","folder":"001-add-auth","title":"Add auth","status":"pending","createdAt":"2024-01-15T10:00:00Z",`+
		`"contexts":[{"id":"`+contextID+`","name":"Old Name","description":"Old","locator":{"page":"/old"}}],"steps":[]}`)

	err := Modify(root, ModifyInput{
		QuestID: "add-auth",
		Contexts: []models.Context{
			{ID: contextID, Name: "New Name", Description: "New", Locator: map[string]string{"page": "/new"}},
			{ID: "c0ffee00-58cc-4372-a567-0e02b2c3d479", Name: "Admin Page"},
		},
		Steps: []models.DependencyStep{
			{ID: testStepID, Name: "Create API", Status: models.StepStatusPending},
		},
	})
	if err != nil {
		t.Fatalf("Modify() error = %v", err)
	}

	q, err := Load(FilePath(dir, "001-add-auth"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(q.Contexts) != 2 || q.Contexts[0].Name != "New Name" || q.Contexts[0].Locator["page"] != "/new" {
		t.Errorf("contexts = %+v", q.Contexts)
	}
	if len(q.Steps) != 1 || q.Steps[0].ID != testStepID {
		t.Errorf("steps = %+v", q.Steps)
	}
	if q.UpdatedAt == nil {
		t.Error("updatedAt not set")
	}
}

func TestModify_OnlyStampsUpdatedAt(t *testing.T) {
	root, dir := newProject(t)
	writeQuestFile(t, dir, "001-add-auth", singleStepQuest)

	if err := Modify(root, ModifyInput{QuestID: "add-auth"}); err != nil {
		t.Fatalf("Modify() error = %v", err)
	}
	q, err := Load(FilePath(dir, "001-add-auth"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if q.UpdatedAt == nil || len(q.Steps) != 1 {
		t.Errorf("quest = %+v", q)
	}
}

func TestModify_NotFound(t *testing.T) {
	root, _ := newProject(t)

	err := Modify(root, ModifyInput{QuestID: "nonexistent"})
	if !errors.Is(err, ErrQuestNotFound) {
		t.Fatalf("Modify() error = %v, want ErrQuestNotFound", err)
	}
	if err.Error() != "quest not found: nonexistent" {
		t.Errorf("error = %q", err)
	}
}

func TestFindPath(t *testing.T) {
	home := t.TempDir()
	guildA := filepath.Join(home, "guilds", "guild-a", "quests")
	guildB := filepath.Join(home, "guilds", "guild-b", "quests")
	writeQuestFile(t, guildA, "001-other", `{"id":"other"}`)
	want := writeQuestFile(t, guildB, "001-add-auth", singleStepQuest)
	// A guild without a quests folder is skipped.
	if err := os.MkdirAll(filepath.Join(home, "guilds", "guild-c"), 0755); err != nil {
		t.Fatal(err)
	}

	path, guildID, err := FindPath(home, "add-auth")
	if err != nil {
		t.Fatalf("FindPath() error = %v", err)
	}
	if path != want || guildID != "guild-b" {
		t.Errorf("FindPath() = %s, %s", path, guildID)
	}

	if _, _, err := FindPath(home, "missing"); !errors.Is(err, ErrQuestNotFound) {
		t.Errorf("FindPath(missing) error = %v", err)
	}
	if _, _, err := FindPath(t.TempDir(), "add-auth"); !errors.Is(err, ErrQuestNotFound) {
		t.Errorf("FindPath() with no guilds error = %v", err)
	}
}

func TestReadySteps(t *testing.T) {
	a := "11111111-1111-4111-8111-111111111111"
	b := "22222222-2222-4222-8222-222222222222"
	c := "33333333-3333-4333-8333-333333333333"
	q := &models.Quest{Steps: []models.DependencyStep{
		{ID: a, Status: models.StepStatusComplete},
		{ID: b, DependsOn: []string{a}, Status: models.StepStatusPending},
		{ID: c, DependsOn: []string{b}, Status: models.StepStatusPending},
	}}

	ready := ReadySteps(q)
	if len(ready) != 1 || ready[0].ID != b {
		t.Errorf("ReadySteps() = %+v, want [%s]", ready, b)
	}
	if got := IncompleteSteps(q); len(got) != 2 {
		t.Errorf("IncompleteSteps() = %d steps, want 2", len(got))
	}
	if IsStepReady(models.DependencyStep{ID: "x", DependsOn: []string{"ghost"}, Status: models.StepStatusPending}, q.Steps) {
		t.Error("step with unknown dependency reported ready")
	}
	if IsStepReady(q.Steps[0], q.Steps) {
		t.Error("complete step reported ready")
	}
}

func TestVerify(t *testing.T) {
	a := "11111111-1111-4111-8111-111111111111"
	b := "22222222-2222-4222-8222-222222222222"

	tests := []struct {
		name  string
		quest models.Quest
		want  string
	}{
		{
			name: "clean",
			quest: models.Quest{Steps: []models.DependencyStep{
				{ID: a}, {ID: b, DependsOn: []string{a}},
			}},
		},
		{
			name:  "unknown dependency",
			quest: models.Quest{Steps: []models.DependencyStep{{ID: a, DependsOn: []string{"ghost"}}}},
			want:  "unknown step ghost",
		},
		{
			name: "cycle",
			quest: models.Quest{Steps: []models.DependencyStep{
				{ID: a, DependsOn: []string{b}}, {ID: b, DependsOn: []string{a}},
			}},
			want: "circular dependency",
		},
		{
			name:  "duplicate",
			quest: models.Quest{Steps: []models.DependencyStep{{ID: a}, {ID: a}}},
			want:  "duplicate step id",
		},
		{
			name:  "unknown context",
			quest: models.Quest{Observables: []models.Observable{{ID: "obs-1", ContextID: "ctx-9"}}},
			want:  "unknown context ctx-9",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			problems := Verify(&tt.quest)
			if tt.want == "" {
				if len(problems) != 0 {
					t.Errorf("Verify() = %v, want none", problems)
				}
				return
			}
			if !strings.Contains(strings.Join(problems, "\n"), tt.want) {
				t.Errorf("Verify() = %v, want %q", problems, tt.want)
			}
		})
	}
}
