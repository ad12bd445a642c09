package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"

	"github.com/ShayCichocki/dungeonmaster/internal/orchestrator"
	"github.com/ShayCichocki/dungeonmaster/internal/quest"
	"github.com/ShayCichocki/dungeonmaster/internal/state"
	"github.com/ShayCichocki/dungeonmaster/pkg/models"
)

// sandbox creates a project directory and points config and home at
// temporary directories.
func sandbox(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "package.json"), []byte("{}"), 0644); err != nil {
		t.Fatalf("write package.json: %v", err)
	}
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("DUNGEONMASTER_PATHS_HOME", t.TempDir())

	noColor := color.NoColor
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = noColor })
	return dir
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
		workDirFlag = ""
		questsAddRequest = ""
		statusPurge = 0
	})
	err := rootCmd.Execute()
	return out.String(), err
}

func assertContains(t *testing.T, out string, want ...string) {
	t.Helper()
	for _, w := range want {
		if !strings.Contains(out, w) {
			t.Errorf("output missing %q:\n%s", w, out)
		}
	}
}

func TestQuestsCommands(t *testing.T) {
	dir := sandbox(t)

	out, err := run(t, "quests", "add", "--dir", dir, "Add", "login", "--request", "users log in")
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	assertContains(t, out, "Created quest add-login in 001-add-login")

	out, err = run(t, "quests", "list", "--dir", dir)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	assertContains(t, out, "add-login", "pending", "Add login")

	out, err = run(t, "quests", "show", "--dir", dir, "add-login")
	if err != nil {
		t.Fatalf("show: %v", err)
	}
	assertContains(t, out, "Add login (add-login)", "Request: users log in", "Steps:   0/0 complete")

	out, err = run(t, "quests", "verify", "--dir", dir, "add-login")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	assertContains(t, out, "Quest add-login is valid")
}

func TestQuestsList_Empty(t *testing.T) {
	dir := sandbox(t)
	out, err := run(t, "quests", "list", "--dir", dir)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	assertContains(t, out, "No quests.")
}

func TestQuestsVerify_Problems(t *testing.T) {
	dir := sandbox(t)
	questsDir := filepath.Join(dir, quest.FolderName)
	folder := "001-broken"
	if err := os.MkdirAll(filepath.Join(questsDir, folder), 0755); err != nil {
		t.Fatal(err)
	}
	q := &models.Quest{
		ID:        "broken",
		Folder:    folder,
		Title:     "Broken",
		Status:    models.QuestStatusApproved,
		CreatedAt: time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC),
		Steps: []models.DependencyStep{{
			ID:        "11111111-1111-4111-8111-111111111111",
			Name:      "Schema",
			Status:    models.StepStatusPending,
			DependsOn: []string{"22222222-2222-4222-8222-222222222222"},
		}},
	}
	if err := quest.Save(quest.FilePath(questsDir, folder), q); err != nil {
		t.Fatalf("save: %v", err)
	}

	out, err := run(t, "quests", "verify", "--dir", dir, "broken")
	if err != errQuestInvalid {
		t.Fatalf("err = %v, want errQuestInvalid", err)
	}
	assertContains(t, out, "depends on unknown step 22222222-2222-4222-8222-222222222222")

	out, err = run(t, "quests", "show", "--dir", dir, "broken")
	if err != nil {
		t.Fatalf("show: %v", err)
	}
	assertContains(t, out, "pending", "Schema", "after: 22222222")
}

func TestRegistryCommands(t *testing.T) {
	for _, k := range []registryKind{kindProjects, kindGuilds} {
		t.Run(k.name, func(t *testing.T) {
			dir := sandbox(t)
			target := t.TempDir()

			out, err := run(t, k.name, "add", "--dir", dir, "webapp", target)
			if err != nil {
				t.Fatalf("add: %v", err)
			}
			assertContains(t, out, "Registered "+k.singular+" webapp")

			out, err = run(t, k.name, "list", "--dir", dir)
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			assertContains(t, out, "webapp", target)

			lines := strings.Split(strings.TrimSpace(out), "\n")
			id := strings.Fields(lines[len(lines)-1])[0]

			out, err = run(t, k.name, "show", "--dir", dir, id)
			if err != nil {
				t.Fatalf("show: %v", err)
			}
			assertContains(t, out, "webapp ("+id+")", "Path:    "+target)

			if _, err := run(t, k.name, "remove", "--dir", dir, id); err != nil {
				t.Fatalf("remove: %v", err)
			}
			out, err = run(t, k.name, "list", "--dir", dir)
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			assertContains(t, out, "No "+k.name+" registered")
		})
	}
}

func TestStatusCommand(t *testing.T) {
	dir := sandbox(t)
	db, err := state.OpenProject(dir)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	started := time.Now().Add(-90 * time.Second)
	live := &state.Process{ID: "proc-live", QuestID: "add-login", QuestPath: "/q.json", Phase: "codeweaver", OwnerPID: os.Getpid(), StartedAt: started}
	dead := &state.Process{ID: "proc-dead", QuestID: "fix-bug", QuestPath: "/r.json", Phase: "ward", OwnerPID: 0, StartedAt: started.Add(-time.Hour)}
	for _, p := range []*state.Process{live, dead} {
		if err := db.CreateProcess(p); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	attempt := &state.Attempt{ProcessID: "proc-live", StepID: "11111111-1111-4111-8111-111111111111", Role: "codeweaver", SlotIndex: 1, SessionID: "sess-abc", StartedAt: started}
	if err := db.RecordAttemptStart(attempt); err != nil {
		t.Fatalf("attempt: %v", err)
	}
	db.Close()

	out, err := run(t, "status", "--dir", dir)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	assertContains(t, out, "proc-live", "running", "proc-dead", "interrupted", "owner process 0 exited")

	out, err = run(t, "status", "--dir", dir, "proc-live")
	if err != nil {
		t.Fatalf("status proc-live: %v", err)
	}
	assertContains(t, out, "Process: proc-live", "Phase:   codeweaver", "Attempts (1):", "[slot 1] codeweaver", "step 11111111", "running", "session sess-abc")

	if _, err := run(t, "status", "--dir", dir, "missing"); err == nil || !strings.Contains(err.Error(), "not found") {
		t.Errorf("err = %v, want not found", err)
	}
}

func TestStatus_OutsideProject(t *testing.T) {
	sandbox(t)
	_, err := run(t, "status", "--dir", t.TempDir())
	var notFound *quest.ProjectRootNotFoundError
	if err == nil || !strings.Contains(err.Error(), "project root not found") {
		t.Errorf("err = %v, want %T", err, notFound)
	}
}

func TestVersionCommand(t *testing.T) {
	out, err := run(t, "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	assertContains(t, out, "dungeonmaster ")
}

func TestPrintEvent(t *testing.T) {
	noColor := color.NoColor
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = noColor })

	textLine := `{"type":"assistant","message":{"content":[{"type":"text","text":"Writing schema"}]}}`
	tests := []struct {
		name    string
		event   orchestrator.Event
		verbose bool
		want    string
	}{
		{"phase", orchestrator.Event{Type: orchestrator.EventPhaseChanged, Phase: orchestrator.PhaseWard}, false, "▸ ward\n"},
		{"slot", orchestrator.Event{Type: orchestrator.EventSlotAcquired, SlotIndex: 2, Role: "codeweaver", StepID: "11111111-aaaa"}, false, "  [slot 2] codeweaver started step 11111111\n"},
		{"step", orchestrator.Event{Type: orchestrator.EventStepUpdated, StepID: "11111111-aaaa", StepStatus: models.StepStatusComplete}, false, "  step 11111111 → complete\n"},
		{"agent quiet", orchestrator.Event{Type: orchestrator.EventAgentLine, Line: textLine}, false, ""},
		{"agent verbose", orchestrator.Event{Type: orchestrator.EventAgentLine, SlotIndex: 0, Line: textLine}, true, "  [slot 0] Writing schema\n"},
		{"agent system", orchestrator.Event{Type: orchestrator.EventAgentLine, Line: `{"type":"system","subtype":"init"}`}, true, ""},
		{"completed", orchestrator.Event{Type: orchestrator.EventProcessCompleted, QuestID: "add-login"}, false, "✓ Quest add-login complete\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var b bytes.Buffer
			printEvent(&b, tt.event, tt.verbose)
			if b.String() != tt.want {
				t.Errorf("got %q, want %q", b.String(), tt.want)
			}
		})
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{45 * time.Second, "45s"},
		{90 * time.Second, "1m 30s"},
		{2*time.Hour + 5*time.Minute, "2h 5m"},
		{50 * time.Hour, "2d 2h"},
	}
	for _, tt := range tests {
		if got := formatDuration(tt.d); got != tt.want {
			t.Errorf("formatDuration(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

func TestRootRequiresTerminal(t *testing.T) {
	if isTerminal() {
		t.Skip("stdout is a terminal")
	}
	if _, err := run(t); err != errNotTerminal {
		t.Errorf("err = %v, want errNotTerminal", err)
	}
}
