package quest

import (
	"bytes"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ShayCichocki/dungeonmaster/pkg/models"
)

const testStepID = "a1b2c3d4-e5f6-4a7b-8c9d-0e1f2a3b4c5d"

// writeQuestFile writes raw quest JSON into dir/folder/quest.json.
func writeQuestFile(t *testing.T, dir, folder, content string) string {
	t.Helper()
	if err := os.MkdirAll(filepath.Join(dir, folder), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	path := FilePath(dir, folder)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write quest: %v", err)
	}
	return path
}

const singleStepQuest = `{"id":"add-auth","folder":"001-add-auth","title":"Add auth","status":"in_progress","createdAt":"2024-01-15T10:00:00.000Z","steps":[{"id":"` + testStepID + `","name":"Create API","description":"Create authentication API","dependsOn":[],"filesToCreate":["src/api.ts"],"filesToModify":[],"status":"pending"}]}`

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := writeQuestFile(t, dir, "001-add-auth", singleStepQuest)

	q, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if q.ID != "add-auth" || len(q.Steps) != 1 {
		t.Errorf("Load() = %+v", q)
	}
	if q.Steps[0].Status != models.StepStatusPending {
		t.Errorf("step status = %s, want pending", q.Steps[0].Status)
	}
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"invalid json", `{not json`, "failed to parse quest file"},
		{"missing id", `{"folder":"001-x","title":"x","status":"pending"}`, "invalid quest"},
		{"bad step id", `{"id":"x","folder":"001-x","title":"x","status":"pending","steps":[{"id":"step-1","status":"pending"}]}`, "not a uuid"},
	}
	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeQuestFile(t, dir, string(rune('a'+i))+"-folder", tt.content)
			_, err := Load(path)
			if err == nil {
				t.Fatal("Load() expected error")
			}
			if !strings.Contains(err.Error(), "failed to load quest from "+path) {
				t.Errorf("error %q does not name the file", err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not contain %q", err, tt.want)
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope", FileName))
	if !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("Load() error = %v, want fs.ErrNotExist in chain", err)
	}
}

func TestUpdateStep(t *testing.T) {
	dir := t.TempDir()
	path := writeQuestFile(t, dir, "001-add-auth", singleStepQuest)

	status := models.StepStatusInProgress
	if err := UpdateStep(path, testStepID, StepUpdate{Status: &status}); err != nil {
		t.Fatalf("UpdateStep() error = %v", err)
	}

	q, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	step := q.Step(testStepID)
	if step == nil {
		t.Fatal("step missing after update")
	}
	if step.Status != models.StepStatusInProgress {
		t.Errorf("status = %s, want in_progress", step.Status)
	}
	if step.Name != "Create API" || step.Description != "Create authentication API" {
		t.Errorf("other fields changed: %+v", step)
	}
	if len(step.FilesToCreate) != 1 || step.FilesToCreate[0] != "src/api.ts" {
		t.Errorf("filesToCreate = %v", step.FilesToCreate)
	}
	if q.Title != "Add auth" {
		t.Errorf("quest title = %q", q.Title)
	}
}

func TestUpdateStep_Timestamps(t *testing.T) {
	dir := t.TempDir()
	path := writeQuestFile(t, dir, "001-add-auth", singleStepQuest)

	started := time.Date(2024, 1, 15, 11, 0, 0, 0, time.UTC)
	reason := "waiting on lawbringer"
	err := UpdateStep(path, testStepID, StepUpdate{StartedAt: &started, BlockingReason: &reason})
	if err != nil {
		t.Fatalf("UpdateStep() error = %v", err)
	}

	q, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	step := q.Step(testStepID)
	if step.StartedAt == nil || !step.StartedAt.Equal(started) {
		t.Errorf("startedAt = %v, want %v", step.StartedAt, started)
	}
	if step.BlockingReason != reason {
		t.Errorf("blockingReason = %q", step.BlockingReason)
	}
	if step.Status != models.StepStatusPending {
		t.Errorf("status changed to %s", step.Status)
	}
}

func TestUpdateStep_NotFound(t *testing.T) {
	dir := t.TempDir()
	path := writeQuestFile(t, dir, "001-add-auth", singleStepQuest)
	before, _ := os.ReadFile(path)

	status := models.StepStatusComplete
	missing := "00000000-0000-4000-8000-000000000000"
	err := UpdateStep(path, missing, StepUpdate{Status: &status})
	if !errors.Is(err, ErrStepNotFound) {
		t.Fatalf("UpdateStep() error = %v, want ErrStepNotFound", err)
	}
	if want := "step with id " + missing + " not found"; err.Error() != want {
		t.Errorf("error = %q, want %q", err, want)
	}

	after, _ := os.ReadFile(path)
	if !bytes.Equal(before, after) {
		t.Error("file was rewritten for an unknown step")
	}
}

func TestUpdateStep_InvalidStatusRejected(t *testing.T) {
	dir := t.TempDir()
	path := writeQuestFile(t, dir, "001-add-auth", singleStepQuest)
	before, _ := os.ReadFile(path)

	status := models.StepStatus("exploded")
	if err := UpdateStep(path, testStepID, StepUpdate{Status: &status}); err == nil {
		t.Fatal("UpdateStep() with invalid status should fail")
	}
	after, _ := os.ReadFile(path)
	if !bytes.Equal(before, after) {
		t.Error("file was rewritten with an invalid status")
	}
}

func TestUpdateStep_Concurrent(t *testing.T) {
	dir := t.TempDir()
	second := "b2c3d4e5-f6a7-4b8c-9d0e-1f2a3b4c5d6e"
	content := `{"id":"q","folder":"001-q","title":"Q","status":"in_progress","createdAt":"2024-01-15T10:00:00Z","steps":[` +
		`{"id":"` + testStepID + `","name":"one","status":"pending"},` +
		`{"id":"` + second + `","name":"two","status":"pending"}]}`
	path := writeQuestFile(t, dir, "001-q", content)

	var wg sync.WaitGroup
	for _, id := range []string{testStepID, second} {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			status := models.StepStatusComplete
			if err := UpdateStep(path, id, StepUpdate{Status: &status}); err != nil {
				t.Errorf("UpdateStep(%s) error = %v", id, err)
			}
		}(id)
	}
	wg.Wait()

	q, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if done, total := q.StepProgress(); done != 2 || total != 2 {
		t.Errorf("progress = %d/%d, want 2/2", done, total)
	}
}

func TestSetStatusAndAppendLog(t *testing.T) {
	dir := t.TempDir()
	path := writeQuestFile(t, dir, "001-add-auth", singleStepQuest)

	if err := SetStatus(path, models.QuestStatusComplete); err != nil {
		t.Fatalf("SetStatus() error = %v", err)
	}
	if err := AppendLog(path, models.ExecutionLogEntry{Report: "ward passed", AgentType: "ward"}); err != nil {
		t.Fatalf("AppendLog() error = %v", err)
	}
	if err := SetStatus(path, "sideways"); err == nil {
		t.Error("SetStatus() with invalid status should fail")
	}

	q, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if q.Status != models.QuestStatusComplete || q.CompletedAt == nil || q.UpdatedAt == nil {
		t.Errorf("status fields = %s %v %v", q.Status, q.CompletedAt, q.UpdatedAt)
	}
	if len(q.ExecutionLog) != 1 || q.ExecutionLog[0].Timestamp.IsZero() {
		t.Errorf("executionLog = %+v", q.ExecutionLog)
	}
}

func TestSetPhase(t *testing.T) {
	path := writeQuestFile(t, t.TempDir(), "001-add-auth", singleStepQuest)

	if err := SetPhase(path, PhaseTesting, models.PhaseStatusInProgress); err != nil {
		t.Fatalf("SetPhase() error = %v", err)
	}
	if err := SetPhase(path, PhaseTesting, models.PhaseStatusComplete); err != nil {
		t.Fatalf("SetPhase() error = %v", err)
	}
	if err := SetPhase(path, "celebration", models.PhaseStatusComplete); err == nil {
		t.Error("SetPhase() with unknown phase should fail")
	}

	q, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	ph := q.Phases.Testing
	if ph.Status != models.PhaseStatusComplete || ph.StartedAt == nil || ph.CompletedAt == nil {
		t.Errorf("testing phase = %+v", ph)
	}
	if q.Phases.Review.Status != "" {
		t.Errorf("review phase touched: %+v", q.Phases.Review)
	}
}

func TestFindProjectRoot(t *testing.T) {
	tmp := t.TempDir()
	project := filepath.Join(tmp, "project")
	if err := os.MkdirAll(filepath.Join(project, "src"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(project, "package.json"), []byte("{}"), 0644); err != nil {
		t.Fatal(err)
	}

	// The file itself does not need to exist.
	root, err := FindProjectRoot(filepath.Join(project, "src", "file.ts"))
	if err != nil {
		t.Fatalf("FindProjectRoot() error = %v", err)
	}
	if root != project {
		t.Errorf("FindProjectRoot() = %s, want %s", root, project)
	}

	dir, err := QuestsFolder(filepath.Join(project, "src"))
	if err != nil {
		t.Fatalf("QuestsFolder() error = %v", err)
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		t.Errorf("quests folder %s not created", dir)
	}
	if filepath.Base(dir) != FolderName {
		t.Errorf("QuestsFolder() = %s", dir)
	}
}

func TestFindProjectRoot_NotFound(t *testing.T) {
	start := filepath.Join(t.TempDir(), "orphan", "file.ts")

	_, err := FindProjectRoot(start)
	var notFound *ProjectRootNotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("FindProjectRoot() error = %v, want ProjectRootNotFoundError", err)
	}
	if notFound.StartPath != start {
		t.Errorf("StartPath = %s, want %s", notFound.StartPath, start)
	}
}
