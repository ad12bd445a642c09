package orchestrator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ShayCichocki/dungeonmaster/internal/agent"
	"github.com/ShayCichocki/dungeonmaster/internal/agent/agenttest"
	"github.com/ShayCichocki/dungeonmaster/internal/exec"
	"github.com/ShayCichocki/dungeonmaster/internal/quest"
	"github.com/ShayCichocki/dungeonmaster/internal/slot"
	"github.com/ShayCichocki/dungeonmaster/internal/stream"
	"github.com/ShayCichocki/dungeonmaster/internal/ward"
	"github.com/ShayCichocki/dungeonmaster/pkg/models"
)

// fakeWard answers Run with outcomes in order, repeating the last one.
type fakeWard struct {
	mu        sync.Mutex
	outcomes  []ward.Outcome
	detail    *ward.Result
	detailErr error
	runs      int
	details   []string
}

var _ WardRunner = (*fakeWard)(nil)

func (f *fakeWard) Run(ctx context.Context, workDir string, files ...string) (ward.Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.runs
	f.runs++
	if len(f.outcomes) == 0 {
		return ward.Outcome{}, nil
	}
	if i >= len(f.outcomes) {
		i = len(f.outcomes) - 1
	}
	return f.outcomes[i], nil
}

func (f *fakeWard) Detail(ctx context.Context, workDir, runID string) (*ward.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.details = append(f.details, runID)
	if f.detailErr != nil {
		return nil, f.detailErr
	}
	if f.detail == nil {
		return &ward.Result{}, nil
	}
	return f.detail, nil
}

func (f *fakeWard) Raw(ctx context.Context, workDir string, args ...string) (exec.Result, error) {
	return exec.Result{Output: []byte("ward " + strings.Join(args, " "))}, nil
}

func (f *fakeWard) Runs() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.runs
}

// roleScript completes codeweaver steps and lets every other role exit 0.
func roleScript(n int, opts agent.SpawnOptions) (agent.Process, error) {
	if opts.Role == agent.RoleCodeweaver {
		return completeProcess(stepIn(opts, stepA, stepB, stepC)), nil
	}
	return agenttest.NewProcess(0, agenttest.SignalLine(stream.SignalComplete, "", nil)), nil
}

func newPipeline(path string, spawner agent.Spawner, w WardRunner) (*Pipeline, *[]Phase) {
	var phases []Phase
	return &Pipeline{
		QuestFilePath:    path,
		Slots:            slot.NewManager(2),
		Spawner:          spawner,
		Ward:             w,
		AgentTimeout:     5 * time.Second,
		WardMaxRetries:   3,
		MaxFollowupDepth: 2,
		OnPhaseChange:    func(p Phase) { phases = append(phases, p) },
	}, &phases
}

func reviewQuest(t *testing.T) string {
	t.Helper()
	s := newStep(stepA, "Schema")
	s.FilesToCreate = []string{"src/schema.ts", "src/schema.test.ts"}
	path := writeQuest(t, t.TempDir(), s)
	err := quest.ModifyFile(path, quest.ModifyInput{
		Contexts: []models.Context{{ID: "ctx-login", Name: "Login page"}},
		Observables: []models.Observable{{
			ID: "obs-1", ContextID: "ctx-login", Trigger: "submit valid credentials",
			Outcomes: []any{map[string]any{"type": "redirect", "to": "/home"}},
		}},
	})
	if err != nil {
		t.Fatalf("add observables: %v", err)
	}
	return path
}

func TestPipeline_RunsEveryPhase(t *testing.T) {
	path := reviewQuest(t)
	spawner := agenttest.NewSpawner(roleScript)
	w := &fakeWard{}
	p, phases := newPipeline(path, spawner, w)

	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	want := []Phase{PhaseCodeweaver, PhaseWard, PhaseSiegemaster, PhaseLawbringer, PhaseComplete}
	if strings.Join(phaseNames(*phases), ",") != strings.Join(phaseNames(want), ",") {
		t.Errorf("phases = %v, want %v", *phases, want)
	}
	if w.Runs() != 1 {
		t.Errorf("ward ran %d times, want 1", w.Runs())
	}

	siege := spawner.CallsFor(agent.RoleSiegemaster)
	if len(siege) != 1 || !strings.Contains(siege[0].Prompt, "Context: Login page") || !strings.Contains(siege[0].Prompt, "/home") {
		t.Errorf("siegemaster spawns = %+v", siege)
	}
	law := spawner.CallsFor(agent.RoleLawbringer)
	if len(law) != 1 || !strings.Contains(law[0].Prompt, "- src/schema.test.ts") {
		t.Errorf("lawbringer spawns = %+v", law)
	}
	if n := len(spawner.CallsFor(agent.RolePathseeker)); n != 0 {
		t.Errorf("pathseeker spawned %d times for a planned quest", n)
	}

	q, _ := quest.Load(path)
	if q.Phases == nil {
		t.Fatal("quest phases not recorded")
	}
	for name, ph := range map[string]models.Phase{
		"implementation": q.Phases.Implementation,
		"testing":        q.Phases.Testing,
		"review":         q.Phases.Review,
	} {
		if ph.Status != models.PhaseStatusComplete {
			t.Errorf("%s phase = %s, want complete", name, ph.Status)
		}
	}
	if q.Phases.Discovery.Status != "" {
		t.Errorf("discovery phase = %s, want untouched", q.Phases.Discovery.Status)
	}
}

func phaseNames(p []Phase) []string {
	out := make([]string, len(p))
	for i, v := range p {
		out[i] = string(v)
	}
	return out
}

func TestPipeline_PathseekerPlansSteps(t *testing.T) {
	path := writeQuest(t, t.TempDir())
	spawner := agenttest.NewSpawner(func(n int, opts agent.SpawnOptions) (agent.Process, error) {
		if opts.Role == agent.RolePathseeker {
			if err := quest.ModifyFile(path, quest.ModifyInput{Steps: []models.DependencyStep{newStep(stepA, "Schema")}}); err != nil {
				return nil, err
			}
		}
		return roleScript(n, opts)
	})
	p, phases := newPipeline(path, spawner, &fakeWard{})

	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if (*phases)[0] != PhasePathseeker {
		t.Errorf("first phase = %s, want pathseeker", (*phases)[0])
	}
	if step := loadStep(t, path, stepA); step.Status != models.StepStatusComplete {
		t.Errorf("planned step status = %s, want complete", step.Status)
	}
	q, _ := quest.Load(path)
	if q.Phases.Discovery.Status != models.PhaseStatusComplete {
		t.Errorf("discovery phase = %s, want complete", q.Phases.Discovery.Status)
	}
}

func TestPipeline_Failures(t *testing.T) {
	tests := []struct {
		name      string
		steps     []models.DependencyStep
		script    agenttest.ScriptFunc
		wantErr   func(error) bool
		wantPhase quest.PhaseName
	}{
		{
			name: "pathseeker produced no steps",
			script: func(n int, opts agent.SpawnOptions) (agent.Process, error) {
				return agenttest.NewProcess(0), nil
			},
			wantErr: func(err error) bool {
				return err != nil && err.Error() == "pathseeker produced no steps"
			},
			wantPhase: quest.PhaseDiscovery,
		},
		{
			name:  "pathseeker crashed",
			steps: nil,
			script: func(n int, opts agent.SpawnOptions) (agent.Process, error) {
				return agenttest.NewProcess(2), nil
			},
			wantErr:   func(err error) bool { return err != nil && strings.Contains(err.Error(), "pathseeker did not finish") },
			wantPhase: quest.PhaseDiscovery,
		},
		{
			name:  "codeweaver left steps incomplete",
			steps: []models.DependencyStep{newStep(stepA, "Schema")},
			script: func(n int, opts agent.SpawnOptions) (agent.Process, error) {
				return agenttest.NewProcess(0, agenttest.TextLine("no signal")), nil
			},
			wantErr: func(err error) bool {
				var inc *IncompleteStepsError
				return errors.As(err, &inc) && len(inc.Steps) == 1
			},
			wantPhase: quest.PhaseImplementation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeQuest(t, t.TempDir(), tt.steps...)
			w := &fakeWard{}
			p, phases := newPipeline(path, agenttest.NewSpawner(tt.script), w)

			err := p.Run(context.Background())
			if !tt.wantErr(err) {
				t.Fatalf("Run() error = %v", err)
			}
			if last := (*phases)[len(*phases)-1]; last != PhaseFailed {
				t.Errorf("last phase = %s, want failed", last)
			}
			if w.Runs() != 0 {
				t.Errorf("ward ran %d times after an earlier failure", w.Runs())
			}

			q, _ := quest.Load(path)
			var status models.PhaseStatus
			switch tt.wantPhase {
			case quest.PhaseDiscovery:
				status = q.Phases.Discovery.Status
			case quest.PhaseImplementation:
				status = q.Phases.Implementation.Status
			}
			if status != models.PhaseStatusBlocked {
				t.Errorf("%s phase = %s, want blocked", tt.wantPhase, status)
			}
		})
	}
}

func TestRunWard(t *testing.T) {
	failing := ward.Outcome{ExitCode: 1, Output: "run: r-1\nlint failed", RunID: "r-1"}
	passing := ward.Outcome{ExitCode: 0, Output: "run: r-2\nall good", RunID: "r-2"}
	blamed := &ward.Result{Checks: []ward.Check{{
		CheckType: "lint",
		Status:    "fail",
		ProjectResults: []ward.ProjectResult{{
			Errors: []ward.ErrorEntry{{FilePath: "src/bad.ts", Line: 3, Message: "no-unused-vars"}},
		}},
	}}}

	tests := []struct {
		name           string
		files          []string
		ward           *fakeWard
		wantErr        string
		wantMenders    int
		wantMenderFile string
	}{
		{
			name:           "repairs files named by ward detail",
			files:          []string{"src/schema.ts"},
			ward:           &fakeWard{outcomes: []ward.Outcome{failing, passing}, detail: blamed},
			wantMenders:    1,
			wantMenderFile: "- src/bad.ts",
		},
		{
			name:           "falls back to step files when detail fails",
			files:          []string{"src/schema.ts"},
			ward:           &fakeWard{outcomes: []ward.Outcome{failing, passing}, detailErr: errors.New("no such run")},
			wantMenders:    1,
			wantMenderFile: "- src/schema.ts",
		},
		{
			name:        "gives up after max retries",
			files:       []string{"src/schema.ts"},
			ward:        &fakeWard{outcomes: []ward.Outcome{failing}, detail: blamed},
			wantErr:     "ward phase failed after 3 retries",
			wantMenders: 2,
		},
		{
			name:    "no files to repair",
			files:   []string{},
			ward:    &fakeWard{outcomes: []ward.Outcome{failing}},
			wantErr: ErrNoSpiritmenderFiles.Error(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newStep(stepA, "Schema")
			s.FilesToCreate = tt.files
			path := writeQuest(t, t.TempDir(), s)
			spawner := agenttest.NewSpawner(roleScript)
			p, _ := newPipeline(path, spawner, tt.ward)

			err := p.runWard(context.Background())
			if tt.wantErr == "" && err != nil {
				t.Fatalf("runWard() error = %v", err)
			}
			if tt.wantErr != "" {
				if err == nil || err.Error() != tt.wantErr {
					t.Fatalf("runWard() error = %v, want %q", err, tt.wantErr)
				}
			}

			menders := spawner.CallsFor(agent.RoleSpiritmender)
			if len(menders) != tt.wantMenders {
				t.Fatalf("spiritmender spawned %d times, want %d", len(menders), tt.wantMenders)
			}
			if tt.wantMenderFile != "" {
				if !strings.Contains(menders[0].Prompt, tt.wantMenderFile) {
					t.Errorf("spiritmender prompt lacks %q:\n%s", tt.wantMenderFile, menders[0].Prompt)
				}
				if !strings.Contains(menders[0].Prompt, "lint failed") {
					t.Errorf("spiritmender prompt lacks ward output:\n%s", menders[0].Prompt)
				}
			}
		})
	}
}

func TestRunWard_MaxRetriesIsSentinel(t *testing.T) {
	path := writeQuest(t, t.TempDir(), newStep(stepA, "Schema"))
	w := &fakeWard{outcomes: []ward.Outcome{{ExitCode: 1}}}
	p, _ := newPipeline(path, agenttest.NewSpawner(roleScript), w)
	p.WardMaxRetries = 1

	err := p.runWard(context.Background())
	if !errors.Is(err, ward.ErrMaxRetries) {
		t.Fatalf("runWard() error = %v, want ErrMaxRetries", err)
	}
	if w.Runs() != 1 || len(w.details) != 0 {
		t.Errorf("runs = %d, details = %v, want one run and no detail lookups", w.Runs(), w.details)
	}
}

func TestRunReview_RetriesThenSkips(t *testing.T) {
	path := writeQuest(t, t.TempDir(), newStep(stepA, "Schema"))
	var mu sync.Mutex
	seen := map[string]int{}
	spawner := agenttest.NewSpawner(func(n int, opts agent.SpawnOptions) (agent.Process, error) {
		mu.Lock()
		defer mu.Unlock()
		switch {
		case strings.Contains(opts.Prompt, "obs-flaky"):
			seen["flaky"]++
			if seen["flaky"] == 1 {
				return agenttest.NewProcess(1), nil
			}
			return agenttest.NewProcess(0), nil
		case strings.Contains(opts.Prompt, "obs-broken"):
			seen["broken"]++
			return agenttest.NewProcess(1), nil
		}
		seen["other"]++
		return agenttest.NewProcess(0), nil
	})
	p, _ := newPipeline(path, spawner, &fakeWard{})

	units := []reviewUnit{
		{id: "obs-ok", data: agent.PromptData{QuestID: "q", ObservableID: "obs-ok"}},
		{id: "obs-flaky", data: agent.PromptData{QuestID: "q", ObservableID: "obs-flaky"}},
		{id: "obs-broken", data: agent.PromptData{QuestID: "q", ObservableID: "obs-broken"}},
	}
	if err := p.runReview(context.Background(), agent.RoleSiegemaster, units); err != nil {
		t.Fatalf("runReview() error = %v", err)
	}

	want := map[string]int{"other": 1, "flaky": 2, "broken": DefaultReviewAttempts}
	for k, v := range want {
		if seen[k] != v {
			t.Errorf("%s spawned %d times, want %d", k, seen[k], v)
		}
	}
}

func TestRunReview_OccupiesSlots(t *testing.T) {
	path := writeQuest(t, t.TempDir(), newStep(stepA, "Schema"))
	slots := slot.NewManager(2)
	var unslotted atomic.Int32
	spawner := agenttest.NewSpawner(func(n int, opts agent.SpawnOptions) (agent.Process, error) {
		if len(slots.Active()) == 0 {
			unslotted.Add(1)
		}
		return agenttest.NewProcess(0, agenttest.TextLine("checked "+string(opts.Role))), nil
	})
	p, _ := newPipeline(path, spawner, &fakeWard{})
	p.Slots = slots

	var (
		mu     sync.Mutex
		starts []Attempt
		ends   int
		lines  []int
	)
	p.Hooks = LoopHooks{
		OnAttemptStart: func(a Attempt) {
			mu.Lock()
			defer mu.Unlock()
			starts = append(starts, a)
		},
		OnAttemptEnd: func(a Attempt, res agent.MonitorResult) {
			mu.Lock()
			defer mu.Unlock()
			ends++
		},
		OnAgentLine: func(slotIndex int, line string) {
			mu.Lock()
			defer mu.Unlock()
			lines = append(lines, slotIndex)
		},
	}

	units := []reviewUnit{
		{id: "src/a.ts", data: agent.PromptData{QuestID: "q", Files: []string{"src/a.ts"}}},
		{id: "src/b.ts", data: agent.PromptData{QuestID: "q", Files: []string{"src/b.ts"}}},
		{id: "src/c.ts", data: agent.PromptData{QuestID: "q", Files: []string{"src/c.ts"}}},
	}
	if err := p.runReview(context.Background(), agent.RoleLawbringer, units); err != nil {
		t.Fatalf("runReview() error = %v", err)
	}

	if n := unslotted.Load(); n != 0 {
		t.Errorf("%d review agents spawned without a slot", n)
	}
	if len(starts) != len(units) || ends != len(units) {
		t.Errorf("attempt hooks: %d starts, %d ends, want %d each", len(starts), ends, len(units))
	}
	for _, a := range starts {
		if a.Role != agent.RoleLawbringer || a.SlotIndex < 0 || a.SlotIndex >= slots.Count() {
			t.Errorf("attempt = %+v", a)
		}
	}
	if len(lines) != len(units) {
		t.Errorf("got %d agent lines, want %d", len(lines), len(units))
	}
	if active := slots.Active(); len(active) != 0 {
		t.Errorf("slots still occupied after review: %+v", active)
	}
}

func TestFilePairs(t *testing.T) {
	done := func(id string, files ...string) models.DependencyStep {
		s := newStep(id, "step")
		s.FilesToCreate = files
		s.Status = models.StepStatusComplete
		return s
	}

	tests := []struct {
		name  string
		steps []models.DependencyStep
		want  [][]string
	}{
		{
			name:  "implementation with its test",
			steps: []models.DependencyStep{done(stepA, "src/api.ts", "src/api.test.ts")},
			want:  [][]string{{"src/api.ts", "src/api.test.ts"}},
		},
		{
			name:  "test in another step is not paired",
			steps: []models.DependencyStep{done(stepA, "src/api.ts"), done(stepB, "src/api.test.ts")},
			want:  [][]string{{"src/api.ts"}},
		},
		{
			name:  "spec files are tests",
			steps: []models.DependencyStep{done(stepA, "src/api.spec.ts", "src/util.ts")},
			want:  [][]string{{"src/util.ts"}},
		},
		{
			name:  "each file once",
			steps: []models.DependencyStep{done(stepA, "src/api.ts"), done(stepB, "src/api.ts")},
			want:  [][]string{{"src/api.ts"}},
		},
		{
			name: "incomplete steps are skipped",
			steps: []models.DependencyStep{
				func() models.DependencyStep { s := done(stepA, "src/api.ts"); s.Status = models.StepStatusFailed; return s }(),
			},
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := filePairs(&models.Quest{Steps: tt.steps})
			if len(got) != len(tt.want) {
				t.Fatalf("filePairs() = %v, want %v", got, tt.want)
			}
			for i := range tt.want {
				if strings.Join(got[i], ",") != strings.Join(tt.want[i], ",") {
					t.Errorf("pair %d = %v, want %v", i, got[i], tt.want[i])
				}
			}
		})
	}
}
