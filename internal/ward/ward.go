// Package ward runs the project verification command and reads its results.
package ward

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/ShayCichocki/dungeonmaster/internal/exec"
)

// ErrMaxRetries is wrapped when ward keeps failing after every retry.
var ErrMaxRetries = errors.New("ward phase failed")

// DefaultCommand runs the ward CLI through npx.
const DefaultCommand = "npx dungeonmaster-ward"

var runIDPattern = regexp.MustCompile(`(?m)^run:[ \t]*(\S+)`)

// RunIDFromOutput extracts the run id from a "run: <id>" line in ward
// output.
func RunIDFromOutput(output string) (string, bool) {
	m := runIDPattern.FindStringSubmatch(output)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// ProjectFolder identifies the package a project result belongs to.
type ProjectFolder struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

// ErrorEntry is one lint or type error.
type ErrorEntry struct {
	FilePath string `json:"filePath"`
	Line     int    `json:"line"`
	Column   int    `json:"column"`
	Message  string `json:"message"`
	Severity string `json:"severity"`
}

// TestFailure is one failing test.
type TestFailure struct {
	SuitePath string `json:"suitePath"`
	TestName  string `json:"testName"`
	Message   string `json:"message"`
}

// RawOutput is the captured output of one check run.
type RawOutput struct {
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
	ExitCode int    `json:"exitCode"`
}

// ProjectResult is the outcome of a check for one project folder.
type ProjectResult struct {
	ProjectFolder ProjectFolder `json:"projectFolder"`
	Status        string        `json:"status"`
	Errors        []ErrorEntry  `json:"errors"`
	TestFailures  []TestFailure `json:"testFailures"`
	RawOutput     RawOutput     `json:"rawOutput"`
}

// Check is one check type (lint, typecheck, test) across projects.
type Check struct {
	CheckType      string          `json:"checkType"`
	Status         string          `json:"status"`
	ProjectResults []ProjectResult `json:"projectResults"`
}

// Result is the detail document of a ward run.
type Result struct {
	Checks []Check `json:"checks"`
}

// ParseResult decodes a ward result document.
func ParseResult(data []byte) (*Result, error) {
	var r Result
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parse ward result: %w", err)
	}
	return &r, nil
}

// FilePaths returns the distinct files named by errors and test failures,
// in first-seen order.
func (r *Result) FilePaths() []string {
	seen := make(map[string]bool)
	var paths []string
	add := func(p string) {
		if p == "" || seen[p] {
			return
		}
		seen[p] = true
		paths = append(paths, p)
	}
	for _, c := range r.Checks {
		for _, pr := range c.ProjectResults {
			for _, e := range pr.Errors {
				add(e.FilePath)
			}
			for _, f := range pr.TestFailures {
				add(f.SuitePath)
			}
		}
	}
	return paths
}

// Failed reports whether any check failed.
func (r *Result) Failed() bool {
	for _, c := range r.Checks {
		if c.Status == "fail" {
			return true
		}
	}
	return false
}

// Outcome is the result of one ward invocation.
type Outcome struct {
	ExitCode int
	Output   string
	RunID    string
}

// Passed reports a zero exit.
func (o Outcome) Passed() bool {
	return o.ExitCode == 0
}

// Runner invokes the ward CLI.
type Runner struct {
	runner  exec.CommandRunner
	command []string
}

// NewRunner returns a runner for command, e.g. "npx dungeonmaster-ward".
// An empty command uses DefaultCommand.
func NewRunner(runner exec.CommandRunner, command string) *Runner {
	if strings.TrimSpace(command) == "" {
		command = DefaultCommand
	}
	return &Runner{runner: runner, command: strings.Fields(command)}
}

func (r *Runner) invoke(ctx context.Context, workDir string, args ...string) (exec.Result, error) {
	all := append(append([]string{}, r.command[1:]...), args...)
	return r.runner.Run(ctx, workDir, r.command[0], all...)
}

// Run runs every check in workDir, optionally limited to files.
func (r *Runner) Run(ctx context.Context, workDir string, files ...string) (Outcome, error) {
	res, err := r.invoke(ctx, workDir, append([]string{"run"}, files...)...)
	if err != nil {
		return Outcome{}, fmt.Errorf("run ward: %w", err)
	}
	out := Outcome{ExitCode: res.ExitCode, Output: string(res.Output)}
	out.RunID, _ = RunIDFromOutput(out.Output)
	return out, nil
}

// Detail fetches the result document of a previous run.
func (r *Runner) Detail(ctx context.Context, workDir, runID string) (*Result, error) {
	res, err := r.invoke(ctx, workDir, "detail", runID, "--json")
	if err != nil {
		return nil, fmt.Errorf("ward detail %s: %w", runID, err)
	}
	if res.ExitCode != 0 {
		return nil, fmt.Errorf("ward detail %s exited %d: %s", runID, res.ExitCode, strings.TrimSpace(string(res.Output)))
	}
	return ParseResult(res.Output)
}

// Raw runs ward with arbitrary arguments and returns its combined output.
func (r *Runner) Raw(ctx context.Context, workDir string, args ...string) (exec.Result, error) {
	return r.invoke(ctx, workDir, args...)
}
