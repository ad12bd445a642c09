package exec

import (
	"context"
	"runtime"
	"strings"
	"testing"
)

func TestExecRunner_Run(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires sh")
	}
	r := NewRunner()

	tests := []struct {
		name     string
		script   string
		wantCode int
		wantOut  string
	}{
		{"success", "echo ok", 0, "ok"},
		{"failure is not an error", "echo bad >&2; exit 4", 4, "bad"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := r.Run(context.Background(), t.TempDir(), "sh", "-c", tt.script)
			if err != nil {
				t.Fatalf("Run() error = %v", err)
			}
			if res.ExitCode != tt.wantCode {
				t.Errorf("ExitCode = %d, want %d", res.ExitCode, tt.wantCode)
			}
			if !strings.Contains(string(res.Output), tt.wantOut) {
				t.Errorf("Output = %q, want %q", res.Output, tt.wantOut)
			}
		})
	}
}

func TestExecRunner_RunMissing(t *testing.T) {
	_, err := NewRunner().Run(context.Background(), "", "dungeonmaster-no-such-binary")
	if err == nil {
		t.Error("Run() of a missing binary should fail")
	}
}

func TestExecRunner_RunCancelled(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires sleep")
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewRunner().Run(ctx, "", "sleep", "5"); err == nil {
		t.Error("Run() with a cancelled context should fail")
	}
}

func TestExecRunner_LookPath(t *testing.T) {
	if _, err := NewRunner().LookPath("dungeonmaster-no-such-binary"); err == nil {
		t.Error("LookPath() of a missing binary should fail")
	}
}
