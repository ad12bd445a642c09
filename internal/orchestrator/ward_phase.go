package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/ShayCichocki/dungeonmaster/internal/agent"
	"github.com/ShayCichocki/dungeonmaster/internal/quest"
	"github.com/ShayCichocki/dungeonmaster/internal/ward"
)

// ErrNoSpiritmenderFiles is returned when a failed ward run names no files
// and the quest steps list none either.
var ErrNoSpiritmenderFiles = errors.New("no file paths could be extracted for spiritmender")

// runWard runs ward up to WardMaxRetries times. Between failing runs a
// spiritmender agent repairs the files ward blamed.
func (p *Pipeline) runWard(ctx context.Context) error {
	retries := p.WardMaxRetries
	if retries <= 0 {
		retries = 3
	}

	for attempt := 1; attempt <= retries; attempt++ {
		out, err := p.wardOnce(ctx)
		if err != nil {
			return err
		}
		if out.Passed() {
			debugLog("[ward] passed on attempt %d", attempt)
			return nil
		}
		debugLog("[ward] attempt %d failed with exit %d (run %q)", attempt, out.ExitCode, out.RunID)

		if attempt == retries {
			break
		}
		files, err := p.spiritmenderFiles(ctx, out)
		if err != nil {
			return err
		}

		q, err := quest.Load(p.QuestFilePath)
		if err != nil {
			return err
		}
		res, err := p.runOne(ctx, agent.RoleSpiritmender, agent.PromptData{
			QuestID:    q.ID,
			QuestPath:  p.QuestFilePath,
			Files:      files,
			WardOutput: out.Output,
		})
		if err != nil {
			debugLog("[ward] spiritmender: %v", err)
		} else if res.Crashed || res.TimedOut {
			debugLog("[ward] spiritmender did not finish (crashed=%v, timedOut=%v)", res.Crashed, res.TimedOut)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return fmt.Errorf("%w after %d retries", ward.ErrMaxRetries, retries)
}

func (p *Pipeline) wardOnce(ctx context.Context) (ward.Outcome, error) {
	if p.WardTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.WardTimeout)
		defer cancel()
	}
	return p.Ward.Run(ctx, p.WorkDir)
}

// spiritmenderFiles prefers the paths in the ward run detail and falls
// back to every file the quest steps touch.
func (p *Pipeline) spiritmenderFiles(ctx context.Context, out ward.Outcome) ([]string, error) {
	if out.RunID != "" {
		detail, err := p.Ward.Detail(ctx, p.WorkDir, out.RunID)
		if err != nil {
			debugLog("[ward] detail %s: %v", out.RunID, err)
		} else if paths := detail.FilePaths(); len(paths) > 0 {
			return paths, nil
		}
	}

	q, err := quest.Load(p.QuestFilePath)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	var files []string
	for i := range q.Steps {
		for _, f := range q.Steps[i].Files() {
			if !seen[f] {
				seen[f] = true
				files = append(files, f)
			}
		}
	}
	if len(files) == 0 {
		return nil, ErrNoSpiritmenderFiles
	}
	return files, nil
}
