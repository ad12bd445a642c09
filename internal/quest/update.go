package quest

import (
	"fmt"
	"os"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/ShayCichocki/dungeonmaster/pkg/models"
)

// StepUpdate lists the step fields to overwrite. Nil fields are left as
// they are; the step id can never be changed.
type StepUpdate struct {
	Name           *string
	Description    *string
	Status         *models.StepStatus
	StartedAt      *time.Time
	CompletedAt    *time.Time
	BlockingReason *string
	BlockingType   *string
	ErrorMessage   *string
	DependsOn      []string
	FilesToCreate  []string
	FilesToModify  []string
}

// fields returns the JSON keys and values to set.
func (u StepUpdate) fields() []struct {
	key   string
	value any
} {
	type kv = struct {
		key   string
		value any
	}
	var out []kv
	if u.Name != nil {
		out = append(out, kv{"name", *u.Name})
	}
	if u.Description != nil {
		out = append(out, kv{"description", *u.Description})
	}
	if u.Status != nil {
		out = append(out, kv{"status", string(*u.Status)})
	}
	if u.StartedAt != nil {
		out = append(out, kv{"startedAt", *u.StartedAt})
	}
	if u.CompletedAt != nil {
		out = append(out, kv{"completedAt", *u.CompletedAt})
	}
	if u.BlockingReason != nil {
		out = append(out, kv{"blockingReason", *u.BlockingReason})
	}
	if u.BlockingType != nil {
		out = append(out, kv{"blockingType", *u.BlockingType})
	}
	if u.ErrorMessage != nil {
		out = append(out, kv{"errorMessage", *u.ErrorMessage})
	}
	if u.DependsOn != nil {
		out = append(out, kv{"dependsOn", u.DependsOn})
	}
	if u.FilesToCreate != nil {
		out = append(out, kv{"filesToCreate", u.FilesToCreate})
	}
	if u.FilesToModify != nil {
		out = append(out, kv{"filesToModify", u.FilesToModify})
	}
	return out
}

// UpdateStep merges update into the step with id stepID and writes the
// quest back. Fields the update does not name keep their exact bytes.
// When the step does not exist the file is not touched.
func UpdateStep(path, stepID string, update StepUpdate) error {
	unlock := lockFile(path)
	defer unlock()

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read file %s: %w", path, err)
	}
	if _, err := decode(data); err != nil {
		return fmt.Errorf("failed to load quest from %s: %w", path, err)
	}

	index := -1
	gjson.GetBytes(data, "steps").ForEach(func(key, value gjson.Result) bool {
		if value.Get("id").String() == stepID {
			index = int(key.Int())
			return false
		}
		return true
	})
	if index < 0 {
		return stepNotFound(stepID)
	}

	for _, f := range update.fields() {
		data, err = sjson.SetBytes(data, fmt.Sprintf("steps.%d.%s", index, f.key), f.value)
		if err != nil {
			return fmt.Errorf("set step %s: %w", f.key, err)
		}
	}

	if _, err := decode(data); err != nil {
		return fmt.Errorf("update step %s: %w", stepID, err)
	}
	return writeFile(path, data)
}

// SetStatus updates the quest status, stamping updatedAt and, for a
// complete quest, completedAt.
func SetStatus(path string, status models.QuestStatus) error {
	return mutate(path, func(q *models.Quest) error {
		if !status.Valid() {
			return fmt.Errorf("invalid quest status %q", status)
		}
		now := time.Now().UTC()
		q.Status = status
		q.UpdatedAt = &now
		if status == models.QuestStatusComplete {
			q.CompletedAt = &now
		}
		return nil
	})
}

// PhaseName selects one of the four quest phases.
type PhaseName string

const (
	PhaseDiscovery      PhaseName = "discovery"
	PhaseImplementation PhaseName = "implementation"
	PhaseTesting        PhaseName = "testing"
	PhaseReview         PhaseName = "review"
)

// SetPhase records the status of one quest phase. Entering in_progress
// stamps startedAt; reaching complete stamps completedAt.
func SetPhase(path string, name PhaseName, status models.PhaseStatus) error {
	return mutate(path, func(q *models.Quest) error {
		if !status.Valid() {
			return fmt.Errorf("invalid phase status %q", status)
		}
		if q.Phases == nil {
			q.Phases = &models.Phases{}
		}
		var phase *models.Phase
		switch name {
		case PhaseDiscovery:
			phase = &q.Phases.Discovery
		case PhaseImplementation:
			phase = &q.Phases.Implementation
		case PhaseTesting:
			phase = &q.Phases.Testing
		case PhaseReview:
			phase = &q.Phases.Review
		default:
			return fmt.Errorf("unknown phase %q", name)
		}

		now := time.Now().UTC()
		phase.Status = status
		switch status {
		case models.PhaseStatusInProgress:
			if phase.StartedAt == nil {
				phase.StartedAt = &now
			}
		case models.PhaseStatusComplete:
			phase.CompletedAt = &now
		}
		q.UpdatedAt = &now
		return nil
	})
}

// AppendLog adds an entry to the quest execution log.
func AppendLog(path string, entry models.ExecutionLogEntry) error {
	return mutate(path, func(q *models.Quest) error {
		if entry.Timestamp.IsZero() {
			entry.Timestamp = time.Now().UTC()
		}
		q.ExecutionLog = append(q.ExecutionLog, entry)
		return nil
	})
}

// mutate runs a locked load-modify-save cycle.
func mutate(path string, fn func(q *models.Quest) error) error {
	unlock := lockFile(path)
	defer unlock()

	q, err := Load(path)
	if err != nil {
		return err
	}
	if err := fn(q); err != nil {
		return err
	}
	return save(path, q)
}
