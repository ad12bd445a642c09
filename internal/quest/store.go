package quest

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/ShayCichocki/dungeonmaster/pkg/models"
)

var (
	// ErrQuestNotFound is returned when no quest has the requested id.
	ErrQuestNotFound = errors.New("quest not found")
	// ErrStepNotFound is returned when a quest has no step with the requested id.
	ErrStepNotFound = errors.New("step not found")
)

// fileLocks serialises read-modify-write cycles on the same quest file
// within this process.
var fileLocks sync.Map

func lockFile(path string) func() {
	key, err := filepath.Abs(path)
	if err != nil {
		key = path
	}
	v, _ := fileLocks.LoadOrStore(key, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// Load reads, parses and validates the quest at path.
func Load(path string) (*models.Quest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load quest from %s: %w", path, err)
	}
	q, err := decode(data)
	if err != nil {
		return nil, fmt.Errorf("failed to load quest from %s: %w", path, err)
	}
	return q, nil
}

func decode(data []byte) (*models.Quest, error) {
	var q models.Quest
	if err := json.Unmarshal(data, &q); err != nil {
		return nil, fmt.Errorf("failed to parse quest file: %w", err)
	}
	if err := q.Validate(); err != nil {
		return nil, fmt.Errorf("invalid quest: %w", err)
	}
	return &q, nil
}

// Save validates q and writes it to path.
func Save(path string, q *models.Quest) error {
	unlock := lockFile(path)
	defer unlock()
	return save(path, q)
}

func save(path string, q *models.Quest) error {
	if err := q.Validate(); err != nil {
		return fmt.Errorf("invalid quest: %w", err)
	}
	data, err := json.MarshalIndent(q, "", "  ")
	if err != nil {
		return fmt.Errorf("encode quest: %w", err)
	}
	return writeFile(path, data)
}

// writeFile replaces path atomically so readers never observe a partial
// document.
func writeFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".quest-*.json")
	if err != nil {
		return fmt.Errorf("write quest %s: %w", path, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write quest %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write quest %s: %w", path, err)
	}

	mode := os.FileMode(0644)
	if info, err := os.Stat(path); err == nil {
		mode = info.Mode().Perm()
	}
	if err := os.Chmod(tmpName, mode); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write quest %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write quest %s: %w", path, err)
	}
	return nil
}
