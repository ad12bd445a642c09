package quest

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ShayCichocki/dungeonmaster/pkg/models"
)

var slugPattern = regexp.MustCompile(`[^a-z0-9]+`)

// slugify turns a title into a kebab-case quest id of at most 50 bytes.
func slugify(title string) string {
	slug := strings.Trim(slugPattern.ReplaceAllString(strings.ToLower(title), "-"), "-")
	if len(slug) > 50 {
		slug = strings.TrimRight(slug[:50], "-")
	}
	return slug
}

// nextSequence returns the number after the highest quest folder number.
func nextSequence(questsDir string) (int, error) {
	entries, err := os.ReadDir(questsDir)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return 0, fmt.Errorf("read quests folder %s: %w", questsDir, err)
	}
	highest := 0
	for _, entry := range entries {
		m := folderPattern.FindStringSubmatch(entry.Name())
		if m == nil {
			continue
		}
		if n, err := strconv.Atoi(m[1]); err == nil && n > highest {
			highest = n
		}
	}
	return highest + 1, nil
}

// uniqueID returns id, or id suffixed with seq when another quest in
// questsDir already uses it.
func uniqueID(questsDir, id string, seq int) string {
	if _, err := FindInFolder(questsDir, id); err != nil {
		return id
	}
	suffixed := fmt.Sprintf("%s-%d", id, seq)
	if _, err := FindInFolder(questsDir, suffixed); err != nil {
		return suffixed
	}
	return id + "-" + uuid.NewString()[:8]
}

// Add creates a new pending quest in questsDir and returns it.
func Add(questsDir, title, userRequest string) (*models.Quest, error) {
	id := slugify(title)
	if id == "" {
		// Titles without any latin letters or digits still need a stable id.
		id = uuid.NewString()
	}

	seq, err := nextSequence(questsDir)
	if err != nil {
		return nil, err
	}
	id = uniqueID(questsDir, id, seq)
	folder := fmt.Sprintf("%03d-%s", seq, id)
	if err := os.MkdirAll(filepath.Join(questsDir, folder), 0755); err != nil {
		return nil, fmt.Errorf("create quest folder: %w", err)
	}

	now := time.Now().UTC()
	q := &models.Quest{
		ID:          id,
		Folder:      folder,
		Title:       title,
		Status:      models.QuestStatusPending,
		CreatedAt:   now,
		UpdatedAt:   &now,
		UserRequest: userRequest,
		Phases: &models.Phases{
			Discovery:      models.Phase{Status: models.PhaseStatusPending},
			Implementation: models.Phase{Status: models.PhaseStatusPending},
			Testing:        models.Phase{Status: models.PhaseStatusPending},
			Review:         models.Phase{Status: models.PhaseStatusPending},
		},
		ExecutionLog:        []models.ExecutionLogEntry{},
		Contexts:            []models.Context{},
		Observables:         []models.Observable{},
		Requirements:        []models.Requirement{},
		DesignDecisions:     []models.DesignDecision{},
		Contracts:           []models.Contract{},
		ToolingRequirements: []models.ToolingRequirement{},
		Steps:               []models.DependencyStep{},
	}
	if err := Save(FilePath(questsDir, folder), q); err != nil {
		return nil, err
	}
	return q, nil
}
