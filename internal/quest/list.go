package quest

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/tidwall/gjson"

	"github.com/ShayCichocki/dungeonmaster/pkg/models"
)

// List returns a summary of every quest in the project containing startPath.
// A project without a quests folder has no quests; the folder is not created.
func List(startPath string) ([]models.QuestListItem, error) {
	root, err := FindProjectRoot(startPath)
	if err != nil {
		return nil, err
	}
	return ListFolder(filepath.Join(root, FolderName))
}

// ListFolder summarises the quests in one quests folder, in folder order.
// Only top-level metadata is read. Folders without a readable quest.json
// are skipped.
func ListFolder(questsDir string) ([]models.QuestListItem, error) {
	entries, err := os.ReadDir(questsDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []models.QuestListItem{}, nil
		}
		return nil, fmt.Errorf("read quests folder %s: %w", questsDir, err)
	}

	items := make([]models.QuestListItem, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() || !isQuestFolder(entry.Name()) {
			continue
		}
		item, ok := readListItem(FilePath(questsDir, entry.Name()))
		if !ok {
			continue
		}
		items = append(items, item)
	}
	return items, nil
}

func readListItem(path string) (models.QuestListItem, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return models.QuestListItem{}, false
	}
	if !gjson.ValidBytes(data) {
		log.Printf("[quest] skipping %s: invalid JSON", path)
		return models.QuestListItem{}, false
	}

	meta := gjson.GetManyBytes(data, "id", "folder", "title", "status", "createdAt", "steps.#.status")
	item := models.QuestListItem{
		ID:     meta[0].String(),
		Folder: meta[1].String(),
		Title:  meta[2].String(),
		Status: models.QuestStatus(meta[3].String()),
	}
	if item.ID == "" || item.Folder == "" {
		return models.QuestListItem{}, false
	}
	if t, err := time.Parse(time.RFC3339Nano, meta[4].String()); err == nil {
		item.CreatedAt = t
	}

	statuses := meta[5].Array()
	if len(statuses) > 0 {
		done := 0
		for _, s := range statuses {
			if s.String() == string(models.StepStatusComplete) {
				done++
			}
		}
		item.StepProgress = fmt.Sprintf("%d/%d", done, len(statuses))
	}
	return item, true
}
