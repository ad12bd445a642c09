package quest

import (
	"os"
	"path/filepath"

	"github.com/tidwall/gjson"
)

// FindInFolder returns the quest.json path of the quest with questID in
// questsDir. Only NNN- quest folders are searched.
func FindInFolder(questsDir, questID string) (string, error) {
	entries, err := os.ReadDir(questsDir)
	if err != nil {
		return "", questNotFound(questID)
	}
	for _, entry := range entries {
		if !entry.IsDir() || !isQuestFolder(entry.Name()) {
			continue
		}
		path := FilePath(questsDir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		if gjson.GetBytes(data, "id").String() == questID {
			return path, nil
		}
	}
	return "", questNotFound(questID)
}

// FindPath searches every guild under homeDir for questID and returns the
// quest file path and the owning guild id. Guilds whose quests folder
// cannot be read are skipped.
func FindPath(homeDir, questID string) (path, guildID string, err error) {
	guildsDir := filepath.Join(homeDir, "guilds")
	guilds, err := os.ReadDir(guildsDir)
	if err != nil {
		return "", "", questNotFound(questID)
	}
	for _, guild := range guilds {
		if !guild.IsDir() {
			continue
		}
		p, err := FindInFolder(filepath.Join(guildsDir, guild.Name(), "quests"), questID)
		if err == nil {
			return p, guild.Name(), nil
		}
	}
	return "", "", questNotFound(questID)
}
