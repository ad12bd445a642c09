// Package quest reads and writes quest JSON files on disk.
//
// Every operation round-trips through the file; nothing is cached in memory.
// Writes within one process are serialised per file, across processes the
// last write wins.
package quest

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
)

const (
	// FileName is the name of the quest document inside a quest folder.
	FileName = "quest.json"
	// FolderName is the quests folder created at the project root.
	FolderName = ".dungeonmaster-quests"
	// projectMarker identifies a project root.
	projectMarker = "package.json"
)

// folderPattern matches quest folders such as "001-add-auth".
var folderPattern = regexp.MustCompile(`^(\d{3})-`)

// ProjectRootNotFoundError is returned when no ancestor of the start path
// holds a package.json.
type ProjectRootNotFoundError struct {
	StartPath string
}

func (e *ProjectRootNotFoundError) Error() string {
	return fmt.Sprintf("project root not found: no %s in %s or any parent directory", projectMarker, e.StartPath)
}

// FindProjectRoot walks up from startPath to the nearest directory holding
// a package.json. startPath may name a file that does not exist.
func FindProjectRoot(startPath string) (string, error) {
	abs, err := filepath.Abs(startPath)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", startPath, err)
	}

	dir := abs
	if info, err := os.Stat(abs); err != nil || !info.IsDir() {
		dir = filepath.Dir(abs)
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, projectMarker)); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", &ProjectRootNotFoundError{StartPath: startPath}
		}
		dir = parent
	}
}

// QuestsFolder returns the quests folder for the project containing
// startPath, creating it if missing.
func QuestsFolder(startPath string) (string, error) {
	root, err := FindProjectRoot(startPath)
	if err != nil {
		return "", err
	}
	dir := filepath.Join(root, FolderName)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create quests folder: %w", err)
	}
	return dir, nil
}

// FilePath returns the quest.json path for a quest folder.
func FilePath(questsDir, folder string) string {
	return filepath.Join(questsDir, folder, FileName)
}

// isQuestFolder reports whether a directory entry name is a quest folder.
func isQuestFolder(name string) bool {
	return folderPattern.MatchString(name)
}
