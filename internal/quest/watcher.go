package quest

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// QuestChanged is emitted when a quest.json under the watched folder is
// created or rewritten.
type QuestChanged struct {
	Path string
}

// Watcher reports quest file changes in one quests folder. New quest
// folders are picked up as they appear.
type Watcher struct {
	questsDir string
	watcher   *fsnotify.Watcher
	changes   chan QuestChanged
	done      chan struct{}
	closeOnce sync.Once
}

// NewWatcher starts watching questsDir and every quest folder inside it.
func NewWatcher(questsDir string) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := fw.Add(questsDir); err != nil {
		fw.Close()
		return nil, fmt.Errorf("watch %s: %w", questsDir, err)
	}

	entries, err := os.ReadDir(questsDir)
	if err != nil {
		fw.Close()
		return nil, fmt.Errorf("read quests folder %s: %w", questsDir, err)
	}
	for _, entry := range entries {
		if entry.IsDir() && isQuestFolder(entry.Name()) {
			if err := fw.Add(filepath.Join(questsDir, entry.Name())); err != nil {
				log.Printf("[quest] cannot watch %s: %v", entry.Name(), err)
			}
		}
	}

	w := &Watcher{
		questsDir: questsDir,
		watcher:   fw,
		changes:   make(chan QuestChanged, 16),
		done:      make(chan struct{}),
	}
	go w.run()
	return w, nil
}

// Changes returns the change stream. It is closed by Close.
func (w *Watcher) Changes() <-chan QuestChanged {
	return w.changes
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.done)
		err = w.watcher.Close()
	})
	return err
}

func (w *Watcher) run() {
	defer close(w.changes)
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handle(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("[quest] watcher error: %v", err)
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	if event.Op&fsnotify.Create == 0 && event.Op&fsnotify.Write == 0 {
		return
	}

	// A new quest folder: watch it, and report a quest.json already
	// written before the watch was added.
	if filepath.Dir(event.Name) == w.questsDir && isQuestFolder(filepath.Base(event.Name)) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.watcher.Add(event.Name); err != nil {
				log.Printf("[quest] cannot watch %s: %v", event.Name, err)
			}
			path := filepath.Join(event.Name, FileName)
			if _, err := os.Stat(path); err == nil {
				w.emit(path)
			}
		}
		return
	}

	if filepath.Base(event.Name) == FileName {
		w.emit(event.Name)
	}
}

func (w *Watcher) emit(path string) {
	select {
	case w.changes <- QuestChanged{Path: path}:
	case <-w.done:
	}
}
