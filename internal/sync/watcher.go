package sync

import (
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/foldlink/foldlink/internal/foldmsg"
	"github.com/foldlink/foldlink/internal/utils"
	"github.com/rjeczalik/notify"
)

const eventBufferSize = 64

// ignorePatterns drop editor and VCS churn before any event reaches the
// engine: dotfiles, temp files and backup files.
var ignorePatterns = []string{".*", "*.tmp", "*~"}

func shouldIgnoreName(name string) bool {
	for _, pattern := range ignorePatterns {
		if ok, _ := doublestar.Match(pattern, name); ok {
			return true
		}
	}
	return false
}

// FolderWatcher watches a single directory (non-recursive) and delivers
// semantic file events through a callback, in OS delivery order.
type FolderWatcher struct {
	folderID string
	dir      string
	callback func(FileEvent)
	events   chan notify.EventInfo
	done     chan struct{}
	wg       sync.WaitGroup
	mu       sync.Mutex
	running  bool
}

func NewFolderWatcher(folderID, dir string, callback func(FileEvent)) *FolderWatcher {
	return &FolderWatcher{
		folderID: folderID,
		dir:      dir,
		callback: callback,
	}
}

// Start begins watching. Calling it on a running watcher is a no-op, and so
// is pointing it at a path that does not exist or is not a directory.
func (fw *FolderWatcher) Start() error {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	if fw.running {
		return nil
	}
	if !utils.DirExists(fw.dir) {
		slog.Warn("folder watcher skipped: not a directory", "folder", fw.folderID, "dir", fw.dir)
		return nil
	}

	fw.events = make(chan notify.EventInfo, eventBufferSize)
	fw.done = make(chan struct{})

	// entries directly inside the folder only
	if err := notify.Watch(fw.dir, fw.events, notify.Create, notify.Write, notify.Remove, notify.Rename); err != nil {
		return err
	}

	fw.running = true
	fw.wg.Add(1)
	go fw.loop(fw.events, fw.done)

	slog.Info("folder watcher start", "folder", fw.folderID, "dir", fw.dir)
	return nil
}

// Stop tears the watcher down. An event already dispatched is allowed to
// complete; no new events are delivered after Stop returns. Idempotent.
func (fw *FolderWatcher) Stop() {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	if !fw.running {
		return
	}

	notify.Stop(fw.events)
	close(fw.done)
	fw.wg.Wait()
	fw.running = false

	slog.Info("folder watcher stop", "folder", fw.folderID)
}

func (fw *FolderWatcher) loop(events chan notify.EventInfo, done chan struct{}) {
	defer fw.wg.Done()
	for {
		select {
		case <-done:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			fw.handle(ev)
		}
	}
}

func (fw *FolderWatcher) handle(ev notify.EventInfo) {
	path := ev.Path()
	if shouldIgnoreName(filepath.Base(path)) {
		return
	}

	var action string
	switch ev.Event() {
	case notify.Create:
		action = foldmsg.ActionFileAdded
	case notify.Write:
		action = foldmsg.ActionFileModified
	case notify.Remove:
		action = foldmsg.ActionFileDeleted
	case notify.Rename:
		// the event does not say which half of the rename this is
		if utils.FileExists(path) {
			action = foldmsg.ActionFileAdded
		} else if utils.DirExists(path) {
			return
		} else {
			action = foldmsg.ActionFileDeleted
		}
	default:
		return
	}

	if action != foldmsg.ActionFileDeleted {
		info, err := os.Lstat(path)
		if err != nil {
			// vanished between event delivery and processing
			action = foldmsg.ActionFileDeleted
		} else if info.IsDir() {
			return
		}
	}

	fw.callback(FileEvent{FolderID: fw.folderID, Path: path, Action: action})
}
