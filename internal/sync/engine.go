package sync

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/dustin/go-humanize"
	"github.com/foldlink/foldlink/internal/foldmsg"
	"golang.org/x/sync/errgroup"
)

// Engine orchestrates the folder watchers: it reacts to local filesystem
// events by updating the ledger and emitting outbound change notifications,
// and seeds the ledger with full-folder scans.
type Engine struct {
	states    *StateManager
	transport Transport
	listener  Listener
	ids       *IDSequence
	mu        sync.Mutex
	watchers  map[string]*FolderWatcher
	scanning  mapset.Set[string]
}

func NewEngine(states *StateManager, transport Transport, listener Listener, ids *IDSequence) *Engine {
	return &Engine{
		states:    states,
		transport: transport,
		listener:  listener,
		ids:       ids,
		watchers:  make(map[string]*FolderWatcher),
		scanning:  mapset.NewSet[string](),
	}
}

// Start watches every given folder and scans them for a ledger baseline.
// An empty folder list is a no-op.
func (e *Engine) Start(folders []SyncFolder) error {
	for _, folder := range folders {
		if err := e.WatchFolder(folder); err != nil {
			slog.Warn("watch failed", "folder", folder.ID, "error", err)
		}
	}

	g := new(errgroup.Group)
	for _, folder := range folders {
		folder := folder
		g.Go(func() error {
			if err := e.ScanFolder(folder); err != nil {
				// a folder that cannot be scanned right now is degraded, not fatal
				slog.Warn("folder scan failed", "folder", folder.ID, "error", err)
			}
			return nil
		})
	}
	return g.Wait()
}

// Stop tears down all watchers and leaves the ledger intact. Idempotent.
func (e *Engine) Stop() {
	e.mu.Lock()
	watchers := e.watchers
	e.watchers = make(map[string]*FolderWatcher)
	e.mu.Unlock()

	for _, w := range watchers {
		w.Stop()
	}
	if len(watchers) > 0 {
		slog.Info("sync engine stop", "watchers", len(watchers))
	}
}

// Destroy stops all watchers and clears the ledger entirely. Used on plugin
// teardown, not on ordinary stop. Idempotent.
func (e *Engine) Destroy() {
	e.Stop()
	if err := e.states.ClearAll(); err != nil {
		slog.Error("ledger clear failed", "error", err)
	}
}

// WatchFolder adds or replaces the watcher for folder.ID.
func (e *Engine) WatchFolder(folder SyncFolder) error {
	watcher := NewFolderWatcher(folder.ID, folder.Path, e.handleEvent)

	e.mu.Lock()
	old := e.watchers[folder.ID]
	e.watchers[folder.ID] = watcher
	e.mu.Unlock()

	if old != nil {
		old.Stop()
	}
	return watcher.Start()
}

// UnwatchFolder removes the watcher for id, if any. Idempotent.
func (e *Engine) UnwatchFolder(id string) {
	e.mu.Lock()
	watcher := e.watchers[id]
	delete(e.watchers, id)
	e.mu.Unlock()

	if watcher != nil {
		watcher.Stop()
	}
}

// ScanFolder walks the folder one level deep and seeds the ledger with an
// Idle entry per non-hidden regular file, so watcher events have a baseline
// to diff against. Concurrent scans of the same folder coalesce.
func (e *Engine) ScanFolder(folder SyncFolder) error {
	if !e.scanning.Add(folder.ID) {
		slog.Debug("folder scan already running", "folder", folder.ID)
		return nil
	}
	defer e.scanning.Remove(folder.ID)

	entries, err := os.ReadDir(folder.Path)
	if err != nil {
		return fmt.Errorf("scan folder %s: %w", folder.ID, err)
	}

	tstart := time.Now()
	var files int
	var totalBytes int64

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !entry.Type().IsRegular() || shouldIgnoreName(name) {
			continue
		}

		path := filepath.Join(folder.Path, name)
		info, err := entry.Info()
		if err != nil {
			slog.Warn("scan stat failed", "path", path, "error", err)
			continue
		}

		checksum := e.ComputeChecksum(path)
		if checksum == "" {
			continue
		}

		state := SyncFileInfo{
			Path:         path,
			Checksum:     checksum,
			LastModified: info.ModTime().UnixMilli(),
			Size:         info.Size(),
			State:        FileIdle,
		}
		if err := e.states.UpdateFileState(state); err != nil {
			slog.Error("ledger update failed", "path", path, "error", err)
			continue
		}

		files++
		totalBytes += info.Size()
	}

	slog.Info("folder scan", "folder", folder.ID, "files", files,
		"size", humanize.Bytes(uint64(totalBytes)), "took", time.Since(tstart))
	return nil
}

// ComputeChecksum returns the content digest of path, or the empty string if
// the file is unreadable right now. Files can disappear between event
// delivery and processing; callers treat "" as skip-checksum and still
// propagate the event.
func (e *Engine) ComputeChecksum(path string) string {
	checksum, err := ChecksumFile(path)
	if err != nil {
		slog.Warn("checksum failed", "path", path, "error", err)
		return ""
	}
	return checksum
}

// handleEvent is the core local-change path. A failure in any single step is
// logged and never stops future events for the folder.
func (e *Engine) handleEvent(event FileEvent) {
	action := event.Action
	var checksum string
	var size, lastModified int64

	if action != foldmsg.ActionFileDeleted {
		info, err := os.Stat(event.Path)
		if err != nil {
			// gone before we got to it
			action = foldmsg.ActionFileDeleted
		} else {
			size = info.Size()
			lastModified = info.ModTime().UnixMilli()
			checksum = e.ComputeChecksum(event.Path)
		}
	}

	if action == foldmsg.ActionFileDeleted {
		if err := e.states.RemoveFileState(event.Path); err != nil {
			slog.Error("ledger remove failed", "path", event.Path, "error", err)
		}
	} else {
		if action == foldmsg.ActionFileModified && checksum != "" {
			if prev, ok := e.states.GetFileState(event.Path); ok && prev.Checksum == checksum {
				// touch or metadata churn, the content did not change
				slog.Debug("unchanged content, skipping", "path", event.Path)
				return
			}
		}
		state := SyncFileInfo{
			Path:         event.Path,
			Checksum:     checksum,
			LastModified: lastModified,
			Size:         size,
			State:        FilePendingUpload,
		}
		if err := e.states.UpdateFileState(state); err != nil {
			slog.Error("ledger update failed", "path", event.Path, "error", err)
		}
	}

	msg := foldmsg.NewNotification(e.ids.Next(), foldmsg.Notification{
		Action:       action,
		Path:         event.Path,
		SyncFolderID: event.FolderID,
		Checksum:     checksum,
		Size:         size,
		Timestamp:    time.Now().UnixMilli(),
	})
	if err := e.transport.Send(msg); err != nil {
		slog.Warn("change notification send failed", "path", event.Path, "error", err)
	}

	notifyFileChanged(e.listener, FileEvent{FolderID: event.FolderID, Path: event.Path, Action: action})
}
