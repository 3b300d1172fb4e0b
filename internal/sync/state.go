package sync

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/foldlink/foldlink/internal/kvstore"
	json "github.com/goccy/go-json"
)

const fileStatesKey = "sync.file_states"

// StateManager is the ledger: the durable table of per-file sync state.
// Lookups never touch I/O; every mutation flushes the whole ledger through
// the key-value store synchronously (write-through). Losing the very last
// flush in a crash is acceptable since a folder rescan recomputes the truth
// from disk.
type StateManager struct {
	store kvstore.Store
	mu    sync.RWMutex
	files map[string]SyncFileInfo
}

func NewStateManager(store kvstore.Store) *StateManager {
	return &StateManager{
		store: store,
		files: make(map[string]SyncFileInfo),
	}
}

// GetFileState returns the ledger entry for path, if tracked.
func (m *StateManager) GetFileState(path string) (SyncFileInfo, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	info, ok := m.files[path]
	return info, ok
}

// UpdateFileState inserts or replaces the entry for info.Path and flushes.
func (m *StateManager) UpdateFileState(info SyncFileInfo) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[info.Path] = info
	return m.flushLocked()
}

// RemoveFileState deletes the entry for path and flushes. Removing an
// untracked path is a no-op flush.
func (m *StateManager) RemoveFileState(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.files, path)
	return m.flushLocked()
}

// AllStates returns a snapshot copy of the ledger, never a live view.
func (m *StateManager) AllStates() map[string]SyncFileInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	snapshot := make(map[string]SyncFileInfo, len(m.files))
	for path, info := range m.files {
		snapshot[path] = info
	}
	return snapshot
}

// Count returns the number of tracked files.
func (m *StateManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.files)
}

// ClearAll empties the ledger and flushes.
func (m *StateManager) ClearAll() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files = make(map[string]SyncFileInfo)
	return m.flushLocked()
}

// Load hydrates the ledger from the store. A corrupt record is skipped and
// logged; it never aborts loading its siblings.
func (m *StateManager) Load() error {
	raw, ok, err := m.store.GetString(fileStatesKey)
	if err != nil {
		return fmt.Errorf("load file states: %w", err)
	}
	if !ok || raw == "" {
		return nil
	}

	var entries map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		return fmt.Errorf("parse file states: %w", err)
	}

	files := make(map[string]SyncFileInfo, len(entries))
	for path, entry := range entries {
		var info SyncFileInfo
		if err := json.Unmarshal(entry, &info); err != nil {
			slog.Warn("skipping corrupt ledger record", "path", path, "error", err)
			continue
		}
		if info.Path == "" {
			info.Path = path
		}
		if !info.State.Valid() {
			info.State = FileIdle
		}
		files[path] = info
	}

	m.mu.Lock()
	m.files = files
	m.mu.Unlock()

	slog.Debug("ledger loaded", "files", len(files))
	return nil
}

func (m *StateManager) flushLocked() error {
	data, err := json.Marshal(m.files)
	if err != nil {
		return fmt.Errorf("encode file states: %w", err)
	}
	if err := m.store.SetString(fileStatesKey, string(data)); err != nil {
		return fmt.Errorf("persist file states: %w", err)
	}
	return nil
}
