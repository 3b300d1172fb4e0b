package sync

import "log/slog"

// Listener callbacks are best-effort: a panicking listener must never break
// the sync pipeline, so every hook invocation is isolated here.

func notifyFolderStatusChanged(l Listener, folder SyncFolder) {
	if l == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			slog.Error("listener panic", "hook", "FolderStatusChanged", "panic", r)
		}
	}()
	l.FolderStatusChanged(folder)
}

func notifyConflictDetected(l Listener, conflict FileConflict) {
	if l == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			slog.Error("listener panic", "hook", "ConflictDetected", "panic", r)
		}
	}()
	l.ConflictDetected(conflict)
}

func notifyFileChanged(l Listener, event FileEvent) {
	if l == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			slog.Error("listener panic", "hook", "FileChanged", "panic", r)
		}
	}()
	l.FileChanged(event)
}
