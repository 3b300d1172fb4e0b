package sync

import (
	"sync/atomic"

	"github.com/foldlink/foldlink/internal/foldmsg"
)

// FolderStatus is the peer-driven sync state of a registered folder.
type FolderStatus uint8

const (
	FolderIdle FolderStatus = iota
	FolderSyncing
	FolderComplete
	FolderError
)

var folderStatusNames = []string{
	"Idle",
	"Syncing",
	"Complete",
	"Error",
}

func (s FolderStatus) String() string {
	if int(s) < len(folderStatusNames) {
		return folderStatusNames[s]
	}
	return "Unknown"
}

// SyncFolder is an immutable snapshot of a registered folder. Status changes
// replace the value rather than mutating it in place.
type SyncFolder struct {
	ID     string       `json:"id"`
	Path   string       `json:"path"`
	Status FolderStatus `json:"status"`
}

// FileState is the per-file sync state stored in the ledger. Persisted as a
// string so states added later load as FileIdle on older data rather than
// failing.
type FileState string

const (
	FileIdle            FileState = "idle"
	FilePendingUpload   FileState = "pending_upload"
	FileUploading       FileState = "uploading"
	FilePendingDownload FileState = "pending_download"
	FileDownloading     FileState = "downloading"
	FileConflictState   FileState = "conflict"
	FileError           FileState = "error"
)

func (s FileState) Valid() bool {
	switch s {
	case FileIdle, FilePendingUpload, FileUploading, FilePendingDownload,
		FileDownloading, FileConflictState, FileError:
		return true
	default:
		return false
	}
}

// SyncFileInfo is the ledger entry for one file: the last locally observed
// and confirmed state of its content.
type SyncFileInfo struct {
	Path         string    `json:"path"`
	Checksum     string    `json:"checksum"`
	LastModified int64     `json:"lastModified"`
	Size         int64     `json:"size"`
	State        FileState `json:"state"`
}

// FileEvent is a semantic filesystem event emitted by a FolderWatcher.
type FileEvent struct {
	FolderID string
	Path     string
	Action   string // one of the foldmsg file_* actions
}

// FileConflict records a divergence between local and remote versions of the
// same path, awaiting an explicit resolution.
type FileConflict struct {
	Path            string
	LocalChecksum   string
	RemoteChecksum  string
	LocalTimestamp  int64
	RemoteTimestamp int64
	SyncFolderID    string
}

// Transport is the fire-and-forget message send primitive provided by the
// paired session layer.
type Transport interface {
	Send(msg *foldmsg.Message) error
}

// Listener receives UI-facing callbacks. Implementations may misbehave;
// every invocation is isolated so a listener panic never breaks the sync
// pipeline.
type Listener interface {
	FolderStatusChanged(folder SyncFolder)
	ConflictDetected(conflict FileConflict)
	FileChanged(event FileEvent)
}

// IDSequence hands out monotonically increasing packet ids.
type IDSequence struct {
	n atomic.Int64
}

func (s *IDSequence) Next() int64 {
	return s.n.Add(1)
}
