package sync

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/foldlink/foldlink/internal/foldmsg"
	"github.com/foldlink/foldlink/internal/kvstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureTransport struct {
	mu   sync.Mutex
	sent []*foldmsg.Message
}

func (c *captureTransport) Send(msg *foldmsg.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, msg)
	return nil
}

func (c *captureTransport) notifications() []foldmsg.Notification {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []foldmsg.Notification
	for _, msg := range c.sent {
		if ntf, ok := msg.Data.(foldmsg.Notification); ok {
			out = append(out, ntf)
		}
	}
	return out
}

type failTransport struct{}

func (failTransport) Send(*foldmsg.Message) error {
	return errors.New("link down")
}

type recordListener struct {
	mu        sync.Mutex
	statuses  []SyncFolder
	conflicts []FileConflict
	changes   []FileEvent
}

func (l *recordListener) FolderStatusChanged(f SyncFolder) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.statuses = append(l.statuses, f)
}

func (l *recordListener) ConflictDetected(c FileConflict) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.conflicts = append(l.conflicts, c)
}

func (l *recordListener) FileChanged(e FileEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.changes = append(l.changes, e)
}

func (l *recordListener) fileChanges() []FileEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]FileEvent, len(l.changes))
	copy(out, l.changes)
	return out
}

type panicListener struct{}

func (panicListener) FolderStatusChanged(SyncFolder) { panic("ui bug") }
func (panicListener) ConflictDetected(FileConflict)  { panic("ui bug") }
func (panicListener) FileChanged(FileEvent)          { panic("ui bug") }

func newTestEngine(t *testing.T, transport Transport, listener Listener) (*Engine, *StateManager) {
	t.Helper()
	states := NewStateManager(kvstore.NewMemoryStore())
	var ids IDSequence
	return NewEngine(states, transport, listener, &ids), states
}

func TestScanFolderSeedsLedger(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("hi"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".hidden"), []byte("x"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))

	engine, states := newTestEngine(t, &captureTransport{}, nil)
	require.NoError(t, engine.ScanFolder(SyncFolder{ID: "f1", Path: dir}))

	info, ok := states.GetFileState(filepath.Join(dir, "a.txt"))
	require.True(t, ok)
	assert.Equal(t, hiDigest, info.Checksum)
	assert.Equal(t, FileIdle, info.State)
	assert.Equal(t, int64(2), info.Size)

	_, ok = states.GetFileState(filepath.Join(dir, ".hidden"))
	assert.False(t, ok)
	_, ok = states.GetFileState(filepath.Join(dir, "sub"))
	assert.False(t, ok)
}

func TestScanFolderMissingDir(t *testing.T) {
	engine, _ := newTestEngine(t, &captureTransport{}, nil)
	err := engine.ScanFolder(SyncFolder{ID: "f1", Path: filepath.Join(t.TempDir(), "missing")})
	assert.Error(t, err)
}

func TestHandleEventModified(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(path, []byte("hi"), 0o644))

	transport := &captureTransport{}
	listener := &recordListener{}
	engine, states := newTestEngine(t, transport, listener)
	require.NoError(t, engine.ScanFolder(SyncFolder{ID: "f1", Path: dir}))

	require.NoError(t, os.WriteFile(path, []byte("bye"), 0o644))
	engine.handleEvent(FileEvent{FolderID: "f1", Path: path, Action: foldmsg.ActionFileModified})

	byeDigest, err := Checksum(strings.NewReader("bye"))
	require.NoError(t, err)

	info, ok := states.GetFileState(path)
	require.True(t, ok)
	assert.Equal(t, byeDigest, info.Checksum)
	assert.Equal(t, FilePendingUpload, info.State)

	ntfs := transport.notifications()
	require.Len(t, ntfs, 1)
	assert.Equal(t, foldmsg.ActionFileModified, ntfs[0].Action)
	assert.Equal(t, path, ntfs[0].Path)
	assert.Equal(t, "f1", ntfs[0].SyncFolderID)
	assert.Equal(t, byeDigest, ntfs[0].Checksum)
	assert.Equal(t, int64(3), ntfs[0].Size)

	require.Len(t, listener.fileChanges(), 1)
}

func TestHandleEventUnchangedContentSkipped(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(path, []byte("hi"), 0o644))

	transport := &captureTransport{}
	engine, _ := newTestEngine(t, transport, nil)
	require.NoError(t, engine.ScanFolder(SyncFolder{ID: "f1", Path: dir}))

	// a touch without a content change produces no notification
	engine.handleEvent(FileEvent{FolderID: "f1", Path: path, Action: foldmsg.ActionFileModified})
	assert.Empty(t, transport.notifications())
}

func TestHandleEventDeleted(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(path, []byte("hi"), 0o644))

	transport := &captureTransport{}
	engine, states := newTestEngine(t, transport, nil)
	require.NoError(t, engine.ScanFolder(SyncFolder{ID: "f1", Path: dir}))

	require.NoError(t, os.Remove(path))
	engine.handleEvent(FileEvent{FolderID: "f1", Path: path, Action: foldmsg.ActionFileDeleted})

	_, ok := states.GetFileState(path)
	assert.False(t, ok)

	ntfs := transport.notifications()
	require.Len(t, ntfs, 1)
	assert.Equal(t, foldmsg.ActionFileDeleted, ntfs[0].Action)
	assert.Empty(t, ntfs[0].Checksum)
}

func TestHandleEventVanishedFileBecomesDelete(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ghost.txt")

	transport := &captureTransport{}
	engine, states := newTestEngine(t, transport, nil)

	// the file is gone by the time the event is processed
	engine.handleEvent(FileEvent{FolderID: "f1", Path: path, Action: foldmsg.ActionFileModified})

	_, ok := states.GetFileState(path)
	assert.False(t, ok)

	ntfs := transport.notifications()
	require.Len(t, ntfs, 1)
	assert.Equal(t, foldmsg.ActionFileDeleted, ntfs[0].Action)
}

func TestHandleEventListenerPanicIsolated(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(path, []byte("hi"), 0o644))

	transport := &captureTransport{}
	engine, _ := newTestEngine(t, transport, panicListener{})

	require.NotPanics(t, func() {
		engine.handleEvent(FileEvent{FolderID: "f1", Path: path, Action: foldmsg.ActionFileAdded})
	})
	assert.Len(t, transport.notifications(), 1)
}

func TestHandleEventSendFailureDoesNotAbort(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(path, []byte("hi"), 0o644))

	engine, states := newTestEngine(t, failTransport{}, nil)
	engine.handleEvent(FileEvent{FolderID: "f1", Path: path, Action: foldmsg.ActionFileAdded})

	// the ledger update still holds even though the send failed
	info, ok := states.GetFileState(path)
	require.True(t, ok)
	assert.Equal(t, FilePendingUpload, info.State)
}

func TestEngineStopIdempotent(t *testing.T) {
	engine, _ := newTestEngine(t, &captureTransport{}, nil)
	require.NoError(t, engine.Start([]SyncFolder{{ID: "f1", Path: t.TempDir()}}))

	engine.Stop()
	engine.Stop()
}

func TestEngineStartEmpty(t *testing.T) {
	engine, _ := newTestEngine(t, &captureTransport{}, nil)
	require.NoError(t, engine.Start(nil))
	engine.Stop()
}

func TestEngineDestroyClearsLedger(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("hi"), 0o644))

	engine, states := newTestEngine(t, &captureTransport{}, nil)
	require.NoError(t, engine.Start([]SyncFolder{{ID: "f1", Path: dir}}))
	require.Equal(t, 1, states.Count())

	engine.Destroy()
	assert.Equal(t, 0, states.Count())

	// idempotent
	engine.Destroy()
}

func TestWatchFolderReplaceAndUnwatch(t *testing.T) {
	engine, _ := newTestEngine(t, &captureTransport{}, nil)
	folder := SyncFolder{ID: "f1", Path: t.TempDir()}

	require.NoError(t, engine.WatchFolder(folder))
	// replacing the watcher for the same id is expected
	require.NoError(t, engine.WatchFolder(folder))

	engine.UnwatchFolder("f1")
	engine.UnwatchFolder("f1")
	engine.Stop()
}
