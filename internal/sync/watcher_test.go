package sync

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/foldlink/foldlink/internal/foldmsg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShouldIgnoreName(t *testing.T) {
	tests := []struct {
		name    string
		ignored bool
	}{
		{"a.txt", false},
		{"photo.jpg", false},
		{".hidden", true},
		{".git", true},
		{"file.tmp", true},
		{"file.txt~", true},
		{"~notatilde", false},
		{"tmp.file", false},
		{"archive.tmp.gz", false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.ignored, shouldIgnoreName(tt.name), "name %q", tt.name)
	}
}

func TestWatcherStartStopIdempotent(t *testing.T) {
	fw := NewFolderWatcher("f1", t.TempDir(), func(FileEvent) {})

	require.NoError(t, fw.Start())
	require.NoError(t, fw.Start())

	fw.Stop()
	fw.Stop()
}

func TestWatcherMissingDirIsNoOp(t *testing.T) {
	fw := NewFolderWatcher("f1", filepath.Join(t.TempDir(), "missing"), func(FileEvent) {})
	require.NoError(t, fw.Start())
	fw.Stop()
}

func TestWatcherDeliversEvents(t *testing.T) {
	tempDir := t.TempDir()

	// macos is funny =)
	// tmpdir lives in /var/folders but it's actually symlink to /private/var/folders
	tempDir, err := filepath.EvalSymlinks(tempDir)
	require.NoError(t, err, "failed to evaluate symlinks")

	events := make(chan FileEvent, 16)
	fw := NewFolderWatcher("f1", tempDir, func(ev FileEvent) {
		events <- ev
	})
	require.NoError(t, fw.Start())
	defer fw.Stop()

	testFile := filepath.Join(tempDir, "test.txt")
	require.NoError(t, os.WriteFile(testFile, []byte("hello world"), 0o644))

	ev := waitForEvent(t, events, testFile)
	assert.Equal(t, "f1", ev.FolderID)
	assert.Contains(t, []string{foldmsg.ActionFileAdded, foldmsg.ActionFileModified}, ev.Action)

	require.NoError(t, os.Remove(testFile))
	for {
		ev = waitForEvent(t, events, testFile)
		if ev.Action == foldmsg.ActionFileDeleted {
			break
		}
	}
}

func TestWatcherFiltersNoise(t *testing.T) {
	tempDir := t.TempDir()
	tempDir, err := filepath.EvalSymlinks(tempDir)
	require.NoError(t, err)

	events := make(chan FileEvent, 16)
	fw := NewFolderWatcher("f1", tempDir, func(ev FileEvent) {
		events <- ev
	})
	require.NoError(t, fw.Start())
	defer fw.Stop()

	require.NoError(t, os.WriteFile(filepath.Join(tempDir, ".hidden"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(tempDir, "lock.tmp"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(tempDir, "backup.txt~"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(tempDir, "real.txt"), []byte("x"), 0o644))

	ev := waitForAnyEvent(t, events)
	assert.Equal(t, filepath.Join(tempDir, "real.txt"), ev.Path)
}

func waitForEvent(t *testing.T, events <-chan FileEvent, path string) FileEvent {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-events:
			if ev.Path == path {
				return ev
			}
		case <-deadline:
			t.Fatalf("timeout waiting for event on %s", path)
			return FileEvent{}
		}
	}
}

func waitForAnyEvent(t *testing.T, events <-chan FileEvent) FileEvent {
	t.Helper()
	select {
	case ev := <-events:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for file event")
		return FileEvent{}
	}
}
