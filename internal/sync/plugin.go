package sync

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/foldlink/foldlink/internal/foldmsg"
	"github.com/foldlink/foldlink/internal/kvstore"
	json "github.com/goccy/go-json"
	"github.com/google/uuid"
)

const foldersKey = "sync.folders"

// Plugin is the protocol-facing facade of the sync subsystem: it owns the
// folder registry, the bounded conflict list, inbound packet dispatch and
// outbound request construction. The listener is attached at construction
// and holds for the plugin's lifetime.
type Plugin struct {
	store     kvstore.Store
	transport Transport
	listener  Listener
	ids       IDSequence
	states    *StateManager
	engine    *Engine
	conflicts *ConflictList
	scans     sync.WaitGroup
	mu        sync.RWMutex
	folders   []SyncFolder
}

func NewPlugin(store kvstore.Store, transport Transport, listener Listener) *Plugin {
	p := &Plugin{
		store:     store,
		transport: transport,
		listener:  listener,
		conflicts: NewConflictList(DefaultConflictCapacity),
	}
	p.states = NewStateManager(store)
	p.engine = NewEngine(p.states, transport, listener, &p.ids)
	return p
}

// Start hydrates the ledger and folder registry from the store and begins
// watching every registered folder.
func (p *Plugin) Start() error {
	if err := p.states.Load(); err != nil {
		// an unreadable ledger is not fatal, rescans rebuild it
		slog.Warn("ledger load failed", "error", err)
	}

	folders := p.loadFolders()
	p.mu.Lock()
	p.folders = folders
	p.mu.Unlock()

	slog.Info("sync plugin start", "folders", len(folders))
	return p.engine.Start(folders)
}

// Stop tears down the watchers and drains in-flight scans; the ledger and
// registry stay intact.
func (p *Plugin) Stop() {
	p.engine.Stop()
	p.scans.Wait()
}

// Destroy stops everything and clears the ledger. In-flight scans are drained
// before the clear so a straggler cannot re-seed it. Idempotent.
func (p *Plugin) Destroy() {
	p.Stop()
	p.engine.Destroy()
	for _, c := range p.conflicts.All() {
		p.conflicts.Remove(c.Path)
	}
}

// Folders returns a snapshot of the folder registry.
func (p *Plugin) Folders() []SyncFolder {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]SyncFolder, len(p.folders))
	copy(out, p.folders)
	return out
}

// Conflicts returns the current conflicts, oldest first.
func (p *Plugin) Conflicts() []FileConflict {
	return p.conflicts.All()
}

// FileStates returns a snapshot of the ledger.
func (p *Plugin) FileStates() map[string]SyncFileInfo {
	return p.states.AllStates()
}

// HandlePacket dispatches one inbound peer packet. Malformed packets are
// rejected at the smallest possible granularity and never partially applied.
func (p *Plugin) HandlePacket(msg *foldmsg.Message) {
	if msg == nil {
		return
	}

	switch msg.Type {
	case foldmsg.MsgNotification:
		ntf, ok := notificationPayload(msg.Data)
		if !ok {
			slog.Warn("bad notification payload", "id", msg.Id, "type", fmt.Sprintf("%T", msg.Data))
			return
		}
		p.handleNotification(ntf)

	case foldmsg.MsgFolderList:
		fl, ok := folderListPayload(msg.Data)
		if !ok {
			slog.Warn("bad folder list payload", "id", msg.Id, "type", fmt.Sprintf("%T", msg.Data))
			return
		}
		p.handleFolderList(fl)

	case foldmsg.MsgConflict:
		cfl, ok := conflictPayload(msg.Data)
		if !ok {
			slog.Warn("bad conflict payload", "id", msg.Id, "type", fmt.Sprintf("%T", msg.Data))
			return
		}
		p.handleConflict(cfl)

	case foldmsg.MsgRequest:
		req, ok := requestPayload(msg.Data)
		if !ok {
			slog.Warn("bad request payload", "id", msg.Id, "type", fmt.Sprintf("%T", msg.Data))
			return
		}
		p.handleRequest(req)

	default:
		slog.Warn("unhandled packet type", "id", msg.Id, "type", msg.Type)
	}
}

func (p *Plugin) handleNotification(ntf foldmsg.Notification) {
	if ntf.IsFileChange() {
		if ntf.Path == "" || ntf.SyncFolderID == "" {
			slog.Warn("file change notification missing fields", "action", ntf.Action)
			return
		}
		// informational only: remote changes never mutate the local ledger,
		// the transfer collaborator materializes them on disk and the
		// watcher picks that up as a local event
		notifyFileChanged(p.listener, FileEvent{
			FolderID: ntf.SyncFolderID,
			Path:     ntf.Path,
			Action:   ntf.Action,
		})
		return
	}

	if ntf.SyncFolderID == "" {
		slog.Warn("sync status notification missing folder id", "action", ntf.Action)
		return
	}

	switch ntf.Action {
	case foldmsg.ActionSyncStarted:
		p.setFolderStatus(ntf.SyncFolderID, FolderSyncing)
	case foldmsg.ActionSyncComplete:
		p.setFolderStatus(ntf.SyncFolderID, FolderComplete)
	case foldmsg.ActionSyncFailed:
		p.setFolderStatus(ntf.SyncFolderID, FolderError)
	default:
		slog.Warn("unknown notification action", "action", ntf.Action)
	}
}

func (p *Plugin) handleFolderList(fl foldmsg.FolderList) {
	accepted := make([]SyncFolder, 0, len(fl.Folders))
	for _, entry := range fl.Folders {
		if entry.ID == "" {
			slog.Warn("dropping folder entry with empty id", "path", entry.Path)
			continue
		}
		if err := ValidatePath(entry.Path); err != nil {
			slog.Warn("dropping folder entry with unsafe path", "id", entry.ID, "path", entry.Path, "error", err)
			continue
		}
		accepted = append(accepted, SyncFolder{ID: entry.ID, Path: entry.Path, Status: FolderIdle})
	}

	p.mu.Lock()
	previous := p.folders
	p.folders = accepted
	p.mu.Unlock()
	p.persistFolders()

	// the list replaces the registry, so watchers for folders the peer
	// dropped go down with it
	keep := make(map[string]bool, len(accepted))
	for _, folder := range accepted {
		keep[folder.ID] = true
	}
	for _, folder := range previous {
		if !keep[folder.ID] {
			p.engine.UnwatchFolder(folder.ID)
		}
	}

	for _, folder := range accepted {
		p.registerFolder(folder)
	}
	slog.Info("folder registry replaced", "accepted", len(accepted), "dropped", len(fl.Folders)-len(accepted))
}

func (p *Plugin) handleConflict(cfl foldmsg.Conflict) {
	if cfl.Path == "" || cfl.SyncFolderID == "" {
		slog.Warn("conflict notification missing fields", "path", cfl.Path)
		return
	}

	conflict := FileConflict{
		Path:            cfl.Path,
		LocalChecksum:   cfl.LocalChecksum,
		RemoteChecksum:  cfl.RemoteChecksum,
		LocalTimestamp:  cfl.LocalTimestamp,
		RemoteTimestamp: cfl.RemoteTimestamp,
		SyncFolderID:    cfl.SyncFolderID,
	}
	p.conflicts.Add(conflict)
	notifyConflictDetected(p.listener, conflict)
}

// handleRequest answers the peer's mirror requests. Only the folder listing
// is served from this side; everything else is the peer's own bookkeeping.
func (p *Plugin) handleRequest(req foldmsg.Request) {
	if !req.ListFolders {
		slog.Debug("ignoring peer request", "request", fmt.Sprintf("%+v", req))
		return
	}

	folders := p.Folders()
	entries := make([]foldmsg.FolderEntry, len(folders))
	for i, f := range folders {
		entries[i] = foldmsg.FolderEntry{ID: f.ID, Path: f.Path}
	}
	if err := p.transport.Send(foldmsg.NewFolderList(p.ids.Next(), entries)); err != nil {
		slog.Warn("folder list send failed", "error", err)
	}
}

// RequestFolderList asks the peer for its folder registry.
func (p *Plugin) RequestFolderList() error {
	return p.transport.Send(foldmsg.NewListFoldersRequest(p.ids.Next()))
}

// AddFolder registers a local folder, starts watching and scanning it, and
// announces it to the peer. The path must pass validation before anything is
// sent or registered.
func (p *Plugin) AddFolder(path string) (SyncFolder, error) {
	if err := ValidatePath(path); err != nil {
		return SyncFolder{}, fmt.Errorf("refusing folder %q: %w", path, err)
	}

	folder := SyncFolder{ID: uuid.NewString(), Path: path, Status: FolderIdle}

	p.mu.Lock()
	next := make([]SyncFolder, 0, len(p.folders)+1)
	next = append(next, p.folders...)
	next = append(next, folder)
	p.folders = next
	p.mu.Unlock()
	p.persistFolders()

	p.registerFolder(folder)

	if err := p.transport.Send(foldmsg.NewAddFolderRequest(p.ids.Next(), path)); err != nil {
		slog.Warn("add folder request send failed", "path", path, "error", err)
	}
	return folder, nil
}

// RemoveFolder unregisters a folder locally (registry + watcher) regardless
// of whether the peer acknowledges, then tells the peer.
func (p *Plugin) RemoveFolder(id string) {
	p.mu.Lock()
	next := make([]SyncFolder, 0, len(p.folders))
	for _, f := range p.folders {
		if f.ID != id {
			next = append(next, f)
		}
	}
	p.folders = next
	p.mu.Unlock()
	p.persistFolders()

	p.engine.UnwatchFolder(id)

	if err := p.transport.Send(foldmsg.NewRemoveFolderRequest(p.ids.Next(), id)); err != nil {
		slog.Warn("remove folder request send failed", "folder", id, "error", err)
	}
}

// RequestSync asks the peer to sync one folder.
func (p *Plugin) RequestSync(folderID string) error {
	return p.transport.Send(foldmsg.NewSyncRequest(p.ids.Next(), folderID))
}

// ResolveConflict declares which side of a conflict wins. The conflict is
// removed locally immediately; the request to the peer rides the
// reliable-ordered link and needs no acknowledgment.
func (p *Plugin) ResolveConflict(path, resolution string) error {
	if resolution != foldmsg.ResolutionLocal && resolution != foldmsg.ResolutionRemote {
		return fmt.Errorf("invalid resolution %q", resolution)
	}

	p.conflicts.Remove(path)
	return p.transport.Send(foldmsg.NewResolveConflictRequest(p.ids.Next(), path, resolution))
}

func (p *Plugin) setFolderStatus(id string, status FolderStatus) {
	p.mu.Lock()
	var updated SyncFolder
	found := false
	next := make([]SyncFolder, len(p.folders))
	for i, f := range p.folders {
		if f.ID == id {
			f.Status = status
			updated = f
			found = true
		}
		next[i] = f
	}
	p.folders = next
	p.mu.Unlock()

	if !found {
		slog.Warn("sync status for unknown folder", "folder", id, "status", status)
		return
	}
	notifyFolderStatusChanged(p.listener, updated)
}

func (p *Plugin) registerFolder(folder SyncFolder) {
	if err := p.engine.WatchFolder(folder); err != nil {
		slog.Warn("watch failed", "folder", folder.ID, "error", err)
	}
	// scans hit the disk, keep them off the packet/UI path
	p.scans.Add(1)
	go func() {
		defer p.scans.Done()
		if err := p.engine.ScanFolder(folder); err != nil {
			slog.Warn("folder scan failed", "folder", folder.ID, "error", err)
		}
	}()
}

func (p *Plugin) persistFolders() {
	p.mu.RLock()
	entries := make([]foldmsg.FolderEntry, len(p.folders))
	for i, f := range p.folders {
		entries[i] = foldmsg.FolderEntry{ID: f.ID, Path: f.Path}
	}
	p.mu.RUnlock()

	data, err := json.Marshal(entries)
	if err != nil {
		slog.Error("encode folder registry failed", "error", err)
		return
	}
	if err := p.store.SetString(foldersKey, string(data)); err != nil {
		slog.Error("persist folder registry failed", "error", err)
	}
}

func (p *Plugin) loadFolders() []SyncFolder {
	raw, ok, err := p.store.GetString(foldersKey)
	if err != nil {
		slog.Warn("folder registry load failed", "error", err)
		return nil
	}
	if !ok || raw == "" {
		return nil
	}

	var entries []foldmsg.FolderEntry
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		slog.Warn("corrupt folder registry", "error", err)
		return nil
	}

	folders := make([]SyncFolder, 0, len(entries))
	for _, entry := range entries {
		if entry.ID == "" {
			continue
		}
		if err := ValidatePath(entry.Path); err != nil {
			slog.Warn("dropping persisted folder", "id", entry.ID, "path", entry.Path, "error", err)
			continue
		}
		folders = append(folders, SyncFolder{ID: entry.ID, Path: entry.Path, Status: FolderIdle})
	}
	return folders
}

func notificationPayload(data any) (foldmsg.Notification, bool) {
	switch v := data.(type) {
	case foldmsg.Notification:
		return v, true
	case *foldmsg.Notification:
		return *v, true
	default:
		return foldmsg.Notification{}, false
	}
}

func folderListPayload(data any) (foldmsg.FolderList, bool) {
	switch v := data.(type) {
	case foldmsg.FolderList:
		return v, true
	case *foldmsg.FolderList:
		return *v, true
	default:
		return foldmsg.FolderList{}, false
	}
}

func conflictPayload(data any) (foldmsg.Conflict, bool) {
	switch v := data.(type) {
	case foldmsg.Conflict:
		return v, true
	case *foldmsg.Conflict:
		return *v, true
	default:
		return foldmsg.Conflict{}, false
	}
}

func requestPayload(data any) (foldmsg.Request, bool) {
	switch v := data.(type) {
	case foldmsg.Request:
		return v, true
	case *foldmsg.Request:
		return *v, true
	default:
		return foldmsg.Request{}, false
	}
}
