package foldmsg

// Conflict resolutions carried by a Request.
const (
	ResolutionLocal  = "local"
	ResolutionRemote = "remote"
)

// Request is the single generic request message. Exactly one of the one-of
// groups below is set per message.
type Request struct {
	ListFolders     bool   `json:"list,omitempty" msgpack:"list,omitempty"`
	AddFolderPath   string `json:"add,omitempty" msgpack:"add,omitempty"`
	RemoveFolderID  string `json:"rm,omitempty" msgpack:"rm,omitempty"`
	RequestSync     bool   `json:"sync,omitempty" msgpack:"sync,omitempty"`
	SyncFolderID    string `json:"fid,omitempty" msgpack:"fid,omitempty"`
	ResolveConflict bool   `json:"res,omitempty" msgpack:"res,omitempty"`
	Path            string `json:"pth,omitempty" msgpack:"pth,omitempty"`
	Resolution      string `json:"win,omitempty" msgpack:"win,omitempty"`
}

func NewListFoldersRequest(id int64) *Message {
	return &Message{
		Id:   id,
		Type: MsgRequest,
		Data: Request{ListFolders: true},
	}
}

func NewAddFolderRequest(id int64, path string) *Message {
	return &Message{
		Id:   id,
		Type: MsgRequest,
		Data: Request{AddFolderPath: path},
	}
}

func NewRemoveFolderRequest(id int64, folderID string) *Message {
	return &Message{
		Id:   id,
		Type: MsgRequest,
		Data: Request{RemoveFolderID: folderID},
	}
}

func NewSyncRequest(id int64, folderID string) *Message {
	return &Message{
		Id:   id,
		Type: MsgRequest,
		Data: Request{RequestSync: true, SyncFolderID: folderID},
	}
}

func NewResolveConflictRequest(id int64, path string, resolution string) *Message {
	return &Message{
		Id:   id,
		Type: MsgRequest,
		Data: Request{ResolveConflict: true, Path: path, Resolution: resolution},
	}
}
