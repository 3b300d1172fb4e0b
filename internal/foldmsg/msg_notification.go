package foldmsg

// Actions carried by a Notification.
const (
	ActionFileAdded    = "file_added"
	ActionFileModified = "file_modified"
	ActionFileDeleted  = "file_deleted"
	ActionSyncStarted  = "sync_started"
	ActionSyncComplete = "sync_complete"
	ActionSyncFailed   = "sync_failed"
)

type Notification struct {
	Action       string `json:"act" msgpack:"act"`
	Path         string `json:"pth" msgpack:"pth"`
	SyncFolderID string `json:"fid" msgpack:"fid"`
	Checksum     string `json:"sum,omitempty" msgpack:"sum,omitempty"`
	Size         int64  `json:"len,omitempty" msgpack:"len,omitempty"`
	Timestamp    int64  `json:"ts" msgpack:"ts"`
}

// IsFileChange reports whether the action describes a file mutation, as
// opposed to a folder sync status transition.
func (n *Notification) IsFileChange() bool {
	switch n.Action {
	case ActionFileAdded, ActionFileModified, ActionFileDeleted:
		return true
	default:
		return false
	}
}

func NewNotification(id int64, n Notification) *Message {
	return &Message{
		Id:   id,
		Type: MsgNotification,
		Data: n,
	}
}
