package foldmsg

type FolderEntry struct {
	ID   string `json:"id" msgpack:"id"`
	Path string `json:"pth" msgpack:"pth"`
}

type FolderList struct {
	Folders []FolderEntry `json:"folders" msgpack:"folders"`
}

func NewFolderList(id int64, folders []FolderEntry) *Message {
	return &Message{
		Id:   id,
		Type: MsgFolderList,
		Data: FolderList{Folders: folders},
	}
}
