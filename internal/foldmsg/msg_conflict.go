package foldmsg

type Conflict struct {
	Path            string `json:"pth" msgpack:"pth"`
	LocalChecksum   string `json:"lsum" msgpack:"lsum"`
	RemoteChecksum  string `json:"rsum" msgpack:"rsum"`
	LocalTimestamp  int64  `json:"lts" msgpack:"lts"`
	RemoteTimestamp int64  `json:"rts" msgpack:"rts"`
	SyncFolderID    string `json:"fid" msgpack:"fid"`
}

func NewConflict(id int64, c Conflict) *Message {
	return &Message{
		Id:   id,
		Type: MsgConflict,
		Data: c,
	}
}
