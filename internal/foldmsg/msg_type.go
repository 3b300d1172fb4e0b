package foldmsg

import "fmt"

type MessageType uint16

const (
	MsgNotification MessageType = iota
	MsgRequest
	MsgFolderList
	MsgConflict
)

func (t MessageType) String() string {
	switch t {
	case MsgNotification:
		return "NOTIFICATION"
	case MsgRequest:
		return "REQUEST"
	case MsgFolderList:
		return "FOLDER_LIST"
	case MsgConflict:
		return "CONFLICT"
	default:
		return fmt.Sprintf("???(%d)", t)
	}
}
