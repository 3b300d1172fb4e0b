package foldmsg

import (
	"fmt"

	json "github.com/goccy/go-json"
)

type Message struct {
	Id   int64       `json:"id"`
	Type MessageType `json:"typ"`
	Data any         `json:"dat"`
}

// UnmarshalJSON implements the json.Unmarshaler interface for Message
func (m *Message) UnmarshalJSON(data []byte) error {
	// Create a temporary struct to hold the raw JSON data
	type tempMessage struct {
		Id   int64           `json:"id"`
		Type MessageType     `json:"typ"`
		Data json.RawMessage `json:"dat"`
	}

	var temp tempMessage
	if err := json.Unmarshal(data, &temp); err != nil {
		return err
	}

	// Copy the simple fields
	m.Id = temp.Id
	m.Type = temp.Type

	// Unmarshal Data based on the message type
	switch m.Type {
	case MsgNotification:
		var ntf Notification
		if err := json.Unmarshal(temp.Data, &ntf); err != nil {
			return err
		}
		m.Data = ntf
	case MsgRequest:
		var req Request
		if err := json.Unmarshal(temp.Data, &req); err != nil {
			return err
		}
		m.Data = req
	case MsgFolderList:
		var fl FolderList
		if err := json.Unmarshal(temp.Data, &fl); err != nil {
			return err
		}
		m.Data = fl
	case MsgConflict:
		var cfl Conflict
		if err := json.Unmarshal(temp.Data, &cfl); err != nil {
			return err
		}
		m.Data = cfl
	default:
		return fmt.Errorf("unknown message type: %d", m.Type)
	}

	return nil
}
