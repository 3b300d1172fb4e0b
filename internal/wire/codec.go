package wire

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/coder/websocket"
	"github.com/foldlink/foldlink/internal/foldmsg"
	json "github.com/goccy/go-json"
	"github.com/vmihailenco/msgpack/v5"
)

// Encoding indicates which wire encoding is used for peer messages.
type Encoding uint8

const (
	EncodingJSON Encoding = iota
	EncodingMsgPack
)

func (e Encoding) String() string {
	switch e {
	case EncodingMsgPack:
		return "msgpack"
	default:
		return "json"
	}
}

const (
	magic0  = byte('F')
	magic1  = byte('L')
	version = byte(1)

	// MaxFrameSize caps inbound frames before any decode work happens, so an
	// oversized payload from a hostile peer is rejected cheaply.
	MaxFrameSize = 4 << 20
)

var ErrFrameTooLarge = errors.New("frame exceeds max size")

// PreferredEncoding parses a comma-separated preference list (e.g. "msgpack,json").
// Returns EncodingJSON if list is empty/unknown.
func PreferredEncoding(list string) Encoding {
	parts := strings.Split(list, ",")
	for _, p := range parts {
		switch strings.ToLower(strings.TrimSpace(p)) {
		case "msgpack":
			return EncodingMsgPack
		case "json":
			return EncodingJSON
		}
	}
	return EncodingJSON
}

// Marshal encodes a foldmsg.Message for transport.
// JSON uses TextMessage without envelope.
// MsgPack uses BinaryMessage with an envelope: [magic][version][encoding][payload].
func Marshal(msg *foldmsg.Message, enc Encoding) (websocket.MessageType, []byte, error) {
	if enc == EncodingJSON {
		data, err := json.Marshal(msg)
		return websocket.MessageText, data, err
	}

	payload, err := marshalMsgpack(msg)
	if err != nil {
		return websocket.MessageBinary, nil, err
	}

	buf := make([]byte, 4+len(payload))
	buf[0], buf[1], buf[2], buf[3] = magic0, magic1, version, byte(enc)
	copy(buf[4:], payload)
	return websocket.MessageBinary, buf, nil
}

// Unmarshal decodes a peer frame into a foldmsg.Message.
func Unmarshal(typ websocket.MessageType, data []byte) (*foldmsg.Message, Encoding, error) {
	if len(data) > MaxFrameSize {
		return nil, EncodingJSON, ErrFrameTooLarge
	}

	switch typ {
	case websocket.MessageText:
		var msg foldmsg.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, EncodingJSON, err
		}
		return &msg, EncodingJSON, nil

	case websocket.MessageBinary:
		if len(data) < 4 || data[0] != magic0 || data[1] != magic1 {
			return nil, EncodingMsgPack, errors.New("binary message missing FL envelope")
		}
		if data[2] != version {
			return nil, EncodingMsgPack, fmt.Errorf("unsupported envelope version: %d", data[2])
		}
		enc := Encoding(data[3])
		payload := data[4:]
		switch enc {
		case EncodingMsgPack:
			msg, err := unmarshalMsgpack(payload)
			return msg, enc, err
		case EncodingJSON:
			// Allow binary JSON envelopes if ever used.
			var msg foldmsg.Message
			if err := json.Unmarshal(payload, &msg); err != nil {
				return nil, enc, err
			}
			return &msg, enc, nil
		default:
			return nil, enc, fmt.Errorf("unknown encoding: %d", enc)
		}

	default:
		return nil, EncodingJSON, fmt.Errorf("unsupported websocket message type: %v", typ)
	}
}

type wireMessage struct {
	Id   int64               `msgpack:"id"`
	Type foldmsg.MessageType `msgpack:"typ"`
	Data []byte              `msgpack:"dat"`
}

func marshalMsgpack(msg *foldmsg.Message) ([]byte, error) {
	var dat []byte
	var err error

	switch msg.Type {
	case foldmsg.MsgNotification:
		switch v := msg.Data.(type) {
		case foldmsg.Notification:
			dat, err = msgpack.Marshal(&v)
		case *foldmsg.Notification:
			dat, err = msgpack.Marshal(v)
		default:
			return nil, fmt.Errorf("invalid notification payload type: %T", msg.Data)
		}
	case foldmsg.MsgRequest:
		switch v := msg.Data.(type) {
		case foldmsg.Request:
			dat, err = msgpack.Marshal(&v)
		case *foldmsg.Request:
			dat, err = msgpack.Marshal(v)
		default:
			return nil, fmt.Errorf("invalid request payload type: %T", msg.Data)
		}
	case foldmsg.MsgFolderList:
		switch v := msg.Data.(type) {
		case foldmsg.FolderList:
			dat, err = msgpack.Marshal(&v)
		case *foldmsg.FolderList:
			dat, err = msgpack.Marshal(v)
		default:
			return nil, fmt.Errorf("invalid folder list payload type: %T", msg.Data)
		}
	case foldmsg.MsgConflict:
		switch v := msg.Data.(type) {
		case foldmsg.Conflict:
			dat, err = msgpack.Marshal(&v)
		case *foldmsg.Conflict:
			dat, err = msgpack.Marshal(v)
		default:
			return nil, fmt.Errorf("invalid conflict payload type: %T", msg.Data)
		}
	default:
		return nil, fmt.Errorf("unknown message type: %d", msg.Type)
	}
	if err != nil {
		return nil, err
	}

	w := wireMessage{Id: msg.Id, Type: msg.Type, Data: dat}
	return msgpack.Marshal(&w)
}

func unmarshalMsgpack(payload []byte) (*foldmsg.Message, error) {
	var w wireMessage
	dec := msgpack.NewDecoder(bytes.NewReader(payload))
	dec.SetCustomStructTag("msgpack")
	if err := dec.Decode(&w); err != nil {
		return nil, err
	}

	msg := &foldmsg.Message{Id: w.Id, Type: w.Type}
	switch w.Type {
	case foldmsg.MsgNotification:
		var ntf foldmsg.Notification
		if err := msgpack.Unmarshal(w.Data, &ntf); err != nil {
			return nil, err
		}
		msg.Data = ntf
	case foldmsg.MsgRequest:
		var req foldmsg.Request
		if err := msgpack.Unmarshal(w.Data, &req); err != nil {
			return nil, err
		}
		msg.Data = req
	case foldmsg.MsgFolderList:
		var fl foldmsg.FolderList
		if err := msgpack.Unmarshal(w.Data, &fl); err != nil {
			return nil, err
		}
		msg.Data = fl
	case foldmsg.MsgConflict:
		var cfl foldmsg.Conflict
		if err := msgpack.Unmarshal(w.Data, &cfl); err != nil {
			return nil, err
		}
		msg.Data = cfl
	default:
		return nil, fmt.Errorf("unknown message type: %d", w.Type)
	}

	return msg, nil
}
