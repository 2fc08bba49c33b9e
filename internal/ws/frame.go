package ws

import (
	"encoding/base64"
	"encoding/json"
)

// Inbound wire frames. Each frame is a single JSON object discriminated by
// its "type" field; the decoder maps it onto one of the variants below.

type Frame interface {
	frameType() string
}

type AuthenticateFrame struct {
	Token  string `json:"token"`
	UserID int    `json:"user_id"`
}

type ConnectToChatsFrame struct{}

type StartChatFrame struct {
	// Receiver is the counterpart's username.
	Receiver string `json:"receiver"`
}

type SendMessageFrame struct {
	ChatID int `json:"chat_id"`
	// Receiver is the counterpart's user id.
	Receiver       int    `json:"receiver"`
	Body           string `json:"body"`
	Attachment     string `json:"attachment"`
	AttachmentName string `json:"attachment_name"`
}

type EditMessageFrame struct {
	Message        int    `json:"message"`
	Body           string `json:"body"`
	Attachment     string `json:"attachment"`
	AttachmentName string `json:"attachment_name"`
}

type DeleteMessageFrame struct {
	ID int `json:"id"`
}

type ReadChatFrame struct {
	ID int `json:"id"`
}

type DeleteChatFrame struct {
	ID int `json:"id"`
}

type GetChatHistoryFrame struct {
	Chat int `json:"chat"`
}

func (AuthenticateFrame) frameType() string   { return "authenticate" }
func (ConnectToChatsFrame) frameType() string { return "connect_to_chats" }
func (StartChatFrame) frameType() string      { return "start_chat" }
func (SendMessageFrame) frameType() string    { return "send_message" }
func (EditMessageFrame) frameType() string    { return "edit_message" }
func (DeleteMessageFrame) frameType() string  { return "delete_message" }
func (ReadChatFrame) frameType() string       { return "read_chat" }
func (DeleteChatFrame) frameType() string     { return "delete_chat" }
func (GetChatHistoryFrame) frameType() string { return "get_chat_history" }

// DecodeFrame parses one wire frame. Unknown type values yield a nil frame
// and no error; they are skipped to stay compatible with newer clients.
func DecodeFrame(data []byte) (Frame, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, err
	}

	decode := func(frame Frame) (Frame, error) {
		if err := json.Unmarshal(data, frame); err != nil {
			return nil, err
		}
		return frame, nil
	}

	switch envelope.Type {
	case "authenticate":
		return decode(&AuthenticateFrame{})
	case "connect_to_chats":
		return decode(&ConnectToChatsFrame{})
	case "start_chat":
		return decode(&StartChatFrame{})
	case "send_message":
		return decode(&SendMessageFrame{})
	case "edit_message":
		return decode(&EditMessageFrame{})
	case "delete_message":
		return decode(&DeleteMessageFrame{})
	case "read_chat":
		return decode(&ReadChatFrame{})
	case "delete_chat":
		return decode(&DeleteChatFrame{})
	case "get_chat_history":
		return decode(&GetChatHistoryFrame{})
	default:
		return nil, nil
	}
}

// DecodeAttachment decodes the base64 wire form of an attachment. An absent
// or empty field means "no attachment" and is never an error.
func DecodeAttachment(encoded string) ([]byte, error) {
	if encoded == "" {
		return nil, nil
	}
	return base64.StdEncoding.DecodeString(encoded)
}

// EncodeAttachment produces the base64 wire form of stored attachment bytes.
func EncodeAttachment(raw []byte) string {
	if len(raw) == 0 {
		return ""
	}
	return base64.StdEncoding.EncodeToString(raw)
}
