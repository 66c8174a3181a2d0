package dingtalk

import "strings"

// MsgTypeText is the only inbound message type the bot answers.
const MsgTypeText = "text"

// IncomingMessage is the payload DingTalk posts to an outgoing-webhook robot.
type IncomingMessage struct {
	MsgType        string `json:"msgtype"`
	Text           Text   `json:"text"`
	SenderNick     string `json:"senderNick"`
	SenderName     string `json:"senderName"`
	SenderID       string `json:"senderId"`
	SenderStaffID  string `json:"senderStaffId"`
	UserID         string `json:"userid"`
	ConversationID string `json:"conversationId"`
}

// Text is the body of a text message.
type Text struct {
	Content string `json:"content"`
}

// Content returns the trimmed message text.
func (m IncomingMessage) Content() string {
	return strings.TrimSpace(m.Text.Content)
}

// Nick returns a display name for the sender.
func (m IncomingMessage) Nick() string {
	if m.SenderNick != "" {
		return m.SenderNick
	}
	if m.SenderName != "" {
		return m.SenderName
	}
	return "Unknown"
}

// SenderKey returns an id that can be used to @ the sender, or "" when none was sent.
func (m IncomingMessage) SenderKey() string {
	switch {
	case m.SenderStaffID != "":
		return m.SenderStaffID
	case m.SenderID != "":
		return m.SenderID
	default:
		return m.UserID
	}
}

// OwnerID identifies the sender for storage, falling back to the nick.
func (m IncomingMessage) OwnerID() string {
	if key := m.SenderKey(); key != "" {
		return key
	}
	return m.Nick()
}

type outgoingMessage struct {
	MsgType string `json:"msgtype"`
	Text    Text   `json:"text"`
	At      at     `json:"at"`
}

type at struct {
	IsAtAll   bool     `json:"isAtAll"`
	AtUserIDs []string `json:"atUserIds"`
	AtMobiles []string `json:"atMobiles"`
}

type sendResponse struct {
	ErrCode int    `json:"errcode"`
	ErrMsg  string `json:"errmsg"`
}
