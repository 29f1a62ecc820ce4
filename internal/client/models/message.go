// Package models defines the client-side data models: chat messages as they
// appear in the shared history document and account (server) configurations.
package models

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// MessageType classifies the payload of a message.
type MessageType string

const (
	MessageTypeText  MessageType = "text"
	MessageTypeImage MessageType = "image"
	MessageTypeVideo MessageType = "video"
	MessageTypeAudio MessageType = "audio"
	MessageTypeFile  MessageType = "file"
)

// HasPayload reports whether messages of this type carry a binary object.
func (t MessageType) HasPayload() bool {
	return t != MessageTypeText && t != ""
}

// ContentType is the MIME type used when uploading a payload of this type.
func (t MessageType) ContentType() string {
	switch t {
	case MessageTypeImage:
		return "image/jpeg"
	case MessageTypeVideo:
		return "video/mp4"
	case MessageTypeAudio:
		return "audio/mpeg"
	case MessageTypeText:
		return "text/plain"
	default:
		return "application/octet-stream"
	}
}

// MessageStatus is the lifecycle state of a message.
type MessageStatus string

const (
	StatusSending MessageStatus = "sending"
	StatusSuccess MessageStatus = "success"
	StatusFailed  MessageStatus = "failed"
	// StatusSuperseded marks a failed message that was retried under a new id.
	// It stays in the local mirror for lineage and is never uploaded.
	StatusSuperseded MessageStatus = "superseded"
)

// Message is one chat event. For non-text types Content holds the remote
// object's file name.
type Message struct {
	ID            string        `json:"id"`
	Sender        string        `json:"sender"`
	SenderName    string        `json:"sender_name,omitempty"`
	Content       string        `json:"content"`
	Type          MessageType   `json:"type"`
	Timestamp     int64         `json:"timestamp"`
	RemoteURL     *string       `json:"remote_url"`
	FileSize      int64         `json:"file_size"`
	VideoDuration int64         `json:"video_duration"`
	IsOutgoing    bool          `json:"is_outgoing"`
	Status        MessageStatus `json:"status"`
	ThumbnailURL  *string       `json:"thumbnail_url"`

	// Local-only bookkeeping; stripped before the document is uploaded.
	SupersededBy string `json:"superseded_by,omitempty"`
	Confirmed    bool   `json:"confirmed,omitempty"`
}

// NewMessage builds a message with a fresh id and the current client time.
func NewMessage(sender, content string, typ MessageType) Message {
	return Message{
		ID:         uuid.NewString(),
		Sender:     sender,
		SenderName: sender,
		Content:    content,
		Type:       typ,
		Timestamp:  time.Now().UnixMilli(),
		IsOutgoing: true,
		Status:     StatusSuccess,
	}
}

// Visible reports whether the message belongs in the chat view.
func (m Message) Visible() bool {
	return m.Status != StatusSuperseded
}

// Pending reports whether the message has not (yet) been accepted remotely.
func (m Message) Pending() bool {
	return m.Status == StatusSending || m.Status == StatusFailed
}

// ForRemote returns a copy suitable for the shared history document.
func (m Message) ForRemote() Message {
	m.SupersededBy = ""
	m.Confirmed = false
	return m
}

// SortByTimestamp stable-sorts messages by timestamp ascending.
func SortByTimestamp(msgs []Message) {
	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].Timestamp < msgs[j].Timestamp
	})
}

// StringPtr returns &s, or nil for "".
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
