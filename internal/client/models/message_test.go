package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMessage_Defaults(t *testing.T) {
	m := NewMessage("alice", "hello", MessageTypeText)

	require.NotEmpty(t, m.ID)
	assert.Equal(t, "alice", m.Sender)
	assert.Equal(t, StatusSuccess, m.Status)
	assert.True(t, m.IsOutgoing)
	assert.Positive(t, m.Timestamp)
	assert.NotEqual(t, m.ID, NewMessage("alice", "hello", MessageTypeText).ID)
}

func TestMessageType(t *testing.T) {
	assert.False(t, MessageTypeText.HasPayload())
	assert.True(t, MessageTypeImage.HasPayload())
	assert.True(t, MessageTypeFile.HasPayload())
	assert.Equal(t, "image/jpeg", MessageTypeImage.ContentType())
	assert.Equal(t, "video/mp4", MessageTypeVideo.ContentType())
	assert.Equal(t, "application/octet-stream", MessageTypeFile.ContentType())
}

func TestMessage_ForRemoteStripsLocalFields(t *testing.T) {
	m := Message{ID: "1", Status: StatusSuccess, Confirmed: true, SupersededBy: "2"}

	b, err := json.Marshal(m.ForRemote())
	require.NoError(t, err)

	assert.NotContains(t, string(b), "confirmed")
	assert.NotContains(t, string(b), "superseded_by")
	assert.True(t, m.Confirmed, "original must not be modified")
}

func TestMessage_JSONNullReferences(t *testing.T) {
	b, err := json.Marshal(Message{ID: "1", Type: MessageTypeText})
	require.NoError(t, err)
	assert.Contains(t, string(b), `"remote_url":null`)
	assert.Contains(t, string(b), `"thumbnail_url":null`)
}

func TestSortByTimestamp_Stable(t *testing.T) {
	msgs := []Message{
		{ID: "c", Timestamp: 3},
		{ID: "a1", Timestamp: 1},
		{ID: "b", Timestamp: 2},
		{ID: "a2", Timestamp: 1},
	}
	SortByTimestamp(msgs)

	ids := make([]string, len(msgs))
	for i, m := range msgs {
		ids[i] = m.ID
	}
	assert.Equal(t, []string{"a1", "a2", "b", "c"}, ids)
}

func TestMessage_VisibleAndPending(t *testing.T) {
	assert.False(t, Message{Status: StatusSuperseded}.Visible())
	assert.True(t, Message{Status: StatusFailed}.Visible())
	assert.True(t, Message{Status: StatusSending}.Pending())
	assert.True(t, Message{Status: StatusFailed}.Pending())
	assert.False(t, Message{Status: StatusSuccess}.Pending())
}

func TestStringPtr(t *testing.T) {
	assert.Nil(t, StringPtr(""))
	require.NotNil(t, StringPtr("x"))
	assert.Equal(t, "x", *StringPtr("x"))
}
