package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/cloudchat/internal/client/models"
	"github.com/dustin/go-humanize"
)

const shortIDLen = 8

// messageView carries the transfer state shown next to a message.
// Negative progress means no transfer.
type messageView struct {
	upload   int
	download int
	cached   string
}

func idleView() messageView {
	return messageView{upload: -1, download: -1}
}

func shortID(id string) string {
	if len(id) <= shortIDLen {
		return id
	}
	return id[:shortIDLen]
}

func senderLabel(m models.Message) string {
	switch {
	case m.IsOutgoing:
		return "me"
	case m.SenderName != "":
		return m.SenderName
	default:
		return m.Sender
	}
}

// formatMessage renders one chat line:
//
//	[1a2b3c4d] 14:02 alice: hello
//	[5e6f7a8b] 14:03 me: <image cat.jpg, 1.2 MB> (sending 40%)
func formatMessage(m models.Message, v messageView) string {
	var b strings.Builder
	at := time.UnixMilli(m.Timestamp)

	fmt.Fprintf(&b, "[%s] %s %s: ", shortID(m.ID), at.Local().Format("15:04"), senderLabel(m))

	if m.Type.HasPayload() {
		b.WriteString("<" + string(m.Type) + " " + m.Content)
		if m.FileSize > 0 {
			b.WriteString(", " + humanize.Bytes(uint64(m.FileSize)))
		}
		if m.Type == models.MessageTypeVideo && m.VideoDuration > 0 {
			b.WriteString(", " + (time.Duration(m.VideoDuration) * time.Millisecond).String())
		}
		b.WriteString(">")
	} else {
		b.WriteString(m.Content)
	}

	switch m.Status {
	case models.StatusSending:
		if v.upload >= 0 {
			fmt.Fprintf(&b, " (sending %d%%)", v.upload)
		} else {
			b.WriteString(" (sending)")
		}
	case models.StatusFailed:
		b.WriteString(" (failed, use 'retry " + shortID(m.ID) + "')")
	}

	switch {
	case v.download >= 0:
		fmt.Fprintf(&b, " (downloading %d%%)", v.download)
	case v.cached != "":
		b.WriteString(" saved: " + v.cached)
	}
	return b.String()
}
