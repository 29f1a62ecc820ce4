package cli

import (
	"context"
	"fmt"
	"mime"
	"path/filepath"
	"strings"

	"github.com/dmitrijs2005/cloudchat/internal/client/engine"
	"github.com/dmitrijs2005/cloudchat/internal/client/models"
	"github.com/dmitrijs2005/cloudchat/internal/common"
)

// Send posts a text message.
func (a *App) Send(ctx context.Context, text string) error {
	_, err := a.engine.SendText(ctx, text)
	return err
}

// SendFile posts the file at path; the message type follows its extension.
func (a *App) SendFile(ctx context.Context, path string) error {
	m, err := a.engine.SendFile(ctx, engine.Attachment{
		Path: path,
		Type: detectType(path),
	})
	if err != nil {
		return err
	}
	a.printf("Uploading %s as %s [%s]\n", m.Content, m.Type, shortID(m.ID))
	return nil
}

// List prints the chat with transfer progress.
func (a *App) List(ctx context.Context) error {
	msgs := a.engine.Messages().Get()
	if len(msgs) == 0 {
		a.println("No messages.")
		return nil
	}

	up := a.engine.UploadProgress().Get()
	down := a.engine.DownloadProgress().Get()

	for _, m := range msgs {
		v := idleView()
		if p, ok := up[m.ID]; ok {
			v.upload = p
		}
		if p, ok := down[m.ID]; ok {
			v.download = p
		}
		if m.Type.HasPayload() {
			v.cached, _ = a.engine.CachedPath(m.ID)
		}
		a.println(formatMessage(m, v))
	}
	return nil
}

// Delete removes messages by id or id prefix.
func (a *App) Delete(ctx context.Context, refs []string) error {
	ids := make([]string, 0, len(refs))
	for _, ref := range refs {
		id, err := a.resolveID(ref)
		if err != nil {
			return err
		}
		ids = append(ids, id)
	}
	if err := a.engine.DeleteMessages(ctx, ids...); err != nil {
		return err
	}
	a.printf("%d message(s) deleted.\n", len(ids))
	return nil
}

// Retry resends a failed message.
func (a *App) Retry(ctx context.Context, ref string) error {
	id, err := a.resolveID(ref)
	if err != nil {
		return err
	}
	m, err := a.engine.RetryMessage(ctx, id)
	if err != nil {
		return err
	}
	a.printf("Resending as [%s]\n", shortID(m.ID))
	return nil
}

// Download fetches a media message into the local cache in the background.
// Progress shows up in 'list'.
func (a *App) Download(ctx context.Context, ref string) error {
	id, err := a.resolveID(ref)
	if err != nil {
		return err
	}
	if p, ok := a.engine.CachedPath(id); ok {
		a.printf("Already saved: %s\n", p)
		return nil
	}
	m, err := a.engine.Message(id)
	if err != nil {
		return err
	}
	if !m.Type.HasPayload() {
		return engine.ErrNoPayload
	}
	if err := a.engine.DownloadInBackground(id); err != nil {
		return err
	}
	a.printf("Downloading %s...\n", m.Content)
	return nil
}

// Cancel stops a running download.
func (a *App) Cancel(ctx context.Context, ref string) error {
	id, err := a.resolveID(ref)
	if err != nil {
		return err
	}
	if a.engine.CancelDownload(id) {
		a.println("Download cancelled.")
	} else {
		a.println("No download running for this message.")
	}
	return nil
}

// Fast toggles the fast poll cadence.
func (a *App) Fast(ctx context.Context) error {
	a.fast = !a.fast
	a.engine.SetFastSync(a.fast)
	a.printf("Sync interval: %s\n", a.engine.SyncInterval().Get())
	return nil
}

// Sync runs one fetch-merge-write cycle now.
func (a *App) Sync(ctx context.Context) error {
	if err := a.engine.SyncNow(ctx); err != nil {
		return err
	}
	a.println("Synced.")
	return nil
}

// resolveID accepts a full id or a unique prefix of a visible message id.
func (a *App) resolveID(ref string) (string, error) {
	var match string
	for _, m := range a.engine.Messages().Get() {
		if m.ID == ref {
			return m.ID, nil
		}
		if strings.HasPrefix(m.ID, ref) {
			if match != "" {
				return "", fmt.Errorf("ambiguous message id %q", ref)
			}
			match = m.ID
		}
	}
	if match == "" {
		return "", fmt.Errorf("%w: %s", common.ErrUnknownMessage, ref)
	}
	return match, nil
}

var extTypes = map[string]models.MessageType{
	".jpg":  models.MessageTypeImage,
	".jpeg": models.MessageTypeImage,
	".png":  models.MessageTypeImage,
	".gif":  models.MessageTypeImage,
	".webp": models.MessageTypeImage,
	".mp4":  models.MessageTypeVideo,
	".mov":  models.MessageTypeVideo,
	".mkv":  models.MessageTypeVideo,
	".webm": models.MessageTypeVideo,
	".mp3":  models.MessageTypeAudio,
	".m4a":  models.MessageTypeAudio,
	".ogg":  models.MessageTypeAudio,
	".wav":  models.MessageTypeAudio,
}

// detectType maps a file name to a message type by extension.
func detectType(path string) models.MessageType {
	ext := strings.ToLower(filepath.Ext(path))
	if t, ok := extTypes[ext]; ok {
		return t
	}
	mt := mime.TypeByExtension(ext)
	switch {
	case strings.HasPrefix(mt, "image/"):
		return models.MessageTypeImage
	case strings.HasPrefix(mt, "video/"):
		return models.MessageTypeVideo
	case strings.HasPrefix(mt, "audio/"):
		return models.MessageTypeAudio
	default:
		return models.MessageTypeFile
	}
}
