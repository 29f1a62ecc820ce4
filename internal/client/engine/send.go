package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dmitrijs2005/cloudchat/internal/client/media"
	"github.com/dmitrijs2005/cloudchat/internal/client/models"
	"github.com/dmitrijs2005/cloudchat/internal/client/state"
	"github.com/dmitrijs2005/cloudchat/internal/common"
	"github.com/dmitrijs2005/cloudchat/internal/filex"
	"github.com/sethvargo/go-retry"
)

// Attachment describes a local file to send.
type Attachment struct {
	Path string
	// Name is the remote object name; defaults to the base name of Path.
	Name          string
	Type          models.MessageType
	VideoDuration int64
}

// SendText appends a text message and schedules a history write.
func (e *Engine) SendText(ctx context.Context, text string) (models.Message, error) {
	s, err := e.active()
	if err != nil {
		return models.Message{}, err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return models.Message{}, errors.New("empty message")
	}

	msg := models.NewMessage(s.cfg.Username, text, models.MessageTypeText)
	e.appendMessage(ctx, s, msg, "")
	e.scheduleSync(s)
	return msg, nil
}

// SendFile appends a media message in the sending state and uploads the
// payload in the background. The returned message is the optimistic copy.
func (e *Engine) SendFile(ctx context.Context, a Attachment) (models.Message, error) {
	s, err := e.active()
	if err != nil {
		return models.Message{}, err
	}
	return e.sendFile(ctx, s, a, "")
}

func (e *Engine) sendFile(ctx context.Context, s *session, a Attachment, supersedes string) (models.Message, error) {
	fi, err := os.Stat(a.Path)
	if err != nil {
		return models.Message{}, fmt.Errorf("attachment: %w", err)
	}
	if !fi.Mode().IsRegular() {
		return models.Message{}, fmt.Errorf("attachment: %s is not a regular file", a.Path)
	}

	name := a.Name
	if name == "" {
		name = filepath.Base(a.Path)
	}
	typ := a.Type
	if !typ.HasPayload() {
		typ = models.MessageTypeFile
	}

	msg := models.NewMessage(s.cfg.Username, name, typ)
	msg.Status = models.StatusSending
	msg.FileSize = fi.Size()
	msg.VideoDuration = a.VideoDuration
	msg.RemoteURL = models.StringPtr(s.provider.FullURL(name))

	s.mu.Lock()
	s.transient[msg.ID] = a.Path
	s.mu.Unlock()

	state.PutKey(e.uploadProgress, msg.ID, 0)
	e.appendMessage(ctx, s, msg, supersedes)

	err = s.tasks.GoLimited("upload", func(ctx context.Context) {
		e.upload(ctx, s, msg, a.Path)
	})
	if err != nil {
		e.update(ctx, s, msg.ID, func(m *models.Message) { m.Status = models.StatusFailed })
		state.DeleteKey(e.uploadProgress, msg.ID)
		return msg, err
	}
	return msg, nil
}

// appendMessage adds msg to the local view. With supersedes set, that
// message is marked superseded by msg in the same step.
func (e *Engine) appendMessage(ctx context.Context, s *session, msg models.Message, supersedes string) {
	s.mu.Lock()
	if supersedes != "" {
		for i := range s.all {
			if s.all[i].ID == supersedes {
				s.all[i].Status = models.StatusSuperseded
				s.all[i].SupersededBy = msg.ID
			}
		}
	}
	s.all = append(s.all, msg)
	models.SortByTimestamp(s.all)
	s.mu.Unlock()

	e.commit(ctx, s)
}

// upload copies the payload into the media cache, pushes a thumbnail when
// one can be made, uploads the payload and finally writes the history.
func (e *Engine) upload(ctx context.Context, s *session, msg models.Message, src string) {
	log := e.logger.With("message_id", msg.ID, "name", msg.Content)

	from := src
	cached := e.cache.Path(msg.ID, msg.Content)
	if src != cached {
		if err := filex.CopyFile(src, cached); err != nil {
			log.Warn(ctx, "copy to media cache failed", "error", err)
		} else {
			from = cached
		}
	}

	if thumbURL, ok := e.uploadThumbnail(ctx, s, msg, from); ok {
		e.update(ctx, s, msg.ID, func(m *models.Message) { m.ThumbnailURL = models.StringPtr(thumbURL) })
	}

	progress := func(p int) { setProgress(e.uploadProgress, msg.ID, p) }
	backoff := retry.WithMaxRetries(e.opts.UploadAttempts-1,
		retry.WithCappedDuration(maxUploadBackoff, retry.NewExponential(e.opts.UploadRetryBaseDelay)))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		f, err := os.Open(from)
		if err != nil {
			return err
		}
		defer f.Close()

		if _, err := s.provider.UploadFile(ctx, f, msg.Content, msg.Type.ContentType(), msg.FileSize, progress); err != nil {
			log.Warn(ctx, "upload attempt failed", "error", err)
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		log.Error(ctx, "upload failed", "error", err)
		e.update(ctx, s, msg.ID, func(m *models.Message) { m.Status = models.StatusFailed })
		state.DeleteKey(e.uploadProgress, msg.ID)
		return
	}

	if size, err := s.provider.FileSize(ctx, msg.Content); err != nil || size <= 0 {
		log.Warn(ctx, "uploaded object size unknown", "size", size, "error", err)
	}

	if !e.update(ctx, s, msg.ID, func(m *models.Message) { m.Status = models.StatusSuccess }) {
		// deleted while uploading
		state.DeleteKey(e.uploadProgress, msg.ID)
		return
	}
	state.PutKey(e.uploadProgress, msg.ID, ProgressDone)

	s.mu.Lock()
	delete(s.transient, msg.ID)
	s.mu.Unlock()

	log.Info(ctx, "upload finished", "bytes", msg.FileSize)

	if err := e.syncNow(ctx, s); err != nil {
		log.Warn(ctx, "history sync after upload failed", "error", err)
	}
}

func (e *Engine) uploadThumbnail(ctx context.Context, s *session, msg models.Message, src string) (string, bool) {
	dst := filepath.Join(e.tmpDir, msg.ID+"_thumb.jpg")
	defer removeQuiet(dst)

	if err := e.opts.Thumbnailer.Thumbnail(src, msg.Type, dst); err != nil {
		if !errors.Is(err, media.ErrNoThumbnail) {
			e.logger.Debug(ctx, "thumbnail skipped", "message_id", msg.ID, "error", err)
		}
		return "", false
	}

	f, err := os.Open(dst)
	if err != nil {
		return "", false
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return "", false
	}

	name := media.ThumbnailName(msg.Content)
	if _, err := s.provider.UploadFile(ctx, f, name, "image/jpeg", fi.Size(), nil); err != nil {
		e.logger.Warn(ctx, "thumbnail upload failed", "message_id", msg.ID, "error", err)
		return "", false
	}
	return s.provider.FullURL(name), true
}

// RetryMessage resends a failed (or stuck sending) message under a new id.
// The old message is kept as superseded. If the payload can no longer be
// found locally, common.ErrSourceUnavailable is returned and nothing
// changes.
func (e *Engine) RetryMessage(ctx context.Context, id string) (models.Message, error) {
	s, err := e.active()
	if err != nil {
		return models.Message{}, err
	}

	old, ok := s.find(id)
	if !ok {
		return models.Message{}, fmt.Errorf("%w: %s", common.ErrUnknownMessage, id)
	}
	if old.Status != models.StatusFailed && old.Status != models.StatusSending {
		return models.Message{}, fmt.Errorf("%w: status %s", common.ErrNotRetryable, old.Status)
	}

	if !old.Type.HasPayload() {
		msg := models.NewMessage(s.cfg.Username, old.Content, models.MessageTypeText)
		e.appendMessage(ctx, s, msg, old.ID)
		e.scheduleSync(s)
		e.logger.Info(ctx, "message retried", "old_id", old.ID, "new_id", msg.ID)
		return msg, nil
	}

	src, ok := e.retrySource(s, old)
	if !ok {
		return models.Message{}, fmt.Errorf("%w: %s", common.ErrSourceUnavailable, old.Content)
	}

	msg, err := e.sendFile(ctx, s, Attachment{
		Path:          src,
		Name:          old.Content,
		Type:          old.Type,
		VideoDuration: old.VideoDuration,
	}, old.ID)
	if err != nil {
		return msg, err
	}

	s.mu.Lock()
	delete(s.transient, old.ID)
	s.mu.Unlock()
	state.DeleteKey(e.uploadProgress, old.ID)

	e.logger.Info(ctx, "message retried", "old_id", old.ID, "new_id", msg.ID)
	return msg, nil
}

// retrySource finds the payload of m: the path it was sent from, then its
// media cache copy, then any cache entry for its id.
func (e *Engine) retrySource(s *session, m models.Message) (string, bool) {
	s.mu.Lock()
	p, ok := s.transient[m.ID]
	s.mu.Unlock()
	if ok && filex.Exists(p) {
		return p, true
	}
	if p, ok := e.cache.Lookup(m.ID, m.Content); ok {
		return p, true
	}
	return e.cache.Find(m.ID)
}
