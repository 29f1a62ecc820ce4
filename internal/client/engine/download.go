package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/cloudchat/internal/client/models"
	"github.com/dmitrijs2005/cloudchat/internal/client/state"
	"github.com/dmitrijs2005/cloudchat/internal/common"
	"github.com/dmitrijs2005/cloudchat/internal/filex"
)

type download struct {
	cancel    context.CancelFunc
	cancelled bool
}

// CachedPath returns a local copy of the message payload if there is one.
func (e *Engine) CachedPath(id string) (string, bool) {
	s, err := e.active()
	if err != nil {
		return "", false
	}
	m, ok := s.find(id)
	if !ok {
		return "", false
	}

	s.mu.Lock()
	p, ok := s.transient[id]
	s.mu.Unlock()
	if ok && filex.Exists(p) {
		return p, true
	}
	if p, ok := e.cache.Lookup(id, m.Content); ok {
		return p, true
	}
	return e.cache.Find(id)
}

// DownloadToCache fetches the payload of message id into the media cache
// and returns its path. A cached payload is returned without any transfer.
// Only one download per id runs at a time; a concurrent request gets
// ErrDownloadInProgress.
func (e *Engine) DownloadToCache(ctx context.Context, id string) (string, error) {
	s, err := e.active()
	if err != nil {
		return "", err
	}
	return e.downloadToCache(ctx, s, id)
}

func (e *Engine) downloadToCache(ctx context.Context, s *session, id string) (string, error) {
	m, ok := s.find(id)
	if !ok {
		return "", fmt.Errorf("%w: %s", common.ErrUnknownMessage, id)
	}
	if !m.Type.HasPayload() {
		return "", ErrNoPayload
	}

	dctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(s.tasks.Context(), cancel)
	defer stop()
	defer cancel()

	// Slot first, then cache: whoever gets a free slot also sees the file of
	// any download that already finished.
	d := &download{cancel: cancel}
	s.mu.Lock()
	_, busy := s.downloads[id]
	if !busy {
		s.downloads[id] = d
	}
	s.mu.Unlock()

	if p, ok := e.cache.Lookup(id, m.Content); ok {
		if !busy {
			s.mu.Lock()
			delete(s.downloads, id)
			s.mu.Unlock()
		}
		state.PutKey(e.downloadProgress, id, ProgressDone)
		return p, nil
	}
	if busy {
		return "", ErrDownloadInProgress
	}
	state.PutKey(e.activeDownloads, id, true)

	defer func() {
		s.mu.Lock()
		delete(s.downloads, id)
		s.mu.Unlock()
		state.DeleteKey(e.activeDownloads, id)
	}()

	target := e.cache.Path(id, m.Content)
	tmp := e.cache.TempPath(id, m.Content)
	removeQuiet(tmp)

	state.PutKey(e.downloadProgress, id, 0)
	err := s.provider.DownloadFile(dctx, m.Content, tmp, func(p int) {
		setProgress(e.downloadProgress, id, p)
	})

	s.mu.Lock()
	cancelled := d.cancelled
	s.mu.Unlock()

	if err == nil && cancelled {
		err = context.Canceled
	}
	if err != nil {
		removeQuiet(tmp)
		state.DeleteKey(e.downloadProgress, id)
		if cancelled {
			e.logger.Info(ctx, "download cancelled", "message_id", id)
			return "", ErrDownloadCancelled
		}
		e.logger.Warn(ctx, "download failed", "message_id", id, "error", err)
		return "", fmt.Errorf("download %s: %w", m.Content, err)
	}

	if err := filex.MoveFile(tmp, target); err != nil {
		removeQuiet(tmp)
		state.DeleteKey(e.downloadProgress, id)
		return "", fmt.Errorf("move into cache: %w", err)
	}

	state.PutKey(e.downloadProgress, id, ProgressDone)
	e.logger.Debug(ctx, "download finished", "message_id", id, "path", target)
	return target, nil
}

// CancelDownload stops the running download of id. It reports whether a
// download was running.
func (e *Engine) CancelDownload(id string) bool {
	s := e.current()
	if s == nil {
		return false
	}

	s.mu.Lock()
	d, ok := s.downloads[id]
	if ok {
		d.cancelled = true
	}
	s.mu.Unlock()

	if ok {
		d.cancel()
	}
	return ok
}

// DownloadInBackground starts DownloadToCache as a background transfer.
func (e *Engine) DownloadInBackground(id string) error {
	s, err := e.active()
	if err != nil {
		return err
	}
	return e.downloadAsync(s, id)
}

func (e *Engine) downloadAsync(s *session, id string) error {
	s.mu.Lock()
	if s.queued[id] {
		s.mu.Unlock()
		return nil
	}
	s.queued[id] = true
	s.mu.Unlock()

	err := s.tasks.GoLimited("download", func(ctx context.Context) {
		defer func() {
			s.mu.Lock()
			delete(s.queued, id)
			s.mu.Unlock()
		}()

		_, err := e.downloadToCache(ctx, s, id)
		switch {
		case err == nil, errors.Is(err, ErrDownloadInProgress), errors.Is(err, ErrDownloadCancelled):
		default:
			e.logger.Warn(ctx, "background download failed", "message_id", id, "error", err)
		}
	})
	if err != nil {
		s.mu.Lock()
		delete(s.queued, id)
		s.mu.Unlock()
	}
	return err
}

// autoDownload fetches small incoming media that is not cached yet.
func (e *Engine) autoDownload(s *session, msgs []models.Message) {
	limit := s.cfg.AutoDownloadLimit
	if limit <= 0 {
		return
	}

	for _, m := range msgs {
		if !m.Type.HasPayload() || m.IsOutgoing || !m.Visible() {
			continue
		}
		if m.FileSize <= 0 || m.FileSize > limit {
			continue
		}
		if _, ok := e.cache.Lookup(m.ID, m.Content); ok {
			continue
		}
		s.mu.Lock()
		_, busy := s.downloads[m.ID]
		s.mu.Unlock()
		if busy {
			continue
		}
		if err := e.downloadAsync(s, m.ID); err != nil {
			return
		}
	}
}
