package engine

import (
	"context"

	"github.com/dmitrijs2005/cloudchat/internal/client/history"
	"github.com/dmitrijs2005/cloudchat/internal/client/media"
	"github.com/dmitrijs2005/cloudchat/internal/client/models"
	"github.com/dmitrijs2005/cloudchat/internal/client/state"
)

// DeleteMessages removes ids from the local view at once and from the
// remote document and storage in the background. Deleted ids cannot come
// back through a concurrent pull. Unknown ids are ignored.
func (e *Engine) DeleteMessages(ctx context.Context, ids ...string) error {
	s, err := e.active()
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}
	drop := history.NewIDSet(ids...)

	s.mu.Lock()
	var victims []models.Message
	kept := make([]models.Message, 0, len(s.all))
	for _, m := range s.all {
		if drop.Has(m.ID) {
			victims = append(victims, m)
			continue
		}
		kept = append(kept, m)
	}
	s.all = kept
	s.tombstones.Add(ids...)
	for _, id := range ids {
		delete(s.transient, id)
	}

	// A retried message shares its object name with its replacement, so an
	// object is only removed when no surviving message refers to it.
	inUse := make(map[string]bool)
	for _, m := range kept {
		if m.Type.HasPayload() {
			inUse[m.Content] = true
		}
	}
	s.mu.Unlock()

	e.commit(ctx, s)

	for _, m := range victims {
		e.CancelDownload(m.ID)
		state.DeleteKey(e.uploadProgress, m.ID)
		state.DeleteKey(e.downloadProgress, m.ID)
		if m.Type.HasPayload() {
			e.cache.Remove(m.ID, m.Content)
		}
	}

	e.logger.Info(ctx, "messages deleted", "count", len(victims))

	err = s.tasks.Go("delete", func(ctx context.Context) {
		for _, m := range victims {
			if !m.Type.HasPayload() || inUse[m.Content] {
				continue
			}
			if err := s.provider.DeleteFile(ctx, m.Content); err != nil {
				e.logger.Warn(ctx, "delete remote object failed", "name", m.Content, "error", err)
			}
			if m.ThumbnailURL != nil {
				thumb := media.ThumbnailName(m.Content)
				if err := s.provider.DeleteFile(ctx, thumb); err != nil {
					e.logger.Warn(ctx, "delete remote thumbnail failed", "name", thumb, "error", err)
				}
			}
		}
		if err := e.syncNow(ctx, s); err != nil {
			e.logger.Warn(ctx, "history sync after delete failed", "error", err)
		}
	})
	if err != nil {
		s.dirty.Store(true)
	}
	return nil
}
