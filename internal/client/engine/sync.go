package engine

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/dmitrijs2005/cloudchat/internal/client/history"
	"github.com/dmitrijs2005/cloudchat/internal/client/models"
	"github.com/dmitrijs2005/cloudchat/internal/common"
	"github.com/sethvargo/go-retry"
)

// fetchRemote downloads and decodes the history document. ok is false when
// there is no usable remote history: the document is missing or cannot be
// parsed. Only transport failures are errors.
func (e *Engine) fetchRemote(ctx context.Context, s *session) (remote []models.Message, ok bool, err error) {
	f, err := os.CreateTemp(e.tmpDir, "history-*.json")
	if err != nil {
		return nil, false, err
	}
	tmp := f.Name()
	_ = f.Close()
	defer removeQuiet(tmp)

	if err := s.provider.DownloadFile(ctx, common.HistoryFileName, tmp, nil); err != nil {
		if errors.Is(err, common.ErrNotFound) {
			e.logger.Info(ctx, "remote history missing")
			return nil, false, nil
		}
		return nil, false, err
	}

	b, err := os.ReadFile(tmp)
	if err != nil {
		return nil, false, err
	}
	remote, err = history.Decode(b)
	if err != nil {
		e.logger.Warn(ctx, "remote history unparsable, keeping local state", "error", err)
		return nil, false, nil
	}
	history.MarkOutgoing(remote, s.cfg.Username)
	return remote, true, nil
}

// refresh pulls the remote document and merges it into the local view
// without writing anything back. Without a usable remote the local view is
// left as it is.
func (e *Engine) refresh(ctx context.Context, s *session) error {
	s.syncMu.Lock()
	defer s.syncMu.Unlock()

	remote, ok, err := e.fetchRemote(ctx, s)
	if err != nil || !ok {
		return err
	}

	s.mu.Lock()
	s.tombstones.Prune(history.IDs(remote))
	s.all = history.Merge(s.all, remote, s.tombstones.Set())
	merged := s.all
	s.mu.Unlock()

	e.commit(ctx, s)
	e.autoDownload(s, merged)
	return nil
}

// SyncNow runs one fetch-merge-write cycle against the active account.
func (e *Engine) SyncNow(ctx context.Context) error {
	s, err := e.active()
	if err != nil {
		return err
	}
	return e.syncNow(ctx, s)
}

// syncNow fetches the remote document, folds in local messages the remote
// has not seen, uploads the result and merges it back. A missing or
// unparsable document is replaced by one built from all local successful
// messages. If the remote cannot be reached the write is skipped and retried
// by the poll loop.
func (e *Engine) syncNow(ctx context.Context, s *session) error {
	s.syncMu.Lock()
	defer s.syncMu.Unlock()

	remote, ok, err := e.fetchRemote(ctx, s)
	if err != nil {
		s.dirty.Store(true)
		return err
	}

	s.mu.Lock()
	exclude := s.tombstones.Set()
	local := s.all
	if !ok {
		// Rebuild the document from everything this device has.
		local = history.Unconfirmed(local)
		remote = nil
	}
	doc := history.BuildRemote(local, remote, exclude)
	s.mu.Unlock()

	body, err := history.Encode(doc)
	if err != nil {
		return err
	}
	if _, err := s.provider.UploadText(ctx, string(body), common.HistoryFileName); err != nil {
		s.dirty.Store(true)
		return err
	}
	s.dirty.Store(false)

	history.MarkOutgoing(doc, s.cfg.Username)

	s.mu.Lock()
	s.tombstones.Prune(history.IDs(doc))
	s.all = history.Merge(s.all, doc, s.tombstones.Set())
	merged := s.all
	s.mu.Unlock()

	e.commit(ctx, s)

	if lm, err := s.provider.LastModified(ctx, common.HistoryFileName); err == nil {
		s.lastSeen = lm
	}

	e.autoDownload(s, merged)
	return nil
}

// scheduleSync runs syncNow in the background.
func (e *Engine) scheduleSync(s *session) {
	err := s.tasks.Go("sync", func(ctx context.Context) {
		if err := e.syncNow(ctx, s); err != nil {
			e.logger.Warn(ctx, "history sync failed", "error", err)
		}
	})
	if err != nil {
		s.dirty.Store(true)
	}
}

// SetFastSync switches the poll interval between the normal and the fast
// cadence.
func (e *Engine) SetFastSync(fast bool) {
	d := e.opts.SyncInterval
	if fast {
		d = e.opts.FastSyncInterval
	}
	e.syncInterval.Set(d)

	if s := e.current(); s != nil {
		select {
		case s.wake <- struct{}{}:
		default:
		}
	}
}

func (e *Engine) startPoll(s *session) {
	ctx, cancel := context.WithCancel(s.tasks.Context())
	s.stopPoll = cancel
	s.pollDone = make(chan struct{})

	go func() {
		defer close(s.pollDone)
		e.pollLoop(ctx, s)
	}()
}

func (e *Engine) newPollBackoff() retry.Backoff {
	return retry.WithCappedDuration(maxPollBackoff, retry.NewExponential(e.syncInterval.Get()))
}

// pollLoop checks the history document every sync interval. After a
// failure the wait grows exponentially from the interval up to a minute.
func (e *Engine) pollLoop(ctx context.Context, s *session) {
	var backoff retry.Backoff
	for {
		wait := e.syncInterval.Get()
		if backoff != nil {
			if d, stop := backoff.Next(); !stop {
				wait = d
			}
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-s.wake:
			timer.Stop()
			backoff = nil
			continue
		case <-timer.C:
		}

		if err := e.pollOnce(ctx, s); err != nil {
			if ctx.Err() != nil {
				return
			}
			e.logger.Warn(ctx, "poll failed", "error", err)
			if backoff == nil {
				backoff = e.newPollBackoff()
				// the first failure already waited one interval
				_, _ = backoff.Next()
			}
			continue
		}
		backoff = nil
	}
}

// pollOnce flushes a pending write, or pulls when the document changed.
func (e *Engine) pollOnce(ctx context.Context, s *session) error {
	if s.dirty.Load() {
		return e.syncNow(ctx, s)
	}

	lm, err := s.provider.LastModified(ctx, common.HistoryFileName)
	if errors.Is(err, common.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	s.syncMu.Lock()
	changed := lm.IsZero() || lm.After(s.lastSeen)
	s.syncMu.Unlock()
	if !changed {
		return nil
	}

	if err := e.refresh(ctx, s); err != nil {
		return err
	}

	s.syncMu.Lock()
	if lm.After(s.lastSeen) {
		s.lastSeen = lm
	}
	s.syncMu.Unlock()
	return nil
}
