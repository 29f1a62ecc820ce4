// Package engine is the history synchronization engine: it keeps the local
// view of one account's chat, merges it with the shared history document,
// and runs uploads, downloads and the poll loop in the background.
//
// All state a presentation layer needs is exposed as state.Value
// observables. Engine methods are safe for concurrent use.
package engine

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"os"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dmitrijs2005/cloudchat/internal/client/history"
	"github.com/dmitrijs2005/cloudchat/internal/client/media"
	"github.com/dmitrijs2005/cloudchat/internal/client/models"
	"github.com/dmitrijs2005/cloudchat/internal/client/state"
	"github.com/dmitrijs2005/cloudchat/internal/client/storage"
	"github.com/dmitrijs2005/cloudchat/internal/client/tasks"
	"github.com/dmitrijs2005/cloudchat/internal/common"
	"github.com/dmitrijs2005/cloudchat/internal/filex"
	"github.com/dmitrijs2005/cloudchat/internal/logging"
)

var (
	ErrDownloadInProgress = errors.New("download already in progress")
	// ErrDownloadCancelled is returned when CancelDownload stopped the
	// transfer. Callers should treat it as a normal outcome.
	ErrDownloadCancelled = errors.New("download cancelled")
	ErrNoPayload         = errors.New("message has no payload")
)

// Phase is the activation state of the engine.
type Phase string

const (
	PhaseUninitialized Phase = "uninitialized"
	PhaseLoading       Phase = "loading"
	PhasePulling       Phase = "pulling"
	PhaseReady         Phase = "ready"
)

// ProgressDone is the progress value published when a transfer completed.
const ProgressDone = -1

const (
	DefaultSyncInterval     = 5 * time.Second
	DefaultFastSyncInterval = time.Second
	DefaultUploadAttempts   = 3
	DefaultRetryBaseDelay   = 500 * time.Millisecond
	maxPollBackoff          = time.Minute
	maxUploadBackoff        = 30 * time.Second
)

// ProviderFactory builds the storage provider for an account.
type ProviderFactory func(ctx context.Context, cfg models.ServerConfig) (storage.Provider, error)

// Auditor records that this device activated an account.
type Auditor interface {
	RecordLogin(ctx context.Context, p storage.Provider, cfg models.ServerConfig) error
}

type Options struct {
	DataDir                string
	SyncInterval           time.Duration
	FastSyncInterval       time.Duration
	MaxConcurrentTransfers int64
	UploadAttempts         uint64
	UploadRetryBaseDelay   time.Duration
	TombstoneTTL           time.Duration

	Thumbnailer media.Thumbnailer
	Auditor     Auditor
}

func (o *Options) setDefaults() {
	if o.SyncInterval <= 0 {
		o.SyncInterval = DefaultSyncInterval
	}
	if o.FastSyncInterval <= 0 {
		o.FastSyncInterval = DefaultFastSyncInterval
	}
	if o.MaxConcurrentTransfers <= 0 {
		o.MaxConcurrentTransfers = 2
	}
	if o.UploadAttempts == 0 {
		o.UploadAttempts = DefaultUploadAttempts
	}
	if o.UploadRetryBaseDelay <= 0 {
		o.UploadRetryBaseDelay = DefaultRetryBaseDelay
	}
	if o.TombstoneTTL <= 0 {
		o.TombstoneTTL = history.DefaultTombstoneTTL
	}
	if o.Thumbnailer == nil {
		o.Thumbnailer = media.ImageThumbnailer{}
	}
}

type Engine struct {
	opts    Options
	factory ProviderFactory
	logger  logging.Logger
	cache   *media.Cache
	tmpDir  string

	messages         *state.Value[[]models.Message]
	uploadProgress   *state.Value[map[string]int]
	downloadProgress *state.Value[map[string]int]
	activeDownloads  *state.Value[map[string]bool]
	syncInterval     *state.Value[time.Duration]
	phase            *state.Value[Phase]

	mu   sync.Mutex
	sess *session
}

// session is everything that belongs to one activation.
type session struct {
	cfg      models.ServerConfig
	provider storage.Provider
	mirror   *history.Mirror
	tasks    *tasks.Group

	stopPoll context.CancelFunc
	pollDone chan struct{}
	wake     chan struct{}

	// mu guards all, tombstones, transient, downloads and queued.
	mu         sync.Mutex
	all        []models.Message
	tombstones *history.Tombstones
	transient  map[string]string
	downloads  map[string]*download
	queued     map[string]bool

	// syncMu serializes pulls and fetch-merge-write cycles.
	syncMu   sync.Mutex
	lastSeen time.Time
	dirty    atomic.Bool

	persistMu sync.Mutex
}

func New(opts Options, factory ProviderFactory, logger logging.Logger) (*Engine, error) {
	opts.setDefaults()

	cache, err := media.NewCache(opts.DataDir)
	if err != nil {
		return nil, err
	}
	tmpDir, err := filex.EnsureSubDir(opts.DataDir, "tmp")
	if err != nil {
		return nil, err
	}

	return &Engine{
		opts:             opts,
		factory:          factory,
		logger:           logger,
		cache:            cache,
		tmpDir:           tmpDir,
		messages:         state.NewValue([]models.Message{}),
		uploadProgress:   state.NewValue(map[string]int{}),
		downloadProgress: state.NewValue(map[string]int{}),
		activeDownloads:  state.NewValue(map[string]bool{}),
		syncInterval:     state.NewValue(opts.SyncInterval),
		phase:            state.NewValue(PhaseUninitialized),
	}, nil
}

// Messages is the visible chat, sorted by timestamp. Superseded messages
// are not included.
func (e *Engine) Messages() *state.Value[[]models.Message] { return e.messages }

// UploadProgress maps message id to 0..100, or ProgressDone.
func (e *Engine) UploadProgress() *state.Value[map[string]int] { return e.uploadProgress }

// DownloadProgress maps message id to 0..100, or ProgressDone.
func (e *Engine) DownloadProgress() *state.Value[map[string]int] { return e.downloadProgress }

func (e *Engine) ActiveDownloads() *state.Value[map[string]bool] { return e.activeDownloads }

func (e *Engine) SyncInterval() *state.Value[time.Duration] { return e.syncInterval }

func (e *Engine) Phase() *state.Value[Phase] { return e.phase }

// Account returns the active account.
func (e *Engine) Account() (models.ServerConfig, bool) {
	s := e.current()
	if s == nil {
		return models.ServerConfig{}, false
	}
	return s.cfg, true
}

// Provider returns the active account's storage provider.
func (e *Engine) Provider() (storage.Provider, bool) {
	s := e.current()
	if s == nil {
		return nil, false
	}
	return s.provider, true
}

func (e *Engine) current() *session {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sess
}

func (e *Engine) active() (*session, error) {
	s := e.current()
	if s == nil {
		return nil, common.ErrNoActiveAccount
	}
	return s, nil
}

// Activate switches the engine to cfg. Any previous activation is stopped
// first; its background work gets until ctx expires to finish.
func (e *Engine) Activate(ctx context.Context, cfg models.ServerConfig) error {
	if err := e.Close(ctx); err != nil {
		e.logger.Warn(ctx, "previous session did not drain", "error", err)
	}

	e.phase.Set(PhaseLoading)

	provider, err := e.factory(ctx, cfg)
	if err != nil {
		e.phase.Set(PhaseUninitialized)
		return fmt.Errorf("create provider: %w", err)
	}

	mirror, err := history.NewMirror(e.opts.DataDir, cfg.ID)
	if err != nil {
		e.phase.Set(PhaseUninitialized)
		return err
	}
	local, err := mirror.Load()
	if err != nil {
		e.logger.Warn(ctx, "local history unreadable, starting empty", "path", mirror.Path(), "error", err)
		local = []models.Message{}
	}
	history.MarkOutgoing(local, cfg.Username)

	// Nothing is uploading yet, so anything still "sending" was interrupted.
	for i := range local {
		if local[i].Status == models.StatusSending {
			local[i].Status = models.StatusFailed
		}
	}

	s := &session{
		cfg:        cfg,
		provider:   provider,
		mirror:     mirror,
		tasks:      tasks.New(e.logger, e.opts.MaxConcurrentTransfers),
		wake:       make(chan struct{}, 1),
		all:        local,
		tombstones: history.NewTombstones(e.opts.TombstoneTTL),
		transient:  map[string]string{},
		downloads:  map[string]*download{},
		queued:     map[string]bool{},
	}

	e.uploadProgress.Set(map[string]int{})
	e.downloadProgress.Set(map[string]int{})
	e.activeDownloads.Set(map[string]bool{})
	e.syncInterval.Set(e.opts.SyncInterval)

	e.mu.Lock()
	e.sess = s
	e.mu.Unlock()
	e.publish(s)

	e.logger.Info(ctx, "account activated", "account", cfg.Name, "type", string(cfg.Type), "messages", len(local))

	if len(local) == 0 {
		e.phase.Set(PhasePulling)
		if err := e.refresh(ctx, s); err != nil {
			e.logger.Warn(ctx, "initial pull failed", "error", err)
		}
	}
	e.phase.Set(PhaseReady)

	if e.opts.Auditor != nil {
		_ = s.tasks.Go("audit", func(ctx context.Context) {
			if err := e.opts.Auditor.RecordLogin(ctx, s.provider, s.cfg); err != nil {
				e.logger.Warn(ctx, "login audit failed", "error", err)
			}
		})
	}

	e.startPoll(s)
	return nil
}

// Close stops the poll loop and drains background work. Work still running
// when ctx expires is cancelled. Closing an inactive engine is a no-op.
func (e *Engine) Close(ctx context.Context) error {
	e.mu.Lock()
	s := e.sess
	e.sess = nil
	e.mu.Unlock()

	if s == nil {
		return nil
	}

	if s.stopPoll != nil {
		s.stopPoll()
		<-s.pollDone
	}
	err := s.tasks.Shutdown(ctx)

	e.messages.Set([]models.Message{})
	e.phase.Set(PhaseUninitialized)
	e.logger.Info(ctx, "account deactivated", "account", s.cfg.Name)
	return err
}

// publish pushes the visible projection of s.all to the Messages observable.
func (e *Engine) publish(s *session) {
	s.mu.Lock()
	visible := make([]models.Message, 0, len(s.all))
	for _, m := range s.all {
		if m.Visible() {
			visible = append(visible, m)
		}
	}
	s.mu.Unlock()

	if e.current() == s {
		e.messages.Set(visible)
	}
}

// persist writes the session's list to its mirror.
func (e *Engine) persist(ctx context.Context, s *session) {
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	s.mu.Lock()
	snapshot := slices.Clone(s.all)
	s.mu.Unlock()

	if err := s.mirror.Save(snapshot); err != nil {
		e.logger.Error(ctx, "save local history failed", "path", s.mirror.Path(), "error", err)
	}
}

// commit publishes and persists after a mutation of s.all.
func (e *Engine) commit(ctx context.Context, s *session) {
	e.publish(s)
	e.persist(ctx, s)
}

// update applies fn to the message with id and commits. It reports whether
// the message exists.
func (e *Engine) update(ctx context.Context, s *session, id string, fn func(*models.Message)) bool {
	s.mu.Lock()
	i := slices.IndexFunc(s.all, func(m models.Message) bool { return m.ID == id })
	if i < 0 {
		s.mu.Unlock()
		return false
	}
	fn(&s.all[i])
	s.mu.Unlock()

	e.commit(ctx, s)
	return true
}

func (s *session) find(id string) (models.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := slices.IndexFunc(s.all, func(m models.Message) bool { return m.ID == id })
	if i < 0 {
		return models.Message{}, false
	}
	return s.all[i], true
}

// Message returns the message with id, including superseded ones.
func (e *Engine) Message(id string) (models.Message, error) {
	s, err := e.active()
	if err != nil {
		return models.Message{}, err
	}
	m, ok := s.find(id)
	if !ok {
		return models.Message{}, fmt.Errorf("%w: %s", common.ErrUnknownMessage, id)
	}
	return m, nil
}

// setProgress stores p for id, never moving backwards within one transfer.
func setProgress(v *state.Value[map[string]int], id string, p int) {
	v.Update(func(m map[string]int) map[string]int {
		if cur, ok := m[id]; ok && (cur == ProgressDone || cur >= p) {
			return m
		}
		out := maps.Clone(m)
		if out == nil {
			out = map[string]int{}
		}
		out[id] = p
		return out
	})
}

func removeQuiet(path string) {
	if path != "" {
		_ = os.Remove(path)
	}
}
