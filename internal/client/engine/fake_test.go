package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/dmitrijs2005/cloudchat/internal/client/history"
	"github.com/dmitrijs2005/cloudchat/internal/client/models"
	"github.com/dmitrijs2005/cloudchat/internal/client/storage"
	"github.com/dmitrijs2005/cloudchat/internal/common"
)

var errTransport = errors.New("connection reset")

// fakeProvider is an in-memory storage.Provider.
type fakeProvider struct {
	mu       sync.Mutex
	objects  map[string][]byte
	modified map[string]time.Time
	clock    time.Time

	uploadFailures map[string]int // name -> remaining failures
	downloadErr    error
	deleted        []string
	uploads        map[string]int

	// blockDownloads makes DownloadFile stall after the first chunk until
	// the context ends or the channel is closed.
	blockDownloads chan struct{}
	downloadCalls  int
}

var _ storage.Provider = (*fakeProvider)(nil)

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		objects:        map[string][]byte{},
		modified:       map[string]time.Time{},
		clock:          time.Unix(1_700_000_000, 0),
		uploadFailures: map[string]int{},
		uploads:        map[string]int{},
	}
}

func (f *fakeProvider) put(name string, b []byte) {
	f.clock = f.clock.Add(time.Second)
	f.objects[name] = b
	f.modified[name] = f.clock
}

// setHistory replaces the remote document as another device would.
func (f *fakeProvider) setHistory(msgs []models.Message) {
	b, err := history.Encode(msgs)
	if err != nil {
		panic(err)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.put(common.HistoryFileName, b)
}

func (f *fakeProvider) history() []models.Message {
	f.mu.Lock()
	b, ok := f.objects[common.HistoryFileName]
	f.mu.Unlock()
	if !ok {
		return nil
	}
	msgs, err := history.Decode(b)
	if err != nil {
		panic(err)
	}
	return msgs
}

func (f *fakeProvider) has(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.objects[name]
	return ok
}

func (f *fakeProvider) TestConnection(ctx context.Context) error { return nil }

func (f *fakeProvider) UploadFile(ctx context.Context, r io.Reader, name, contentType string, length int64, onProgress storage.ProgressFunc) (string, error) {
	f.mu.Lock()
	f.uploads[name]++
	if n := f.uploadFailures[name]; n != 0 {
		if n > 0 {
			f.uploadFailures[name] = n - 1
		}
		f.mu.Unlock()
		return "", errTransport
	}
	f.mu.Unlock()

	var buf bytes.Buffer
	if _, err := storage.CopyWithProgress(ctx, &buf, r, length, onProgress); err != nil {
		return "", err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.put(name, buf.Bytes())
	return f.FullURL(name), nil
}

func (f *fakeProvider) UploadText(ctx context.Context, text, name string) (string, error) {
	return f.UploadFile(ctx, bytes.NewReader([]byte(text)), name, "application/json", int64(len(text)), nil)
}

func (f *fakeProvider) DownloadFile(ctx context.Context, name, dest string, onProgress storage.ProgressFunc) error {
	f.mu.Lock()
	f.downloadCalls++
	err := f.downloadErr
	b, ok := f.objects[name]
	block := f.blockDownloads
	f.mu.Unlock()

	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("get %s: %w", name, common.ErrNotFound)
	}

	out, cerr := os.Create(dest)
	if cerr != nil {
		return cerr
	}
	defer out.Close()

	if block != nil && name != common.HistoryFileName {
		half := len(b) / 2
		_, _ = out.Write(b[:half])
		if onProgress != nil {
			onProgress(50)
		}
		select {
		case <-ctx.Done():
			_ = os.Remove(dest)
			return ctx.Err()
		case <-block:
		}
		_, werr := out.Write(b[half:])
		if onProgress != nil {
			onProgress(100)
		}
		return werr
	}

	_, werr := storage.CopyWithProgress(ctx, out, bytes.NewReader(b), int64(len(b)), onProgress)
	return werr
}

func (f *fakeProvider) FileSize(ctx context.Context, name string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.objects[name]
	if !ok {
		return -1, nil
	}
	return int64(len(b)), nil
}

func (f *fakeProvider) LastModified(ctx context.Context, name string) (time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.downloadErr != nil {
		return time.Time{}, f.downloadErr
	}
	t, ok := f.modified[name]
	if !ok {
		return time.Time{}, common.ErrNotFound
	}
	return t, nil
}

func (f *fakeProvider) DeleteFile(ctx context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, name)
	delete(f.objects, name)
	delete(f.modified, name)
	return nil
}

func (f *fakeProvider) FullURL(name string) string {
	return "mem://bucket/" + name
}

func (f *fakeProvider) setDownloadErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.downloadErr = err
}

func (f *fakeProvider) uploadCount(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.uploads[name]
}

func (f *fakeProvider) wasDeleted(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, d := range f.deleted {
		if d == name {
			return true
		}
	}
	return false
}

type fakeAuditor struct {
	mu    sync.Mutex
	calls int
}

func (a *fakeAuditor) RecordLogin(ctx context.Context, p storage.Provider, cfg models.ServerConfig) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls++
	return nil
}

func (a *fakeAuditor) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}
