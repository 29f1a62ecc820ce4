// Package webdav binds storage.Provider to a WebDAV collection using plain
// HTTP verbs (PROPFIND, MKCOL, PUT, GET, HEAD, DELETE) with basic auth.
package webdav

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/cloudchat/internal/client/models"
	"github.com/dmitrijs2005/cloudchat/internal/client/storage"
	"github.com/dmitrijs2005/cloudchat/internal/common"
	"github.com/dmitrijs2005/cloudchat/internal/logging"
)

const (
	methodPropfind = "PROPFIND"
	methodMkcol    = "MKCOL"
)

type Provider struct {
	cfg    models.ServerConfig
	base   string
	client *http.Client
	logger logging.Logger

	mu      sync.Mutex
	ensured bool
}

var _ storage.Provider = (*Provider)(nil)

// New returns a provider for cfg. The base URL gets an http:// scheme when
// none is given.
func New(cfg models.ServerConfig, client *http.Client, logger logging.Logger) (*Provider, error) {
	base := storage.NormalizeEndpoint(cfg.WebDAVURL, "http")
	if base == "" {
		return nil, fmt.Errorf("%w: webdav url is required", common.ErrInvalidAccount)
	}
	if client == nil {
		client = storage.NewHTTPClient(models.TransportPlatformTrust, 0)
	}
	return &Provider{
		cfg:    cfg,
		base:   base,
		client: client,
		logger: logger.With("provider", "webdav"),
	}, nil
}

func (p *Provider) objectURL(name string) string {
	return p.base + "/" + storage.EscapedKey(p.cfg, name)
}

// collectionURLs returns the URL of every collection on the way to the
// account prefix, outermost first.
func (p *Provider) collectionURLs() []string {
	prefix := strings.Trim(storage.EscapedKey(p.cfg, ""), "/")
	if prefix == "" {
		return nil
	}
	parts := strings.Split(prefix, "/")
	urls := make([]string, 0, len(parts))
	for i := range parts {
		urls = append(urls, p.base+"/"+strings.Join(parts[:i+1], "/")+"/")
	}
	return urls
}

func (p *Provider) newRequest(ctx context.Context, method, url string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, err
	}
	if p.cfg.WebDAVUser != "" || p.cfg.WebDAVPass != "" {
		req.SetBasicAuth(p.cfg.WebDAVUser, p.cfg.WebDAVPass)
	}
	return req, nil
}

func (p *Provider) do(req *http.Request) (*http.Response, error) {
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	return resp, nil
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}

func statusErr(method string, resp *http.Response) error {
	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%s: %w", method, common.ErrNotFound)
	}
	return &storage.StatusError{Op: method, Code: resp.StatusCode}
}

func (p *Provider) propfind(ctx context.Context, url string) (int, error) {
	req, err := p.newRequest(ctx, methodPropfind, url, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Depth", "0")
	resp, err := p.do(req)
	if err != nil {
		return 0, err
	}
	defer drain(resp)
	return resp.StatusCode, nil
}

func (p *Provider) mkcol(ctx context.Context, url string) error {
	req, err := p.newRequest(ctx, methodMkcol, url, nil)
	if err != nil {
		return err
	}
	resp, err := p.do(req)
	if err != nil {
		return err
	}
	defer drain(resp)

	switch resp.StatusCode {
	case http.StatusCreated, http.StatusOK, http.StatusMethodNotAllowed:
		return nil
	default:
		return &storage.StatusError{Op: methodMkcol, Code: resp.StatusCode}
	}
}

// ensureCollection creates the account collection if PROPFIND says it is
// missing. It runs at most once successfully per provider.
func (p *Provider) ensureCollection(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ensured {
		return nil
	}

	urls := p.collectionURLs()
	if len(urls) == 0 {
		code, err := p.propfind(ctx, p.base+"/")
		if err != nil {
			return err
		}
		if code >= 400 {
			return &storage.StatusError{Op: methodPropfind, Code: code}
		}
		p.ensured = true
		return nil
	}

	code, err := p.propfind(ctx, urls[len(urls)-1])
	if err != nil {
		return err
	}
	switch {
	case code == http.StatusNotFound:
		for _, u := range urls {
			if err := p.mkcol(ctx, u); err != nil {
				return err
			}
		}
		p.logger.Info(ctx, "created collection", "path", urls[len(urls)-1])
	case code >= 400:
		return &storage.StatusError{Op: methodPropfind, Code: code}
	}

	p.ensured = true
	return nil
}

func (p *Provider) TestConnection(ctx context.Context) error {
	return p.ensureCollection(ctx)
}

func (p *Provider) UploadFile(ctx context.Context, r io.Reader, name, contentType string, length int64, onProgress storage.ProgressFunc) (string, error) {
	if err := p.ensureCollection(ctx); err != nil {
		return "", err
	}

	report := func(int) {}
	if onProgress != nil {
		report = onProgress
	}
	report(0)

	url := p.objectURL(name)
	req, err := p.newRequest(ctx, http.MethodPut, url, storage.NewProgressReader(r, length, onProgress))
	if err != nil {
		return "", err
	}
	if length >= 0 {
		req.ContentLength = length
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := p.do(req)
	if err != nil {
		return "", err
	}
	defer drain(resp)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", statusErr(http.MethodPut, resp)
	}

	report(100)
	return url, nil
}

func (p *Provider) UploadText(ctx context.Context, text, name string) (string, error) {
	ct := "text/plain; charset=utf-8"
	if strings.HasSuffix(name, ".json") {
		ct = "application/json; charset=utf-8"
	}
	return p.UploadFile(ctx, strings.NewReader(text), name, ct, int64(len(text)), nil)
}

func (p *Provider) DownloadFile(ctx context.Context, name, dest string, onProgress storage.ProgressFunc) error {
	req, err := p.newRequest(ctx, http.MethodGet, p.objectURL(name), nil)
	if err != nil {
		return err
	}
	resp, err := p.do(req)
	if err != nil {
		return err
	}
	defer drain(resp)

	if resp.StatusCode != http.StatusOK {
		return statusErr(http.MethodGet, resp)
	}

	f, err := os.Create(dest)
	if err != nil {
		return err
	}

	_, err = storage.CopyWithProgress(ctx, f, resp.Body, resp.ContentLength, onProgress)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(dest)
		return err
	}
	return nil
}

func (p *Provider) head(ctx context.Context, name string) (*http.Response, error) {
	req, err := p.newRequest(ctx, http.MethodHead, p.objectURL(name), nil)
	if err != nil {
		return nil, err
	}
	resp, err := p.do(req)
	if err != nil {
		return nil, err
	}
	drain(resp)
	if resp.StatusCode != http.StatusOK {
		return nil, statusErr(http.MethodHead, resp)
	}
	return resp, nil
}

func (p *Provider) FileSize(ctx context.Context, name string) (int64, error) {
	resp, err := p.head(ctx, name)
	if errors.Is(err, common.ErrNotFound) {
		return -1, nil
	}
	if err != nil {
		return -1, err
	}
	if resp.ContentLength < 0 {
		return -1, nil
	}
	return resp.ContentLength, nil
}

// LastModified returns the zero time when the server omits the header.
func (p *Provider) LastModified(ctx context.Context, name string) (time.Time, error) {
	resp, err := p.head(ctx, name)
	if err != nil {
		return time.Time{}, err
	}
	lm := resp.Header.Get("Last-Modified")
	if lm == "" {
		return time.Time{}, nil
	}
	t, err := http.ParseTime(lm)
	if err != nil {
		return time.Time{}, nil
	}
	return t, nil
}

func (p *Provider) DeleteFile(ctx context.Context, name string) error {
	req, err := p.newRequest(ctx, http.MethodDelete, p.objectURL(name), nil)
	if err != nil {
		return err
	}
	resp, err := p.do(req)
	if err != nil {
		return err
	}
	defer drain(resp)

	if resp.StatusCode == http.StatusNotFound || (resp.StatusCode >= 200 && resp.StatusCode <= 299) {
		return nil
	}
	return &storage.StatusError{Op: http.MethodDelete, Code: resp.StatusCode}
}

func (p *Provider) FullURL(name string) string {
	return p.objectURL(name)
}
