package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/dmitrijs2005/cloudchat/internal/client/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCopyWithProgress_KnownTotal(t *testing.T) {
	src := bytes.NewReader(make([]byte, 100*1024))
	var dst bytes.Buffer
	var got []int

	n, err := CopyWithProgress(context.Background(), &dst, src, 100*1024, func(p int) { got = append(got, p) })
	require.NoError(t, err)
	assert.EqualValues(t, 100*1024, n)
	assert.Equal(t, 100*1024, dst.Len())

	require.NotEmpty(t, got)
	assert.Equal(t, 100, got[len(got)-1])
	for i := 1; i < len(got); i++ {
		assert.Greater(t, got[i], got[i-1], "progress must be strictly increasing")
	}
}

func TestCopyWithProgress_UnknownTotal(t *testing.T) {
	var dst bytes.Buffer
	var got []int

	_, err := CopyWithProgress(context.Background(), &dst, strings.NewReader("hello"), -1, func(p int) { got = append(got, p) })
	require.NoError(t, err)
	assert.Equal(t, []int{0, 100}, got)
	assert.Equal(t, "hello", dst.String())
}

func TestCopyWithProgress_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var dst bytes.Buffer
	_, err := CopyWithProgress(ctx, &dst, strings.NewReader("data"), 4, nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, dst.Len())
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestCopyWithProgress_WriteError(t *testing.T) {
	_, err := CopyWithProgress(context.Background(), failingWriter{}, strings.NewReader("x"), 1, nil)
	assert.EqualError(t, err, "disk full")
}

func TestProgressReader(t *testing.T) {
	var got []int
	pr := NewProgressReader(bytes.NewReader(make([]byte, 10)), 10, func(p int) { got = append(got, p) })

	buf := make([]byte, 5)
	_, _ = pr.Read(buf)
	_, _ = pr.Read(buf)
	assert.Equal(t, []int{50, 100}, got)

	pos, err := pr.Seek(0, io.SeekStart)
	require.NoError(t, err)
	assert.Zero(t, pos)

	b, err := io.ReadAll(pr)
	require.NoError(t, err)
	assert.Len(t, b, 10)
}

func TestProgressReader_SeekUnsupported(t *testing.T) {
	pr := NewProgressReader(io.LimitReader(strings.NewReader("abc"), 3), 3, nil)
	_, err := pr.Seek(0, io.SeekStart)
	assert.Error(t, err)
}

func TestObjectKeys(t *testing.T) {
	cfg := models.ServerConfig{ServerPath: "/chat/", SaveDir: "alice bob"}
	assert.Equal(t, "chat/alice bob/a b.jpg", ObjectKey(cfg, "a b.jpg"))
	assert.Equal(t, "chat/alice%20bob/a%20b.jpg", EscapedKey(cfg, "a b.jpg"))

	assert.Equal(t, "x.txt", ObjectKey(models.ServerConfig{}, "x.txt"))
}

func TestNormalizeEndpoint(t *testing.T) {
	assert.Equal(t, "", NormalizeEndpoint("  ", "https"))
	assert.Equal(t, "https://minio.local:9000", NormalizeEndpoint("minio.local:9000/", "https"))
	assert.Equal(t, "http://dav.example/remote.php", NormalizeEndpoint("http://dav.example/remote.php", "https"))
	assert.Equal(t, "http://dav.example", NormalizeEndpoint("dav.example", "http"))
}

func TestNewHTTPClient_Policy(t *testing.T) {
	c := NewHTTPClient(models.TransportPlatformTrust, 0)
	tr := c.Transport.(*http.Transport)
	if tr.TLSClientConfig != nil {
		assert.False(t, tr.TLSClientConfig.InsecureSkipVerify)
	}
	assert.Equal(t, DefaultTimeout, tr.ResponseHeaderTimeout)
	assert.Zero(t, c.Timeout)

	c = NewHTTPClient(models.TransportInsecure, 5*time.Second)
	tr = c.Transport.(*http.Transport)
	require.NotNil(t, tr.TLSClientConfig)
	assert.True(t, tr.TLSClientConfig.InsecureSkipVerify)
	assert.Equal(t, 5*time.Second, tr.TLSHandshakeTimeout)
}

func TestStatusError(t *testing.T) {
	err := &StatusError{Op: "PUT", Code: http.StatusForbidden}
	assert.Contains(t, err.Error(), "403")
	assert.True(t, IsAuthError(err))
	assert.False(t, IsAuthError(&StatusError{Op: "GET", Code: 500}))
	assert.False(t, IsAuthError(errors.New("x")))
}
