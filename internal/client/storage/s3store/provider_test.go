package s3store

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/dmitrijs2005/cloudchat/internal/client/models"
	"github.com/dmitrijs2005/cloudchat/internal/common"
	"github.com/dmitrijs2005/cloudchat/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeObject struct {
	body     []byte
	ctype    string
	modified time.Time
}

type fakeS3 struct {
	mu        sync.Mutex
	objects   map[string]fakeObject
	headErr   error
	putOpts   int
	lastInput *s3.PutObjectInput
}

func newFakeS3() *fakeS3 { return &fakeS3{objects: map[string]fakeObject{}} }

func (f *fakeS3) HeadBucket(ctx context.Context, in *s3.HeadBucketInput, _ ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	if f.headErr != nil {
		return nil, f.headErr
	}
	return &s3.HeadBucketOutput{}, nil
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	b, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.putOpts = len(optFns)
	f.lastInput = in
	f.objects[aws.ToString(in.Key)] = fakeObject{body: b, ctype: aws.ToString(in.ContentType), modified: time.Unix(1700000000, 0).UTC()}
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{
		Body:          io.NopCloser(bytes.NewReader(o.body)),
		ContentLength: aws.Int64(int64(len(o.body))),
	}, nil
}

func (f *fakeS3) HeadObject(ctx context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NotFound{}
	}
	return &s3.HeadObjectOutput{
		ContentLength: aws.Int64(int64(len(o.body))),
		LastModified:  aws.Time(o.modified),
	}, nil
}

func (f *fakeS3) DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func stubClient(t *testing.T, fake *fakeS3) *s3.Options {
	t.Helper()

	origLoad := loadDefaultAWSConfig
	origNew := newS3ClientFromConfig
	t.Cleanup(func() {
		loadDefaultAWSConfig = origLoad
		newS3ClientFromConfig = origNew
	})

	loadDefaultAWSConfig = func(ctx context.Context, optFns ...func(*awsconfig.LoadOptions) error) (aws.Config, error) {
		var lo awsconfig.LoadOptions
		for _, fn := range optFns {
			require.NoError(t, fn(&lo))
		}
		require.NotNil(t, lo.Credentials)
		require.NotNil(t, lo.HTTPClient)
		return aws.Config{Region: lo.Region}, nil
	}

	captured := &s3.Options{}
	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) objectAPI {
		captured.Region = cfg.Region
		for _, fn := range optFns {
			fn(captured)
		}
		return fake
	}
	return captured
}

func TestNew_CustomEndpoint(t *testing.T) {
	fake := newFakeS3()
	opts := stubClient(t, fake)

	p, err := New(context.Background(), models.ServerConfig{
		Endpoint: "minio.local:9000/",
		Bucket:   "chat",
		SaveDir:  "alice",
	}, nil, logging.Discard())
	require.NoError(t, err)

	require.NotNil(t, opts.BaseEndpoint)
	assert.Equal(t, "https://minio.local:9000", *opts.BaseEndpoint)
	assert.True(t, opts.UsePathStyle)
	assert.Equal(t, defaultRegion, opts.Region)
	assert.Equal(t, aws.RequestChecksumCalculationWhenRequired, opts.RequestChecksumCalculation)
	assert.Equal(t, "https://minio.local:9000/chat/alice/a%20b.png", p.FullURL("a b.png"))
}

func TestNew_AWSDefaults(t *testing.T) {
	opts := stubClient(t, newFakeS3())

	p, err := New(context.Background(), models.ServerConfig{Bucket: "b", Region: "eu-west-1", ServerPath: "root", SaveDir: "bob"}, nil, logging.Discard())
	require.NoError(t, err)

	assert.Nil(t, opts.BaseEndpoint)
	assert.False(t, opts.UsePathStyle)
	assert.Equal(t, "eu-west-1", opts.Region)
	assert.Equal(t, "https://b.s3.amazonaws.com/root/bob/x.txt", p.FullURL("x.txt"))
}

func TestNew_Errors(t *testing.T) {
	_, err := New(context.Background(), models.ServerConfig{}, nil, logging.Discard())
	assert.ErrorIs(t, err, common.ErrInvalidAccount)

	origLoad := loadDefaultAWSConfig
	t.Cleanup(func() { loadDefaultAWSConfig = origLoad })
	loadDefaultAWSConfig = func(ctx context.Context, optFns ...func(*awsconfig.LoadOptions) error) (aws.Config, error) {
		return aws.Config{}, errors.New("boom")
	}
	_, err = New(context.Background(), models.ServerConfig{Bucket: "b"}, &http.Client{}, logging.Discard())
	assert.ErrorContains(t, err, "boom")
}

func newTestProvider(t *testing.T) (*Provider, *fakeS3) {
	t.Helper()
	fake := newFakeS3()
	stubClient(t, fake)
	p, err := New(context.Background(), models.ServerConfig{Bucket: "b", Endpoint: "http://minio:9000", SaveDir: "alice"}, nil, logging.Discard())
	require.NoError(t, err)
	return p, fake
}

func TestTestConnection(t *testing.T) {
	p, fake := newTestProvider(t)
	require.NoError(t, p.TestConnection(context.Background()))

	fake.headErr = errors.New("forbidden")
	assert.ErrorContains(t, p.TestConnection(context.Background()), "forbidden")
}

func TestUploadAndDownload(t *testing.T) {
	p, fake := newTestProvider(t)
	ctx := context.Background()

	payload := strings.Repeat("q", 70_000)
	var up []int
	ref, err := p.UploadFile(ctx, strings.NewReader(payload), "9_clip.mp4", "video/mp4", int64(len(payload)), func(pc int) { up = append(up, pc) })
	require.NoError(t, err)
	assert.Equal(t, "http://minio:9000/b/alice/9_clip.mp4", ref)
	assert.Equal(t, 0, up[0])
	assert.Equal(t, 100, up[len(up)-1])

	obj := fake.objects["alice/9_clip.mp4"]
	assert.Equal(t, "video/mp4", obj.ctype)
	assert.Equal(t, 1, fake.putOpts, "unsigned payload option must be passed")
	assert.EqualValues(t, len(payload), aws.ToInt64(fake.lastInput.ContentLength))

	size, err := p.FileSize(ctx, "9_clip.mp4")
	require.NoError(t, err)
	assert.EqualValues(t, len(payload), size)

	lm, err := p.LastModified(ctx, "9_clip.mp4")
	require.NoError(t, err)
	assert.Equal(t, int64(1700000000), lm.Unix())

	dest := filepath.Join(t.TempDir(), "clip.mp4")
	require.NoError(t, p.DownloadFile(ctx, "9_clip.mp4", dest, nil))
	b, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, payload, string(b))
}

func TestUploadText(t *testing.T) {
	p, fake := newTestProvider(t)
	_, err := p.UploadText(context.Background(), "[]", common.HistoryFileName)
	require.NoError(t, err)
	assert.Equal(t, "application/json; charset=utf-8", fake.objects["alice/"+common.HistoryFileName].ctype)
}

func TestMissingObjects(t *testing.T) {
	p, _ := newTestProvider(t)
	ctx := context.Background()

	size, err := p.FileSize(ctx, "nope")
	require.NoError(t, err)
	assert.EqualValues(t, -1, size)

	_, err = p.LastModified(ctx, "nope")
	assert.ErrorIs(t, err, common.ErrNotFound)

	err = p.DownloadFile(ctx, "nope", filepath.Join(t.TempDir(), "x"), nil)
	assert.ErrorIs(t, err, common.ErrNotFound)

	assert.NoError(t, p.DeleteFile(ctx, "nope"))
}

func TestDeleteFile(t *testing.T) {
	p, fake := newTestProvider(t)
	fake.objects["alice/a.txt"] = fakeObject{body: []byte("a")}

	require.NoError(t, p.DeleteFile(context.Background(), "a.txt"))
	assert.NotContains(t, fake.objects, "alice/a.txt")
}
