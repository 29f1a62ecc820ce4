// Package s3store binds storage.Provider to an S3-compatible bucket via
// aws-sdk-go-v2. Custom endpoints (MinIO, R2, ...) use path-style
// addressing.
package s3store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/dmitrijs2005/cloudchat/internal/client/models"
	"github.com/dmitrijs2005/cloudchat/internal/client/storage"
	"github.com/dmitrijs2005/cloudchat/internal/common"
	"github.com/dmitrijs2005/cloudchat/internal/logging"
)

const defaultRegion = "us-east-1"

var (
	loadDefaultAWSConfig  = config.LoadDefaultConfig
	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) objectAPI {
		return s3.NewFromConfig(cfg, optFns...)
	}
)

// objectAPI is the subset of *s3.Client the provider uses.
type objectAPI interface {
	HeadBucket(ctx context.Context, in *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

type Provider struct {
	cfg      models.ServerConfig
	endpoint string
	client   objectAPI
	logger   logging.Logger
}

var _ storage.Provider = (*Provider)(nil)

// New builds an S3 client from the account's static credentials. The
// endpoint gets an https:// scheme when none is given.
func New(ctx context.Context, cfg models.ServerConfig, httpClient *http.Client, logger logging.Logger) (*Provider, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, fmt.Errorf("%w: bucket is required", common.ErrInvalidAccount)
	}
	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = defaultRegion
	}
	if httpClient == nil {
		httpClient = storage.NewHTTPClient(models.TransportPlatformTrust, 0)
	}

	awsCfg, err := loadDefaultAWSConfig(ctx,
		config.WithRegion(region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")),
		config.WithHTTPClient(httpClient),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	endpoint := storage.NormalizeEndpoint(cfg.Endpoint, "https")
	client := newS3ClientFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
		o.ResponseChecksumValidation = aws.ResponseChecksumValidationWhenRequired
	})

	return &Provider{
		cfg:      cfg,
		endpoint: endpoint,
		client:   client,
		logger:   logger.With("provider", "s3", "bucket", cfg.Bucket),
	}, nil
}

func (p *Provider) key(name string) *string {
	return aws.String(storage.ObjectKey(p.cfg, name))
}

func isNotFound(err error) bool {
	var nf *types.NotFound
	var nsk *types.NoSuchKey
	if errors.As(err, &nf) || errors.As(err, &nsk) {
		return true
	}
	var re *awshttp.ResponseError
	return errors.As(err, &re) && re.HTTPStatusCode() == http.StatusNotFound
}

func wrap(op string, err error) error {
	if isNotFound(err) {
		return fmt.Errorf("%s: %w", op, common.ErrNotFound)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// unsignedPayload streams bodies without hashing them up front.
func unsignedPayload(o *s3.Options) {
	o.APIOptions = append(o.APIOptions, v4.SwapComputePayloadSHA256ForUnsignedPayloadMiddleware)
}

func (p *Provider) TestConnection(ctx context.Context) error {
	if _, err := p.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(p.cfg.Bucket)}); err != nil {
		return wrap("head bucket", err)
	}
	return nil
}

func (p *Provider) UploadFile(ctx context.Context, r io.Reader, name, contentType string, length int64, onProgress storage.ProgressFunc) (string, error) {
	report := func(int) {}
	if onProgress != nil {
		report = onProgress
	}
	report(0)

	in := &s3.PutObjectInput{
		Bucket: aws.String(p.cfg.Bucket),
		Key:    p.key(name),
		Body:   storage.NewProgressReader(r, length, onProgress),
	}
	if length >= 0 {
		in.ContentLength = aws.Int64(length)
	}
	if contentType != "" {
		in.ContentType = aws.String(contentType)
	}

	if _, err := p.client.PutObject(ctx, in, unsignedPayload); err != nil {
		return "", wrap("put object", err)
	}

	report(100)
	return p.FullURL(name), nil
}

func (p *Provider) UploadText(ctx context.Context, text, name string) (string, error) {
	ct := "text/plain; charset=utf-8"
	if strings.HasSuffix(name, ".json") {
		ct = "application/json; charset=utf-8"
	}
	return p.UploadFile(ctx, strings.NewReader(text), name, ct, int64(len(text)), nil)
}

func (p *Provider) DownloadFile(ctx context.Context, name, dest string, onProgress storage.ProgressFunc) error {
	out, err := p.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(p.cfg.Bucket),
		Key:    p.key(name),
	})
	if err != nil {
		return wrap("get object", err)
	}
	defer out.Body.Close()

	f, err := os.Create(dest)
	if err != nil {
		return err
	}

	_, err = storage.CopyWithProgress(ctx, f, out.Body, aws.ToInt64(out.ContentLength), onProgress)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(dest)
		return err
	}
	return nil
}

func (p *Provider) head(ctx context.Context, name string) (*s3.HeadObjectOutput, error) {
	out, err := p.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(p.cfg.Bucket),
		Key:    p.key(name),
	})
	if err != nil {
		return nil, wrap("head object", err)
	}
	return out, nil
}

func (p *Provider) FileSize(ctx context.Context, name string) (int64, error) {
	out, err := p.head(ctx, name)
	if errors.Is(err, common.ErrNotFound) {
		return -1, nil
	}
	if err != nil {
		return -1, err
	}
	if out.ContentLength == nil {
		return -1, nil
	}
	return *out.ContentLength, nil
}

func (p *Provider) LastModified(ctx context.Context, name string) (time.Time, error) {
	out, err := p.head(ctx, name)
	if err != nil {
		return time.Time{}, err
	}
	return aws.ToTime(out.LastModified), nil
}

func (p *Provider) DeleteFile(ctx context.Context, name string) error {
	_, err := p.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(p.cfg.Bucket),
		Key:    p.key(name),
	})
	if err != nil && !isNotFound(err) {
		return wrap("delete object", err)
	}
	return nil
}

// FullURL is https://<bucket>.s3.amazonaws.com/<key> for AWS and
// <endpoint>/<bucket>/<key> for custom endpoints.
func (p *Provider) FullURL(name string) string {
	key := storage.EscapedKey(p.cfg, name)
	if p.endpoint == "" {
		return "https://" + p.cfg.Bucket + ".s3.amazonaws.com/" + key
	}
	return p.endpoint + "/" + url.PathEscape(p.cfg.Bucket) + "/" + key
}
