package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"bnpl/internal/config"
	"bnpl/internal/services"
)

type s3Client interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

// S3Config locates the bucket holding sound blobs.
type S3Config struct {
	Bucket    string
	Region    string
	Endpoint  string
	PathStyle bool
}

// S3ConfigFrom copies the [blob] section.
func S3ConfigFrom(cfg config.Blob) S3Config {
	return S3Config{
		Bucket:    cfg.Bucket,
		Region:    cfg.Region,
		Endpoint:  cfg.Endpoint,
		PathStyle: cfg.PathStyle,
	}
}

// S3Blobs stores blobs as objects in one bucket. The AWS client is resolved
// on first use from the default credential chain.
type S3Blobs struct {
	mu     sync.Mutex
	client s3Client
	cfg    S3Config
}

// NewS3Blobs returns a backend that builds its client lazily.
func NewS3Blobs(cfg S3Config) (*S3Blobs, error) {
	return NewS3BlobsWithClient(cfg, nil)
}

// NewS3BlobsWithClient uses client instead of resolving one. A nil client
// behaves like NewS3Blobs.
func NewS3BlobsWithClient(cfg S3Config, client s3Client) (*S3Blobs, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, services.Wrap(services.ErrConfiguration, "s3", "open", "bucket not set", nil)
	}
	if strings.TrimSpace(cfg.Region) == "" {
		cfg.Region = "us-east-1"
	}
	return &S3Blobs{client: client, cfg: cfg}, nil
}

func (b *S3Blobs) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	client, err := b.resolveClient(ctx)
	if err != nil {
		return nil, err
	}
	out, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.cfg.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, classifyS3Error("get", key, err)
	}
	return out.Body, nil
}

func (b *S3Blobs) Put(ctx context.Context, key string, r io.Reader, contentType string) error {
	client, err := b.resolveClient(ctx)
	if err != nil {
		return err
	}
	if seeker, ok := r.(io.Seeker); ok {
		if _, err := seeker.Seek(0, io.SeekStart); err != nil {
			return fmt.Errorf("rewind body: %w", err)
		}
	}
	input := &s3.PutObjectInput{
		Bucket: aws.String(b.cfg.Bucket),
		Key:    aws.String(key),
		Body:   r,
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	if _, err := client.PutObject(ctx, input); err != nil {
		return classifyS3Error("put", key, err)
	}
	return nil
}

func (b *S3Blobs) Delete(ctx context.Context, key string) error {
	client, err := b.resolveClient(ctx)
	if err != nil {
		return err
	}
	_, err = client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.cfg.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if err = classifyS3Error("delete", key, err); errors.Is(err, services.ErrNotFound) {
			return nil
		}
		return err
	}
	return nil
}

func (b *S3Blobs) Exists(ctx context.Context, key string) (bool, error) {
	client, err := b.resolveClient(ctx)
	if err != nil {
		return false, err
	}
	_, err = client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.cfg.Bucket),
		Key:    aws.String(key),
	})
	if err == nil {
		return true, nil
	}
	if err = classifyS3Error("head", key, err); errors.Is(err, services.ErrNotFound) {
		return false, nil
	}
	return false, err
}

func (b *S3Blobs) resolveClient(ctx context.Context) (s3Client, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.client != nil {
		return b.client, nil
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(b.cfg.Region))
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "s3", "load aws config", "", err)
	}
	b.client = s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint := strings.TrimSpace(b.cfg.Endpoint); endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
		o.UsePathStyle = b.cfg.PathStyle
	})
	return b.client, nil
}

func classifyS3Error(op, key string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var noSuchKey *s3types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return services.Wrap(services.ErrNotFound, "s3", op, key, err)
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return services.Wrap(services.ErrNotFound, "s3", op, key, err)
		case "NoSuchBucket", "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch":
			return services.Wrap(services.ErrConfiguration, "s3", op, key, err)
		}
	}
	return services.Wrap(services.ErrStorage, "s3", op, key, err)
}
