package s3store

import (
	"bytes"
	"context"
	"io"
	"math"
	"math/rand"
	"mime"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/cockroachdb/errors"
)

const (
	defaultMaxRetries = 5
	defaultBaseDelay  = 100 * time.Millisecond
	defaultMaxDelay   = 30 * time.Second
)

// API is the subset of the S3 client the store needs. *s3.Client satisfies it.
type API interface {
	manager.UploadAPIClient
	s3.ListObjectsV2APIClient
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// bucket reads and writes objects below one key prefix, retrying throttling and 5xx errors.
type bucket struct {
	api      API
	uploader *manager.Uploader
	name     string
	prefix   string

	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
}

func newBucket(api API, name, prefix string) *bucket {
	return &bucket{
		api:        api,
		uploader:   manager.NewUploader(api),
		name:       name,
		prefix:     prefix,
		maxRetries: defaultMaxRetries,
		baseDelay:  defaultBaseDelay,
		maxDelay:   defaultMaxDelay,
	}
}

func (b *bucket) key(rel string) string {
	return b.prefix + rel
}

// get returns the object body. found is false when the object does not exist.
func (b *bucket) get(ctx context.Context, rel string) (data []byte, found bool, err error) {
	key := b.key(rel)
	out, err := withRetry(ctx, b, func() (*s3.GetObjectOutput, error) {
		return b.api.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(b.name),
			Key:    aws.String(key),
		})
	})
	if err != nil {
		if isNotFound(err) {
			return nil, false, nil
		}
		return nil, false, errors.Wrapf(err, "get s3://%s/%s", b.name, key)
	}
	defer out.Body.Close()

	data, err = io.ReadAll(out.Body)
	if err != nil {
		return nil, false, errors.Wrapf(err, "read s3://%s/%s", b.name, key)
	}
	return data, true, nil
}

func (b *bucket) put(ctx context.Context, rel string, data []byte) error {
	key := b.key(rel)
	input := &s3.PutObjectInput{
		Bucket:            aws.String(b.name),
		Key:               aws.String(key),
		ChecksumAlgorithm: types.ChecksumAlgorithmCrc64nvme,
	}
	if ct := contentType(rel); ct != "" {
		input.ContentType = aws.String(ct)
	}

	_, err := withRetry(ctx, b, func() (*manager.UploadOutput, error) {
		input.Body = bytes.NewReader(data)
		return b.uploader.Upload(ctx, input)
	})
	if err != nil {
		return errors.Wrapf(err, "put s3://%s/%s", b.name, key)
	}
	return nil
}

func (b *bucket) delete(ctx context.Context, rel string) error {
	key := b.key(rel)
	_, err := withRetry(ctx, b, func() (*s3.DeleteObjectOutput, error) {
		return b.api.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(b.name),
			Key:    aws.String(key),
		})
	})
	if err != nil && !isNotFound(err) {
		return errors.Wrapf(err, "delete s3://%s/%s", b.name, key)
	}
	return nil
}

// list returns the keys below rel, relative to the bucket prefix.
func (b *bucket) list(ctx context.Context, rel string) ([]string, error) {
	paginator := s3.NewListObjectsV2Paginator(b.api, &s3.ListObjectsV2Input{
		Bucket: aws.String(b.name),
		Prefix: aws.String(b.key(rel)),
	})

	var keys []string
	for paginator.HasMorePages() {
		page, err := withRetry(ctx, b, func() (*s3.ListObjectsV2Output, error) {
			return paginator.NextPage(ctx)
		})
		if err != nil {
			return nil, errors.Wrapf(err, "list s3://%s/%s", b.name, b.key(rel))
		}
		for _, obj := range page.Contents {
			if obj.Key == nil {
				continue
			}
			keys = append(keys, (*obj.Key)[len(b.prefix):])
		}
	}
	return keys, nil
}

func withRetry[T any](ctx context.Context, b *bucket, op func() (T, error)) (T, error) {
	var lastErr error
	for attempt := 0; attempt <= b.maxRetries; attempt++ {
		out, err := op()
		if err == nil {
			return out, nil
		}
		if !isRetryableError(err) {
			var zero T
			return zero, err
		}

		lastErr = err
		if attempt < b.maxRetries {
			select {
			case <-ctx.Done():
				var zero T
				return zero, ctx.Err()
			case <-time.After(b.calculateDelay(attempt)):
			}
		}
	}
	var zero T
	return zero, errors.Wrap(lastErr, "max retries exceeded")
}

func isRetryableError(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "SlowDown", "ServiceUnavailable", "RequestTimeout", "RequestTimeoutException":
			return true
		}
		if httpErr, ok := apiErr.(interface{ HTTPStatusCode() int }); ok {
			code := httpErr.HTTPStatusCode()
			return code >= 500 && code < 600
		}
	}
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, io.ErrUnexpectedEOF)
}

func isNotFound(err error) bool {
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return true
	}
	var notFound *types.NotFound
	if errors.As(err, &notFound) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return true
		}
	}
	return false
}

// calculateDelay is exponential backoff with ±25% jitter, capped at maxDelay.
func (b *bucket) calculateDelay(attempt int) time.Duration {
	delay := float64(b.baseDelay) * math.Pow(2.0, float64(attempt))
	delay += delay * 0.25 * (2*rand.Float64() - 1)
	if delay > float64(b.maxDelay) {
		delay = float64(b.maxDelay)
	}
	return time.Duration(delay)
}

func contentType(name string) string {
	switch {
	case filepath.Ext(name) == ".xml":
		return "application/xml"
	case filepath.Ext(name) == "":
		return ""
	}
	return mime.TypeByExtension(filepath.Ext(name))
}
