package s3store

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseURI(t *testing.T) {
	tests := []struct {
		name       string
		uri        string
		wantBucket string
		wantPrefix string
		wantErr    bool
	}{
		{name: "bucket only", uri: "s3://bucket", wantBucket: "bucket"},
		{name: "bucket with slash", uri: "s3://bucket/", wantBucket: "bucket"},
		{name: "prefix gets trailing slash", uri: "s3://bucket/org/dev", wantBucket: "bucket", wantPrefix: "org/dev/"},
		{name: "prefix keeps trailing slash", uri: "s3://bucket/org/", wantBucket: "bucket", wantPrefix: "org/"},
		{name: "missing scheme", uri: "bucket/org", wantErr: true},
		{name: "missing bucket", uri: "s3:///org", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bucket, prefix, err := ParseURI(tt.uri)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantBucket, bucket)
			assert.Equal(t, tt.wantPrefix, prefix)
		})
	}
}

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "slow down", err: &smithy.GenericAPIError{Code: "SlowDown"}, want: true},
		{name: "service unavailable", err: &smithy.GenericAPIError{Code: "ServiceUnavailable"}, want: true},
		{name: "access denied", err: &smithy.GenericAPIError{Code: "AccessDenied"}, want: false},
		{name: "no such key", err: &types.NoSuchKey{}, want: false},
		{name: "deadline", err: errors.Wrap(context.DeadlineExceeded, "get"), want: true},
		{name: "unexpected eof", err: io.ErrUnexpectedEOF, want: true},
		{name: "plain", err: errors.New("boom"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isRetryableError(tt.err))
		})
	}
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, isNotFound(&types.NoSuchKey{}))
	assert.True(t, isNotFound(errors.Wrap(&types.NotFound{}, "head")))
	assert.True(t, isNotFound(&smithy.GenericAPIError{Code: "NoSuchKey"}))
	assert.False(t, isNotFound(&smithy.GenericAPIError{Code: "AccessDenied"}))
	assert.False(t, isNotFound(errors.New("boom")))
}

func TestCalculateDelay(t *testing.T) {
	b := newBucket(newFakeS3(), "bucket", "")

	for attempt := 0; attempt < 5; attempt++ {
		want := float64(defaultBaseDelay) * float64(int(1)<<attempt)
		got := float64(b.calculateDelay(attempt))
		assert.GreaterOrEqual(t, got, want*0.75, "attempt %d", attempt)
		assert.LessOrEqual(t, got, want*1.25, "attempt %d", attempt)
	}

	assert.Equal(t, defaultMaxDelay, b.calculateDelay(30))
}

func TestContentType(t *testing.T) {
	assert.Equal(t, "application/xml", contentType("tree/objects/Account.object-meta.xml"))
	assert.Equal(t, "", contentType("tree/classes/README"))
	assert.Contains(t, contentType("revisions.json"), "application/json")
}

func TestBucketDeleteIgnoresMissing(t *testing.T) {
	b := newBucket(newFakeS3(), "bucket", "p/")
	b.baseDelay = time.Millisecond
	require.NoError(t, b.delete(context.Background(), "nothing-here"))
}
