package s3store

import (
	"strings"

	"github.com/cockroachdb/errors"
)

// ParseURI splits s3://bucket/prefix into the bucket and a prefix ending in "/" (or "").
func ParseURI(uri string) (bucket, prefix string, err error) {
	if !strings.HasPrefix(uri, "s3://") {
		return "", "", errors.Newf("invalid S3 URI %q: must start with s3://", uri)
	}

	path := strings.TrimPrefix(uri, "s3://")
	parts := strings.SplitN(path, "/", 2)
	if parts[0] == "" {
		return "", "", errors.Newf("invalid S3 URI %q: missing bucket name", uri)
	}

	bucket = parts[0]
	if len(parts) > 1 {
		prefix = strings.TrimLeft(parts[1], "/")
		if prefix != "" && !strings.HasSuffix(prefix, "/") {
			prefix += "/"
		}
	}
	return bucket, prefix, nil
}
