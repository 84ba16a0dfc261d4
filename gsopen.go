package fastqcombiner

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/carbocation/pfx"
)

// IsGoogleStoragePath reports whether a path names a Google Storage object
// rather than a local file.
func IsGoogleStoragePath(path string) bool {
	return strings.HasPrefix(path, "gs://")
}

// ParseGoogleStoragePath splits gs://bucket/key into its bucket and key parts.
func ParseGoogleStoragePath(path string) (bucket, key string, err error) {
	parts := strings.SplitN(strings.TrimPrefix(path, "gs://"), "/", 2)
	if len(parts) != 2 {
		return "", "", fmt.Errorf("tried to split google storage path %q into 2 parts, but got %d", path, len(parts))
	}

	return parts[0], parts[1], nil
}

// MaybeOpenFromGoogleStorage opens a file for streaming reads whether it sits
// in Google Storage (gs:// prefix, non-nil client) or on the local filesystem.
// Local paths fall back to os.Open.
func MaybeOpenFromGoogleStorage(path string, client *storage.Client) (io.ReadCloser, error) {
	if client != nil && IsGoogleStoragePath(path) {
		bucket, key, err := ParseGoogleStoragePath(path)
		if err != nil {
			return nil, pfx.Err(err)
		}

		rdr, err := client.Bucket(bucket).Object(key).NewReader(context.Background())
		if err != nil {
			return nil, pfx.Err(fmt.Errorf("%s: %w", path, err))
		}

		return rdr, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, pfx.Err(err)
	}

	return f, nil
}
