package fastq

import (
	"compress/gzip"
	"fmt"
	"io"
	"log"
	"time"

	"cloud.google.com/go/storage"

	fastqcombiner "github.com/asomohammed/Fastq-combiner"
)

// Open returns a decompressed record stream for a local file or a gs://
// object. Local files are sniffed by magic bytes; remote objects fall back to
// suffix detection since they cannot be re-seeked cheaply.
func Open(path string, client *storage.Client) (io.ReadCloser, error) {
	if client != nil && fastqcombiner.IsGoogleStoragePath(path) {
		rc, err := fastqcombiner.MaybeOpenFromGoogleStorage(path, client)
		if err != nil {
			return nil, err
		}
		if hasGzipSuffix(path) {
			gz, err := gzip.NewReader(rc)
			if err != nil {
				rc.Close()
				return nil, fmt.Errorf("%s: %w", path, err)
			}
			return &remoteGzip{gz: gz, raw: rc}, nil
		}
		return rc, nil
	}

	return fastqcombiner.OpenDecompressed(path)
}

// OpenRetry wraps Open with a bounded exponential backoff, retrying transient
// open failures at the file level before the target's job is failed.
func OpenRetry(path string, client *storage.Client, attempts int, delay time.Duration) (io.ReadCloser, error) {
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			log.Printf("retrying open of %s (attempt %d/%d): %v", path, attempt+1, attempts, err)
			time.Sleep(delay * time.Duration(1<<uint(attempt-1)))
		}

		var rc io.ReadCloser
		rc, err = Open(path, client)
		if err == nil {
			return rc, nil
		}
	}

	return nil, err
}

func hasGzipSuffix(path string) bool {
	return len(path) > 3 && path[len(path)-3:] == ".gz"
}

type remoteGzip struct {
	gz  *gzip.Reader
	raw io.ReadCloser
}

func (r *remoteGzip) Read(p []byte) (int, error) { return r.gz.Read(p) }

func (r *remoteGzip) Close() error {
	r.gz.Close()
	return r.raw.Close()
}
