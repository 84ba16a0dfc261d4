package fastq

import (
	"crypto/md5"
	"fmt"
	"hash"
	"io"
	"os"

	"github.com/carbocation/pfx"
	blake2b "github.com/minio/blake2b-simd"
)

// ChecksumAlgo names a content-checksum algorithm for combined outputs.
type ChecksumAlgo string

const (
	ChecksumMD5     ChecksumAlgo = "md5"
	ChecksumBlake2b ChecksumAlgo = "blake2b"
)

// NewChecksum returns a running hash for the chosen algorithm. The blake2b
// variant uses a 128-bit digest size.
func NewChecksum(algo ChecksumAlgo) (hash.Hash, error) {
	switch algo {
	case ChecksumMD5, "":
		return md5.New(), nil
	case ChecksumBlake2b:
		return blake2b.New(&blake2b.Config{Size: 16})
	}

	return nil, fmt.Errorf("unknown checksum algorithm %q", algo)
}

// FileChecksum computes the checksum of a file's on-disk bytes, used to
// re-verify checkpointed outputs before a resume skip.
func FileChecksum(path string, algo ChecksumAlgo) (string, error) {
	h, err := NewChecksum(algo)
	if err != nil {
		return "", err
	}

	f, err := os.Open(path)
	if err != nil {
		return "", pfx.Err(err)
	}
	defer f.Close()

	if _, err := io.Copy(h, f); err != nil {
		return "", pfx.Err(err)
	}

	return fmt.Sprintf("%x", h.Sum(nil)), nil
}
