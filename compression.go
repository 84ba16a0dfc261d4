package fastqcombiner

import (
	"compress/bzip2"
	"compress/gzip"
	"compress/zlib"
	"fmt"
	"io"
	"os"

	"github.com/krolaw/zipstream"
	"github.com/xi2/xz"
)

// Compression identifies the on-disk encoding of a source FASTQ file.
type Compression byte

const (
	CompressionInvalid Compression = iota
	CompressionNone
	CompressionGzip
	CompressionZip
	CompressionXZ
	CompressionZ
	CompressionBZip2
)

// Magic-byte signatures from https://stackoverflow.com/a/19127748/199475
var compressionSigs = map[Compression][]byte{
	CompressionGzip:  {0x1f, 0x8b, 0x08},
	CompressionZip:   {0x50, 0x4b, 0x03, 0x04},
	CompressionXZ:    {0xfd, 0x37, 0x7a, 0x58, 0x5a, 0x00},
	CompressionZ:     {0x1f, 0x9d},
	CompressionBZip2: {0x42, 0x5a, 0x68},
}

// DetectCompression sniffs the first bytes of r and matches them against the
// known signature set. Anything unrecognized is assumed to be plain text.
func DetectCompression(r io.Reader) (Compression, error) {
	buff := make([]byte, 6)
	if _, err := io.ReadAtLeast(r, buff, 3); err != nil {
		return CompressionInvalid, err
	}

Outer:
	for c, sig := range compressionSigs {
		for i := range sig {
			if buff[i] != sig[i] {
				continue Outer
			}
		}
		return c, nil
	}

	return CompressionNone, nil
}

// OpenDecompressed opens a file and, if its leading bytes identify a known
// compressed format, wraps it in the matching decompressor. The caller closes
// the returned reader; closing it also closes the underlying file.
func OpenDecompressed(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	c, err := DetectCompression(f)
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		// Too short to carry a signature; treat as plain text.
		c = CompressionNone
	} else if err != nil {
		f.Close()
		return nil, err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		f.Close()
		return nil, err
	}

	switch c {
	case CompressionGzip:
		gz, err := gzip.NewReader(f)
		if err != nil {
			f.Close()
			return nil, err
		}
		return &wrappedReadCloser{gz, f}, nil
	case CompressionZip:
		// zipstream yields nothing until Next advances to an entry.
		zs := zipstream.NewReader(f)
		if _, err := zs.Next(); err != nil {
			f.Close()
			if err == io.EOF {
				return nil, fmt.Errorf("%s: zip archive contains no entries", path)
			}
			return nil, err
		}
		return &wrappedReadCloser{zs, f}, nil
	case CompressionBZip2:
		return &wrappedReadCloser{bzip2.NewReader(f), f}, nil
	case CompressionXZ:
		xzr, err := xz.NewReader(f, 0)
		if err != nil {
			f.Close()
			return nil, err
		}
		return &wrappedReadCloser{xzr, f}, nil
	case CompressionZ:
		zr, err := zlib.NewReader(f)
		if err != nil {
			f.Close()
			return nil, err
		}
		return &wrappedReadCloser{zr, f}, nil
	}

	return f, nil
}

// wrappedReadCloser closes the underlying file along with the stream, for
// decompressors that either have no Close or whose Close leaves the file open.
type wrappedReadCloser struct {
	io.Reader
	f *os.File
}

func (w *wrappedReadCloser) Close() error {
	if c, ok := w.Reader.(io.Closer); ok {
		c.Close()
	}
	return w.f.Close()
}
