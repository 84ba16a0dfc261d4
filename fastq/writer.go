package fastq

import (
	"bufio"
	"fmt"
	"hash"
	"io"
	"os"

	"github.com/carbocation/pfx"
	gzip "github.com/klauspost/compress/gzip"
)

var newline = []byte{'\n'}

// Writer emits records into a gzip-compressed file while accumulating a
// content checksum over the compressed bytes actually written to disk. The
// gzip header carries no mod-time, so output bytes are deterministic for
// identical input.
type Writer struct {
	path string
	f    *os.File
	bw   *bufio.Writer
	gz   *gzip.Writer
	sum  hash.Hash
	n    int64

	checksum string
}

// NewWriter creates path (truncating it) and layers gzip over a buffered,
// checksummed file stream.
func NewWriter(path string, bufferSize int, algo ChecksumAlgo) (*Writer, error) {
	sum, err := NewChecksum(algo)
	if err != nil {
		return nil, err
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, pfx.Err(err)
	}

	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	bw := bufio.NewWriterSize(f, bufferSize)

	return &Writer{
		path: path,
		f:    f,
		bw:   bw,
		gz:   gzip.NewWriter(io.MultiWriter(bw, sum)),
		sum:  sum,
	}, nil
}

// Write appends one record.
func (w *Writer) Write(rec *Record) error {
	for _, line := range [][]byte{rec.ID, rec.Seq, rec.Plus, rec.Qual} {
		if _, err := w.gz.Write(line); err != nil {
			return pfx.Err(err)
		}
		if _, err := w.gz.Write(newline); err != nil {
			return pfx.Err(err)
		}
	}
	w.n++

	return nil
}

// Records returns the number of records written.
func (w *Writer) Records() int64 { return w.n }

// Path returns the output file path.
func (w *Writer) Path() string { return w.path }

// Checksum is valid only after Close.
func (w *Writer) Checksum() string { return w.checksum }

// Close flushes all layers and finalizes the checksum.
func (w *Writer) Close() error {
	if err := w.gz.Close(); err != nil {
		w.f.Close()
		return pfx.Err(err)
	}
	if err := w.bw.Flush(); err != nil {
		w.f.Close()
		return pfx.Err(err)
	}
	if err := w.f.Close(); err != nil {
		return pfx.Err(err)
	}
	w.checksum = fmt.Sprintf("%x", w.sum.Sum(nil))

	return nil
}

// Abort closes and removes a partially written output. Used when a target's
// job fails so the output directory never holds an incomplete combine.
func (w *Writer) Abort() {
	w.gz.Close()
	w.f.Close()
	os.Remove(w.path)
}
