package fastq

import (
	"bufio"
	"bytes"
	"io"
)

// DefaultBufferSize is the per-stream I/O buffer. Tunable from the CLI;
// records are still handed out one at a time regardless of buffer size.
const DefaultBufferSize = 8 << 20

// Reader streams records off an underlying reader without ever holding more
// than one record plus the I/O buffer in memory.
type Reader struct {
	br     *bufio.Reader
	source string
	n      int64
}

// NewReader wraps r. source is used in error messages only.
func NewReader(r io.Reader, source string, bufferSize int) *Reader {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}

	return &Reader{br: bufio.NewReaderSize(r, bufferSize), source: source}
}

// Records returns how many records have been read so far.
func (r *Reader) Records() int64 { return r.n }

// Read returns the next record, io.EOF at end of stream, or a *FormatError if
// the stream is truncated mid-record.
func (r *Reader) Read() (*Record, error) {
	id, err := r.readLine()
	if err == io.EOF && len(id) == 0 {
		return nil, io.EOF
	} else if err != nil && err != io.EOF {
		return nil, err
	}

	rec := &Record{ID: id}
	next := []struct {
		dst  *[]byte
		what string
	}{
		{&rec.Seq, "sequence"},
		{&rec.Plus, "separator"},
		{&rec.Qual, "quality"},
	}
	for _, part := range next {
		line, err := r.readLine()
		if err == io.EOF && len(line) == 0 {
			return nil, &FormatError{Source: r.source, Record: r.n + 1, Reason: "truncated record: missing " + part.what + " line"}
		} else if err != nil && err != io.EOF {
			return nil, err
		}
		*part.dst = line
	}

	r.n++
	return rec, nil
}

func (r *Reader) readLine() ([]byte, error) {
	line, err := r.br.ReadBytes('\n')
	return bytes.TrimRight(line, "\r\n"), err
}
