// Package fastq streams four-line FASTQ records with bounded memory.
package fastq

import "fmt"

// Read directions of a paired-end sample.
const (
	Read1 = "R1"
	Read2 = "R2"
)

// Record is one FASTQ entry. Plus preserves the separator line verbatim so
// that combined output carries whatever the instrument wrote there.
type Record struct {
	ID   []byte
	Seq  []byte
	Plus []byte
	Qual []byte
}

// FormatError describes a structurally invalid record. It is fatal for the
// target being combined, not for the whole run.
type FormatError struct {
	Source string
	Record int64
	Reason string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("%s: record %d: %s", e.Source, e.Record, e.Reason)
}

// Check enforces the structural invariants: a non-empty sequence, a quality
// string of identical length, and quality characters in printable ASCII.
func (r *Record) Check(source string, n int64) error {
	if len(r.ID) == 0 || r.ID[0] != '@' {
		return &FormatError{Source: source, Record: n, Reason: "identifier line does not start with '@'"}
	}
	if len(r.Seq) == 0 {
		return &FormatError{Source: source, Record: n, Reason: "empty sequence"}
	}
	if len(r.Plus) == 0 || r.Plus[0] != '+' {
		return &FormatError{Source: source, Record: n, Reason: "separator line does not start with '+'"}
	}
	if len(r.Seq) != len(r.Qual) {
		return &FormatError{
			Source: source,
			Record: n,
			Reason: fmt.Sprintf("sequence length %d != quality length %d", len(r.Seq), len(r.Qual)),
		}
	}
	for _, q := range r.Qual {
		if q < 33 || q > 126 {
			return &FormatError{Source: source, Record: n, Reason: fmt.Sprintf("quality character 0x%02x outside printable ASCII", q)}
		}
	}

	return nil
}
