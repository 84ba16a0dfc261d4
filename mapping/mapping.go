// Package mapping reads the target-to-sources mapping file: one row per
// target sample, `target_name, source_token_1 [, source_token_2, ...]`.
package mapping

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"log"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/carbocation/pfx"

	fastqcombiner "github.com/asomohammed/Fastq-combiner"
)

// SampleMapping is one declared target with its source tokens in declaration
// order. Target names are unique keys; duplicate rows merge their sources.
type SampleMapping struct {
	Target  string
	Sources []string
}

// Header words the original tool recognized; rows starting with one of these
// are always treated as a header.
var headerWords = map[string]bool{
	"target":        true,
	"target_sample": true,
	"output":        true,
	"sample":        true,
}

// ReadFile parses the mapping file at path, which may be local or a gs://
// object when client is non-nil. The delimiter is sniffed from the file
// contents. resolves, when non-nil, reports whether a token matches any
// discovered source; it drives header auto-detection for first rows that are
// not a known header word. A missing file is a configuration error and is
// returned to the caller (process-fatal).
func ReadFile(path string, client *storage.Client, resolves func(token string) bool) ([]SampleMapping, error) {
	rc, err := fastqcombiner.MaybeOpenFromGoogleStorage(path, client)
	if err != nil {
		return nil, pfx.Err(err)
	}
	defer rc.Close()

	raw, err := io.ReadAll(rc)
	if err != nil {
		return nil, pfx.Err(err)
	}

	delim := fastqcombiner.DetermineDelimiter(bytes.NewReader(raw))

	return Parse(bytes.NewReader(raw), delim, resolves)
}

// Parse reads rows from r with the given delimiter. See ReadFile.
func Parse(r io.Reader, delim rune, resolves func(token string) bool) ([]SampleMapping, error) {
	cr := csv.NewReader(r)
	cr.Comma = delim
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	rows, err := cr.ReadAll()
	if err != nil {
		return nil, pfx.Err(err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("mapping file contains no rows")
	}

	var out []SampleMapping
	index := make(map[string]int)

	for i, row := range rows {
		if len(row) == 0 || strings.TrimSpace(row[0]) == "" {
			continue
		}
		target := strings.TrimSpace(row[0])

		if i == 0 && isHeader(target, resolves) {
			log.Println("mapping: detected header row, skipping")
			continue
		}

		var sources []string
		for _, cell := range row[1:] {
			if s := strings.TrimSpace(cell); s != "" {
				sources = append(sources, s)
			}
		}
		if len(sources) == 0 {
			log.Printf("mapping: no source tokens for target %q on row %d", target, i+1)
			continue
		}

		if at, seen := index[target]; seen {
			out[at].Sources = append(out[at].Sources, sources...)
			continue
		}
		index[target] = len(out)
		out = append(out, SampleMapping{Target: target, Sources: sources})
	}

	if len(out) == 0 {
		return nil, fmt.Errorf("mapping file declares no usable targets")
	}

	return out, nil
}

func isHeader(firstCell string, resolves func(string) bool) bool {
	if headerWords[strings.ToLower(firstCell)] {
		return true
	}
	// First row is a header when its first cell does not resolve to any
	// discoverable source.
	if resolves != nil {
		return !resolves(firstCell)
	}

	return false
}
