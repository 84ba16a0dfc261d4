package fastqcombiner

import (
	"io"

	"github.com/csimplestring/go-csv/detector"
)

// Sample mapping files show up as comma, tab, or semicolon separated. When the
// detector is ambiguous, prefer these over whatever else it guessed.
var mappingDelimiters = map[rune]bool{',': true, '\t': true, ';': true}

// DetermineDelimiter returns the most likely rune delimiting the values in a
// mapping file. Falls back to a comma when nothing can be detected.
func DetermineDelimiter(r io.Reader) rune {
	d := detector.New()
	candidates := d.DetectDelimiter(r, '"')

	for _, c := range candidates {
		if ch := rune(c[0]); mappingDelimiters[ch] {
			return ch
		}
	}
	if len(candidates) > 0 {
		return rune(candidates[0][0])
	}

	return ','
}
