package discover

import (
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/asomohammed/Fastq-combiner/fastq"
)

// SourceFile is a classified candidate file. Immutable once discovered.
type SourceFile struct {
	Path       string
	Token      string // inferred sample token from the filename stem
	Direction  string // fastq.Read1 or fastq.Read2
	Lane       int    // lane/part ordinal when present, else 0
	Compressed bool
	Pattern    string // first pattern that matched, for reporting only
}

// Stem returns the filename with FASTQ extensions stripped.
func (f SourceFile) Stem() string { return Stem(f.Path) }

// DefaultR1Patterns mirrors the original tool's discovery patterns.
func DefaultR1Patterns() []string {
	return []string{
		"*_R1_*.fastq.gz", "*_R1.fastq.gz", "*_1.fastq.gz", "*.R1.fastq.gz",
		"*_R1_*.fastq", "*_R1.fastq", "*_1.fastq", "*.R1.fastq",
	}
}

// DefaultR2Patterns is the R2 counterpart of DefaultR1Patterns.
func DefaultR2Patterns() []string {
	out := make([]string, 0, 8)
	for _, p := range DefaultR1Patterns() {
		p = strings.ReplaceAll(p, "R1", "R2")
		p = strings.ReplaceAll(p, "_1.", "_2.")
		out = append(out, p)
	}
	return out
}

// Classifier buckets scanned files into read directions using ordered glob
// pattern lists. A file matching patterns from both buckets, or neither, is
// excluded and surfaced as a warning rather than an error.
type Classifier struct {
	R1Patterns []string
	R2Patterns []string
}

// NewClassifier applies the default pattern lists when none are given.
func NewClassifier(r1, r2 []string) *Classifier {
	if len(r1) == 0 {
		r1 = DefaultR1Patterns()
	}
	if len(r2) == 0 {
		r2 = DefaultR2Patterns()
	}
	return &Classifier{R1Patterns: r1, R2Patterns: r2}
}

// Classify assigns each file to R1 or R2. The classification is the union
// across all patterns in a bucket; pattern order only decides which pattern
// gets reported as the match.
func (c *Classifier) Classify(files []File) (classified []SourceFile, warnings []string) {
	for _, f := range files {
		base := filepath.Base(f.Path)

		r1Pattern := firstMatch(c.R1Patterns, base)
		r2Pattern := firstMatch(c.R2Patterns, base)

		switch {
		case r1Pattern != "" && r2Pattern != "":
			warnings = append(warnings, "ambiguous file "+base+" matches both "+r1Pattern+" and "+r2Pattern)
			continue
		case r1Pattern == "" && r2Pattern == "":
			continue
		}

		direction, pattern := fastq.Read1, r1Pattern
		if r2Pattern != "" {
			direction, pattern = fastq.Read2, r2Pattern
		}

		classified = append(classified, SourceFile{
			Path:       f.Path,
			Token:      SampleToken(base),
			Direction:  direction,
			Lane:       LaneOrdinal(base),
			Compressed: f.Compressed,
			Pattern:    pattern,
		})
	}

	return classified, warnings
}

func firstMatch(patterns []string, base string) string {
	for _, p := range patterns {
		if ok, err := filepath.Match(p, base); err == nil && ok {
			return p
		}
	}
	return ""
}

// Stem strips .gz/.zip/.xz/.bz2 and then .fastq/.fq from a basename.
func Stem(path string) string {
	base := filepath.Base(path)
	for _, ext := range []string{".gz", ".zip", ".xz", ".bz2", ".z"} {
		base = strings.TrimSuffix(base, ext)
	}
	for _, ext := range []string{".fastq", ".fq"} {
		base = strings.TrimSuffix(base, ext)
	}
	return base
}

var laneRe = regexp.MustCompile(`_L(\d{3})_`)

// LaneOrdinal extracts the Illumina lane number (_L001_) when present.
func LaneOrdinal(base string) int {
	m := laneRe.FindStringSubmatch(base)
	if m == nil {
		return 0
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0
	}
	return n
}

// SampleToken infers the sample name from a filename using the same stem
// strategies as the original tool, checked in order:
// sample_S1_R1_001, sample_R1_001, sample_R1.fastq, sample_1.fastq,
// sample.R1.fastq.
func SampleToken(base string) string {
	for _, sep := range []string{"_R1_", "_R2_"} {
		if strings.Contains(base, sep) {
			if i := sIndex(base); i >= 0 {
				return base[:i]
			}
			return base[:strings.Index(base, sep)]
		}
	}
	for _, sep := range []string{"_R1.", "_R2.", "_1.", "_2.", ".R1.", ".R2."} {
		if i := strings.Index(base, sep); i >= 0 {
			return base[:i]
		}
	}
	return Stem(base)
}

// sIndex finds the Illumina sample-number suffix (_S12) that precedes the
// read-direction segment, if any.
func sIndex(base string) int {
	for i := 0; i+2 < len(base); i++ {
		if base[i] == '_' && base[i+1] == 'S' && base[i+2] >= '0' && base[i+2] <= '9' {
			return i
		}
	}
	return -1
}
