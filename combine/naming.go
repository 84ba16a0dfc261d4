package combine

import (
	"path/filepath"
	"strings"
)

// SanitizeTarget rewrites a declared target name into a form safe for
// output filenames: spaces become underscores and anything outside
// alphanumerics, underscore, dash, and dot is dropped.
func SanitizeTarget(name string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '_' || r == '-' || r == '.':
			b.WriteRune(r)
		case r == ' ':
			b.WriteByte('_')
		}
	}
	if b.Len() == 0 {
		return "sample"
	}
	return b.String()
}

// OutputPaths returns the R1 and R2 output paths for a target, following
// the Illumina bcl2fastq naming convention so downstream tools such as
// Cell Ranger accept the files directly.
func OutputPaths(dir, target string) (r1, r2 string) {
	clean := SanitizeTarget(target)
	r1 = filepath.Join(dir, clean+"_S1_R1_001.fastq.gz")
	r2 = filepath.Join(dir, clean+"_S1_R2_001.fastq.gz")
	return r1, r2
}
