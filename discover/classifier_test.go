package discover

import (
	"strings"
	"testing"

	"github.com/asomohammed/Fastq-combiner/fastq"
)

func TestClassifyDirections(t *testing.T) {
	files := []File{
		{Path: "/data/SampleA_S1_L001_R1_001.fastq.gz", Compressed: true},
		{Path: "/data/SampleA_S1_L001_R2_001.fastq.gz", Compressed: true},
		{Path: "/data/old_style_1.fastq", Compressed: false},
		{Path: "/data/dotted.R2.fastq.gz", Compressed: true},
		{Path: "/data/notes.txt", Compressed: false},
		{Path: "/data/README.md", Compressed: false},
	}

	classified, warnings := NewClassifier(nil, nil).Classify(files)
	if len(warnings) != 0 {
		t.Errorf("unexpected warnings: %v", warnings)
	}
	if len(classified) != 4 {
		t.Fatalf("classified %d files, want 4", len(classified))
	}

	dirs := map[string]string{}
	for _, f := range classified {
		dirs[f.Path] = f.Direction
	}
	if dirs["/data/SampleA_S1_L001_R1_001.fastq.gz"] != fastq.Read1 {
		t.Error("Illumina R1 misclassified")
	}
	if dirs["/data/old_style_1.fastq"] != fastq.Read1 {
		t.Error("_1.fastq misclassified")
	}
	if dirs["/data/dotted.R2.fastq.gz"] != fastq.Read2 {
		t.Error(".R2. misclassified")
	}
}

func TestClassifyAmbiguousFileWarns(t *testing.T) {
	// Matches both an R1 and an R2 pattern.
	files := []File{{Path: "/data/weird_R1_x_R2_001.fastq.gz"}}

	classified, warnings := NewClassifier(nil, nil).Classify(files)
	if len(classified) != 0 {
		t.Errorf("ambiguous file was classified: %+v", classified)
	}
	if len(warnings) != 1 || !strings.Contains(warnings[0], "ambiguous") {
		t.Errorf("warnings = %v", warnings)
	}
}

func TestSampleToken(t *testing.T) {
	tests := []struct{ base, want string }{
		{"SampleA_S1_L001_R1_001.fastq.gz", "SampleA"},
		{"SampleA_S12_R2_001.fastq.gz", "SampleA"},
		{"SampleB_R1_001.fastq.gz", "SampleB"},
		{"SampleC_R1.fastq.gz", "SampleC"},
		{"SampleD_1.fastq", "SampleD"},
		{"SampleE.R1.fastq.gz", "SampleE"},
		{"plain.fastq.gz", "plain"},
	}
	for _, tt := range tests {
		if got := SampleToken(tt.base); got != tt.want {
			t.Errorf("SampleToken(%q) = %q, want %q", tt.base, got, tt.want)
		}
	}
}

func TestLaneOrdinal(t *testing.T) {
	if got := LaneOrdinal("S_S1_L003_R1_001.fastq.gz"); got != 3 {
		t.Errorf("LaneOrdinal = %d, want 3", got)
	}
	if got := LaneOrdinal("S_R1.fastq.gz"); got != 0 {
		t.Errorf("LaneOrdinal without lane = %d, want 0", got)
	}
}

func TestStem(t *testing.T) {
	tests := []struct{ in, want string }{
		{"/x/SampleA_R1_001.fastq.gz", "SampleA_R1_001"},
		{"sample.fq", "sample"},
		{"sample.fastq.xz", "sample"},
	}
	for _, tt := range tests {
		if got := Stem(tt.in); got != tt.want {
			t.Errorf("Stem(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
