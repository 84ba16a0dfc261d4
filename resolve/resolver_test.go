package resolve

import (
	"strings"
	"testing"

	"github.com/asomohammed/Fastq-combiner/discover"
	"github.com/asomohammed/Fastq-combiner/fastq"
	"github.com/asomohammed/Fastq-combiner/mapping"
)

func src(path, token, direction string, lane int) discover.SourceFile {
	return discover.SourceFile{Path: path, Token: token, Direction: direction, Lane: lane}
}

func pairFiles(token string, lanes ...int) []discover.SourceFile {
	var out []discover.SourceFile
	for _, lane := range lanes {
		suffix := ""
		if lane > 0 {
			suffix = "_L00" + string(rune('0'+lane))
		}
		out = append(out,
			src("/d/"+token+suffix+"_R1_001.fastq.gz", token, fastq.Read1, lane),
			src("/d/"+token+suffix+"_R2_001.fastq.gz", token, fastq.Read2, lane),
		)
	}
	return out
}

func mappingOf(target string, tokens ...string) mappingRow {
	return mappingRow{target: target, tokens: tokens}
}

type mappingRow struct {
	target string
	tokens []string
}

func resolveAll(t *testing.T, cfg Config, files []discover.SourceFile, rows ...mappingRow) ([]*ResolvedPair, map[string]error) {
	t.Helper()
	r := New(cfg, files)

	ms := make([]mapping.SampleMapping, 0, len(rows))
	for _, row := range rows {
		ms = append(ms, mapping.SampleMapping{Target: row.target, Sources: row.tokens})
	}
	return r.ResolveAll(ms)
}

func TestExactPrefixMatch(t *testing.T) {
	files := pairFiles("SampleA", 0)

	pairs, errs := resolveAll(t, Config{}, files, mappingOf("out", "SampleA"))
	if len(errs) != 0 {
		t.Fatalf("errs = %v", errs)
	}
	p := pairs[0]
	if len(p.R1) != 1 || len(p.R2) != 1 {
		t.Fatalf("pair = %+v", p)
	}
	if len(p.Fuzzy) != 0 {
		t.Error("exact match flagged as fuzzy")
	}
}

func TestCaseInsensitiveMatchIsNotFuzzy(t *testing.T) {
	files := pairFiles("SampleA", 0)

	pairs, errs := resolveAll(t, Config{}, files, mappingOf("out", "samplea"))
	if len(errs) != 0 {
		t.Fatalf("errs = %v", errs)
	}
	if len(pairs[0].Fuzzy) != 0 {
		t.Error("case-insensitive match must not be flagged fuzzy")
	}
}

func TestSeparatorStyleMatchIsNotFuzzy(t *testing.T) {
	files := pairFiles("Sample_A", 0)

	pairs, errs := resolveAll(t, Config{}, files, mappingOf("out", "Sample-A"))
	if len(errs) != 0 {
		t.Fatalf("errs = %v", errs)
	}
	if len(pairs[0].R1) != 1 {
		t.Fatalf("pair = %+v", pairs[0])
	}
	if len(pairs[0].Fuzzy) != 0 {
		t.Error("separator-style variation must not be flagged fuzzy")
	}
}

func TestFuzzyMatchFlagged(t *testing.T) {
	files := append(pairFiles("SampleAlpha", 0), pairFiles("Wholly_Different", 0)...)

	pairs, errs := resolveAll(t, Config{}, files, mappingOf("out", "SampleAlhpa"))
	if len(errs) != 0 {
		t.Fatalf("errs = %v", errs)
	}
	p := pairs[0]
	if len(p.R1) != 1 || !strings.Contains(p.R1[0].Path, "SampleAlpha") {
		t.Fatalf("pair = %+v", p)
	}
	if len(p.Fuzzy) == 0 {
		t.Error("misspelled token should be flagged fuzzy")
	}
	for _, m := range p.Fuzzy {
		if m.Score < DefaultThreshold {
			t.Errorf("fuzzy score %f below threshold", m.Score)
		}
	}
}

func TestFuzzyBelowThresholdUnmatched(t *testing.T) {
	files := pairFiles("SampleAlpha", 0)

	_, errs := resolveAll(t, Config{}, files, mappingOf("out", "zzzz"))
	if _, ok := errs["out"].(*UnmatchedTokenError); !ok {
		t.Errorf("expected *UnmatchedTokenError, got %v", errs["out"])
	}
}

func TestFuzzyTieIsAmbiguous(t *testing.T) {
	files := append(pairFiles("Sample_01x", 0), pairFiles("Sample_01y", 0)...)

	_, errs := resolveAll(t, Config{}, files, mappingOf("out", "Sample_01z"))
	ae, ok := errs["out"].(*AmbiguousTokenError)
	if !ok {
		t.Fatalf("expected *AmbiguousTokenError, got %v", errs["out"])
	}
	if len(ae.Candidates) != 2 {
		t.Errorf("candidates = %v", ae.Candidates)
	}
}

func TestLaneOrdering(t *testing.T) {
	// Declare lanes out of order; claims must sort by lane.
	files := pairFiles("SampleA", 3, 1, 2)

	pairs, errs := resolveAll(t, Config{}, files, mappingOf("out", "SampleA"))
	if len(errs) != 0 {
		t.Fatalf("errs = %v", errs)
	}
	p := pairs[0]
	if len(p.R1) != 3 {
		t.Fatalf("pair = %+v", p)
	}
	for i, want := range []int{1, 2, 3} {
		if p.R1[i].Lane != want {
			t.Errorf("R1[%d].Lane = %d, want %d", i, p.R1[i].Lane, want)
		}
	}
}

func TestFirstDeclaredWins(t *testing.T) {
	files := pairFiles("SampleA", 0)

	pairs, errs := resolveAll(t, Config{}, files,
		mappingOf("first", "SampleA"),
		mappingOf("second", "SampleA"),
	)
	if errs["first"] != nil {
		t.Fatalf("first: %v", errs["first"])
	}
	if len(pairs[0].R1) != 1 {
		t.Errorf("first target lost its claim: %+v", pairs[0])
	}
	// The second target finds every matching file already claimed.
	if _, ok := errs["second"].(*UnmatchedTokenError); !ok {
		t.Errorf("second target should be unmatched, got %v", errs["second"])
	}
}

func TestLastDeclaredWinsSteals(t *testing.T) {
	files := pairFiles("SampleA", 0)

	pairs, errs := resolveAll(t, Config{Policy: LastDeclaredWins}, files,
		mappingOf("first", "SampleA"),
		mappingOf("second", "SampleA"),
	)
	if errs["second"] != nil {
		t.Fatalf("second: %v", errs["second"])
	}
	if len(pairs[1].R1) != 1 || len(pairs[1].R2) != 1 {
		t.Fatalf("second target did not win: %+v", pairs[1])
	}
	if len(pairs[0].R1) != 0 || len(pairs[0].R2) != 0 {
		t.Errorf("stolen files still listed on first target: %+v", pairs[0])
	}
	if len(pairs[0].Warnings) == 0 {
		t.Error("first target should carry a reassignment warning")
	}
}

func TestUnbalancedFlagged(t *testing.T) {
	files := []discover.SourceFile{
		src("/d/S_L001_R1_001.fastq.gz", "S", fastq.Read1, 1),
		src("/d/S_L002_R1_001.fastq.gz", "S", fastq.Read1, 2),
		src("/d/S_L001_R2_001.fastq.gz", "S", fastq.Read2, 1),
	}

	pairs, errs := resolveAll(t, Config{}, files, mappingOf("out", "S"))
	if len(errs) != 0 {
		t.Fatalf("errs = %v", errs)
	}
	if !pairs[0].Unbalanced {
		t.Error("2 R1 vs 1 R2 must be flagged unbalanced")
	}
}

func TestCanResolve(t *testing.T) {
	r := New(Config{}, pairFiles("SampleA", 0))

	if !r.CanResolve("SampleA") {
		t.Error("exact token should resolve")
	}
	if !r.CanResolve("samplea") {
		t.Error("case variant should resolve")
	}
	if r.CanResolve("target_name") {
		t.Error("header word must not resolve")
	}
}
