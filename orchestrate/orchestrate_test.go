package orchestrate

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/asomohammed/Fastq-combiner/checkpoint"
	"github.com/asomohammed/Fastq-combiner/combine"
	"github.com/asomohammed/Fastq-combiner/discover"
	"github.com/asomohammed/Fastq-combiner/fastq"
	"github.com/asomohammed/Fastq-combiner/resolve"
)

func writeFastq(t *testing.T, dir, name string, seqs ...string) string {
	t.Helper()
	var b strings.Builder
	for i, seq := range seqs {
		fmt.Fprintf(&b, "@read%d\n%s\n+\n%s\n", i+1, seq, strings.Repeat("I", len(seq)))
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func pairFor(t *testing.T, dir, target string, seqs ...string) resolve.ResolvedPair {
	t.Helper()
	r1 := writeFastq(t, dir, target+"_R1.fastq", seqs...)
	r2 := writeFastq(t, dir, target+"_R2.fastq", seqs...)
	return resolve.ResolvedPair{
		Target: target,
		R1:     []discover.SourceFile{{Path: r1, Token: target, Direction: fastq.Read1}},
		R2:     []discover.SourceFile{{Path: r2, Token: target, Direction: fastq.Read2}},
	}
}

func TestRunCombinesAllTargets(t *testing.T) {
	src := t.TempDir()
	out := t.TempDir()

	pairs := []resolve.ResolvedPair{
		pairFor(t, src, "alpha", "ACGT", "TTTT"),
		pairFor(t, src, "beta", "GGGG"),
		pairFor(t, src, "gamma", "CCCC", "AAAA", "TGCA"),
	}

	run := New(Config{Workers: 2, OutputDir: out}, combine.Options{}).Run(context.Background(), pairs)
	if run.Failed != 0 || run.Succeeded != 3 {
		t.Fatalf("run = %+v", run)
	}
	// Results stay in declaration order regardless of worker scheduling.
	for i, want := range []string{"alpha", "beta", "gamma"} {
		if run.Results[i].Target != want {
			t.Errorf("Results[%d].Target = %q, want %q", i, run.Results[i].Target, want)
		}
	}
	if run.TotalRecords != 12 {
		t.Errorf("TotalRecords = %d, want 12", run.TotalRecords)
	}
}

func TestOneFailureDoesNotStopOthers(t *testing.T) {
	src := t.TempDir()
	out := t.TempDir()

	bad := resolve.ResolvedPair{
		Target: "broken",
		R1:     []discover.SourceFile{{Path: filepath.Join(src, "missing_R1.fastq")}},
		R2:     []discover.SourceFile{{Path: filepath.Join(src, "missing_R2.fastq")}},
	}
	pairs := []resolve.ResolvedPair{pairFor(t, src, "alpha", "ACGT"), bad, pairFor(t, src, "beta", "GGGG")}

	run := New(Config{OutputDir: out}, combine.Options{}).Run(context.Background(), pairs)
	if run.Failed != 1 || run.Succeeded != 2 {
		t.Fatalf("run = %+v", run)
	}
	if run.Results[1].Err == nil {
		t.Error("broken target should carry its error")
	}
	if run.Results[0].Err != nil || run.Results[2].Err != nil {
		t.Error("healthy targets affected by the broken one")
	}
}

func TestPanicBecomesTargetError(t *testing.T) {
	res := runSafely("fragile", func() TargetResult {
		panic("decompressor blew up")
	})
	if res.Err == nil {
		t.Fatal("panic not converted to an error")
	}
	if res.Target != "fragile" {
		t.Errorf("Target = %q", res.Target)
	}
	if !strings.Contains(res.Err.Error(), "decompressor blew up") {
		t.Errorf("err = %v", res.Err)
	}
}

func TestUnbalancedPairFails(t *testing.T) {
	out := t.TempDir()
	pairs := []resolve.ResolvedPair{{Target: "lopsided", Unbalanced: true}}

	run := New(Config{OutputDir: out}, combine.Options{}).Run(context.Background(), pairs)
	if run.Failed != 1 {
		t.Fatalf("run = %+v", run)
	}
	if !strings.Contains(run.Results[0].Err.Error(), "unbalanced") {
		t.Errorf("err = %v", run.Results[0].Err)
	}
}

func TestResumeSkipsVerifiedTargets(t *testing.T) {
	src := t.TempDir()
	out := t.TempDir()
	store, err := checkpoint.Open(filepath.Join(out, "checkpoint.csv"))
	if err != nil {
		t.Fatal(err)
	}

	pairs := []resolve.ResolvedPair{pairFor(t, src, "alpha", "ACGT", "TTTT")}
	cfg := Config{OutputDir: out, Checkpoint: store}

	first := New(cfg, combine.Options{}).Run(context.Background(), pairs)
	if first.Failed != 0 || first.Succeeded != 1 {
		t.Fatalf("first run = %+v", first)
	}

	second := New(cfg, combine.Options{}).Run(context.Background(), pairs)
	if second.Skipped != 1 || second.Succeeded != 0 {
		t.Fatalf("second run = %+v", second)
	}
	if second.Results[0].R1Checksum != first.Results[0].R1Checksum {
		t.Error("skip lost the recorded checksum")
	}

	// Corrupting an output forces a re-combine.
	if err := os.WriteFile(first.Results[0].R1Output, []byte("garbage"), 0o644); err != nil {
		t.Fatal(err)
	}
	third := New(cfg, combine.Options{}).Run(context.Background(), pairs)
	if third.Succeeded != 1 || third.Skipped != 0 {
		t.Fatalf("third run = %+v", third)
	}
}

func TestForceIgnoresCheckpoint(t *testing.T) {
	src := t.TempDir()
	out := t.TempDir()
	store, err := checkpoint.Open(filepath.Join(out, "checkpoint.csv"))
	if err != nil {
		t.Fatal(err)
	}

	pairs := []resolve.ResolvedPair{pairFor(t, src, "alpha", "ACGT")}
	New(Config{OutputDir: out, Checkpoint: store}, combine.Options{}).Run(context.Background(), pairs)

	run := New(Config{OutputDir: out, Checkpoint: store, Force: true}, combine.Options{}).Run(context.Background(), pairs)
	if run.Succeeded != 1 || run.Skipped != 0 {
		t.Fatalf("forced run = %+v", run)
	}
}

func TestExistingOutputsRefusedWithoutForce(t *testing.T) {
	src := t.TempDir()
	out := t.TempDir()

	pairs := []resolve.ResolvedPair{pairFor(t, src, "alpha", "ACGT")}
	cfg := Config{OutputDir: out}

	first := New(cfg, combine.Options{}).Run(context.Background(), pairs)
	if first.Failed != 0 {
		t.Fatalf("first run = %+v", first)
	}

	second := New(cfg, combine.Options{}).Run(context.Background(), pairs)
	if second.Failed != 1 || !strings.Contains(second.Results[0].Err.Error(), "--force") {
		t.Fatalf("second run = %+v", second.Results[0].Err)
	}

	forced := New(Config{OutputDir: out, Force: true}, combine.Options{}).Run(context.Background(), pairs)
	if forced.Failed != 0 {
		t.Fatalf("forced run = %+v", forced)
	}
}

func TestDryRunWritesNothing(t *testing.T) {
	src := t.TempDir()
	out := t.TempDir()

	pairs := []resolve.ResolvedPair{pairFor(t, src, "alpha", "ACGT")}
	run := New(Config{OutputDir: out, DryRun: true}, combine.Options{}).Run(context.Background(), pairs)
	if run.Failed != 0 {
		t.Fatalf("run = %+v", run)
	}

	entries, err := os.ReadDir(out)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("dry run created files: %v", entries)
	}
}

func TestRetrySucceedsWithoutStaleState(t *testing.T) {
	src := t.TempDir()
	out := t.TempDir()

	pairs := []resolve.ResolvedPair{pairFor(t, src, "alpha", "ACGT")}
	run := New(Config{OutputDir: out, Retries: 2, RetryDelay: 1}, combine.Options{}).Run(context.Background(), pairs)
	if run.Failed != 0 {
		t.Fatalf("run = %+v", run)
	}
	if run.Results[0].Attempts != 1 {
		t.Errorf("Attempts = %d, want 1", run.Results[0].Attempts)
	}
}
