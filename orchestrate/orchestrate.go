// Package orchestrate fans resolved targets out over a bounded worker pool
// and collects per-target results in declaration order.
package orchestrate

import (
	"context"
	"fmt"
	"log"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/asomohammed/Fastq-combiner/checkpoint"
	"github.com/asomohammed/Fastq-combiner/combine"
	"github.com/asomohammed/Fastq-combiner/discover"
	"github.com/asomohammed/Fastq-combiner/fastq"
	"github.com/asomohammed/Fastq-combiner/resolve"
)

// Config governs a run over all resolved targets.
type Config struct {
	// Workers bounds concurrent combine jobs. Defaults to NumCPU.
	Workers int

	// Retries re-runs a failed target this many additional times. Partial
	// outputs from the failed attempt are already removed before a retry.
	Retries int

	// RetryDelay waits between attempts, doubling each time.
	RetryDelay time.Duration

	// OutputDir receives the combined files.
	OutputDir string

	// Checkpoint, when non-nil, records completed targets and skips
	// targets whose prior outputs still verify.
	Checkpoint *checkpoint.Store

	// Force re-runs targets even when their checkpoint entry verifies and
	// overwrites pre-existing outputs. Without it, and without a checkpoint
	// store to arbitrate staleness, existing outputs fail the target.
	Force bool

	// DryRun plans jobs and reports them without combining anything.
	DryRun bool

	StrictIntegrity   bool
	DiscardOnMismatch bool
}

// RunResult aggregates a whole run. Results holds one entry per resolved
// target, in the mapping's declaration order regardless of which worker
// finished first.
type RunResult struct {
	Results         []TargetResult
	Attempted       int
	Succeeded       int
	Skipped         int
	Failed          int
	TotalRecords    int64
	TotalDuplicates int64
}

// TargetResult wraps one target's combine outcome with run-level state.
type TargetResult struct {
	combine.Result
	Attempts int
	Resumed  bool
	Fuzzy    bool
}

type Orchestrator struct {
	cfg      Config
	combiner *combine.Combiner
	algo     fastq.ChecksumAlgo
}

func New(cfg Config, opts combine.Options) *Orchestrator {
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	return &Orchestrator{cfg: cfg, combiner: combine.New(opts), algo: opts.Checksum}
}

// Run combines every resolved pair. One target's failure never stops the
// others; cancellation of ctx does, cooperatively.
func (o *Orchestrator) Run(ctx context.Context, pairs []resolve.ResolvedPair) RunResult {
	run := RunResult{Results: make([]TargetResult, len(pairs))}

	type job struct {
		idx  int
		pair resolve.ResolvedPair
	}
	jobs := make(chan job)

	var wg sync.WaitGroup
	for w := 0; w < o.cfg.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				run.Results[j.idx] = runSafely(j.pair.Target, func() TargetResult {
					return o.runTarget(ctx, j.pair)
				})
			}
		}()
	}

	for i, p := range pairs {
		jobs <- job{idx: i, pair: p}
	}
	close(jobs)
	wg.Wait()

	for _, r := range run.Results {
		run.Attempted++
		switch {
		case r.Err != nil:
			run.Failed++
		case r.Resumed:
			run.Skipped++
		default:
			run.Succeeded++
		}
		run.TotalRecords += r.R1Records + r.R2Records
		run.TotalDuplicates += r.Duplicates
	}

	return run
}

// runSafely converts a panic while processing one target into that target's
// error, so the remaining targets keep running.
func runSafely(target string, fn func() TargetResult) (res TargetResult) {
	defer func() {
		if r := recover(); r != nil {
			res.Target = target
			res.Err = fmt.Errorf("%s: panic during combine: %v", target, r)
		}
	}()
	return fn()
}

func (o *Orchestrator) runTarget(ctx context.Context, pair resolve.ResolvedPair) TargetResult {
	r1Out, r2Out := combine.OutputPaths(o.cfg.OutputDir, pair.Target)
	res := TargetResult{Fuzzy: len(pair.Fuzzy) > 0}
	res.Target = pair.Target
	res.R1Output, res.R2Output = r1Out, r2Out

	if pair.Unbalanced {
		res.Err = fmt.Errorf("%s: unbalanced R1/R2 sources, refusing to combine", pair.Target)
		return res
	}

	if o.cfg.Checkpoint != nil && !o.cfg.Force {
		verify := func(path string) (string, error) {
			return fastq.FileChecksum(path, o.algo)
		}
		if o.cfg.Checkpoint.IsComplete(pair.Target, verify) {
			log.Printf("%s: outputs verified against checkpoint, skipping", pair.Target)
			rec, _ := o.cfg.Checkpoint.Lookup(pair.Target)
			res.Resumed = true
			res.R1Checksum, res.R2Checksum = rec.R1Checksum, rec.R2Checksum
			return res
		}
	}

	if !o.cfg.Force && o.cfg.Checkpoint == nil && !o.cfg.DryRun {
		for _, out := range []string{r1Out, r2Out} {
			if _, err := os.Stat(out); err == nil {
				res.Err = fmt.Errorf("%s: %s already exists, pass --force to overwrite", pair.Target, out)
				return res
			}
		}
	}

	if o.cfg.DryRun {
		log.Printf("%s: would combine %d R1 and %d R2 files into %s", pair.Target, len(pair.R1), len(pair.R2), r1Out)
		res.Resumed = true
		return res
	}

	cj := combine.Job{
		Target:            pair.Target,
		R1Sources:         sourcePaths(pair.R1),
		R2Sources:         sourcePaths(pair.R2),
		R1Output:          r1Out,
		R2Output:          r2Out,
		StrictIntegrity:   o.cfg.StrictIntegrity,
		DiscardOnMismatch: o.cfg.DiscardOnMismatch,
	}

	delay := o.cfg.RetryDelay
	for attempt := 0; ; attempt++ {
		res.Result = o.combiner.Run(ctx, cj)
		res.Attempts = attempt + 1
		if len(pair.Warnings) > 0 {
			res.Warnings = append(append([]string{}, pair.Warnings...), res.Warnings...)
		}

		if res.Err == nil {
			break
		}
		if ctx.Err() != nil || attempt >= o.cfg.Retries {
			return res
		}

		log.Printf("%s: attempt %d failed, retrying in %s: %v", pair.Target, attempt+1, delay, res.Err)
		time.Sleep(delay)
		delay *= 2
	}

	if o.cfg.Checkpoint != nil {
		err := o.cfg.Checkpoint.MarkComplete(checkpoint.Record{
			Target:     pair.Target,
			R1Output:   r1Out,
			R2Output:   r2Out,
			R1Checksum: res.R1Checksum,
			R2Checksum: res.R2Checksum,
			Records:    res.R1Records + res.R2Records,
		})
		if err != nil {
			log.Printf("%s: combined but checkpoint write failed: %v", pair.Target, err)
		}
	}

	return res
}

func sourcePaths(files []discover.SourceFile) []string {
	out := make([]string, 0, len(files))
	for _, f := range files {
		out = append(out, f.Path)
	}
	return out
}
