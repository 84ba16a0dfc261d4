// fastq-combiner merges scattered paired-end FASTQ files into one
// R1/R2 pair per declared sample, following a user-provided mapping file.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"cloud.google.com/go/storage"

	fastqcombiner "github.com/asomohammed/Fastq-combiner"
	"github.com/asomohammed/Fastq-combiner/checkpoint"
	"github.com/asomohammed/Fastq-combiner/combine"
	"github.com/asomohammed/Fastq-combiner/discover"
	"github.com/asomohammed/Fastq-combiner/fastq"
	"github.com/asomohammed/Fastq-combiner/mapping"
	"github.com/asomohammed/Fastq-combiner/orchestrate"
	"github.com/asomohammed/Fastq-combiner/resolve"
)

// Special value that is to be set using ldflags
// E.g.: go build -ldflags "-X main.builddate=`date -u +%Y-%m-%d:%H:%M:%S%Z`"
var builddate string

var client *storage.Client

func main() {
	fmt.Fprintf(os.Stderr, "This fastq-combiner binary was built at: %s\n", builddate)

	var searchDirs, r1Patterns, r2Patterns flagSlice
	var mappingPath, outputDir, checkpointPath, summaryPath, checksumAlgo string
	var workers, retries, dedupLimit, bufferMB int
	var fuzzyThreshold float64
	var minFreeGB int
	var dedup, pairedDedup, validateQuality, gcMetrics, adapterCheck, barcodeCheck bool
	var resume, force, dryRun, strict, discardOnMismatch, skipUnresolved, lastWins bool

	flag.StringVar(&mappingPath, "mapping", "", "Path to a CSV/TSV mapping file (target name in the first column, source sample tokens in the rest). Delimiter is sniffed.")
	flag.Var(&searchDirs, "search", "Directory or gs:// prefix to scan for FASTQ files. Pass once per root. Defaults to the current directory.")
	flag.StringVar(&outputDir, "output", "combined", "Directory that receives the combined {sample}_S1_R1_001.fastq.gz outputs.")
	flag.Var(&r1Patterns, "r1-pattern", "Additional glob pattern that marks a file as R1. Pass once per pattern.")
	flag.Var(&r2Patterns, "r2-pattern", "Additional glob pattern that marks a file as R2. Pass once per pattern.")
	flag.IntVar(&workers, "workers", 0, "Concurrent targets to combine. 0 means one per CPU.")
	flag.IntVar(&bufferMB, "buffer-mb", 0, "Per-stream I/O buffer in MB. 0 picks a size from the discovered file count.")
	flag.IntVar(&retries, "retries", 2, "Extra attempts per failed target, with exponential backoff.")
	flag.BoolVar(&dedup, "dedup", false, "Drop reads whose sequence repeats within a target and direction.")
	flag.BoolVar(&pairedDedup, "paired-dedup", false, "Drop R1/R2 pairs whose combined sequences repeat. Reads the pair in lock step.")
	flag.IntVar(&dedupLimit, "dedup-limit", combine.DefaultDedupLimit, "Max distinct sequences tracked per target before deduplication degrades to pass-through.")
	flag.BoolVar(&validateQuality, "validate-quality", false, "Detect each file's quality encoding and warn about reads that contradict it.")
	flag.BoolVar(&gcMetrics, "gc-metrics", false, "Report mean and median GC content per target.")
	flag.BoolVar(&adapterCheck, "adapter-check", false, "Count reads containing common Illumina/Nextera/TruSeq adapter sequences.")
	flag.BoolVar(&barcodeCheck, "barcode-check", false, "Count distinct index barcodes seen in read headers.")
	flag.StringVar(&checksumAlgo, "checksum", string(fastq.ChecksumMD5), "Checksum algorithm for outputs: md5 or blake2b.")
	flag.BoolVar(&resume, "resume", false, "Skip targets whose checkpointed outputs still verify.")
	flag.StringVar(&checkpointPath, "checkpoint", "", "Checkpoint file location. Defaults to .fastq_combiner_checkpoint.csv inside the output directory.")
	flag.BoolVar(&force, "force", false, "Re-combine targets even when their checkpoint entry verifies.")
	flag.BoolVar(&dryRun, "dry-run", false, "Resolve and plan every target, but do not combine anything.")
	flag.BoolVar(&strict, "strict", false, "Treat record accounting mismatches as failures instead of warnings.")
	flag.BoolVar(&discardOnMismatch, "discard-on-mismatch", false, "With -strict, also delete the outputs of a mismatched target.")
	flag.BoolVar(&skipUnresolved, "skip-unresolved", false, "Continue past targets whose tokens cannot be resolved, instead of failing the run.")
	flag.BoolVar(&lastWins, "last-wins", false, "When two targets claim the same file, the later declaration wins. Default is first wins.")
	flag.Float64Var(&fuzzyThreshold, "fuzzy-threshold", resolve.DefaultThreshold, "Minimum similarity for a fuzzy token match.")
	flag.IntVar(&minFreeGB, "min-free-gb", 0, "Fail a target up front when the output filesystem has less than this many GB free. 0 disables the check.")
	flag.StringVar(&summaryPath, "summary", "combination_summary.csv", "Per-target CSV summary, relative paths landing in the output directory. Empty disables it.")
	flag.Parse()

	if mappingPath == "" {
		flag.PrintDefaults()
		log.Fatalln("--mapping is required")
	}
	if len(searchDirs) == 0 {
		searchDirs = flagSlice{"."}
	}

	if err := run(mappingPath, searchDirs, r1Patterns, r2Patterns, outputDir, checkpointPath, summaryPath,
		config{
			workers:           workers,
			retries:           retries,
			bufferBytes:       bufferMB << 20,
			dedup:             dedup,
			pairedDedup:       pairedDedup,
			dedupLimit:        dedupLimit,
			validateQuality:   validateQuality,
			gcMetrics:         gcMetrics,
			adapterCheck:      adapterCheck,
			barcodeCheck:      barcodeCheck,
			checksum:          fastq.ChecksumAlgo(checksumAlgo),
			resume:            resume,
			force:             force,
			dryRun:            dryRun,
			strict:            strict,
			discardOnMismatch: discardOnMismatch,
			skipUnresolved:    skipUnresolved,
			lastWins:          lastWins,
			fuzzyThreshold:    fuzzyThreshold,
			minFreeBytes:      uint64(minFreeGB) << 30,
		}); err != nil {
		log.Fatalln(err)
	}
}

type config struct {
	workers, retries, dedupLimit int
	bufferBytes                  int
	dedup, pairedDedup           bool
	validateQuality              bool
	gcMetrics                    bool
	adapterCheck, barcodeCheck   bool
	checksum                     fastq.ChecksumAlgo
	resume, force, dryRun        bool
	strict, discardOnMismatch    bool
	skipUnresolved, lastWins     bool
	fuzzyThreshold               float64
	minFreeBytes                 uint64
}

func run(mappingPath string, searchDirs, r1Patterns, r2Patterns []string, outputDir, checkpointPath, summaryPath string, cfg config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	if mappingPath, err = fastqcombiner.ExpandHome(mappingPath); err != nil {
		return err
	}
	if outputDir, err = fastqcombiner.ExpandHome(outputDir); err != nil {
		return err
	}
	for i := range searchDirs {
		if searchDirs[i], err = fastqcombiner.ExpandHome(searchDirs[i]); err != nil {
			return err
		}
	}

	// Initialize the Google Storage client only if we're pointing to Google
	// Storage paths.
	for _, dir := range searchDirs {
		if strings.HasPrefix(dir, "gs://") || strings.HasPrefix(mappingPath, "gs://") {
			if client, err = storage.NewClient(ctx); err != nil {
				return err
			}

			break
		}
	}

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return err
	}

	scanner := &discover.Scanner{Roots: searchDirs, GSClient: client}
	files, err := scanner.Scan(ctx)
	if err != nil {
		return err
	}
	log.Printf("scanned %d files under %d search roots", len(files), len(searchDirs))

	classifier := discover.NewClassifier(
		append(discover.DefaultR1Patterns(), r1Patterns...),
		append(discover.DefaultR2Patterns(), r2Patterns...),
	)
	classified, warnings := classifier.Classify(files)
	for _, w := range warnings {
		log.Println(w)
	}
	log.Printf("classified %d FASTQ files", len(classified))

	policy := resolve.FirstDeclaredWins
	if cfg.lastWins {
		policy = resolve.LastDeclaredWins
	}
	resolver := resolve.New(resolve.Config{
		Threshold: cfg.fuzzyThreshold,
		Policy:    policy,
	}, classified)

	mappings, err := mapping.ReadFile(mappingPath, client, resolver.CanResolve)
	if err != nil {
		return err
	}
	log.Printf("mapping declares %d targets", len(mappings))

	pairs, resolveErrs := resolver.ResolveAll(mappings)
	for target, rerr := range resolveErrs {
		if !cfg.skipUnresolved {
			return fmt.Errorf("%s: %w (use --skip-unresolved to continue past unresolved targets)", target, rerr)
		}
		log.Printf("skipping %s: %v", target, rerr)
	}
	for _, p := range pairs {
		if p == nil {
			continue
		}
		for _, m := range p.Fuzzy {
			log.Printf("%s: token %q fuzzy-matched %s (similarity %.2f), verify the assignment",
				p.Target, m.Token, m.File.Path, m.Score)
		}
	}

	var store *checkpoint.Store
	if cfg.resume || checkpointPath != "" {
		if checkpointPath == "" {
			checkpointPath = filepath.Join(outputDir, ".fastq_combiner_checkpoint.csv")
		}
		if store, err = checkpoint.Open(checkpointPath); err != nil {
			return err
		}
	}

	orch := orchestrate.New(orchestrate.Config{
		Workers:           cfg.workers,
		Retries:           cfg.retries,
		RetryDelay:        time.Second,
		OutputDir:         outputDir,
		Checkpoint:        store,
		Force:             cfg.force,
		DryRun:            cfg.dryRun,
		StrictIntegrity:   cfg.strict,
		DiscardOnMismatch: cfg.discardOnMismatch,
	}, combine.Options{
		BufferSize:      bufferSize(cfg.bufferBytes, len(classified)),
		Dedup:           cfg.dedup,
		PairedDedup:     cfg.pairedDedup,
		DedupLimit:      cfg.dedupLimit,
		ValidateQuality: cfg.validateQuality,
		GCMetrics:       cfg.gcMetrics,
		AdapterCheck:    cfg.adapterCheck,
		BarcodeCheck:    cfg.barcodeCheck,
		Checksum:        cfg.checksum,
		OpenAttempts:    cfg.retries + 1,
		MinFreeBytes:    cfg.minFreeBytes,
		GSClient:        client,
	})

	deref := make([]resolve.ResolvedPair, 0, len(pairs))
	for _, p := range pairs {
		if p == nil {
			continue
		}
		deref = append(deref, *p)
	}
	run := orch.Run(ctx, deref)

	report(run)
	if summaryPath != "" {
		if !filepath.IsAbs(summaryPath) {
			summaryPath = filepath.Join(outputDir, summaryPath)
		}
		if err := writeSummary(summaryPath, run); err != nil {
			log.Printf("summary write failed: %v", err)
		}
	}

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("interrupted: %w", err)
	}
	if run.Failed > 0 {
		return fmt.Errorf("%d of %d targets failed", run.Failed, run.Attempted)
	}

	log.Printf("combined %d targets (%d skipped): %d records written, %d duplicates removed",
		run.Succeeded, run.Skipped, run.TotalRecords, run.TotalDuplicates)
	return nil
}

// bufferSize shrinks the per-stream buffer when many files were discovered,
// since several workers may hold buffers at once.
func bufferSize(requested, fileCount int) int {
	if requested > 0 {
		return requested
	}
	if fileCount > 200 {
		return fastq.DefaultBufferSize / 2
	}
	return fastq.DefaultBufferSize
}

func report(run orchestrate.RunResult) {
	for _, r := range run.Results {
		switch {
		case r.Err != nil:
			log.Printf("FAILED %s after %d attempts: %v", r.Target, r.Attempts, r.Err)
		case r.Resumed:
			log.Printf("skipped %s", r.Target)
		default:
			extra := ""
			if r.DedupLimitHit {
				extra = " (dedup limit hit, tail unchecked)"
			}
			log.Printf("combined %s: %d R1 + %d R2 records, %d duplicates removed in %s%s",
				r.Target, r.R1Records, r.R2Records, r.Duplicates, r.Elapsed.Round(time.Millisecond), extra)
			if r.Metrics != nil {
				log.Printf("  %s: GC mean %.1f%% median %.1f%%, %d distinct barcodes, adapter hits %v",
					r.Target, r.Metrics.MeanGC, r.Metrics.MedianGC, r.Metrics.UniqueBarcodes, r.Metrics.AdapterHits)
			}
		}
		for _, w := range r.Warnings {
			log.Printf("  warning: %s", w)
		}
	}
}
