package combine

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"cloud.google.com/go/storage"
	"github.com/carbocation/pfx"

	fastqcombiner "github.com/asomohammed/Fastq-combiner"
	"github.com/asomohammed/Fastq-combiner/fastq"
)

// Options configures a Combiner. The zero value is usable; defaults are
// filled in by New.
type Options struct {
	// BufferSize for per-file read and write buffering.
	BufferSize int

	// Dedup removes reads whose sequence was already emitted for the same
	// target and direction.
	Dedup bool

	// PairedDedup removes R1/R2 pairs as units, keyed on the combined
	// identity of both sequences. Implies lock-step iteration over the
	// paired source files.
	PairedDedup bool

	// DedupLimit bounds the number of distinct sequences tracked.
	DedupLimit int

	// ValidateQuality detects the quality score encoding per source file
	// and warns about reads that contradict it.
	ValidateQuality bool

	GCMetrics    bool
	AdapterCheck bool
	BarcodeCheck bool

	// Checksum algorithm applied to the compressed output bytes.
	Checksum fastq.ChecksumAlgo

	// OpenAttempts and RetryDelay govern retried opens of source files.
	OpenAttempts int
	RetryDelay   time.Duration

	// MinFreeBytes fails a job up front when the output filesystem has
	// less free space than this. Zero disables the check.
	MinFreeBytes uint64

	// GSClient enables reading sources from Google Storage paths.
	GSClient *storage.Client
}

// Job describes one target to combine.
type Job struct {
	Target    string
	R1Sources []string
	R2Sources []string
	R1Output  string
	R2Output  string

	// StrictIntegrity turns record accounting mismatches into job failures
	// instead of warnings.
	StrictIntegrity bool

	// DiscardOnMismatch removes the outputs when a strict integrity
	// failure occurs. Default is to retain them for inspection.
	DiscardOnMismatch bool
}

// Result reports the outcome of one combine job.
type Result struct {
	Target string

	R1Output, R2Output     string
	R1Input, R2Input       int64
	R1Records, R2Records   int64
	Duplicates             int64
	DedupLimitHit          bool
	R1Checksum, R2Checksum string

	Metrics  *MetricsSummary
	Warnings []string
	Elapsed  time.Duration
	Err      error

	r1Dropped, r2Dropped int64
}

// IntegrityError reports a record accounting mismatch between what was read
// from the sources and what reached the output.
type IntegrityError struct {
	Target    string
	Direction string
	Expected  int64
	Written   int64
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("%s %s: expected %d records in output, wrote %d", e.Target, e.Direction, e.Expected, e.Written)
}

// warningCap bounds the warnings retained per job so a pathological input
// cannot balloon the result.
const warningCap = 20

type Combiner struct {
	opts Options
}

func New(opts Options) *Combiner {
	if opts.BufferSize <= 0 {
		opts.BufferSize = fastq.DefaultBufferSize
	}
	if opts.DedupLimit <= 0 {
		opts.DedupLimit = DefaultDedupLimit
	}
	if opts.OpenAttempts <= 0 {
		opts.OpenAttempts = 1
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = time.Second
	}
	if opts.Checksum == "" {
		opts.Checksum = fastq.ChecksumMD5
	}
	return &Combiner{opts: opts}
}

// Run combines one target. Partial outputs are removed when the job fails,
// except on strict integrity mismatches, where the outputs are retained for
// inspection unless the job requests otherwise.
func (c *Combiner) Run(ctx context.Context, job Job) Result {
	start := time.Now()
	res := Result{Target: job.Target, R1Output: job.R1Output, R2Output: job.R2Output}
	defer func() { res.Elapsed = time.Since(start) }()

	if c.opts.MinFreeBytes > 0 {
		free, err := fastqcombiner.FreeSpace(filepath.Dir(job.R1Output))
		if err == nil && free > 0 && free < c.opts.MinFreeBytes {
			res.Err = fmt.Errorf("%s: %d bytes free on output filesystem, need at least %d", job.Target, free, c.opts.MinFreeBytes)
			return res
		}
	}

	var m *Metrics
	if c.opts.GCMetrics || c.opts.AdapterCheck || c.opts.BarcodeCheck {
		m = newMetrics()
	}

	if c.opts.PairedDedup {
		c.runPaired(ctx, job, m, &res)
	} else {
		c.runSplit(ctx, job, m, &res)
	}
	if res.Err != nil {
		removeOutputs(job)
		return res
	}

	if m != nil {
		s := m.Summary()
		res.Metrics = &s
	}

	c.checkIntegrity(job, &res)
	return res
}

// runSplit combines R1 and R2 independently, each direction with its own
// deduplication state when enabled.
func (c *Combiner) runSplit(ctx context.Context, job Job, m *Metrics, res *Result) {
	var d1, d2 *dedupSet
	if c.opts.Dedup {
		d1 = newDedupSet(c.opts.DedupLimit)
		d2 = newDedupSet(c.opts.DedupLimit)
	}

	r1, err := c.runDirection(ctx, job.R1Sources, job.R1Output, d1, m, res)
	if err != nil {
		res.Err = pfx.Err(err)
		return
	}
	res.R1Input, res.R1Records, res.R1Checksum = r1.read, r1.written, r1.checksum

	r2, err := c.runDirection(ctx, job.R2Sources, job.R2Output, d2, m, res)
	if err != nil {
		res.Err = pfx.Err(err)
		return
	}
	res.R2Input, res.R2Records, res.R2Checksum = r2.read, r2.written, r2.checksum

	if d1 != nil {
		res.r1Dropped, res.r2Dropped = d1.removed, d2.removed
		res.Duplicates = d1.removed + d2.removed
		res.DedupLimitHit = d1.hit || d2.hit
	}
}

type dirResult struct {
	read     int64
	written  int64
	checksum string
}

func (c *Combiner) runDirection(ctx context.Context, sources []string, outPath string, d *dedupSet, m *Metrics, res *Result) (dirResult, error) {
	var dr dirResult

	w, err := fastq.NewWriter(outPath, c.opts.BufferSize, c.opts.Checksum)
	if err != nil {
		return dr, err
	}

	for _, src := range sources {
		if err := c.appendFile(ctx, src, w, d, m, res, &dr.read); err != nil {
			w.Abort()
			return dr, err
		}
	}

	if err := w.Close(); err != nil {
		os.Remove(outPath)
		return dr, err
	}
	dr.written = w.Records()
	dr.checksum = w.Checksum()
	return dr, nil
}

// appendFile streams one source file into the writer, applying the optional
// stages in fixed order: quality, structural validation, deduplication,
// metrics.
func (c *Combiner) appendFile(ctx context.Context, src string, w *fastq.Writer, d *dedupSet, m *Metrics, res *Result, read *int64) error {
	rc, err := fastq.OpenRetry(src, c.opts.GSClient, c.opts.OpenAttempts, c.opts.RetryDelay)
	if err != nil {
		return err
	}
	defer rc.Close()

	rd := fastq.NewReader(rc, src, c.opts.BufferSize)
	var det *fastq.EncodingDetector
	if c.opts.ValidateQuality {
		det = fastq.NewEncodingDetector()
	}

	var n int64
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		rec, err := rd.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		n++
		*read++

		if err := rec.Check(src, n); err != nil {
			return err
		}
		if det != nil {
			if warn := det.Observe(rec.Qual); warn != "" {
				addWarning(res, warn)
			}
		}
		if d != nil && d.isDuplicateSeq(rec.Seq) {
			continue
		}
		if m != nil {
			c.observe(m, rec)
		}
		if err := w.Write(rec); err != nil {
			return err
		}
	}
}

// runPaired iterates the R1 and R2 source lists in lock step, dropping
// duplicate pairs as units so the outputs stay synchronized.
func (c *Combiner) runPaired(ctx context.Context, job Job, m *Metrics, res *Result) {
	if len(job.R1Sources) != len(job.R2Sources) {
		res.Err = fmt.Errorf("%s: %d R1 files but %d R2 files, cannot pair", job.Target, len(job.R1Sources), len(job.R2Sources))
		return
	}

	d := newDedupSet(c.opts.DedupLimit)

	w1, err := fastq.NewWriter(job.R1Output, c.opts.BufferSize, c.opts.Checksum)
	if err != nil {
		res.Err = pfx.Err(err)
		return
	}
	w2, err := fastq.NewWriter(job.R2Output, c.opts.BufferSize, c.opts.Checksum)
	if err != nil {
		w1.Abort()
		res.Err = pfx.Err(err)
		return
	}

	for i := range job.R1Sources {
		if err := c.appendPairedFiles(ctx, job.R1Sources[i], job.R2Sources[i], w1, w2, d, m, res); err != nil {
			w1.Abort()
			w2.Abort()
			res.Err = pfx.Err(err)
			return
		}
	}

	if err := w1.Close(); err != nil {
		w2.Abort()
		os.Remove(job.R1Output)
		res.Err = pfx.Err(err)
		return
	}
	if err := w2.Close(); err != nil {
		os.Remove(job.R1Output)
		os.Remove(job.R2Output)
		res.Err = pfx.Err(err)
		return
	}

	res.R1Records, res.R2Records = w1.Records(), w2.Records()
	res.R1Checksum, res.R2Checksum = w1.Checksum(), w2.Checksum()
	res.Duplicates = d.removed
	res.r1Dropped, res.r2Dropped = d.removed, d.removed
	res.DedupLimitHit = d.hit
}

func (c *Combiner) appendPairedFiles(ctx context.Context, src1, src2 string, w1, w2 *fastq.Writer, d *dedupSet, m *Metrics, res *Result) error {
	rc1, err := fastq.OpenRetry(src1, c.opts.GSClient, c.opts.OpenAttempts, c.opts.RetryDelay)
	if err != nil {
		return err
	}
	defer rc1.Close()
	rc2, err := fastq.OpenRetry(src2, c.opts.GSClient, c.opts.OpenAttempts, c.opts.RetryDelay)
	if err != nil {
		return err
	}
	defer rc2.Close()

	rd1 := fastq.NewReader(rc1, src1, c.opts.BufferSize)
	rd2 := fastq.NewReader(rc2, src2, c.opts.BufferSize)

	var det1, det2 *fastq.EncodingDetector
	if c.opts.ValidateQuality {
		det1 = fastq.NewEncodingDetector()
		det2 = fastq.NewEncodingDetector()
	}

	var n int64
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		rec1, err1 := rd1.Read()
		rec2, err2 := rd2.Read()

		if err1 != nil && err1 != io.EOF {
			return err1
		}
		if err2 != nil && err2 != io.EOF {
			return err2
		}
		if err1 == io.EOF || err2 == io.EOF {
			// Pairs drop as units, so a leftover tail in the longer
			// file is discarded rather than written singly.
			if err1 != err2 {
				longer := src1
				if err2 == io.EOF {
					longer = src2
				}
				addWarning(res, fmt.Sprintf("%s: paired files have unequal record counts, trailing unpaired reads dropped", longer))
			}
			return nil
		}
		n++
		res.R1Input++
		res.R2Input++

		if err := rec1.Check(src1, n); err != nil {
			return err
		}
		if err := rec2.Check(src2, n); err != nil {
			return err
		}
		if det1 != nil {
			if warn := det1.Observe(rec1.Qual); warn != "" {
				addWarning(res, warn)
			}
			if warn := det2.Observe(rec2.Qual); warn != "" {
				addWarning(res, warn)
			}
		}
		if d.isDuplicatePair(rec1.Seq, rec2.Seq) {
			continue
		}
		if m != nil {
			c.observe(m, rec1)
			c.observe(m, rec2)
		}
		if err := w1.Write(rec1); err != nil {
			return err
		}
		if err := w2.Write(rec2); err != nil {
			return err
		}
	}
}

func (c *Combiner) observe(m *Metrics, rec *fastq.Record) {
	if c.opts.GCMetrics {
		m.observeGC(rec.Seq)
	}
	if c.opts.AdapterCheck {
		m.observeAdapters(rec.Seq)
	}
	if c.opts.BarcodeCheck {
		m.observeBarcode(rec.ID)
	}
}

// checkIntegrity verifies the record accounting after a job completes: each
// output must hold exactly the records read minus the records dropped, and
// the two outputs must hold the same number of records. A
// mismatch is a warning by default and a failure in strict mode, where the
// outputs are retained for inspection unless the job discards them.
func (c *Combiner) checkIntegrity(job Job, res *Result) {
	expected1 := res.R1Input - res.r1Dropped
	expected2 := res.R2Input - res.r2Dropped

	var mismatch *IntegrityError
	switch {
	case res.R1Records != expected1:
		mismatch = &IntegrityError{Target: job.Target, Direction: fastq.Read1, Expected: expected1, Written: res.R1Records}
	case res.R2Records != expected2:
		mismatch = &IntegrityError{Target: job.Target, Direction: fastq.Read2, Expected: expected2, Written: res.R2Records}
	case res.R1Records != res.R2Records:
		mismatch = &IntegrityError{Target: job.Target, Direction: fastq.Read2, Expected: res.R1Records, Written: res.R2Records}
	}
	if mismatch == nil {
		return
	}

	if !job.StrictIntegrity {
		addWarning(res, mismatch.Error())
		return
	}
	res.Err = mismatch
	if job.DiscardOnMismatch {
		removeOutputs(job)
	}
}

func addWarning(res *Result, warn string) {
	if len(res.Warnings) >= warningCap {
		return
	}
	res.Warnings = append(res.Warnings, warn)
	if len(res.Warnings) == warningCap {
		res.Warnings = append(res.Warnings[:warningCap-1], "further warnings suppressed")
	}
}

func removeOutputs(job Job) {
	os.Remove(job.R1Output)
	os.Remove(job.R2Output)
}
