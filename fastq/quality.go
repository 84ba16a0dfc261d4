package fastq

import "fmt"

// Encoding is the quality-score convention a file was written with.
type Encoding int

const (
	EncodingUnknown Encoding = iota
	EncodingSanger           // Sanger / Illumina 1.8+, ASCII 33-74 typical
	EncodingIllumina13       // Illumina 1.3/1.5, ASCII 64-104
)

func (e Encoding) String() string {
	switch e {
	case EncodingSanger:
		return "sanger"
	case EncodingIllumina13:
		return "illumina-1.3"
	}
	return "unknown"
}

// DetectSampleSize is how many leading records are inspected before a file's
// encoding is pinned down.
const DetectSampleSize = 200

// EncodingDetector classifies a stream's quality encoding from a sampled
// prefix of records, then validates later records against that classification.
// Violations are warnings, never aborts.
type EncodingDetector struct {
	sampled  int
	min, max byte
	enc      Encoding
}

func NewEncodingDetector() *EncodingDetector {
	return &EncodingDetector{min: 126, max: 33}
}

// Encoding returns the classification, pinning it from the sampled range if
// the sample window is exhausted or the stream ended early.
func (d *EncodingDetector) Encoding() Encoding {
	if d.enc == EncodingUnknown && d.sampled > 0 {
		d.classify()
	}
	return d.enc
}

func (d *EncodingDetector) classify() {
	// Scores below ASCII 64 cannot occur in Illumina 1.3/1.5 output.
	if d.min < 64 {
		d.enc = EncodingSanger
	} else if d.max > 74 {
		d.enc = EncodingIllumina13
	} else {
		// The 64-74 overlap is ambiguous; modern data dominates.
		d.enc = EncodingSanger
	}
}

// Observe feeds one quality line through the detector. Once the encoding is
// pinned it returns a non-empty warning for lines that violate it.
func (d *EncodingDetector) Observe(qual []byte) string {
	if d.enc == EncodingUnknown {
		for _, q := range qual {
			if q < d.min {
				d.min = q
			}
			if q > d.max {
				d.max = q
			}
		}
		d.sampled++
		if d.sampled >= DetectSampleSize {
			d.classify()
		}
		return ""
	}

	lo, hi := byte(33), byte(74)
	if d.enc == EncodingIllumina13 {
		lo, hi = 64, 104
	}
	for _, q := range qual {
		if q < lo || q > hi {
			return fmt.Sprintf("quality character 0x%02x outside detected %s range", q, d.enc)
		}
	}

	return ""
}
