package fastq

import (
	"bytes"
	"testing"
)

func TestDetectSanger(t *testing.T) {
	d := NewEncodingDetector()
	// ASCII 35 ('#') is below 64, impossible under Illumina 1.3.
	for i := 0; i < DetectSampleSize; i++ {
		d.Observe([]byte("##IIII"))
	}

	if got := d.Encoding(); got != EncodingSanger {
		t.Errorf("Encoding() = %s, want sanger", got)
	}
}

func TestDetectIllumina13(t *testing.T) {
	d := NewEncodingDetector()
	// ASCII 104 ('h') is above 74, impossible under Sanger.
	for i := 0; i < DetectSampleSize; i++ {
		d.Observe([]byte("hhhhgg"))
	}

	if got := d.Encoding(); got != EncodingIllumina13 {
		t.Errorf("Encoding() = %s, want illumina-1.3", got)
	}
}

func TestAmbiguousRangeDefaultsToSanger(t *testing.T) {
	d := NewEncodingDetector()
	// ASCII 65-70 sits in the overlap of both conventions.
	d.Observe([]byte("ABCDEF"))

	if got := d.Encoding(); got != EncodingSanger {
		t.Errorf("Encoding() = %s, want sanger", got)
	}
}

func TestObserveWarnsAfterPinning(t *testing.T) {
	d := NewEncodingDetector()
	for i := 0; i < DetectSampleSize; i++ {
		if warn := d.Observe([]byte("#III")); warn != "" {
			t.Fatalf("warning during sampling window: %s", warn)
		}
	}

	if warn := d.Observe([]byte("IIII")); warn != "" {
		t.Errorf("unexpected warning for conforming line: %s", warn)
	}
	// 'h' (104) violates the pinned Sanger range.
	if warn := d.Observe([]byte("IIh")); warn == "" {
		t.Error("expected a warning for out-of-range quality")
	}
}

func TestChecksumAlgorithms(t *testing.T) {
	payload := []byte("@r\nACGT\n+\nIIII\n")

	for _, algo := range []ChecksumAlgo{ChecksumMD5, ChecksumBlake2b} {
		h, err := NewChecksum(algo)
		if err != nil {
			t.Fatal(err)
		}
		h.Write(payload)
		first := h.Sum(nil)

		h2, _ := NewChecksum(algo)
		h2.Write(payload)
		if !bytes.Equal(first, h2.Sum(nil)) {
			t.Errorf("%s checksum not deterministic", algo)
		}
	}

	if _, err := NewChecksum("sha512"); err == nil {
		t.Error("expected an error for an unknown algorithm")
	}
}
