package combine

import (
	"bytes"

	"github.com/montanaflynn/stats"
)

// Adapter sequences screened for when adapter checking is enabled.
var adapterSequences = map[string][]byte{
	"Illumina": []byte("AGATCGGAAGAG"),
	"Nextera":  []byte("CTGTCTCTTATA"),
	"TruSeq":   []byte("AATGATACGGCG"),
}

// gcSampleCap bounds the per-read GC values retained for the median; the
// mean is maintained over all reads regardless.
const gcSampleCap = 100_000

// Metrics accumulates optional per-read observations over a combine job.
// All methods are called from a single goroutine.
type Metrics struct {
	gcSample []float64
	gcCount  int64
	gcSum    float64

	adapterHits map[string]int64
	barcodes    map[string]int64
}

func newMetrics() *Metrics {
	return &Metrics{
		adapterHits: make(map[string]int64),
		barcodes:    make(map[string]int64),
	}
}

func (m *Metrics) observeGC(seq []byte) {
	if len(seq) == 0 {
		return
	}

	var gc int
	for _, b := range seq {
		switch b {
		case 'G', 'C', 'g', 'c':
			gc++
		}
	}

	frac := 100 * float64(gc) / float64(len(seq))
	m.gcCount++
	m.gcSum += frac
	if len(m.gcSample) < gcSampleCap {
		m.gcSample = append(m.gcSample, frac)
	}
}

func (m *Metrics) observeAdapters(seq []byte) {
	for name, adapter := range adapterSequences {
		if bytes.Contains(seq, adapter) {
			m.adapterHits[name]++
		}
	}
}

// observeBarcode extracts the index barcode from the final colon-delimited
// field of the read header, the position Illumina instruments write it to.
func (m *Metrics) observeBarcode(id []byte) {
	i := bytes.LastIndexByte(id, ':')
	if i < 0 || i+1 >= len(id) {
		return
	}

	code := id[i+1:]
	if sp := bytes.IndexByte(code, ' '); sp >= 0 {
		code = code[:sp]
	}
	if !isBarcode(code) {
		return
	}
	m.barcodes[string(code)]++
}

func isBarcode(b []byte) bool {
	if len(b) < 6 {
		return false
	}
	for _, c := range b {
		switch c {
		case 'A', 'C', 'G', 'T', 'N', '+':
		default:
			return false
		}
	}
	return true
}

// MetricsSummary is the aggregated view reported after a job completes.
type MetricsSummary struct {
	MeanGC         float64
	MedianGC       float64
	AdapterHits    map[string]int64
	UniqueBarcodes int
}

func (m *Metrics) Summary() MetricsSummary {
	s := MetricsSummary{
		AdapterHits:    m.adapterHits,
		UniqueBarcodes: len(m.barcodes),
	}
	if m.gcCount > 0 {
		s.MeanGC = m.gcSum / float64(m.gcCount)
	}
	if len(m.gcSample) > 0 {
		if med, err := stats.Median(m.gcSample); err == nil {
			s.MedianGC = med
		}
	}
	return s
}
