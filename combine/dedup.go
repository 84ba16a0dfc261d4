package combine

import (
	"encoding/binary"

	blake2b "github.com/minio/blake2b-simd"
)

// DefaultDedupLimit caps the seen-set cardinality. Past the cap,
// deduplication degrades gracefully: remaining records pass through unchecked
// and the job result records that the limit was hit.
const DefaultDedupLimit = 10_000_000

// dedupSet tracks exact sequence identity with bounded memory: keys are
// 128-bit blake2b digests of the sequence bytes rather than the sequences
// themselves. Job-local, never shared across targets, so no lock is needed.
type dedupSet struct {
	seen    map[[16]byte]struct{}
	limit   int
	hit     bool
	removed int64
}

func newDedupSet(limit int) *dedupSet {
	if limit <= 0 {
		limit = DefaultDedupLimit
	}
	return &dedupSet{seen: make(map[[16]byte]struct{}), limit: limit}
}

// isDuplicateSeq reports whether seq was seen before, inserting it otherwise.
func (d *dedupSet) isDuplicateSeq(seq []byte) bool {
	return d.isDuplicate(key128(seq))
}

// isDuplicatePair keys on the combined identity of an R1/R2 pair.
func (d *dedupSet) isDuplicatePair(r1Seq, r2Seq []byte) bool {
	return d.isDuplicate(key128(r1Seq, r2Seq))
}

func (d *dedupSet) isDuplicate(k [16]byte) bool {
	if d.hit {
		return false
	}
	if _, dup := d.seen[k]; dup {
		d.removed++
		return true
	}
	if len(d.seen) >= d.limit {
		d.hit = true
		return false
	}
	d.seen[k] = struct{}{}

	return false
}

// key128 hashes the parts with an 8-byte length prefix each, so that
// ("ab","c") and ("a","bc") produce distinct pair keys.
func key128(parts ...[]byte) [16]byte {
	h, err := blake2b.New(&blake2b.Config{Size: 16})
	if err != nil {
		panic(err) // static config, cannot fail
	}

	var lenBuf [8]byte
	for _, p := range parts {
		binary.LittleEndian.PutUint64(lenBuf[:], uint64(len(p)))
		h.Write(lenBuf[:])
		h.Write(p)
	}

	var k [16]byte
	copy(k[:], h.Sum(nil))
	return k
}
