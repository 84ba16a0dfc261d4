// Package checkpoint persists per-target completion records so an
// interrupted run can resume without redoing finished work.
package checkpoint

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/carbocation/pfx"
	"github.com/gocarina/gocsv"
)

// Record is one completed target. Checksums are over the compressed output
// bytes and are re-verified before a resume skip, so a checkpoint can never
// mask a deleted or modified output.
type Record struct {
	Target     string `csv:"target"`
	R1Output   string `csv:"r1_output"`
	R2Output   string `csv:"r2_output"`
	R1Checksum string `csv:"r1_checksum"`
	R2Checksum string `csv:"r2_checksum"`
	Records    int64  `csv:"records"`
	FinishedAt string `csv:"finished_at"`
}

// Store reads and writes a checkpoint file. All methods are safe for
// concurrent use; writes rewrite the whole file through a temp file and
// rename so a crash mid-write cannot corrupt it.
type Store struct {
	path string

	mu      sync.Mutex
	records map[string]Record
	order   []string
}

// Open loads the checkpoint at path, creating an empty store if the file
// does not exist yet.
func Open(path string) (*Store, error) {
	s := &Store{path: path, records: make(map[string]Record)}

	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, pfx.Err(err)
	}
	defer f.Close()

	var recs []Record
	if err := gocsv.UnmarshalFile(f, &recs); err != nil {
		return nil, fmt.Errorf("checkpoint %s is unreadable: %w", path, err)
	}
	for _, r := range recs {
		if _, seen := s.records[r.Target]; !seen {
			s.order = append(s.order, r.Target)
		}
		s.records[r.Target] = r
	}

	return s, nil
}

// Path returns the checkpoint file location.
func (s *Store) Path() string {
	return s.path
}

// Lookup returns the stored record for a target, if any.
func (s *Store) Lookup(target string) (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.records[target]
	return r, ok
}

// IsComplete reports whether a target finished in a prior run AND its
// outputs still verify. verify recomputes the checksum of an output file;
// any mismatch or error invalidates the checkpoint entry for that target.
func (s *Store) IsComplete(target string, verify func(path string) (string, error)) bool {
	r, ok := s.Lookup(target)
	if !ok {
		return false
	}

	for _, out := range []struct{ path, want string }{
		{r.R1Output, r.R1Checksum},
		{r.R2Output, r.R2Checksum},
	} {
		got, err := verify(out.path)
		if err != nil {
			log.Printf("checkpoint for %s invalid: %s: %v", target, out.path, err)
			return false
		}
		if got != out.want {
			log.Printf("checkpoint for %s invalid: %s checksum changed", target, out.path)
			return false
		}
	}

	return true
}

// MarkComplete records a finished target and flushes the store to disk.
func (s *Store) MarkComplete(r Record) error {
	if r.FinishedAt == "" {
		r.FinishedAt = time.Now().UTC().Format(time.RFC3339)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, seen := s.records[r.Target]; !seen {
		s.order = append(s.order, r.Target)
	}
	s.records[r.Target] = r

	return s.flushLocked()
}

func (s *Store) flushLocked() error {
	recs := make([]Record, 0, len(s.order))
	for _, target := range s.order {
		recs = append(recs, s.records[target])
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".tmp")
	if err != nil {
		return pfx.Err(err)
	}
	defer os.Remove(tmp.Name())

	if err := gocsv.MarshalFile(&recs, tmp); err != nil {
		tmp.Close()
		return pfx.Err(err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return pfx.Err(err)
	}
	if err := tmp.Close(); err != nil {
		return pfx.Err(err)
	}

	return pfx.Err(os.Rename(tmp.Name(), s.path))
}
