// Package discover enumerates candidate FASTQ files under the configured
// search roots and classifies them by read direction.
package discover

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"

	fastqcombiner "github.com/asomohammed/Fastq-combiner"
)

// File is one discovered regular file, keyed by canonical path.
type File struct {
	Path       string
	Compressed bool
}

// Scanner walks search roots recursively. Symlinked directories are followed
// once: cycles are broken by tracking each directory's canonical path.
// Unreadable entries are logged and skipped; the scan continues.
type Scanner struct {
	Roots []string

	// GSClient enables gs://bucket/prefix roots, listed via the object API.
	// Nil restricts scanning to the local filesystem.
	GSClient *storage.Client

	seenDirs  map[string]bool
	seenFiles map[string]bool
	files     []File
}

// Scan returns all regular files beneath the roots, duplicates across
// overlapping roots collapsed by canonical path. Order is stable (sorted by
// path) but callers must not rely on any particular ordering guarantee.
func (s *Scanner) Scan(ctx context.Context) ([]File, error) {
	s.seenDirs = make(map[string]bool)
	s.seenFiles = make(map[string]bool)
	s.files = nil

	for _, root := range s.Roots {
		if fastqcombiner.IsGoogleStoragePath(root) {
			if err := s.scanBucket(ctx, root); err != nil {
				log.Printf("discover: skipping %s: %v", root, err)
			}
			continue
		}
		s.walk(root)
	}

	sort.Slice(s.files, func(i, j int) bool { return s.files[i].Path < s.files[j].Path })

	return s.files, nil
}

func (s *Scanner) walk(dir string) {
	canon, err := filepath.EvalSymlinks(dir)
	if err != nil {
		log.Printf("discover: skipping %s: %v", dir, err)
		return
	}
	if s.seenDirs[canon] {
		return
	}
	s.seenDirs[canon] = true

	entries, err := os.ReadDir(canon)
	if err != nil {
		log.Printf("discover: skipping %s: %v", canon, err)
		return
	}

	for _, entry := range entries {
		path := filepath.Join(canon, entry.Name())

		info, err := os.Stat(path) // resolves symlinks
		if err != nil {
			log.Printf("discover: skipping %s: %v", path, err)
			continue
		}

		switch {
		case info.IsDir():
			s.walk(path)
		case info.Mode().IsRegular():
			s.addFile(path)
		}
	}
}

func (s *Scanner) addFile(path string) {
	canon, err := filepath.EvalSymlinks(path)
	if err != nil {
		log.Printf("discover: skipping %s: %v", path, err)
		return
	}
	if abs, err := filepath.Abs(canon); err == nil {
		canon = abs
	}
	if s.seenFiles[canon] {
		return
	}
	s.seenFiles[canon] = true
	s.files = append(s.files, File{Path: canon, Compressed: IsCompressedName(canon)})
}

func (s *Scanner) scanBucket(ctx context.Context, root string) error {
	if s.GSClient == nil {
		log.Printf("discover: ignoring %s: no google storage client configured", root)
		return nil
	}

	bucket, prefix, err := fastqcombiner.ParseGoogleStoragePath(strings.TrimSuffix(root, "/") + "/")
	if err != nil {
		return err
	}

	it := s.GSClient.Bucket(bucket).Objects(ctx, &storage.Query{Prefix: prefix})
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		} else if err != nil {
			return err
		}
		if strings.HasSuffix(attrs.Name, "/") {
			continue
		}
		path := "gs://" + bucket + "/" + attrs.Name
		if s.seenFiles[path] {
			continue
		}
		s.seenFiles[path] = true
		s.files = append(s.files, File{Path: path, Compressed: IsCompressedName(path)})
	}

	return nil
}

// IsCompressedName reports whether the filename extension implies a
// compressed payload.
func IsCompressedName(path string) bool {
	switch filepath.Ext(path) {
	case ".gz", ".zip", ".xz", ".bz2", ".z":
		return true
	}
	return false
}
