//go:build !windows

package fastqcombiner

import "syscall"

// FreeSpace reports the number of bytes available to unprivileged users on
// the filesystem holding path. Workers may poll this without coordination.
func FreeSpace(path string) (uint64, error) {
	var fs syscall.Statfs_t
	if err := syscall.Statfs(path, &fs); err != nil {
		return 0, err
	}

	return fs.Bavail * uint64(fs.Bsize), nil
}
