//go:build unix

package lockfile

import (
	"os"

	"golang.org/x/sys/unix"
)

// tryStealStale reports whether an existing lock file at path is stale —
// no process currently holds an flock on it — by attempting a
// non-blocking exclusive flock and immediately releasing it. A stale
// lock file is safe to remove and recreate.
func tryStealStale(path string) bool {
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return false
	}
	defer f.Close()

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		return false
	}
	unix.Flock(int(f.Fd()), unix.LOCK_UN)
	return true
}

// flockFile takes an advisory exclusive flock on an already-created lock
// file, so that if this process dies without calling Unlock, the kernel
// releases the lock and a later Acquire can detect and clear staleness.
func flockFile(f *os.File) error {
	return unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
}
