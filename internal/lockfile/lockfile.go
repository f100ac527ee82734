// Package lockfile provides a create-exclusive-with-retry lock primitive
// with exponential backoff, used as the repository-wide write lock that
// serializes commitChanges calls.
package lockfile

import (
	"math/rand"
	"os"
	"time"

	"github.com/mhalle/vost/pkg/vosterr"
)

// Lock is a held advisory lock; Unlock releases it.
type Lock struct {
	path string
	f    *os.File
}

// Acquire creates path exclusively, retrying with exponential backoff
// (capped at 30s total) while another process holds it.
func Acquire(path string) (*Lock, error) {
	deadline := time.Now().Add(30 * time.Second)
	delay := 5 * time.Millisecond
	for {
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			if flockErr := flockFile(f); flockErr != nil {
				f.Close()
				os.Remove(path)
				return nil, vosterr.Wrap(vosterr.IO, flockErr)
			}
			return &Lock{path: path, f: f}, nil
		}
		if !os.IsExist(err) {
			return nil, vosterr.Wrap(vosterr.IO, err)
		}
		if tryStealStale(path) {
			os.Remove(path)
			continue
		}
		if time.Now().After(deadline) {
			return nil, vosterr.Newf(vosterr.IO, "timeout acquiring lock %q", path)
		}
		time.Sleep(delay + time.Duration(rand.Int63n(int64(delay))))
		if delay < 500*time.Millisecond {
			delay *= 2
		}
	}
}

func (l *Lock) Unlock() error {
	if l == nil || l.f == nil {
		return nil
	}
	l.f.Close()
	err := os.Remove(l.path)
	l.f = nil
	if err != nil && !os.IsNotExist(err) {
		return vosterr.Wrap(vosterr.IO, err)
	}
	return nil
}
