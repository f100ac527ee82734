package vost

import (
	"errors"
	"time"

	"github.com/mhalle/vost/pkg/vosterr"
)

const maxRetryAttempts = 6

// RetryOnStaleSnapshot calls fn up to six times total, sleeping
// min(10*2^attempt, 200) ms after each stale-snapshot failure, the sixth
// included. Any other error returns immediately; after the sixth
// stale-snapshot failure that error is returned.
func RetryOnStaleSnapshot(fn func() error) error {
	var err error
	for attempt := 0; attempt < maxRetryAttempts; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		if !errors.Is(err, vosterr.ErrStaleSnapshot) {
			return err
		}
		delay := 10 * (1 << attempt)
		if delay > 200 {
			delay = 200
		}
		time.Sleep(time.Duration(delay) * time.Millisecond)
	}
	return err
}
