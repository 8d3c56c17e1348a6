//go:build unix

package lock

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// openLocked opens path and takes a non-blocking exclusive flock on it. A
// file that was unlinked or replaced between open and flock belongs to a
// released lock and counts as held so the caller retries.
func openLocked(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening lock file: %w", err)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, errHeld
		}
		return nil, fmt.Errorf("locking %s: %w", path, err)
	}
	held, err := f.Stat()
	if err != nil {
		unlock(f)
		f.Close()
		return nil, fmt.Errorf("stat lock file: %w", err)
	}
	current, err := os.Stat(path)
	if err != nil || !os.SameFile(held, current) {
		unlock(f)
		f.Close()
		return nil, errHeld
	}
	return f, nil
}

func unlock(f *os.File) {
	unix.Flock(int(f.Fd()), unix.LOCK_UN)
}
