//go:build !unix

package lock

import (
	"errors"
	"fmt"
	"os"
)

// openLocked falls back to exclusive creation where flock is unavailable. A
// lock file left by a crashed holder must be removed by hand.
func openLocked(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return nil, errHeld
		}
		return nil, fmt.Errorf("creating lock file: %w", err)
	}
	return f, nil
}

func unlock(*os.File) {}
