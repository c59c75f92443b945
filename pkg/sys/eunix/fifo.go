//go:build unix

package eunix

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// EnsureFifo makes sure that a named pipe with the given permission exists at
// path. An existing named pipe is reused; any other kind of file found at
// path, such as a regular file left behind by an improperly cleaned up
// session, is removed and replaced. It reports whether a new pipe was created.
func EnsureFifo(path string, perm uint32) (created bool, err error) {
	info, err := os.Lstat(path)
	switch {
	case err == nil && info.Mode()&os.ModeNamedPipe != 0:
		// Tighten permissions of a reused pipe; its creator may have had a
		// different umask.
		return false, os.Chmod(path, os.FileMode(perm))
	case err == nil:
		if err := os.Remove(path); err != nil {
			return false, fmt.Errorf("remove stale %s: %w", path, err)
		}
	case !errors.Is(err, os.ErrNotExist):
		return false, err
	}
	err = unix.Mkfifo(path, perm)
	if errors.Is(err, unix.EEXIST) {
		// Lost a race against another creator; the pipe exists now.
		return false, nil
	}
	if err != nil {
		return false, &os.PathError{Op: "mkfifo", Path: path, Err: err}
	}
	// Mkfifo is subject to umask.
	return true, os.Chmod(path, os.FileMode(perm))
}
