//go:build unix

package fsutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"syscall"

	"src.jobu.sh/pkg/env"
)

// SecureRunDir returns a directory for session-scoped files (channel pipes,
// engine diagnostics), creating it if needed. It is $XDG_RUNTIME_DIR/jobu when
// $XDG_RUNTIME_DIR is set, otherwise $TMPDIR/jobu-$uid. The directory must be
// owned by the current user and not accessible to anyone else.
func SecureRunDir() (string, error) {
	var runDir string
	if xdg := os.Getenv(env.XDG_RUNTIME_DIR); xdg != "" {
		runDir = filepath.Join(xdg, "jobu")
	} else {
		runDir = filepath.Join(os.TempDir(), "jobu-"+strconv.Itoa(os.Getuid()))
	}
	if err := os.MkdirAll(runDir, 0o700); err != nil {
		return "", fmt.Errorf("mkdir: %w", err)
	}
	if err := checkExclusiveAccess(runDir); err != nil {
		return "", err
	}
	return runDir, nil
}

func checkExclusiveAccess(runDir string) error {
	info, err := os.Lstat(runDir)
	if err != nil {
		return err
	}
	stat, ok := info.Sys().(*syscall.Stat_t)
	switch {
	case !info.IsDir():
		return fmt.Errorf("%v is not a directory", runDir)
	case info.Mode().Perm()&0o077 != 0:
		return fmt.Errorf("%v is accessible by other users (mode %v)", runDir, info.Mode().Perm())
	case ok && int(stat.Uid) != os.Getuid():
		return fmt.Errorf("%v is owned by uid %v, not %v", runDir, stat.Uid, os.Getuid())
	}
	return nil
}
