package fsutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// ErrClaimFileBadPattern is thrown when the pattern argument passed to
// ClaimFile does not contain exactly one asterisk.
var ErrClaimFileBadPattern = errors.New("ClaimFile: pattern must contain exactly one asterisk")

// ClaimFile takes a directory and a pattern string containing exactly one
// asterisk (e.g. "a*.log"). It creates a file in that directory, with a
// filename matching the template, with "*" replaced by a number. That number
// is one plus the largest of all existing files matching the template. If no
// such file exists, "*" is replaced by 1. The file is created exclusively and
// is only readable and writable by its owner.
func ClaimFile(dir, pattern string) (*os.File, error) {
	if strings.Count(pattern, "*") != 1 {
		return nil, ErrClaimFileBadPattern
	}
	asterisk := strings.IndexByte(pattern, '*')
	prefix, suffix := pattern[:asterisk], pattern[asterisk+1:]
	files, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read dir %s: %w", dir, err)
	}
	max := 0
	for _, file := range files {
		name := file.Name()
		if len(name) > len(prefix)+len(suffix) &&
			strings.HasPrefix(name, prefix) && strings.HasSuffix(name, suffix) {
			core := name[len(prefix) : len(name)-len(suffix)]
			if coreNum, err := strconv.Atoi(core); err == nil && max < coreNum {
				max = coreNum
			}
		}
	}

	for i := max + 1; ; i++ {
		name := filepath.Join(dir, prefix+strconv.Itoa(i)+suffix)
		// 0600 can only lose bits to the umask, never gain them.
		f, err := os.OpenFile(name, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o600)
		if err == nil {
			return f, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, err
		}
	}
}
