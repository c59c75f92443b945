// Package fsutil provides filesystem utilities.
package fsutil

import (
	"os"
	"path/filepath"
	"strings"
)

// DontSearch determines whether the path to an external command should be
// taken literally and not searched.
func DontSearch(exe string) bool {
	return exe == ".." || strings.ContainsRune(exe, filepath.Separator) ||
		strings.ContainsRune(exe, '/')
}

// IsExecutable returns whether the FileInfo refers to an executable file.
func IsExecutable(stat os.FileInfo) bool {
	return !stat.IsDir() && stat.Mode()&0o111 != 0
}

// SearchPaths splits a $PATH value into its directories. Empty elements stand
// for the current directory, as in POSIX shells.
func SearchPaths(pathValue string) []string {
	if pathValue == "" {
		return nil
	}
	dirs := strings.Split(pathValue, string(filepath.ListSeparator))
	for i, dir := range dirs {
		if dir == "" {
			dirs[i] = "."
		}
	}
	return dirs
}

// EachExternal calls f for each executable file found while scanning the
// directories of pathValue, which has the format of $PATH. Relative
// directories are resolved against wd.
//
// NOTE: EachExternal may generate the same command multiple times; once for
// each time it appears in pathValue. That is, no deduplication of the files
// found is performed.
func EachExternal(pathValue, wd string, f func(string)) {
	for _, dir := range SearchPaths(pathValue) {
		dir = resolve(wd, dir)
		files, err := os.ReadDir(dir)
		if err != nil {
			// In practice this rarely happens. There isn't much we can
			// reasonably do when it does happen other than silently ignore the
			// invalid directory.
			continue
		}
		for _, file := range files {
			// Stat rather than file.Info, so that symlinks to executables
			// count.
			stat, err := os.Stat(filepath.Join(dir, file.Name()))
			if err == nil && IsExecutable(stat) {
				f(file.Name())
			}
		}
	}
}

// SearchExecutable resolves the name of an external command to an absolute
// path the way a POSIX shell does: names containing a slash are taken
// literally (relative to wd), others are looked up in the directories of
// pathValue in order. It returns "" if no executable is found.
func SearchExecutable(pathValue, wd, name string) string {
	if name == "" {
		return ""
	}
	if DontSearch(name) {
		return checkExecutable(resolve(wd, name))
	}
	for _, dir := range SearchPaths(pathValue) {
		if p := checkExecutable(filepath.Join(resolve(wd, dir), name)); p != "" {
			return p
		}
	}
	return ""
}

func checkExecutable(path string) string {
	stat, err := os.Stat(path)
	if err != nil || !IsExecutable(stat) {
		return ""
	}
	return path
}

func resolve(wd, path string) string {
	if filepath.IsAbs(path) || wd == "" {
		return filepath.Clean(path)
	}
	return filepath.Join(wd, path)
}
