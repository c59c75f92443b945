// Package testutil contains common test utilities.
package testutil

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"src.jobu.sh/pkg/env"
	"src.jobu.sh/pkg/must"
)

// Cleanuper wraps the Cleanup method. It is a subset of [testing.TB], thus
// satisfied by [*testing.T] and [*testing.B].
type Cleanuper interface {
	Cleanup(func())
}

// Set sets *p to v, and restores the old value after the test finishes.
func Set[T any](c Cleanuper, p *T, v T) {
	old := *p
	*p = v
	c.Cleanup(func() { *p = old })
}

// Setenv sets the value of an environment variable for the duration of a test.
// It returns value.
func Setenv(c Cleanuper, name, value string) string {
	SaveEnv(c, name)
	os.Setenv(name, value)
	return value
}

// SaveEnv saves the current value of an environment variable so that it will be
// restored after a test has finished.
func SaveEnv(c Cleanuper, name string) {
	oldValue, existed := os.LookupEnv(name)
	if existed {
		c.Cleanup(func() { os.Setenv(name, oldValue) })
	} else {
		c.Cleanup(func() { os.Unsetenv(name) })
	}
}

// TempDir creates a temporary directory for testing that will be removed
// after the test finishes. The returned path has symlinks resolved, so that it
// can be compared with paths computed by the code under test (on macOS, the
// default temporary directory is behind a symlink).
func TempDir(c Cleanuper) string {
	dir := must.OK1(os.MkdirTemp("", "jobutest"))
	c.Cleanup(func() { os.RemoveAll(dir) })
	return must.OK1(filepath.EvalSymlinks(dir))
}

// Scaled returns d scaled by $JOBU_TEST_TIME_SCALE. If the environment
// variable does not exist or contains an invalid value, the scale defaults to
// 1.
func Scaled(d time.Duration) time.Duration {
	return time.Duration(float64(d) * getTestTimeScale())
}

func getTestTimeScale() float64 {
	s := os.Getenv(env.JOBU_TEST_TIME_SCALE)
	if s == "" {
		return 1
	}
	scale, err := strconv.ParseFloat(s, 64)
	if err != nil || scale <= 0 {
		return 1
	}
	return scale
}
