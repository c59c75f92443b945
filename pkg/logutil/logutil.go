// Package logutil provides logging utilities.
//
// Loggers are created once per package with GetLogger and share a single
// output, which defaults to io.Discard. The output never defaults to the
// terminal, since jobu shares the terminal with the line-editing engine.
package logutil

import (
	"io"
	"log"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	mu      sync.Mutex
	out     io.Writer = io.Discard
	closer  io.Closer
	loggers []*log.Logger
)

// GetLogger gets a logger with the given prefix.
func GetLogger(prefix string) *log.Logger {
	mu.Lock()
	defer mu.Unlock()
	logger := log.New(out, prefix, log.LstdFlags|log.Lmicroseconds)
	loggers = append(loggers, logger)
	return logger
}

// SetOutput redirects the output of all loggers obtained with GetLogger to the
// new io.Writer. If the old output was a file opened by SetOutputFile, it is
// closed.
func SetOutput(newout io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	setOutput(newout, nil)
}

// SetOutputFile redirects the output of all loggers obtained with GetLogger to
// the named file. The file is rotated once it grows beyond maxSizeMB
// megabytes; a non-positive maxSizeMB uses a default of 10. If the file name is
// empty, logging is discarded.
func SetOutputFile(fname string, maxSizeMB int) error {
	mu.Lock()
	defer mu.Unlock()
	if fname == "" {
		setOutput(io.Discard, nil)
		return nil
	}
	if maxSizeMB <= 0 {
		maxSizeMB = 10
	}
	lj := &lumberjack.Logger{
		Filename:   fname,
		MaxSize:    maxSizeMB,
		MaxBackups: 3,
	}
	// Write a zero-length record to surface permission errors now rather than
	// on the first log line.
	if _, err := lj.Write(nil); err != nil {
		lj.Close()
		return err
	}
	setOutput(lj, lj)
	return nil
}

func setOutput(newout io.Writer, newcloser io.Closer) {
	if closer != nil {
		closer.Close()
	}
	out, closer = newout, newcloser
	for _, logger := range loggers {
		logger.SetOutput(out)
	}
}
