package term

import (
	"errors"
	"fmt"
	"io"
	"os"
)

// StatusQuery is the cursor position request (DSR 6). Every VT100-compatible
// terminal answers it with a cursor position report, and does so only after
// all output written before the query has been processed.
const StatusQuery = "\033[6n"

// WriteStatusQuery writes the cursor position request to w.
func WriteStatusQuery(w io.Writer) error {
	_, err := io.WriteString(w, StatusQuery)
	return err
}

// Reader reads events from the terminal.
type Reader interface {
	// ReadEvent reads a single event from the terminal.
	ReadEvent() (Event, error)
	// Close releases resources associated with the Reader. Any outstanding
	// ReadEvent call will be aborted, returning ErrStopped; so will all later
	// calls.
	Close()
}

// ErrStopped is returned by Reader when Close is called during a ReadEvent
// method.
var ErrStopped = errors.New("stopped")

var errTimeout = errors.New("timed out")

type seqError struct {
	msg string
	seq string
}

func (err seqError) Error() string {
	return fmt.Sprintf("%s: %q", err.msg, err.seq)
}

// NewReader creates a new Reader on the given terminal file.
func NewReader(f *os.File) (Reader, error) {
	return newReader(f)
}

// IsReadErrorRecoverable returns whether an error returned by Reader is
// recoverable.
func IsReadErrorRecoverable(err error) bool {
	var seqErr seqError
	if errors.As(err, &seqErr) {
		return true
	}
	return err == ErrStopped || err == errTimeout
}
