//go:build unix

package channel

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"src.jobu.sh/pkg/logutil"
	"src.jobu.sh/pkg/sys/eunix"
)

var logger = logutil.GetLogger("[channel] ")

// ErrClosed is returned by ReadRequest after the Pair has been closed.
var ErrClosed = errors.New("channel closed")

// ErrInterrupted is returned by ReadRequest after Interrupt.
var ErrInterrupted = errors.New("channel read interrupted")

// How long Drain and DiscardRequests wait for more bytes before concluding a
// pipe is empty.
const drainWait = 10 * time.Millisecond

// Pair is the server side of a channel: a request pipe the engine writes to
// and a response pipe the engine reads from.
//
// Both pipes are opened read-write by the server, so that opening them never
// blocks and the engine never sees EOF between two launches.
type Pair struct {
	RequestPath  string
	ResponsePath string

	req  *os.File
	resp *os.File
	br   *bufio.Reader

	writeMu sync.Mutex
	closed  atomic.Bool
}

// Paths returns the request and response pipe paths for a session. Distinct
// session IDs always yield distinct paths.
func Paths(dir, sessionID string) (req, resp string) {
	base := filepath.Join(dir, "jobu-"+sessionID)
	return base + ".req", base + ".resp"
}

// Create creates (or reuses) the pipes for a session in dir and opens them.
func Create(dir, sessionID string) (*Pair, error) {
	reqPath, respPath := Paths(dir, sessionID)
	for _, path := range []string{reqPath, respPath} {
		created, err := eunix.EnsureFifo(path, 0o600)
		if err != nil {
			return nil, err
		}
		if !created {
			logger.Println("reusing existing pipe", path)
		}
	}
	req, err := os.OpenFile(reqPath, os.O_RDWR, 0)
	if err != nil {
		return nil, err
	}
	resp, err := os.OpenFile(respPath, os.O_RDWR, 0)
	if err != nil {
		req.Close()
		return nil, err
	}
	return &Pair{
		RequestPath: reqPath, ResponsePath: respPath,
		req: req, resp: resp, br: bufio.NewReader(req)}, nil
}

// ReadRequest blocks until a request arrives. It returns ErrClosed once Close
// has been called, and ErrInterrupted after Interrupt; errors wrapping
// ErrMalformed leave the Pair usable.
func (p *Pair) ReadRequest() (Request, error) {
	r, err := ReadRequest(p.br)
	if p.closed.Load() {
		return Request{}, ErrClosed
	}
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return Request{}, ErrInterrupted
	}
	return r, err
}

// WriteResponse writes one response to the response pipe.
func (p *Pair) WriteResponse(resp Response) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	if p.closed.Load() {
		return ErrClosed
	}
	return WriteResponse(p.resp, resp)
}

// Interrupt makes a ReadRequest that is waiting for input, or the next one
// that would wait, return ErrInterrupted. Requests keep being interrupted
// until DiscardRequests is called.
func (p *Pair) Interrupt() error {
	return p.req.SetReadDeadline(time.Now())
}

// DiscardRequests throws away everything not yet read from the request pipe,
// including a partial request left by a killed engine, and undoes Interrupt.
// It returns how many bytes were discarded. It must not be called while
// ReadRequest is running.
func (p *Pair) DiscardRequests() (int, error) {
	buffered := p.br.Buffered()
	p.br.Reset(p.req)
	n, err := drain(p.req)
	if clearErr := p.req.SetReadDeadline(time.Time{}); err == nil {
		err = clearErr
	}
	return buffered + n, err
}

// Drain discards any bytes sitting in the response pipe, such as a response
// that a killed engine never read, and returns how many were discarded. It
// must be called while no engine is attached.
func (p *Pair) Drain() (int, error) {
	return drain(p.resp)
}

// Reads from f until it has been empty for drainWait.
func drain(f *os.File) (int, error) {
	err := f.SetReadDeadline(time.Now().Add(drainWait))
	if errors.Is(err, os.ErrNoDeadline) {
		return drainByPolling(f)
	} else if err != nil {
		return 0, err
	}
	defer f.SetReadDeadline(time.Time{})
	buf := make([]byte, 4096)
	total := 0
	for {
		n, err := f.Read(buf)
		total += n
		if errors.Is(err, os.ErrDeadlineExceeded) {
			return total, nil
		} else if err != nil {
			return total, err
		}
		f.SetReadDeadline(time.Now().Add(drainWait))
	}
}

// Used when the pipe cannot be driven by the runtime poller.
func drainByPolling(f *os.File) (int, error) {
	buf := make([]byte, 4096)
	total := 0
	for {
		ready, err := eunix.WaitForRead(drainWait, f)
		if err != nil || !ready[0] {
			return total, err
		}
		n, err := f.Read(buf)
		total += n
		if err != nil {
			return total, err
		}
	}
}

// Close closes both pipes, unblocking a pending ReadRequest. It does not
// remove the pipes from the file system.
func (p *Pair) Close() error {
	if p.closed.Swap(true) {
		return nil
	}
	// Wake up a reader blocked on a pipe that the runtime poller does not
	// manage; closing the file alone does not interrupt such a read.
	p.req.Write([]byte("\n"))
	return errors.Join(p.req.Close(), p.resp.Close())
}

// Remove removes both pipes from the file system.
func (p *Pair) Remove() error {
	var errs []error
	for _, path := range []string{p.RequestPath, p.ResponsePath} {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, fmt.Errorf("remove pipe: %w", err))
		}
	}
	return errors.Join(errs...)
}
