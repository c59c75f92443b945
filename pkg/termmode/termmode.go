//go:build unix

// Package termmode saves and restores the terminal attributes around a
// handoff.
//
// While a handoff is in progress the terminal driver must not echo input, and
// must deliver input byte by byte, since the engine draws its own rendition of
// typed input and the shell needs to read the terminal's reply to a status
// query, which is not terminated by a newline. A Controller captures the
// attributes before changing them and puts them back afterwards.
package termmode

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"src.jobu.sh/pkg/logutil"
	"src.jobu.sh/pkg/sys/eunix"
)

var logger = logutil.GetLogger("[termmode] ")

// ErrNested is returned by Suspend when the previous suspension has not been
// restored or discarded yet.
var ErrNested = errors.New("terminal already suspended")

const (
	enterAltScreen = "\033[?1049h"
	leaveAltScreen = "\033[?1049l"
)

// Options configures a Controller.
type Options struct {
	// Switch to the alternate screen buffer while suspended.
	AltScreen bool
}

// Snapshot is an immutable capture of terminal state taken by Suspend.
type Snapshot struct {
	termios   *eunix.Termios
	altScreen bool
}

// Echo reports whether echo was on when the snapshot was taken.
func (s *Snapshot) Echo() bool { return s.termios.Echo() }

// ICanon reports whether canonical mode was on when the snapshot was taken.
func (s *Snapshot) ICanon() bool { return s.termios.ICanon() }

// Controller suspends and restores the attributes of one terminal. It is safe
// for concurrent use, so that a signal handler can restore the terminal while
// a handoff is still unwinding.
type Controller struct {
	tty  *os.File
	out  io.Writer
	opts Options

	mu   sync.Mutex
	live *Snapshot
}

// New creates a Controller for the given terminal. Escape sequences for the
// screen buffer are written to tty as well.
func New(tty *os.File, opts Options) *Controller {
	return &Controller{tty: tty, out: tty, opts: opts}
}

func (c *Controller) fd() int { return int(c.tty.Fd()) }

// Suspend captures the current terminal attributes and mutes the terminal:
// echo and canonical mode are turned off and reads return as soon as one byte
// is available. It fails with ErrNested if a capture is already live.
func (c *Controller) Suspend() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.live != nil {
		return ErrNested
	}
	term, err := eunix.TermiosForFd(c.fd())
	if err != nil {
		return fmt.Errorf("can't get terminal attribute: %w", err)
	}
	snapshot := &Snapshot{termios: term.Copy()}

	term.SetICanon(false)
	term.SetEcho(false)
	term.SetVMin(1)
	term.SetVTime(0)
	// Enforcing crnl translation on readline. Assuming user won't set
	// inlcr or -onlcr, otherwise we have to hardcode all of them here.
	term.SetICRNL(true)

	if err := term.ApplyToFd(c.fd()); err != nil {
		return fmt.Errorf("can't set up terminal attribute: %w", err)
	}
	if c.opts.AltScreen {
		if _, err := io.WriteString(c.out, enterAltScreen); err != nil {
			logger.Println("can't enter alternate screen:", err)
		} else {
			snapshot.altScreen = true
		}
	}
	c.live = snapshot
	return nil
}

// Restore applies the live snapshot and clears it. Calling Restore when no
// snapshot is live is a no-op. If the snapshot cannot be applied, it is kept
// so that a later call can retry.
func (c *Controller) Restore() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.live == nil {
		return nil
	}
	var errScreen error
	if c.live.altScreen {
		_, errScreen = io.WriteString(c.out, leaveAltScreen)
		if errScreen == nil {
			c.live.altScreen = false
		}
	}
	if err := c.live.termios.ApplyToFd(c.fd()); err != nil {
		logger.Println("can't restore terminal attribute:", err)
		return errors.Join(fmt.Errorf("can't restore terminal attribute: %w", err), errScreen)
	}
	c.live = nil
	return errScreen
}

// Discard drops the live snapshot without applying it.
func (c *Controller) Discard() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.live = nil
}

// Suspended reports whether a snapshot is live.
func (c *Controller) Suspended() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.live != nil
}

// Snapshot returns the live snapshot, or nil.
func (c *Controller) Snapshot() *Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.live
}

// Echo reports whether the terminal currently echoes input.
func (c *Controller) Echo() (bool, error) {
	term, err := eunix.TermiosForFd(c.fd())
	if err != nil {
		return false, err
	}
	return term.Echo(), nil
}
