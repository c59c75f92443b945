package handoff

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"src.jobu.sh/pkg/term"
)

// DefaultAckTimeout is how long Await waits for the terminal's reply when
// no timeout is given.
const DefaultAckTimeout = 2 * time.Second

var (
	// ErrBadTransition is returned when a Synchronizer method is called in a
	// state that does not allow it.
	ErrBadTransition = errors.New("bad handoff state transition")
	// ErrAckTimeout is returned by Await when the terminal does not reply to
	// the status query in time.
	ErrAckTimeout = errors.New("terminal did not answer status query")
)

// Synchronizer tracks the state of handoffs and resumes the shell exactly
// once per handoff, when the terminal answers the status query.
//
// The binding for the answer is one-shot: it is armed by Arm and disarmed
// when it fires or the handoff is aborted. A cursor position report that
// arrives while the binding is not armed is ordinary input.
type Synchronizer struct {
	mu        sync.Mutex
	state     State
	armed     bool
	pending   PendingCommand
	resume    func(PendingCommand)
	typeahead []term.Event
}

// State returns the current state.
func (s *Synchronizer) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Begin starts a handoff. It is allowed in Idle and Resumed.
func (s *Synchronizer) Begin() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Idle && s.state != Resumed {
		return fmt.Errorf("%w: Begin in %v", ErrBadTransition, s.state)
	}
	s.state = Suspended
	s.armed = false
	s.pending = PendingCommand{}
	s.resume = nil
	s.typeahead = nil
	return nil
}

// Arm moves from Suspended to AwaitingAck and arms the binding for the
// terminal's reply. When it fires, resume is called with pc.
func (s *Synchronizer) Arm(pc PendingCommand, resume func(PendingCommand)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Suspended {
		return fmt.Errorf("%w: Arm in %v", ErrBadTransition, s.state)
	}
	s.state = AwaitingAck
	s.armed = true
	s.pending = pc
	s.resume = resume
	return nil
}

// Feed delivers a terminal event. It reports whether the event fired the
// binding. Events that do not fire it are kept as typeahead.
func (s *Synchronizer) Feed(ev term.Event) bool {
	s.mu.Lock()
	if _, isCPR := ev.(term.CursorPosition); !isCPR || !s.armed {
		s.typeahead = append(s.typeahead, ev)
		s.mu.Unlock()
		return false
	}
	resume, pc := s.fire()
	s.mu.Unlock()
	if resume != nil {
		resume(pc)
	}
	return true
}

// ResumeNow fires the binding without waiting for the terminal. It is used
// when status queries are disabled.
func (s *Synchronizer) ResumeNow() error {
	s.mu.Lock()
	if !s.armed {
		state := s.state
		s.mu.Unlock()
		return fmt.Errorf("%w: ResumeNow in %v", ErrBadTransition, state)
	}
	resume, pc := s.fire()
	s.mu.Unlock()
	if resume != nil {
		resume(pc)
	}
	return nil
}

// Must be called with s.mu held.
func (s *Synchronizer) fire() (func(PendingCommand), PendingCommand) {
	resume, pc := s.resume, s.pending
	s.state = Resumed
	s.armed = false
	s.resume = nil
	s.pending = PendingCommand{}
	return resume, pc
}

// Abort ends the handoff without resuming: the binding is disarmed and the
// state becomes Resumed.
func (s *Synchronizer) Abort() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = Resumed
	s.armed = false
	s.resume = nil
	s.pending = PendingCommand{}
}

// Typeahead returns the events received during the handoff that did not fire
// the binding, and forgets them.
func (s *Synchronizer) Typeahead() []term.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	events := s.typeahead
	s.typeahead = nil
	return events
}

// Await writes the status query to out and feeds the events read from in
// until the binding fires. If ctx is done or no reply arrives within timeout
// (DefaultAckTimeout if timeout is not positive), the handoff is aborted.
func (s *Synchronizer) Await(ctx context.Context, in *os.File, out io.Writer, timeout time.Duration) error {
	if s.State() != AwaitingAck {
		return fmt.Errorf("%w: Await in %v", ErrBadTransition, s.State())
	}
	if timeout <= 0 {
		timeout = DefaultAckTimeout
	}
	rd, err := term.NewReader(in)
	if err != nil {
		s.Abort()
		return err
	}

	type readResult struct {
		event term.Event
		err   error
	}
	// Reads are requested one at a time, so that nothing is read from the
	// terminal after the reply has arrived.
	reqRead := make(chan struct{}, 1)
	results := make(chan readResult, 1)
	var wg sync.WaitGroup
	defer wg.Wait()
	defer close(reqRead)
	defer rd.Close()
	wg.Add(1)
	go func() {
		defer wg.Done()
		for range reqRead {
			event, err := rd.ReadEvent()
			if err == term.ErrStopped {
				return
			}
			results <- readResult{event, err}
		}
	}()

	if err := term.WriteStatusQuery(out); err != nil {
		s.Abort()
		return fmt.Errorf("write status query: %w", err)
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	reqRead <- struct{}{}
	for {
		select {
		case r := <-results:
			if r.err != nil {
				if term.IsReadErrorRecoverable(r.err) {
					logger.Println("reading terminal:", r.err)
					reqRead <- struct{}{}
					continue
				}
				s.Abort()
				return fmt.Errorf("read terminal: %w", r.err)
			}
			if s.Feed(r.event) {
				return nil
			}
			reqRead <- struct{}{}
		case <-timer.C:
			s.Abort()
			return ErrAckTimeout
		case <-ctx.Done():
			s.Abort()
			return ctx.Err()
		}
	}
}
