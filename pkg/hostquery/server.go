//go:build unix

// Package hostquery implements the server that answers the line-editing
// engine's questions about the live shell.
//
// The server runs for the whole lifetime of a session, reading one request at
// a time from a channel.Pair and answering each with exactly one response. It
// never writes to the terminal.
package hostquery

import (
	"errors"
	"strconv"
	"strings"
	"sync"
	"unicode/utf8"

	"src.jobu.sh/pkg/channel"
	"src.jobu.sh/pkg/logutil"
)

var logger = logutil.GetLogger("[hostquery] ")

// Maximum number of entries in the answer to HISTORY.
const maxHistory = 100

// Host gives access to the live state of a shell.
type Host interface {
	// Which resolves an executable name using the shell's current PATH,
	// returning an empty string if it cannot be resolved.
	Which(name string) string
	// Complete returns completion candidates for a partial word.
	Complete(partial string) []string
	// Var returns the value of a shell variable and whether it is set.
	Var(name string) (string, bool)
	// History returns at most n history entries starting with prefix, newest
	// first.
	History(prefix string, n int) []string
	// Dir returns the shell's working directory.
	Dir() string
}

// CommandHandler receives the command handed back by the engine. The cursor
// is a byte offset into text.
type CommandHandler func(text string, cursor int) error

// Server answers requests read from a channel.Pair.
type Server struct {
	host Host
	ch   *channel.Pair

	handlerMu sync.Mutex
	handler   CommandHandler

	mu      sync.Mutex
	serving bool
	closed  bool
	done    chan struct{}
	// Serve sends on paused when interrupted by Quiesce, and waits for the
	// received channel to be closed before reading again.
	paused    chan chan struct{}
	quiesceMu sync.Mutex
}

// NewServer creates a new Server. Call Serve to start serving.
func NewServer(host Host, ch *channel.Pair) *Server {
	return &Server{host: host, ch: ch,
		done: make(chan struct{}), paused: make(chan chan struct{})}
}

// SetCommandHandler installs the handler for SETCMD and SETCMD-AT requests.
// Passing nil uninstalls it; such requests are then answered with an error.
func (s *Server) SetCommandHandler(h CommandHandler) {
	s.handlerMu.Lock()
	defer s.handlerMu.Unlock()
	s.handler = h
}

// Serve serves requests until the server is closed.
func (s *Server) Serve() error {
	s.mu.Lock()
	if s.closed || s.serving {
		s.mu.Unlock()
		return nil
	}
	s.serving = true
	s.mu.Unlock()
	defer close(s.done)
	for {
		req, err := s.ch.ReadRequest()
		var resp channel.Response
		switch {
		case errors.Is(err, channel.ErrClosed):
			return nil
		case errors.Is(err, channel.ErrInterrupted):
			resume := make(chan struct{})
			s.paused <- resume
			<-resume
			continue
		case errors.Is(err, channel.ErrMalformed):
			logger.Println("malformed request:", err)
			resp = channel.Errorf("%v", err)
		case err != nil:
			logger.Println("read request:", err)
			return err
		case req.Verb == "":
			// Blank line; not a request.
			continue
		default:
			resp = s.handle(req)
		}
		err = s.ch.WriteResponse(resp)
		if errors.Is(err, channel.ErrClosed) {
			return nil
		} else if err != nil {
			logger.Printf("write response to %s: %v", req.Verb, err)
		}
	}
}

// Close stops the server, and waits for Serve to return if it is running. A
// Serve called after Close returns immediately.
func (s *Server) Close() error {
	s.mu.Lock()
	s.closed = true
	serving := s.serving
	s.mu.Unlock()
	err := s.ch.Close()
	if serving {
		<-s.done
	}
	return err
}

// Quiesce brings the channel back to a clean state between two engines. It
// waits for the request being answered, if any, to finish, and then discards
// everything left in both pipes: unread and partial requests, as well as
// responses nobody read. It returns the number of bytes discarded.
//
// Quiesce must only be called while no engine is attached.
func (s *Server) Quiesce() (int, error) {
	s.quiesceMu.Lock()
	defer s.quiesceMu.Unlock()

	s.mu.Lock()
	running := s.serving && !s.closed
	if !running {
		// Keeps Serve from starting while the pipes are being emptied.
		defer s.mu.Unlock()
	} else {
		s.mu.Unlock()
		if err := s.ch.Interrupt(); err != nil {
			logger.Println("interrupt:", err)
			return s.ch.Drain()
		}
		select {
		case resume := <-s.paused:
			defer close(resume)
		case <-s.done:
		}
	}
	nReq, errReq := s.ch.DiscardRequests()
	nResp, errResp := s.ch.Drain()
	return nReq + nResp, errors.Join(errReq, errResp)
}

func (s *Server) handle(req channel.Request) channel.Response {
	logger.Printf("request %s (%d bytes)", req.Verb, len(req.Arg))
	switch req.Verb {
	case "WHICH":
		return channel.OK(s.host.Which(req.Arg))
	case "COMPLETE":
		var cands []string
		for _, cand := range s.host.Complete(req.Arg) {
			if strings.HasPrefix(cand, req.Arg) {
				cands = append(cands, cand)
			}
		}
		return channel.OK(strings.Join(cands, "\n"))
	case "GET-VAR":
		if v, ok := s.host.Var(req.Arg); ok {
			return channel.OK(v)
		}
		return channel.Errorf("variable %s not set", req.Arg)
	case "PING":
		return channel.OK("PONG")
	case "SETCMD":
		return s.setCommand(req.Arg, len(req.Arg))
	case "SETCMD-AT":
		offset, text, _ := strings.Cut(req.Arg, " ")
		cursor, err := strconv.Atoi(offset)
		if err != nil {
			return channel.Errorf("bad cursor offset %q", offset)
		}
		cursor = min(max(cursor, 0), len(text))
		for cursor > 0 && cursor < len(text) && !utf8.RuneStart(text[cursor]) {
			cursor--
		}
		return s.setCommand(text, cursor)
	case "HISTORY":
		return channel.OK(strings.Join(s.host.History(req.Arg, maxHistory), "\n"))
	case "CWD":
		return channel.OK(s.host.Dir())
	default:
		return channel.Unknown(req.Verb)
	}
}

func (s *Server) setCommand(text string, cursor int) channel.Response {
	s.handlerMu.Lock()
	defer s.handlerMu.Unlock()
	if s.handler == nil {
		return channel.Errorf("no handoff in progress")
	}
	if err := s.handler(text, cursor); err != nil {
		return channel.Errorf("%v", err)
	}
	return channel.OK("OK")
}
