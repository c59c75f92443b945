package handoff

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"src.jobu.sh/pkg/channel"
	"src.jobu.sh/pkg/engine"
	"src.jobu.sh/pkg/fsutil"
	"src.jobu.sh/pkg/hostquery"
	"src.jobu.sh/pkg/logutil"
	"src.jobu.sh/pkg/termmode"
)

var logger = logutil.GetLogger("[handoff] ")

// SyncMode selects how the end of a handoff is synchronized with the
// terminal.
type SyncMode string

// Possible values of SyncMode.
const (
	// Wait for the reply to a status query. This is the default.
	SyncStatus SyncMode = "status"
	// Resume as soon as the engine has finished, for terminals that do not
	// answer status queries.
	SyncNone SyncMode = "none"
)

// Config keeps the configuration of a Session.
type Config struct {
	// The terminal. Attributes are changed on In and the status query is
	// written to Out.
	In  *os.File
	Out *os.File
	// Directory for the channel pipes and engine files. If empty,
	// fsutil.SecureRunDir is used.
	RunDir string
	// The engine. Its RunDir is set by NewSession.
	Launcher *engine.Launcher
	// Switch to the alternate screen while the engine runs.
	AltScreen bool
	// Empty means SyncStatus.
	SyncMode SyncMode
	// How long to wait for the status reply; see Synchronizer.Await.
	AckTimeout time.Duration
}

// Session holds everything one interactive shell needs for handoffs. It is
// created when the shell starts and closed when it exits.
type Session struct {
	ID string

	cfg      Config
	pair     *channel.Pair
	server   *hostquery.Server
	term     *termmode.Controller
	sync     Synchronizer
	injector *Injector

	handoffID uint64

	pendingMu  sync.Mutex
	pending    PendingCommand
	hasPending bool
	pendingFor uint64

	closeOnce sync.Once
	closeErr  error
}

// NewSession creates a session: it creates the channel, and starts the query
// server answering from host. Injected commands go to buf.
func NewSession(host hostquery.Host, buf Buffer, cfg Config) (*Session, error) {
	if cfg.In == nil || cfg.Out == nil {
		return nil, errors.New("session needs a terminal")
	}
	if cfg.Launcher == nil {
		return nil, errors.New("session needs an engine")
	}
	if cfg.RunDir == "" {
		runDir, err := fsutil.SecureRunDir()
		if err != nil {
			return nil, fmt.Errorf("run directory: %w", err)
		}
		cfg.RunDir = runDir
	}
	cfg.Launcher.RunDir = cfg.RunDir

	id := uuid.NewString()
	pair, err := channel.Create(cfg.RunDir, id)
	if err != nil {
		return nil, fmt.Errorf("create channel: %w", err)
	}
	s := &Session{
		ID:       id,
		cfg:      cfg,
		pair:     pair,
		server:   hostquery.NewServer(host, pair),
		term:     termmode.New(cfg.In, termmode.Options{AltScreen: cfg.AltScreen}),
		injector: NewInjector(buf),
	}
	go func() {
		if err := s.server.Serve(); err != nil {
			logger.Println("query server:", err)
		}
	}()
	logger.Printf("session %s started, channel %s", id, pair.RequestPath)
	return s, nil
}

// State returns the state of the current handoff.
func (s *Session) State() State { return s.sync.State() }

// ChannelPaths returns the paths of the request and response pipes.
func (s *Session) ChannelPaths() (req, resp string) {
	return s.pair.RequestPath, s.pair.ResponsePath
}

// RestoreTerminal restores the terminal if a handoff left it suspended. It
// is safe to call from any goroutine.
func (s *Session) RestoreTerminal() error { return s.term.Restore() }

// Close ends the session: the terminal is restored, the query server is
// stopped and all files of the session are removed. It is idempotent.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		var errs []error
		if err := s.term.Restore(); err != nil {
			errs = append(errs, fmt.Errorf("restore terminal: %w", err))
		}
		s.sync.Abort()
		s.server.SetCommandHandler(nil)
		if err := s.server.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close channel: %w", err))
		}
		if err := s.pair.Remove(); err != nil {
			errs = append(errs, err)
		}
		if err := s.cfg.Launcher.Cleanup(); err != nil {
			errs = append(errs, fmt.Errorf("remove engine diagnostics: %w", err))
		}
		s.closeErr = errors.Join(errs...)
		logger.Printf("session %s closed", s.ID)
	})
	return s.closeErr
}

// Records a command received through the channel during handoff id. A later
// command replaces an earlier one.
func (s *Session) setPending(id uint64, text string, cursor int) error {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	if id != s.handoffID {
		return fmt.Errorf("handoff %d is over", id)
	}
	s.pending = PendingCommand{text, cursor}
	s.hasPending = true
	s.pendingFor = id
	return nil
}

func (s *Session) takePending(id uint64) (PendingCommand, bool) {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	pc, ok := s.pending, s.hasPending && s.pendingFor == id
	s.pending, s.hasPending = PendingCommand{}, false
	return pc, ok
}

// Starts a new handoff and returns its ID. Anything recorded for an earlier
// handoff is dropped.
func (s *Session) nextHandoff() uint64 {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	s.handoffID++
	s.pending, s.hasPending = PendingCommand{}, false
	return s.handoffID
}
