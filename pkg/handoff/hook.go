package handoff

import (
	"context"
	"fmt"

	"src.jobu.sh/pkg/engine"
)

// PrePrompt runs one handoff. The shell calls it before each prompt.
//
// It returns the command injected into the shell's buffer and whether there
// was one. Failures of the engine, a missing terminal reply and cancellation
// of ctx all end the handoff without a command and are not errors; the shell
// just shows an empty prompt line. The only error returned is a failure to
// suspend or restore the terminal.
func (s *Session) PrePrompt(ctx context.Context) (pc PendingCommand, ok bool, err error) {
	id := s.nextHandoff()
	if err := s.sync.Begin(); err != nil {
		return PendingCommand{}, false, err
	}
	if err := s.term.Suspend(); err != nil {
		s.sync.Abort()
		return PendingCommand{}, false, fmt.Errorf("suspend terminal: %w", err)
	}
	restored := false
	defer func() {
		if !restored {
			// Reached only by panics; the error paths below restore
			// explicitly.
			if err := s.term.Restore(); err != nil {
				logger.Println("restore terminal:", err)
			}
		}
	}()
	restore := func() error {
		restored = true
		if err := s.term.Restore(); err != nil {
			return fmt.Errorf("restore terminal: %w", err)
		}
		return nil
	}

	result, found := s.runEngine(ctx, id)
	if ctx.Err() != nil {
		logger.Printf("handoff %d cancelled", id)
		s.sync.Abort()
		return PendingCommand{}, false, restore()
	}

	var injected bool
	resume := func(pc PendingCommand) {
		if found {
			injected = s.injector.Inject(id, pc)
		}
	}
	if err := s.sync.Arm(result, resume); err != nil {
		s.sync.Abort()
		return PendingCommand{}, false, fmt.Errorf("%w (restore: %v)", err, restore())
	}
	if s.cfg.SyncMode == SyncNone {
		err = s.sync.ResumeNow()
	} else {
		err = s.sync.Await(ctx, s.cfg.In, s.cfg.Out, s.cfg.AckTimeout)
	}
	if err != nil {
		logger.Printf("handoff %d not resumed: %v", id, err)
	}
	if typeahead := s.sync.Typeahead(); len(typeahead) > 0 {
		logger.Printf("handoff %d: discarding %d events typed before resuming", id, len(typeahead))
	}
	if err := restore(); err != nil {
		return PendingCommand{}, false, err
	}
	if !injected {
		return PendingCommand{}, false, nil
	}
	return result, true, nil
}

// Launches the engine for handoff id and picks its result.
func (s *Session) runEngine(ctx context.Context, id uint64) (PendingCommand, bool) {
	if n, err := s.server.Quiesce(); err != nil {
		logger.Println("quiesce channel:", err)
	} else if n > 0 {
		logger.Printf("handoff %d: discarded %d stale bytes from the channel", id, n)
	}

	setcmd := make(chan struct{}, 1)
	s.server.SetCommandHandler(func(text string, cursor int) error {
		if err := s.setPending(id, text, cursor); err != nil {
			return err
		}
		select {
		case setcmd <- struct{}{}:
		default:
		}
		return nil
	})
	defer s.server.SetCommandHandler(nil)

	spec := engine.Spec{
		SessionID:    s.ID,
		RequestPath:  s.pair.RequestPath,
		ResponsePath: s.pair.ResponsePath,
	}
	outcome, err := s.cfg.Launcher.Run(ctx, spec, engine.Stdio{In: s.cfg.In, Out: s.cfg.Out}, setcmd)
	// Uninstall before taking the result, so that nothing can be recorded
	// after it has been taken.
	s.server.SetCommandHandler(nil)
	if err != nil {
		logger.Printf("handoff %d: %v", id, err)
		s.takePending(id)
		return PendingCommand{}, false
	}
	if pc, ok := s.takePending(id); ok {
		return pc, true
	}
	if outcome.HasResult {
		return PendingCommand{outcome.Result, len(outcome.Result)}, true
	}
	logger.Printf("handoff %d: no command (exit %d, killed %v, timed out %v)",
		id, outcome.ExitCode, outcome.Killed, outcome.TimedOut)
	return PendingCommand{}, false
}
