package shell

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"time"

	"src.jobu.sh/pkg/handoff"
	"src.jobu.sh/pkg/sys"
)

// Exit status of a shell ended by a hangup.
const hangupStatus = 129

// InteractConfig keeps configuration for the interactive mode.
type InteractConfig struct {
	// Configuration of the handoff session. In and Out default to the
	// shell's stdin and stderr. A nil Launcher means there is no engine and
	// the basic line editor is used.
	Handoff handoff.Config
	// Script sourced before the first prompt. Empty means none.
	RC string
}

// Can be overridden in tests.
var notifySignals = sys.NotifySignals

// Interact runs an interactive shell session and returns its exit status.
//
// When stdin is a terminal and an engine is configured, each line is edited
// by the engine; otherwise lines are read from stdin as they are.
func Interact(ctx context.Context, fds [3]*os.File, sh *Shell, cfg *InteractConfig) int {
	ctx, hangup := context.WithCancel(ctx)
	defer hangup()
	intr := &interrupter{}
	sigCh := notifySignals()
	defer signal.Stop(sigCh)
	go handleSignals(ctx, sigCh, intr, hangup)

	if cfg.RC != "" {
		if err := sh.Source(ctx, cfg.RC); err != nil {
			fmt.Fprintln(fds[2], "Cannot source rc file:", err)
		}
	}

	var ed editor
	var closeSession func()
	if cfg.Handoff.Launcher != nil && sys.IsATTY(fds[0].Fd()) {
		hcfg := cfg.Handoff
		if hcfg.In == nil {
			hcfg.In = fds[0]
		}
		if hcfg.Out == nil {
			hcfg.Out = fds[2]
		}
		sess, err := handoff.NewSession(sh, sh, hcfg)
		if err != nil {
			fmt.Fprintln(fds[2], "Cannot start handoff session:", err)
		} else {
			var once sync.Once
			closeSession = func() {
				once.Do(func() {
					if err := sess.Close(); err != nil {
						fmt.Fprintln(fds[2], "Cannot clean up handoff session:", err)
					}
				})
			}
			defer closeSession()
			ed = &handoffEditor{sh: sh, sess: sess, launcher: hcfg.Launcher}
		}
	}
	if ed == nil {
		ed = newMinEditor(sh, fds[0], fds[2])
	}

	cooldown := time.Second
	status := 0
	for {
		readCtx, done := intr.context(ctx)
		code, err := ed.ReadCode(readCtx)
		done()
		if ctx.Err() != nil {
			return hangupStatus
		}

		if err == io.EOF {
			return status
		} else if err != nil {
			fmt.Fprintln(fds[2], "Editor error:", err)
			if _, isMinEditor := ed.(*minEditor); !isMinEditor {
				fmt.Fprintln(fds[2], "Falling back to basic line editor")
				closeSession()
				ed = newMinEditor(sh, fds[0], fds[2])
			} else {
				fmt.Fprintln(fds[2], "Don't know what to do, pid is", os.Getpid())
				fmt.Fprintln(fds[2], "Restarting editor in", cooldown)
				select {
				case <-time.After(cooldown):
				case <-ctx.Done():
					return hangupStatus
				}
				if cooldown < time.Minute {
					cooldown *= 2
				}
			}
			continue
		}

		// No error; reset cooldown.
		cooldown = time.Second

		if strings.TrimSpace(code) == "" {
			continue
		}
		runCtx, done := intr.context(ctx)
		var exit bool
		status, exit, err = sh.RunCode(runCtx, code)
		done()
		if err != nil {
			fmt.Fprintln(fds[2], err)
		}
		if exit {
			return status
		}
		if ctx.Err() != nil {
			return hangupStatus
		}
	}
}

// Cancels the context of whatever the shell is currently waiting for.
type interrupter struct {
	mu     sync.Mutex
	cancel context.CancelFunc
}

// Returns a context that interrupt cancels, until done is called.
func (i *interrupter) context(parent context.Context) (ctx context.Context, done func()) {
	ctx, cancel := context.WithCancel(parent)
	i.mu.Lock()
	i.cancel = cancel
	i.mu.Unlock()
	return ctx, func() {
		i.mu.Lock()
		i.cancel = nil
		i.mu.Unlock()
		cancel()
	}
}

func (i *interrupter) interrupt() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.cancel == nil {
		return false
	}
	i.cancel()
	return true
}
