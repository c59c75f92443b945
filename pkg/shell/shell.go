// Package shell is the interactive shell that hands line editing over to an
// external engine.
//
// Commands are run by the mvdan.cc/sh interpreter. The engine's questions
// about variables, functions, aliases, the working directory and $PATH are
// answered from the interpreter's live state.
package shell

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"sync"

	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/interp"
	"mvdan.cc/sh/v3/syntax"
	"src.jobu.sh/pkg/env"
	"src.jobu.sh/pkg/fsutil"
	"src.jobu.sh/pkg/logutil"
	"src.jobu.sh/pkg/store"
)

var logger = logutil.GetLogger("[shell] ")

// Config keeps the configuration of a Shell.
type Config struct {
	// Initial environment, in the form "key=value". Nil means the
	// environment of the current process.
	Env []string
	// Initial working directory. Empty means the current directory.
	Dir string
	// Enables alias expansion and other interactive behavior.
	Interactive bool
	// Persistent history. If nil, history is only kept in memory.
	Store store.Store
	// Positional parameters $1, $2 and so on.
	Params []string
}

// Shell is a shell interpreter together with the buffer of pending input.
// The methods answering queries are safe to call while a command is not
// running; they wait for a running command to finish.
type Shell struct {
	fds [3]*os.File

	mu     sync.Mutex
	runner *interp.Runner
	store  store.Store
	// History when there is no store.
	memHistory []string

	bufMu  sync.Mutex
	buf    string
	cursor int
}

// New creates a Shell that reads from and writes to fds.
func New(fds [3]*os.File, cfg Config) (*Shell, error) {
	opts := []interp.RunnerOption{
		interp.StdIO(fds[0], fds[1], fds[2]),
		interp.Interactive(cfg.Interactive),
	}
	if cfg.Env != nil {
		opts = append(opts, interp.Env(expand.ListEnviron(cfg.Env...)))
	}
	if cfg.Dir != "" {
		opts = append(opts, interp.Dir(cfg.Dir))
	}
	if len(cfg.Params) > 0 {
		opts = append(opts, interp.Params(append([]string{"--"}, cfg.Params...)...))
	}
	runner, err := interp.New(opts...)
	if err != nil {
		return nil, err
	}
	sh := &Shell{fds: fds, runner: runner, store: cfg.Store}
	// The runner only publishes its variables after running something.
	if err := runner.Run(context.Background(), &syntax.CallExpr{}); err != nil {
		return nil, err
	}
	return sh, nil
}

// Source runs the file at path if it exists.
func (sh *Shell) Source(ctx context.Context, path string) error {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	} else if err != nil {
		return err
	}
	defer f.Close()
	_, err = sh.RunScript(ctx, path, f)
	return err
}

// RunScript parses the whole of r and runs it. It returns the exit status.
// Parse errors are returned as errors with status 2.
func (sh *Shell) RunScript(ctx context.Context, name string, r io.Reader) (int, error) {
	file, err := syntax.NewParser().Parse(r, name)
	if err != nil {
		return 2, err
	}
	sh.mu.Lock()
	defer sh.mu.Unlock()
	for _, stmt := range file.Stmts {
		err = sh.runner.Run(ctx, stmt)
		if sh.runner.Exited() {
			break
		}
	}
	return exitStatus(err)
}

// RunCode parses and runs one piece of interactive input. It returns the exit
// status, and whether the shell should exit.
func (sh *Shell) RunCode(ctx context.Context, code string) (status int, exit bool, err error) {
	file, err := syntax.NewParser().Parse(strings.NewReader(code), "")
	if err != nil {
		return 2, false, err
	}
	sh.mu.Lock()
	defer sh.mu.Unlock()
	var runErr error
	for _, stmt := range file.Stmts {
		runErr = sh.runner.Run(ctx, stmt)
		if sh.runner.Exited() {
			status, err := exitStatus(runErr)
			return status, true, err
		}
	}
	status, err = exitStatus(runErr)
	return status, false, err
}

// Converts the error from Runner.Run to an exit status. Only errors that are
// not exit statuses are returned.
func exitStatus(err error) (int, error) {
	if err == nil {
		return 0, nil
	}
	if status, ok := interp.IsExitStatus(err); ok {
		return int(status), nil
	}
	return 1, err
}

// Which implements hostquery.Host.
func (sh *Shell) Which(name string) string {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	return fsutil.SearchExecutable(sh.varString(env.PATH), sh.runner.Dir, name)
}

// Var implements hostquery.Host.
func (sh *Shell) Var(name string) (string, bool) {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	vr, ok := sh.runner.Vars[name]
	if !ok || !vr.IsSet() {
		return "", false
	}
	return vr.String(), true
}

// Dir implements hostquery.Host.
func (sh *Shell) Dir() string {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	return sh.runner.Dir
}

// Environ returns the exported variables in the form "key=value", sorted.
func (sh *Shell) Environ() []string {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	var environ []string
	for name, vr := range sh.runner.Vars {
		if vr.Exported && vr.IsSet() {
			environ = append(environ, name+"="+vr.String())
		}
	}
	slices.Sort(environ)
	return environ
}

// Must be called with mu held.
func (sh *Shell) varString(name string) string {
	if vr, ok := sh.runner.Vars[name]; ok && vr.IsSet() {
		return vr.String()
	}
	return ""
}

// History implements hostquery.Host.
func (sh *Shell) History(prefix string, n int) []string {
	if sh.store != nil {
		cmds, err := sh.store.PrevCmds(prefix, n)
		if err != nil {
			logger.Println("history:", err)
			return nil
		}
		texts := make([]string, len(cmds))
		for i, cmd := range cmds {
			texts[i] = cmd.Text
		}
		return texts
	}
	sh.mu.Lock()
	defer sh.mu.Unlock()
	var texts []string
	for i := len(sh.memHistory) - 1; i >= 0 && len(texts) < n; i-- {
		if strings.HasPrefix(sh.memHistory[i], prefix) {
			texts = append(texts, sh.memHistory[i])
		}
	}
	return texts
}

// AddHistory records an accepted command.
func (sh *Shell) AddHistory(text string) {
	if strings.TrimSpace(text) == "" {
		return
	}
	if sh.store != nil {
		if _, err := sh.store.AddCmd(text); err != nil {
			logger.Println("add history:", err)
		}
		return
	}
	sh.mu.Lock()
	defer sh.mu.Unlock()
	sh.memHistory = append(sh.memHistory, text)
}

// SetPending implements handoff.Buffer.
func (sh *Shell) SetPending(text string, cursor int) {
	sh.bufMu.Lock()
	defer sh.bufMu.Unlock()
	sh.buf, sh.cursor = text, cursor
}

// Pending implements handoff.Buffer.
func (sh *Shell) Pending() (string, int) {
	sh.bufMu.Lock()
	defer sh.bufMu.Unlock()
	return sh.buf, sh.cursor
}

// Accept takes the pending buffer, leaving it empty, and records it in the
// history.
func (sh *Shell) Accept() string {
	sh.bufMu.Lock()
	text := sh.buf
	sh.buf, sh.cursor = "", 0
	sh.bufMu.Unlock()
	sh.AddHistory(text)
	return text
}

func (sh *Shell) errorf(format string, args ...any) {
	fmt.Fprintf(sh.fds[2], format, args...)
}
