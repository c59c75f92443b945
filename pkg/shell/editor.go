package shell

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"src.jobu.sh/pkg/engine"
	"src.jobu.sh/pkg/env"
	"src.jobu.sh/pkg/handoff"
)

// This type is the interface that the line editor has to satisfy.
type editor interface {
	// ReadCode returns the next piece of code to run. An empty string with a
	// nil error means there is nothing to run this time.
	ReadCode(ctx context.Context) (string, error)
}

// A handoff that ends without a command faster than this counts as a failed
// engine start.
const quickHandoff = 200 * time.Millisecond

// Number of quick empty handoffs in a row after which the engine is
// considered unusable.
const maxQuickHandoffs = 3

var errEngineUnusable = errors.New("engine keeps exiting without a command")

// Lets the engine edit each line.
type handoffEditor struct {
	sh       *Shell
	sess     *handoff.Session
	launcher *engine.Launcher
	quick    int
}

func (ed *handoffEditor) ReadCode(ctx context.Context) (string, error) {
	ed.launcher.Dir = ed.sh.Dir()
	ed.launcher.Env = ed.sh.Environ()
	start := time.Now()
	_, ok, err := ed.sess.PrePrompt(ctx)
	if err != nil {
		return "", err
	}
	if !ok {
		if ctx.Err() == nil && time.Since(start) < quickHandoff {
			ed.quick++
		} else {
			ed.quick = 0
		}
		if ed.quick >= maxQuickHandoffs {
			return "", errEngineUnusable
		}
		return "", nil
	}
	ed.quick = 0
	return ed.sh.Accept(), nil
}

type readResult struct {
	line string
	err  error
}

// Reads lines from a file, without any editing.
type minEditor struct {
	sh    *Shell
	in    *bufio.Reader
	out   io.Writer
	lines chan readResult
}

func newMinEditor(sh *Shell, in, out *os.File) *minEditor {
	return &minEditor{sh: sh, in: bufio.NewReader(in), out: out}
}

func (ed *minEditor) prompt() string {
	if ps1, ok := ed.sh.Var(env.PS1); ok {
		return ps1
	}
	return "$ "
}

func (ed *minEditor) ReadCode(ctx context.Context) (string, error) {
	fmt.Fprint(ed.out, ed.prompt())
	if ed.lines == nil {
		ed.lines = make(chan readResult)
		go ed.readLines()
	}
	select {
	case r, ok := <-ed.lines:
		if !ok {
			return "", io.EOF
		}
		if r.err != nil {
			return "", r.err
		}
		ed.sh.AddHistory(r.line)
		return r.line, nil
	case <-ctx.Done():
		fmt.Fprintln(ed.out)
		return "", nil
	}
}

// Reads lines until an error, which is sent once. A final line without a
// line ending still counts.
func (ed *minEditor) readLines() {
	defer close(ed.lines)
	for {
		line, err := ed.in.ReadString('\n')
		if line != "" {
			ed.lines <- readResult{line: strings.TrimRight(line, "\r\n")}
		}
		if err == io.EOF {
			return
		} else if err != nil {
			ed.lines <- readResult{err: err}
			return
		}
	}
}
