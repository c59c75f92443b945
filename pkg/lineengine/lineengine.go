// Package lineengine is a minimal line-editing engine. It edits one line on
// the terminal with golang.org/x/term, completing words with the shell's
// help, and hands the line back to the shell.
//
// It serves as a reference for engines written in other languages, and as
// the default engine when none is configured.
package lineengine

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
	"mvdan.cc/sh/v3/syntax"
	"src.jobu.sh/pkg/channel"
	"src.jobu.sh/pkg/env"
	"src.jobu.sh/pkg/logutil"
)

var logger = logutil.GetLogger("[lineengine] ")

// Exit statuses of the engine.
const (
	ExitCommand   = 0
	ExitNoCommand = 1
	ExitError     = 2
)

// DefaultTTY is the terminal the engine edits on.
const DefaultTTY = "/dev/tty"

const defaultPrompt = "$ "

// Querier is the part of the channel client the engine uses.
type Querier interface {
	Var(name string) (string, bool, error)
	Complete(partial string) ([]string, error)
	History(prefix string) ([]string, error)
	SetCommand(text string) error
}

var _ Querier = (*channel.Client)(nil)

// Run connects to the shell, edits one line on the terminal at ttyPath and
// sends it to the shell. It returns the exit status of the engine.
func Run(reqPath, respPath, ttyPath string) (int, error) {
	client, err := channel.Dial(reqPath, respPath)
	if err != nil {
		return ExitError, err
	}
	defer client.Close()

	tty, err := os.OpenFile(ttyPath, os.O_RDWR, 0)
	if err != nil {
		return ExitError, err
	}
	defer tty.Close()
	fd := int(tty.Fd())
	state, err := term.MakeRaw(fd)
	if err != nil {
		return ExitError, fmt.Errorf("raw mode: %w", err)
	}
	width, _, err := term.GetSize(fd)
	if err != nil {
		logger.Println("get terminal size:", err)
	}
	line, ok, err := Edit(tty, client, width)
	if restoreErr := term.Restore(fd, state); restoreErr != nil {
		logger.Println("restore terminal:", restoreErr)
	}
	if err != nil {
		return ExitError, err
	}
	if !ok {
		return ExitNoCommand, nil
	}
	if err := client.SetCommand(line); err != nil {
		return ExitError, fmt.Errorf("send command: %w", err)
	}
	return ExitCommand, nil
}

// Edit reads one line from rw, which must be a terminal in raw mode. The
// boolean is false when the user gave up with Ctrl-D or Ctrl-C.
func Edit(rw io.ReadWriter, q Querier, width int) (string, bool, error) {
	prompt := defaultPrompt
	if ps1, ok, err := q.Var(env.PS1); err != nil {
		logger.Println("get PS1:", err)
	} else if ok {
		prompt = ps1
	}
	t := term.NewTerminal(rw, prompt)
	if width > 0 {
		t.SetSize(width, 0)
	}
	if entries, err := q.History(""); err != nil {
		logger.Println("get history:", err)
	} else {
		t.History = &history{entries}
	}
	c := &completer{q: q, out: t}
	t.AutoCompleteCallback = c.complete

	line, err := t.ReadLine()
	if errors.Is(err, io.EOF) {
		return "", false, nil
	} else if err != nil {
		return "", false, err
	}
	return line, true, nil
}

// A term.History over entries from the shell, newest first.
type history struct {
	entries []string
}

func (h *history) Add(entry string) {
	h.entries = append([]string{entry}, h.entries...)
}

func (h *history) Len() int { return len(h.entries) }

func (h *history) At(idx int) string { return h.entries[idx] }

type completer struct {
	q   Querier
	out io.Writer
}

// Completes the word before the cursor on Tab. A single candidate is inserted
// in full; several are completed to their longest common prefix, or listed
// when there is no common part to add.
func (c *completer) complete(line string, pos int, key rune) (string, int, bool) {
	if key != '\t' {
		return "", 0, false
	}
	start := wordStart(line[:pos])
	partial := line[start:pos]
	cands, err := c.q.Complete(partial)
	if err != nil {
		logger.Println("complete:", err)
		return "", 0, false
	}
	var insert string
	switch len(cands) {
	case 0:
		return "", 0, false
	case 1:
		insert = cands[0]
		if !strings.HasSuffix(insert, "/") {
			insert += " "
		}
	default:
		insert = commonPrefix(cands)
		if len(insert) <= len(partial) {
			fmt.Fprintln(c.out, strings.Join(cands, "  "))
			return "", 0, false
		}
	}
	return line[:start] + insert + line[pos:], start + len(insert), true
}

// Returns the byte offset where the word ending at the end of s starts. Words
// are split the way the shell splits them, so quotes and escaped spaces stay
// within a word. Text the shell cannot parse yet is split at blanks and
// operators.
func wordStart(s string) int {
	if s == "" || strings.ContainsAny(s[len(s)-1:], " \t") {
		return len(s)
	}
	start := -1
	err := syntax.NewParser().Words(strings.NewReader(s), func(w *syntax.Word) bool {
		if int(w.End().Offset()) == len(s) {
			start = int(w.Pos().Offset())
		}
		return true
	})
	if err != nil || start < 0 {
		return strings.LastIndexAny(s, " \t|;&<>()") + 1
	}
	return start
}

func commonPrefix(ss []string) string {
	prefix := ss[0]
	for _, s := range ss[1:] {
		for !strings.HasPrefix(s, prefix) {
			prefix = prefix[:len(prefix)-1]
		}
	}
	return prefix
}
