// Package term reads input events from a terminal.
//
// Only the distinction needed by the handoff is made: replies to status
// queries are decoded, everything else is passed on as keys or opaque escape
// sequences.
package term

import "fmt"

// Event represents an event that can be read from the terminal.
type Event interface {
	isEvent()
}

// KeyEvent represents a single rune typed by the user (or sent by the
// terminal outside an escape sequence).
type KeyEvent rune

// CursorPosition represents a report of the current cursor position from the
// terminal driver, usually as a response to a cursor position request.
type CursorPosition struct {
	Line int
	Col  int
}

// SeqEvent represents an escape sequence other than a cursor position report,
// such as a function key. It keeps the raw bytes.
type SeqEvent string

func (KeyEvent) isEvent()       {}
func (CursorPosition) isEvent() {}
func (SeqEvent) isEvent()       {}

func (k KeyEvent) String() string { return fmt.Sprintf("%q", rune(k)) }

func (p CursorPosition) String() string {
	return fmt.Sprintf("CPR(%d;%d)", p.Line, p.Col)
}

func (s SeqEvent) String() string { return fmt.Sprintf("Seq(%q)", string(s)) }
