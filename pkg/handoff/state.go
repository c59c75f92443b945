// Package handoff passes control of terminal input from the shell to the
// line-editing engine and back.
//
// Each prompt cycle is a handoff. The shell mutes the terminal, launches the
// engine, and waits for it to finish. It then writes a status query to the
// terminal and resumes only once the reply arrives: the terminal answers
// queries in order, so the reply proves that everything the engine wrote has
// been processed. The command the engine produced is then injected into the
// shell's input buffer, and the terminal is restored.
package handoff

import "fmt"

// State is the state of a handoff.
type State int

// Possible values of State.
const (
	// No handoff in progress.
	Idle State = iota
	// The terminal is muted and the engine owns it.
	Suspended
	// The engine has finished and the status query is pending.
	AwaitingAck
	// The shell owns the terminal again.
	Resumed
)

var stateNames = [...]string{"Idle", "Suspended", "AwaitingAck", "Resumed"}

func (s State) String() string {
	if 0 <= s && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// PendingCommand is the command to inject into the shell's buffer at the end
// of a handoff. Cursor is a byte offset into Text.
type PendingCommand struct {
	Text   string
	Cursor int
}
