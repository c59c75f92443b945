package handoff

import "sync"

// Buffer is the shell's pending-input buffer.
type Buffer interface {
	// SetPending replaces the buffer content and puts the cursor at the given
	// byte offset.
	SetPending(text string, cursor int)
	// Pending returns the buffer content and cursor.
	Pending() (string, int)
}

// Injector writes the result of a handoff into a Buffer, at most once per
// handoff.
type Injector struct {
	buf Buffer

	mu       sync.Mutex
	injected bool
	last     uint64
}

// NewInjector creates an Injector for buf.
func NewInjector(buf Buffer) *Injector {
	return &Injector{buf: buf}
}

// Inject sets the buffer to pc. A cursor outside the text is put at its end.
// It returns false without touching the buffer if handoffID has already been
// injected.
func (in *Injector) Inject(handoffID uint64, pc PendingCommand) bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.injected && in.last == handoffID {
		logger.Printf("handoff %d already injected", handoffID)
		return false
	}
	in.injected, in.last = true, handoffID
	cursor := pc.Cursor
	if cursor < 0 || cursor > len(pc.Text) {
		cursor = len(pc.Text)
	}
	in.buf.SetPending(pc.Text, cursor)
	return true
}
