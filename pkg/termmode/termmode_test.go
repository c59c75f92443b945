//go:build unix

package termmode

import (
	"errors"
	"os"
	"testing"

	"github.com/creack/pty"
	"src.jobu.sh/pkg/sys/eunix"
)

func setupPty(t *testing.T) (ptmx, tty *os.File) {
	t.Helper()
	ptmx, tty, err := pty.Open()
	if err != nil {
		t.Skip("cannot open pty:", err)
	}
	t.Cleanup(func() {
		ptmx.Close()
		tty.Close()
	})
	return ptmx, tty
}

func echoOf(t *testing.T, tty *os.File) bool {
	t.Helper()
	term, err := eunix.TermiosForFd(int(tty.Fd()))
	if err != nil {
		t.Fatal(err)
	}
	return term.Echo()
}

func TestSuspendMutesAndRestoreRestores(t *testing.T) {
	_, tty := setupPty(t)
	c := New(tty, Options{})
	before := echoOf(t, tty)
	if !before {
		t.Fatal("fresh pty does not echo")
	}

	if err := c.Suspend(); err != nil {
		t.Fatal(err)
	}
	if echoOf(t, tty) {
		t.Errorf("echo still on after Suspend")
	}
	if !c.Suspended() {
		t.Errorf("Suspended() -> false after Suspend")
	}
	if s := c.Snapshot(); s == nil || !s.Echo() || !s.ICanon() {
		t.Errorf("snapshot doesn't record original echo/icanon")
	}

	if err := c.Restore(); err != nil {
		t.Fatal(err)
	}
	if echoOf(t, tty) != before {
		t.Errorf("echo not restored")
	}
	if c.Suspended() {
		t.Errorf("Suspended() -> true after Restore")
	}
}

func TestRestore_Idempotent(t *testing.T) {
	_, tty := setupPty(t)
	c := New(tty, Options{})

	if err := c.Restore(); err != nil {
		t.Errorf("Restore without Suspend -> %v", err)
	}
	if err := c.Suspend(); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 2; i++ {
		if err := c.Restore(); err != nil {
			t.Errorf("Restore #%d -> %v", i, err)
		}
	}
	if !echoOf(t, tty) {
		t.Errorf("echo not restored after double Restore")
	}
}

func TestSuspend_Nested(t *testing.T) {
	_, tty := setupPty(t)
	c := New(tty, Options{})
	if err := c.Suspend(); err != nil {
		t.Fatal(err)
	}
	defer c.Restore()
	if err := c.Suspend(); !errors.Is(err, ErrNested) {
		t.Errorf("nested Suspend -> %v, want ErrNested", err)
	}
}

func TestDiscard(t *testing.T) {
	_, tty := setupPty(t)
	c := New(tty, Options{})
	if err := c.Suspend(); err != nil {
		t.Fatal(err)
	}
	c.Discard()
	if c.Suspended() {
		t.Errorf("Suspended after Discard")
	}
	// Discard does not restore.
	if echoOf(t, tty) {
		t.Errorf("Discard restored echo")
	}
	if err := c.Suspend(); err != nil {
		t.Errorf("Suspend after Discard -> %v", err)
	}
	c.Restore()
}

func TestAltScreen(t *testing.T) {
	ptmx, tty := setupPty(t)
	c := New(tty, Options{AltScreen: true})

	if err := c.Suspend(); err != nil {
		t.Fatal(err)
	}
	if err := c.Restore(); err != nil {
		t.Fatal(err)
	}
	// The sequences are written to the slave end and readable on the master.
	want := enterAltScreen + leaveAltScreen
	buf := make([]byte, len(want))
	n := 0
	for n < len(want) {
		m, err := ptmx.Read(buf[n:])
		if err != nil {
			t.Fatal(err)
		}
		n += m
	}
	if string(buf) != want {
		t.Errorf("terminal got %q, want %q", buf, want)
	}
}

func TestSuspend_NotATerminal(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	defer w.Close()
	c := New(r, Options{})
	if err := c.Suspend(); err == nil {
		t.Errorf("Suspend on a pipe -> nil error")
	}
	if c.Suspended() {
		t.Errorf("failed Suspend left a live snapshot")
	}
}
