//go:build unix

package term

import (
	"io"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"src.jobu.sh/pkg/must"
)

var readEventTests = []struct {
	input string
	want  Event
}{
	// Simple graphical key.
	{"x", KeyEvent('x')},
	{"X", KeyEvent('X')},
	{" ", KeyEvent(' ')},
	{"\r", KeyEvent('\r')},
	// Multi-byte rune.
	{"世", KeyEvent('世')},
	// Lone Escape.
	{"\033", KeyEvent(0x1b)},

	// Cursor position reports.
	{"\033[1;1R", CursorPosition{1, 1}},
	{"\033[24;80R", CursorPosition{24, 80}},

	// Other sequences are kept verbatim.
	{"\033[A", SeqEvent("\033[A")},
	{"\033[3~", SeqEvent("\033[3~")},
	{"\033OP", SeqEvent("\033OP")},
	{"\033a", SeqEvent("\033a")},
	// Private-mode CPR (DECXCPR) is not a plain CPR.
	{"\033[?1;1R", SeqEvent("\033[?1;1R")},
}

func TestReadEvent(t *testing.T) {
	for _, test := range readEventTests {
		t.Run(test.input, func(t *testing.T) {
			r, w := must.Pipe()
			defer r.Close()
			defer w.Close()
			rd := must.OK1(NewReader(r))
			defer rd.Close()

			w.WriteString(test.input)
			ev, err := rd.ReadEvent()
			if err != nil {
				t.Fatalf("got error %v", err)
			}
			if diff := cmp.Diff(test.want, ev); diff != "" {
				t.Errorf("ReadEvent(%q) (-want +got):\n%s", test.input, diff)
			}
		})
	}
}

var readEventErrorTests = []string{
	"\033[1;1;1R", // CPR with wrong number of arguments
	"\033[1;",     // incomplete CSI
}

func TestReadEvent_BadSequence(t *testing.T) {
	for _, input := range readEventErrorTests {
		r, w := must.Pipe()
		rd := must.OK1(NewReader(r))
		w.WriteString(input)
		_, err := rd.ReadEvent()
		if err == nil || !IsReadErrorRecoverable(err) {
			t.Errorf("ReadEvent(%q) -> error %v, want recoverable error", input, err)
		}
		rd.Close()
		r.Close()
		w.Close()
	}
}

func TestReadEvent_SequenceOfEvents(t *testing.T) {
	r, w := must.Pipe()
	defer r.Close()
	defer w.Close()
	rd := must.OK1(NewReader(r))
	defer rd.Close()

	w.WriteString("ab\033[5;7Rc")
	var got []Event
	for i := 0; i < 4; i++ {
		ev, err := rd.ReadEvent()
		if err != nil {
			t.Fatal(err)
		}
		got = append(got, ev)
	}
	want := []Event{KeyEvent('a'), KeyEvent('b'), CursorPosition{5, 7}, KeyEvent('c')}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("events (-want +got):\n%s", diff)
	}
}

func TestReader_CloseAbortsRead(t *testing.T) {
	r, w := must.Pipe()
	defer r.Close()
	defer w.Close()
	rd := must.OK1(NewReader(r))

	errCh := make(chan error, 1)
	go func() {
		_, err := rd.ReadEvent()
		errCh <- err
	}()
	// Give the goroutine a chance to start reading.
	time.Sleep(10 * time.Millisecond)
	rd.Close()
	select {
	case err := <-errCh:
		if err != ErrStopped {
			t.Errorf("got %v, want ErrStopped", err)
		}
	case <-time.After(time.Second):
		t.Errorf("ReadEvent not aborted by Close")
	}
}

func TestWriteStatusQuery(t *testing.T) {
	r, w := must.Pipe()
	defer r.Close()
	must.OK(WriteStatusQuery(w))
	w.Close()
	got := string(must.OK1(io.ReadAll(r)))
	if got != StatusQuery {
		t.Errorf("wrote %q, want %q", got, StatusQuery)
	}
}
