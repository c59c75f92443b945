package shell

import (
	"context"
	"os"
	"strings"
	"testing"

	"src.jobu.sh/pkg/must"
	"src.jobu.sh/pkg/testutil"
)

func noSignals(t *testing.T) {
	testutil.Set(t, &notifySignals, func() chan os.Signal { return make(chan os.Signal) })
}

// Sets up a shell reading from a pipe fed with input.
func setupPiped(t *testing.T, input string) (*fixture, [3]*os.File) {
	t.Helper()
	noSignals(t)
	f := setup(t, nil, "PATH="+os.Getenv("PATH"))
	r, w := must.Pipe()
	t.Cleanup(func() { r.Close() })
	go func() {
		w.WriteString(input)
		w.Close()
	}()
	stdout := must.OK1(os.OpenFile(f.stdout, os.O_WRONLY|os.O_APPEND, 0))
	stderr := must.OK1(os.OpenFile(f.stderr, os.O_WRONLY|os.O_APPEND, 0))
	t.Cleanup(func() {
		stdout.Close()
		stderr.Close()
	})
	return f, [3]*os.File{r, stdout, stderr}
}

func TestInteract_ReadsLinesWithoutTerminal(t *testing.T) {
	f, fds := setupPiped(t, "echo one\nfalse\nexit 4\necho never\n")
	status := Interact(context.Background(), fds, f.sh, &InteractConfig{})
	if status != 4 {
		t.Errorf("Interact -> %d, want 4", status)
	}
	if out := f.out(); out != "one\n" {
		t.Errorf("stdout %q", out)
	}
	if errOut := f.err(); !strings.HasPrefix(errOut, "$ ") {
		t.Errorf("stderr %q, want prompts", errOut)
	}
	if diff := f.sh.History("", 10); len(diff) != 3 {
		t.Errorf("history %q, want 3 entries", diff)
	}
}

func TestInteract_EOFReturnsLastStatus(t *testing.T) {
	f, fds := setupPiped(t, "echo a\nfalse")
	if status := Interact(context.Background(), fds, f.sh, &InteractConfig{}); status != 1 {
		t.Errorf("Interact -> %d, want 1", status)
	}
}

func TestInteract_ShowsErrors(t *testing.T) {
	f, fds := setupPiped(t, "echo 'unclosed\necho after\n")
	Interact(context.Background(), fds, f.sh, &InteractConfig{})
	if out := f.out(); out != "after\n" {
		t.Errorf("stdout %q", out)
	}
	if !strings.Contains(f.err(), "without closing quote") {
		t.Errorf("stderr %q lacks the parse error", f.err())
	}
}

func TestInteract_PS1(t *testing.T) {
	f, fds := setupPiped(t, "PS1='> '\ntrue\n")
	Interact(context.Background(), fds, f.sh, &InteractConfig{})
	if errOut := f.err(); errOut != "$ > > " {
		t.Errorf("stderr %q", errOut)
	}
}

func TestInteract_SourcesRC(t *testing.T) {
	f, fds := setupPiped(t, "echo $fromrc\n")
	rc := f.dir + "/rc.sh"
	must.WriteFile(rc, "fromrc=yes\n")
	Interact(context.Background(), fds, f.sh, &InteractConfig{RC: rc})
	if out := f.out(); out != "yes\n" {
		t.Errorf("stdout %q", out)
	}
}

func TestInteract_Hangup(t *testing.T) {
	noSignals(t)
	f := setup(t, nil)
	// Nothing is ever written to the pipe.
	r, w := must.Pipe()
	defer r.Close()
	defer w.Close()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	status := Interact(ctx, [3]*os.File{r, w, w}, f.sh, &InteractConfig{})
	if status != hangupStatus {
		t.Errorf("Interact -> %d, want %d", status, hangupStatus)
	}
}

func TestInterrupter(t *testing.T) {
	var intr interrupter
	if intr.interrupt() {
		t.Errorf("interrupt with nothing running returned true")
	}
	ctx, done := intr.context(context.Background())
	if !intr.interrupt() || ctx.Err() == nil {
		t.Errorf("interrupt did not cancel the context")
	}
	done()
	if intr.interrupt() {
		t.Errorf("interrupt after done returned true")
	}
}
