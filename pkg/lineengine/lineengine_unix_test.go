//go:build unix

package lineengine

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/creack/pty"
	"src.jobu.sh/pkg/channel"
	"src.jobu.sh/pkg/hostquery"
	"src.jobu.sh/pkg/testutil"
)

type testHost struct{}

func (testHost) Which(name string) string { return "" }
func (testHost) Complete(partial string) []string {
	return []string{"echo", "exit"}
}
func (testHost) Var(name string) (string, bool) {
	if name == "PS1" {
		return "test> ", true
	}
	return "", false
}
func (testHost) History(prefix string, n int) []string { return nil }
func (testHost) Dir() string                           { return "/" }

// Starts a query server and returns the channel paths, along with a function
// returning the command the server received.
func setupServer(t *testing.T) (req, resp string, received func() string) {
	t.Helper()
	pair, err := channel.Create(testutil.TempDir(t), "sid")
	if err != nil {
		t.Fatal(err)
	}
	server := hostquery.NewServer(testHost{}, pair)
	var mu sync.Mutex
	var got string
	server.SetCommandHandler(func(text string, cursor int) error {
		mu.Lock()
		defer mu.Unlock()
		got = text
		return nil
	})
	go server.Serve()
	t.Cleanup(func() { server.Close() })
	return pair.RequestPath, pair.ResponsePath, func() string {
		mu.Lock()
		defer mu.Unlock()
		return got
	}
}

// Opens a pty and types input once the prompt has been shown.
func setupTTY(t *testing.T, input string) string {
	t.Helper()
	ptmx, tty, err := pty.Open()
	if err != nil {
		t.Skip("cannot open pty:", err)
	}
	t.Cleanup(func() {
		ptmx.Close()
		tty.Close()
	})
	go func() {
		var seen strings.Builder
		typed := false
		buf := make([]byte, 256)
		for {
			n, err := ptmx.Read(buf)
			if err != nil {
				return
			}
			seen.Write(buf[:n])
			if !typed && strings.Contains(seen.String(), "test> ") {
				typed = true
				ptmx.WriteString(input)
			}
		}
	}()
	return tty.Name()
}

func runWithTimeout(t *testing.T, req, resp, ttyPath string) (int, error) {
	t.Helper()
	type result struct {
		status int
		err    error
	}
	done := make(chan result, 1)
	go func() {
		status, err := Run(req, resp, ttyPath)
		done <- result{status, err}
	}()
	select {
	case r := <-done:
		return r.status, r.err
	case <-time.After(testutil.Scaled(5 * time.Second)):
		t.Fatal("Run did not return")
		return 0, nil
	}
}

func TestRun_SendsCommand(t *testing.T) {
	req, resp, received := setupServer(t)
	ttyPath := setupTTY(t, "ec\thi\r")

	status, err := runWithTimeout(t, req, resp, ttyPath)
	if status != ExitCommand || err != nil {
		t.Errorf("Run -> %d, %v", status, err)
	}
	if got := received(); got != "echo hi" {
		t.Errorf("server received %q", got)
	}
}

func TestRun_CtrlDSendsNothing(t *testing.T) {
	req, resp, received := setupServer(t)
	ttyPath := setupTTY(t, "\x04")

	status, err := runWithTimeout(t, req, resp, ttyPath)
	if status != ExitNoCommand || err != nil {
		t.Errorf("Run -> %d, %v", status, err)
	}
	if got := received(); got != "" {
		t.Errorf("server received %q", got)
	}
}

func TestRun_NoServer(t *testing.T) {
	dir := testutil.TempDir(t)
	status, err := Run(dir+"/req", dir+"/resp", "/dev/null")
	if status != ExitError || err == nil {
		t.Errorf("Run -> %d, %v; want error", status, err)
	}
}
