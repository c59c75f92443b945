package prog_test

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"src.jobu.sh/pkg/logutil"
	"src.jobu.sh/pkg/must"
	. "src.jobu.sh/pkg/prog"
	"src.jobu.sh/pkg/prog/progtest"
	"src.jobu.sh/pkg/testutil"
)

var (
	Test     = progtest.Test
	ThatJobu = progtest.ThatJobu
)

func TestDefaultProgram(t *testing.T) {
	Test(t, []Program{testProgram{name: "first", writeOut: "program 1"}, testProgram{name: "second", writeOut: "program 2"}},
		ThatJobu().WritesStdout("program 1 []"),
		ThatJobu("arg").WritesStdout("program 1 [arg]"),
		ThatJobu("first", "arg").WritesStdout("program 1 [arg]"),
		ThatJobu("second").WritesStdout("program 2 []"),
	)
}

func TestFlags(t *testing.T) {
	Test(t, []Program{testProgram{name: "first"}},
		ThatJobu("--bad-flag").
			ExitsWith(2).
			WritesStderrContaining("unknown flag: --bad-flag\nUsage:"),
		ThatJobu("--greeting", "hi").WritesStdout("hi []"),
		ThatJobu("first", "--greeting", "hi").WritesStdout("hi []"),
		// Arguments after the first positional one are not flags.
		ThatJobu("script", "--greeting", "hi").WritesStdout(" [script --greeting hi]"),
		ThatJobu("--help").WritesStdoutContaining("Usage:"),
	)
}

func TestLogFlag(t *testing.T) {
	dir := testutil.TempDir(t)
	logPath := filepath.Join(dir, "log")
	t.Cleanup(func() { logutil.SetOutput(io.Discard) })

	Test(t, []Program{testProgram{name: "first", log: "logged"}},
		ThatJobu("--log", logPath).DoesNothing(),
		// The parent of the log file is a regular file.
		ThatJobu("--log", filepath.Join(logPath, "log")).
			WritesStderrContaining("Warning: cannot open log file:"),
	)
	if content := must.ReadFileString(logPath); !strings.Contains(content, "logged") {
		t.Errorf("log file %q lacks the logged message", content)
	}
}

func TestBadUsageError(t *testing.T) {
	Test(t, []Program{testProgram{name: "first", returnErr: BadUsage("lorem ipsum")}},
		ThatJobu().ExitsWith(2).WritesStderrContaining("lorem ipsum\nUsage:"),
	)
}

func TestExitError(t *testing.T) {
	Test(t, []Program{testProgram{name: "first", returnErr: Exit(3)}},
		ThatJobu().ExitsWith(3),
	)
}

func TestExitError_0(t *testing.T) {
	Test(t, []Program{testProgram{name: "first", returnErr: Exit(0)}},
		ThatJobu().ExitsWith(0),
	)
}

func TestOtherError(t *testing.T) {
	Test(t, []Program{testProgram{name: "first", returnErr: errors.New("oops")}},
		ThatJobu().ExitsWith(2).WritesStderr("oops\n"),
	)
}

type testProgram struct {
	name      string
	writeOut  string
	log       string
	returnErr error
}

func (p testProgram) Command(fds [3]*os.File, _ *Flags) *cobra.Command {
	var greeting string
	cmd := &cobra.Command{
		Use:  p.name,
		Args: cobra.ArbitraryArgs,
		RunE: func(_ *cobra.Command, args []string) error {
			if p.log != "" {
				logutil.GetLogger("[test] ").Println(p.log)
			}
			out := p.writeOut
			if greeting != "" {
				out = greeting
			}
			if out != "" || len(args) > 0 {
				fds[1].WriteString(out + " [" + strings.Join(args, " ") + "]")
			}
			return p.returnErr
		},
	}
	cmd.Flags().StringVar(&greeting, "greeting", "", "text to write")
	cmd.Flags().SetInterspersed(false)
	return cmd
}
