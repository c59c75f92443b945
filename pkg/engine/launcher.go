// Package engine starts the external line-editing engine and collects its
// outcome.
package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"src.jobu.sh/pkg/env"
	"src.jobu.sh/pkg/fsutil"
	"src.jobu.sh/pkg/logutil"
	"src.jobu.sh/pkg/sys"
)

var logger = logutil.GetLogger("[engine] ")

// ResultMode selects how the engine hands back the command.
type ResultMode string

// Possible values of ResultMode.
const (
	// The engine sends SETCMD through the channel.
	ResultChannel ResultMode = "channel"
	// The engine writes the command to $JOBU_RESULT_FILE and exits with 0.
	ResultFile ResultMode = "file"
)

const (
	// DefaultSetCmdGrace is how long the engine may keep running after sending
	// SETCMD before it is terminated.
	DefaultSetCmdGrace = 500 * time.Millisecond
	// How long a terminated engine has to exit before it is killed.
	killDelay = time.Second
)

// DefaultArgs are the engine arguments used when Launcher.Args is nil.
var DefaultArgs = []string{"--request-pipe", "{request}", "--response-pipe", "{response}"}

// Launcher keeps the configuration for launching the engine.
type Launcher struct {
	// Path to the engine executable. Looked up in $PATH if it contains no
	// slash.
	Path string
	// Arguments to the engine. The placeholders {request}, {response} and
	// {session} are replaced with the request pipe path, the response pipe
	// path and the session ID. If nil, DefaultArgs is used.
	Args []string
	// Environment of the engine. If nil, the environment of the current
	// process is used. Variables describing the session are always added.
	Env []string
	// Working directory of the engine. Empty means the current directory.
	Dir string
	// Directory for diagnostic and result files.
	RunDir string
	// Upper bound for one engine run. Zero means no bound.
	Timeout time.Duration
	// Grace period after SETCMD. Zero means DefaultSetCmdGrace.
	SetCmdGrace time.Duration
	// How the engine returns its result. Empty means ResultChannel.
	ResultMode ResultMode

	lastDiag string
}

// Spec describes the session an engine is launched for.
type Spec struct {
	SessionID    string
	RequestPath  string
	ResponsePath string
}

// Stdio is the terminal the engine runs on.
type Stdio struct {
	In  *os.File
	Out *os.File
}

// Outcome describes how an engine run ended.
type Outcome struct {
	// Exit status, or -1 if the engine was terminated by a signal.
	ExitCode int
	// Whether the engine was stopped by the launcher, either after the SETCMD
	// grace period or because the context was cancelled.
	Killed bool
	// Whether the engine was stopped because Timeout elapsed.
	TimedOut bool
	// The command read from the result file, only in ResultFile mode.
	Result    string
	HasResult bool
	// Path of the file the engine's stderr was written to.
	DiagPath string
}

// Run launches the engine and waits for it to finish. A value received on
// setcmd means the engine has delivered its command through the channel; the
// engine is then given the SETCMD grace period to exit on its own.
//
// A non-zero exit status is not an error; it is reported in the Outcome. Only
// failures to set up or start the engine are returned as errors.
func (l *Launcher) Run(ctx context.Context, spec Spec, stdio Stdio, setcmd <-chan struct{}) (Outcome, error) {
	if l.Path == "" {
		return Outcome{}, errors.New("no engine configured")
	}
	if l.RunDir == "" {
		return Outcome{}, errors.New("no run directory for engine")
	}
	diag, err := l.claimDiag(spec.SessionID)
	if err != nil {
		return Outcome{}, err
	}
	defer diag.Close()
	outcome := Outcome{DiagPath: diag.Name()}

	extraEnv := []string{
		env.JOBU_SESSION_ID + "=" + spec.SessionID,
		env.JOBU_REQUEST_PIPE + "=" + spec.RequestPath,
		env.JOBU_RESPONSE_PIPE + "=" + spec.ResponsePath,
	}
	if stdio.Out != nil && sys.IsATTY(stdio.Out.Fd()) {
		if rows, cols := sys.WinSize(stdio.Out); rows > 0 {
			extraEnv = append(extraEnv,
				"LINES="+strconv.Itoa(rows), "COLUMNS="+strconv.Itoa(cols))
		}
	}
	var resultPath string
	if l.ResultMode == ResultFile {
		resultPath, err = claimResult(l.RunDir, spec.SessionID)
		if err != nil {
			return outcome, err
		}
		defer os.Remove(resultPath)
		extraEnv = append(extraEnv, env.JOBU_RESULT_FILE+"="+resultPath)
	}

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()
	if l.Timeout > 0 {
		var cancelTimeout context.CancelFunc
		runCtx, cancelTimeout = context.WithTimeout(runCtx, l.Timeout)
		defer cancelTimeout()
	}

	cmd := exec.CommandContext(runCtx, l.Path, expandArgs(l.args(), spec)...)
	cmd.Stdin = stdio.In
	cmd.Stdout = stdio.Out
	cmd.Stderr = diag
	cmd.Dir = l.Dir
	baseEnv := l.Env
	if baseEnv == nil {
		baseEnv = os.Environ()
	}
	cmd.Env = append(baseEnv[:len(baseEnv):len(baseEnv)], extraEnv...)
	cmd.Cancel = func() error { return cmd.Process.Signal(syscall.SIGTERM) }
	cmd.WaitDelay = killDelay

	if err := cmd.Start(); err != nil {
		return outcome, fmt.Errorf("start engine: %w", err)
	}
	logger.Printf("started engine %s, pid %d, diagnostics in %s", l.Path, cmd.Process.Pid, diag.Name())

	waitCh := make(chan error, 1)
	go func() { waitCh <- cmd.Wait() }()

	var graceCh <-chan time.Time
	var waitErr error
wait:
	for {
		select {
		case waitErr = <-waitCh:
			break wait
		case <-setcmd:
			setcmd = nil
			timer := time.NewTimer(l.setCmdGrace())
			defer timer.Stop()
			graceCh = timer.C
		case <-graceCh:
			logger.Println("engine still running after SETCMD grace period, terminating")
			outcome.Killed = true
			cancelRun()
			graceCh = nil
		}
	}

	outcome.ExitCode = -1
	if cmd.ProcessState != nil {
		outcome.ExitCode = cmd.ProcessState.ExitCode()
	}
	switch {
	case ctx.Err() != nil:
		outcome.Killed = true
	case !outcome.Killed && errors.Is(runCtx.Err(), context.DeadlineExceeded):
		outcome.TimedOut = true
	}
	var exitErr *exec.ExitError
	if waitErr != nil && !errors.As(waitErr, &exitErr) && !errors.Is(waitErr, exec.ErrWaitDelay) {
		logger.Println("wait for engine:", waitErr)
	}
	logger.Printf("engine exited with %d (killed %v, timed out %v)",
		outcome.ExitCode, outcome.Killed, outcome.TimedOut)

	if resultPath != "" && outcome.ExitCode == 0 && !outcome.Killed && !outcome.TimedOut {
		data, err := os.ReadFile(resultPath)
		if err != nil {
			logger.Println("read result file:", err)
		} else if len(data) > 0 {
			outcome.Result = strings.TrimSuffix(string(data), "\n")
			outcome.HasResult = true
		}
	}
	return outcome, nil
}

// Cleanup removes the diagnostic file of the last run.
func (l *Launcher) Cleanup() error {
	if l.lastDiag == "" {
		return nil
	}
	err := os.Remove(l.lastDiag)
	l.lastDiag = ""
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

func (l *Launcher) claimDiag(sessionID string) (*os.File, error) {
	if err := l.Cleanup(); err != nil {
		logger.Println("remove old diagnostic file:", err)
	}
	f, err := fsutil.ClaimFile(l.RunDir, "engine-"+sessionID+"-*.log")
	if err != nil {
		return nil, fmt.Errorf("create diagnostic file: %w", err)
	}
	l.lastDiag = f.Name()
	return f, nil
}

func claimResult(dir, sessionID string) (string, error) {
	f, err := fsutil.ClaimFile(dir, "result-"+sessionID+"-*.txt")
	if err != nil {
		return "", fmt.Errorf("create result file: %w", err)
	}
	f.Close()
	return filepath.Abs(f.Name())
}

func (l *Launcher) args() []string {
	if l.Args == nil {
		return DefaultArgs
	}
	return l.Args
}

func (l *Launcher) setCmdGrace() time.Duration {
	if l.SetCmdGrace <= 0 {
		return DefaultSetCmdGrace
	}
	return l.SetCmdGrace
}

func expandArgs(args []string, spec Spec) []string {
	r := strings.NewReplacer(
		"{request}", spec.RequestPath,
		"{response}", spec.ResponsePath,
		"{session}", spec.SessionID)
	expanded := make([]string, len(args))
	for i, arg := range args {
		expanded[i] = r.Replace(arg)
	}
	return expanded
}
