//go:build unix

package channel

import (
	"testing"

	"src.jobu.sh/pkg/env"
	"src.jobu.sh/pkg/prog"
	. "src.jobu.sh/pkg/prog/progtest"
	"src.jobu.sh/pkg/testutil"
)

func TestQueryProgram(t *testing.T) {
	p := setupPair(t)
	serveMap(t, p, map[string]Response{
		"WHICH ls":     OK("/bin/ls"),
		"COMPLETE ec":  OK("echo\necho2"),
		"CWD":          OK("/home"),
		"SETCMD a b":   OK(""),
		"GET-VAR NOPE": Errorf("not set"),
	}, nil)
	testutil.Setenv(t, env.JOBU_REQUEST_PIPE, p.RequestPath)
	testutil.Setenv(t, env.JOBU_RESPONSE_PIPE, p.ResponsePath)
	programs := []prog.Program{QueryProgram{}}

	Test(t, programs,
		ThatJobu("query", "WHICH", "ls").WritesStdout("/bin/ls\n"),
		ThatJobu("query", "which", "ls").WritesStdout("/bin/ls\n"),
		ThatJobu("query", "COMPLETE", "ec").WritesStdout("echo\necho2\n"),
		ThatJobu("query", "CWD").WritesStdout("/home\n"),
		ThatJobu("query", "SETCMD", "a", "b").DoesNothing(),
		ThatJobu("query", "GET-VAR", "NOPE").ExitsWith(1).
			WritesStderr("error: not set\n"),
		ThatJobu("query", "FROB").ExitsWith(1).
			WritesStderr("unknown: unknown query: FROB\n"),
		ThatJobu("query",
			"--request-pipe", p.RequestPath, "--response-pipe", p.ResponsePath,
			"WHICH", "ls").WritesStdout("/bin/ls\n"),
		ThatJobu("query").ExitsWith(2).WritesStderrContaining("requires at least 1 arg"),
	)
}

func TestQueryProgram_NoPipes(t *testing.T) {
	testutil.Setenv(t, env.JOBU_REQUEST_PIPE, "")
	testutil.Setenv(t, env.JOBU_RESPONSE_PIPE, "")
	Test(t, []prog.Program{QueryProgram{}},
		ThatJobu("query", "PING").ExitsWith(2).
			WritesStderrContaining("request and response pipes are required"),
	)
}

func TestQueryProgram_NoServer(t *testing.T) {
	dir := testutil.TempDir(t)
	Test(t, []prog.Program{QueryProgram{}},
		ThatJobu("query", "--request-pipe", dir+"/req", "--response-pipe", dir+"/resp", "PING").
			ExitsWith(2).WritesStderrContaining("connect to"),
	)
}
