//go:build unix

package lineengine

import (
	"testing"

	"src.jobu.sh/pkg/env"
	"src.jobu.sh/pkg/prog"
	"src.jobu.sh/pkg/prog/progtest"
	"src.jobu.sh/pkg/testutil"
)

var programs = []prog.Program{Program{}}

func TestProgram_SendsCommand(t *testing.T) {
	req, resp, received := setupServer(t)
	ttyPath := setupTTY(t, "echo hi\r")

	progtest.Test(t, programs,
		progtest.ThatJobu("line-engine", "--request-pipe", req, "--response-pipe", resp, "--tty", ttyPath).
			DoesNothing(),
	)
	if got := received(); got != "echo hi" {
		t.Errorf("server received %q", got)
	}
}

func TestProgram_PipesFromEnvironment(t *testing.T) {
	req, resp, received := setupServer(t)
	ttyPath := setupTTY(t, "\x04")
	testutil.Setenv(t, env.JOBU_REQUEST_PIPE, req)
	testutil.Setenv(t, env.JOBU_RESPONSE_PIPE, resp)

	progtest.Test(t, programs,
		progtest.ThatJobu("line-engine", "--tty", ttyPath).ExitsWith(ExitNoCommand),
	)
	if got := received(); got != "" {
		t.Errorf("server received %q", got)
	}
}

func TestProgram_Errors(t *testing.T) {
	testutil.Setenv(t, env.JOBU_REQUEST_PIPE, "")
	testutil.Setenv(t, env.JOBU_RESPONSE_PIPE, "")
	dir := testutil.TempDir(t)

	progtest.Test(t, programs,
		progtest.ThatJobu("line-engine").ExitsWith(2).
			WritesStderrContaining("request and response pipes are required"),
		progtest.ThatJobu("line-engine", "--request-pipe", dir+"/req", "--response-pipe", dir+"/resp").
			ExitsWith(ExitError).WritesStderrContaining("line-engine: connect to"),
		progtest.ThatJobu("line-engine", "extra").ExitsWith(2).
			WritesStderrContaining("unknown command"),
	)
}
