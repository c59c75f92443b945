package shell

import (
	"os"
	"path/filepath"
	"testing"

	"src.jobu.sh/pkg/env"
	"src.jobu.sh/pkg/must"
	"src.jobu.sh/pkg/prog"
	. "src.jobu.sh/pkg/prog/progtest"
	"src.jobu.sh/pkg/testutil"
)

var programs = []prog.Program{Program{}, HistoryProgram{}}

// Points the config, data and history file at empty temporary locations.
func setupDirs(t *testing.T) string {
	t.Helper()
	noSignals(t)
	dir := testutil.TempDir(t)
	testutil.Setenv(t, env.JOBU_CONFIG_DIR, filepath.Join(dir, "config"))
	testutil.Setenv(t, env.XDG_DATA_HOME, filepath.Join(dir, "data"))
	testutil.Setenv(t, env.HISTFILE, filepath.Join(dir, "bash_history"))
	testutil.Setenv(t, env.JOBU_ENGINE, "")
	testutil.Setenv(t, env.PS1, "test> ")
	return dir
}

func TestProgram_Script(t *testing.T) {
	dir := setupDirs(t)
	script := filepath.Join(dir, "a.sh")
	must.WriteFile(script, "echo script $1\nexit 5\n")

	Test(t, programs,
		ThatJobu("-c", "echo hi").WritesStdout("hi\n"),
		ThatJobu("shell", "-c", "echo hi").WritesStdout("hi\n"),
		ThatJobu("-c", "echo $1 $2", "a", "b").WritesStdout("a b\n"),
		ThatJobu("-c", "exit 3").ExitsWith(3),
		ThatJobu("-c", "echo 'x").ExitsWith(2).
			WritesStderrContaining("without closing quote"),
		ThatJobu("-c").ExitsWith(2).
			WritesStderrContaining("-c requires an argument"),

		ThatJobu(script, "arg").ExitsWith(5).WritesStdout("script arg\n"),
		ThatJobu(filepath.Join(dir, "missing.sh")).ExitsWith(2).
			WritesStderrContaining("cannot read script"),
	)
}

func TestProgram_BadConfig(t *testing.T) {
	dir := setupDirs(t)
	bad := filepath.Join(dir, "bad.yaml")
	must.WriteFile(bad, "bogus: 1\n")

	Test(t, programs,
		ThatJobu("--config", bad, "-c", "echo hi").ExitsWith(2).
			WritesStderrContaining("bogus"),
	)
}

func TestProgram_InteractiveWithoutTerminal(t *testing.T) {
	dir := setupDirs(t)
	db := filepath.Join(dir, "history.db")

	Test(t, programs,
		ThatJobu("--norc", "--db", db).WithStdin("echo hi\nexit 6\n").
			ExitsWith(6).WritesStdout("hi\n").WritesStderrContaining("test> "),
		ThatJobu("history", "list", "--db", db).
			WritesStdout("    1  echo hi\n    2  exit 6\n"),
		ThatJobu("history", "list", "--db", db, "-n", "1").
			WritesStdout("    2  exit 6\n"),
		ThatJobu("history", "list", "--db", db, "echo").
			WritesStdout("    1  echo hi\n"),
	)
}

func TestProgram_SourcesRC(t *testing.T) {
	dir := setupDirs(t)
	rc := filepath.Join(dir, "rc.sh")
	must.WriteFile(rc, "greeting=hello\n")
	must.OK(os.MkdirAll(filepath.Join(dir, "config"), 0700))
	must.WriteFile(filepath.Join(dir, "config", "rc.sh"), "greeting=default\n")
	db := filepath.Join(dir, "history.db")

	Test(t, programs,
		ThatJobu("--rc", rc, "--db", db).WithStdin("echo $greeting\n").
			WritesStdout("hello\n").WritesStderrContaining("test> "),
		ThatJobu("--db", db).WithStdin("echo $greeting\n").
			WritesStdout("default\n").WritesStderrContaining("test> "),
		ThatJobu("--norc", "--db", db).WithStdin("echo $greeting\n").
			WritesStdout("\n").WritesStderrContaining("test> "),
	)
}

func TestHistoryProgram_Import(t *testing.T) {
	dir := setupDirs(t)
	db := filepath.Join(dir, "history.db")
	histfile := filepath.Join(dir, "bash_history")
	must.WriteFile(histfile, "#1600000000\nls\n#cd /x\n\necho done\n")

	Test(t, programs,
		ThatJobu("history", "import", "--db", db, histfile).
			WritesStdout("imported 3 commands\n"),
		ThatJobu("history", "import", "--db", db, histfile).
			WritesStdout("imported 0 commands\n"),
		ThatJobu("history", "list", "--db", db).
			WritesStdout("    1  ls\n    2  #cd /x\n    3  echo done\n"),
		// Without an argument, $HISTFILE is used. It has already been
		// imported.
		ThatJobu("history", "import", "--db", db).
			WritesStdout("imported 0 commands\n"),
		ThatJobu("history", "import", "--db", db, filepath.Join(dir, "missing")).
			WritesStdout("imported 0 commands\n"),
	)
}

func TestProgram_ImportsBashHistoryOnStart(t *testing.T) {
	dir := setupDirs(t)
	db := filepath.Join(dir, "history.db")
	must.WriteFile(filepath.Join(dir, "bash_history"), "old command\n")

	Test(t, programs,
		ThatJobu("--norc", "--db", db).WithStdin("").
			WritesStderrContaining("test> "),
		ThatJobu("history", "list", "--db", db).
			WritesStdout("    1  old command\n"),
	)
}
