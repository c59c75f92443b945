package store

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"src.jobu.sh/pkg/must"
	"src.jobu.sh/pkg/testutil"
)

func setupStore(t *testing.T) Store {
	t.Helper()
	st, err := NewStore(filepath.Join(testutil.TempDir(t), "db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func TestCmd(t *testing.T) {
	st := setupStore(t)

	if seq, err := st.NextCmdSeq(); seq != 1 || err != nil {
		t.Errorf("NextCmdSeq -> %d, %v; want 1, nil", seq, err)
	}
	for i, cmd := range []string{"echo foo", "git status", "echo bar"} {
		seq, err := st.AddCmd(cmd)
		if seq != i+1 || err != nil {
			t.Errorf("AddCmd(%q) -> %d, %v; want %d, nil", cmd, seq, err, i+1)
		}
	}
	if seq, _ := st.NextCmdSeq(); seq != 4 {
		t.Errorf("NextCmdSeq -> %d, want 4", seq)
	}
	if cmd, err := st.Cmd(2); cmd != "git status" || err != nil {
		t.Errorf("Cmd(2) -> %q, %v", cmd, err)
	}
	if _, err := st.Cmd(10); err != ErrNoMatchingCmd {
		t.Errorf("Cmd(10) -> error %v, want ErrNoMatchingCmd", err)
	}

	ignoreTime := cmpopts.IgnoreFields(Cmd{}, "Time")
	cmds := must.OK1(st.CmdsWithSeq(2, 4))
	want := []Cmd{{Text: "git status", Seq: 2}, {Text: "echo bar", Seq: 3}}
	if diff := cmp.Diff(want, cmds, ignoreTime); diff != "" {
		t.Errorf("CmdsWithSeq (-want +got):\n%s", diff)
	}
	for _, cmd := range cmds {
		if time.Since(cmd.Time) > time.Minute {
			t.Errorf("command %d has time %v", cmd.Seq, cmd.Time)
		}
	}

	prev := must.OK1(st.PrevCmds("echo", 10))
	want = []Cmd{{Text: "echo bar", Seq: 3}, {Text: "echo foo", Seq: 1}}
	if diff := cmp.Diff(want, prev, ignoreTime); diff != "" {
		t.Errorf("PrevCmds (-want +got):\n%s", diff)
	}
	if prev := must.OK1(st.PrevCmds("", 1)); len(prev) != 1 || prev[0].Seq != 3 {
		t.Errorf("PrevCmds with limit 1 -> %v", prev)
	}
	if prev := must.OK1(st.PrevCmds("nope", 10)); len(prev) != 0 {
		t.Errorf("PrevCmds(nope) -> %v", prev)
	}
}

func TestStore_Persists(t *testing.T) {
	dbname := filepath.Join(testutil.TempDir(t), "db")
	st := must.OK1(NewStore(dbname))
	st.AddCmd("echo persisted")
	must.OK(st.Close())

	st = must.OK1(NewStore(dbname))
	defer st.Close()
	if cmd, err := st.Cmd(1); cmd != "echo persisted" || err != nil {
		t.Errorf("Cmd(1) after reopening -> %q, %v", cmd, err)
	}
}

const bashHistory = `#1700000000
ls -l
#cd /x

#1700000100
#not a timestamp
git push
echo untimed
`

func TestParseBashHistory(t *testing.T) {
	entries, err := ParseBashHistory(strings.NewReader(bashHistory))
	if err != nil {
		t.Fatal(err)
	}
	want := []HistoryEntry{
		{"ls -l", time.Unix(1700000000, 0)},
		{"#cd /x", time.Time{}},
		{"#not a timestamp", time.Unix(1700000100, 0)},
		{"git push", time.Time{}},
		{"echo untimed", time.Time{}},
	}
	if diff := cmp.Diff(want, entries); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}

func TestImportBashHistory(t *testing.T) {
	st := setupStore(t)
	st.AddCmd("already here")

	n, err := st.ImportBashHistory("/home/u/.bash_history", strings.NewReader(bashHistory))
	if n != 5 || err != nil {
		t.Fatalf("ImportBashHistory -> %d, %v; want 5, nil", n, err)
	}
	cmds := must.OK1(st.CmdsWithSeq(1, 100))
	var texts []string
	for _, cmd := range cmds {
		texts = append(texts, cmd.Text)
	}
	want := []string{"already here", "ls -l", "#cd /x", "#not a timestamp", "git push", "echo untimed"}
	if diff := cmp.Diff(want, texts); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
	if got := cmds[1].Time; !got.Equal(time.Unix(1700000000, 0)) {
		t.Errorf("imported timestamp %v", got)
	}
	if got := cmds[2].Time; !got.IsZero() {
		t.Errorf("untimed entry has time %v", got)
	}

	// Importing the same source again adds nothing.
	n, err = st.ImportBashHistory("/home/u/.bash_history", strings.NewReader(bashHistory))
	if n != 0 || err != nil {
		t.Errorf("second ImportBashHistory -> %d, %v; want 0, nil", n, err)
	}
	if seq, _ := st.NextCmdSeq(); seq != 7 {
		t.Errorf("NextCmdSeq -> %d, want 7", seq)
	}
}
