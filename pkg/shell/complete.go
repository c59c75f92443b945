package shell

import (
	"bufio"
	"bytes"
	"context"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"mvdan.cc/sh/v3/interp"
	"mvdan.cc/sh/v3/syntax"
	"src.jobu.sh/pkg/env"
	"src.jobu.sh/pkg/fsutil"
)

// Reserved words offered as command completions.
var keywords = []string{
	"!", "[[", "]]", "case", "do", "done", "elif", "else", "esac", "fi",
	"for", "function", "if", "in", "select", "then", "time", "until",
	"while", "{", "}",
}

// Candidates for interp.IsBuiltin, which has no way to list the builtins.
var builtinCandidates = []string{
	".", ":", "[", "alias", "bg", "break", "builtin", "cd", "command",
	"continue", "dirs", "echo", "eval", "exec", "exit", "false", "fg",
	"getopts", "mapfile", "popd", "printf", "pushd", "pwd", "read",
	"readarray", "return", "set", "shift", "shopt", "source", "test", "trap",
	"true", "type", "umask", "unalias", "unset", "wait",
}

// Complete implements hostquery.Host. A partial word starting with $
// completes variable names, one containing a slash completes file names, and
// anything else completes command names: builtins, reserved words,
// functions, aliases and executables on $PATH.
func (sh *Shell) Complete(partial string) []string {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	var cands []string
	switch {
	case strings.HasPrefix(partial, "$"):
		for name, vr := range sh.runner.Vars {
			if vr.IsSet() {
				cands = append(cands, "$"+name)
			}
		}
	case strings.ContainsRune(partial, '/'):
		cands = sh.completeFile(partial)
	default:
		cands = sh.completeCommand()
	}
	return filterPrefix(cands, partial)
}

// Must be called with mu held.
func (sh *Shell) completeCommand() []string {
	var cands []string
	for _, name := range builtinCandidates {
		if interp.IsBuiltin(name) {
			cands = append(cands, name)
		}
	}
	for _, kw := range keywords {
		if syntax.IsKeyword(kw) {
			cands = append(cands, kw)
		}
	}
	for name := range sh.runner.Funcs {
		cands = append(cands, name)
	}
	cands = append(cands, sh.aliases()...)
	fsutil.EachExternal(sh.varString(env.PATH), sh.runner.Dir, func(name string) {
		cands = append(cands, name)
	})
	return cands
}

// Must be called with mu held.
func (sh *Shell) completeFile(partial string) []string {
	dir, base := filepath.Split(partial)
	readDir := dir
	if !filepath.IsAbs(readDir) {
		readDir = filepath.Join(sh.runner.Dir, readDir)
	}
	entries, err := os.ReadDir(readDir)
	if err != nil {
		return nil
	}
	var cands []string
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasPrefix(name, ".") && !strings.HasPrefix(base, ".") {
			continue
		}
		if entry.IsDir() {
			name += "/"
		}
		cands = append(cands, dir+name)
	}
	return cands
}

var listAliases = &syntax.CallExpr{Args: []*syntax.Word{
	{Parts: []syntax.WordPart{&syntax.Lit{Value: "alias"}}},
}}

// Returns the names of the defined aliases. The runner keeps aliases
// private, so they are listed by running the alias builtin in a subshell.
// Must be called with mu held.
func (sh *Shell) aliases() []string {
	sub := sh.runner.Subshell()
	var out bytes.Buffer
	if err := interp.StdIO(nil, &out, nil)(sub); err != nil {
		return nil
	}
	if err := sub.Run(context.Background(), listAliases); err != nil {
		logger.Println("list aliases:", err)
		return nil
	}
	var names []string
	scanner := bufio.NewScanner(&out)
	for scanner.Scan() {
		line, ok := strings.CutPrefix(scanner.Text(), "alias ")
		if !ok {
			continue
		}
		if name, _, ok := strings.Cut(line, "="); ok {
			names = append(names, name)
		}
	}
	return names
}

// Keeps the candidates that start with prefix, sorted and without
// duplicates.
func filterPrefix(cands []string, prefix string) []string {
	var filtered []string
	for _, cand := range cands {
		if strings.HasPrefix(cand, prefix) {
			filtered = append(filtered, cand)
		}
	}
	slices.Sort(filtered)
	return slices.Compact(filtered)
}
