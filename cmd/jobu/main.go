// Jobu is a shell that hands line editing over to an external engine. The
// engine takes over the terminal for each command line and asks the shell
// about commands, variables and history through a pair of named pipes.
package main

import (
	"os"

	"src.jobu.sh/pkg/buildinfo"
	"src.jobu.sh/pkg/channel"
	"src.jobu.sh/pkg/lineengine"
	"src.jobu.sh/pkg/prog"
	"src.jobu.sh/pkg/shell"
)

func main() {
	os.Exit(prog.Run(
		[3]*os.File{os.Stdin, os.Stdout, os.Stderr}, os.Args,
		shell.Program{}, shell.HistoryProgram{}, lineengine.Program{},
		channel.QueryProgram{}, buildinfo.Program{}))
}
