// Package prog provides the entry point to jobu. Each subcommand of jobu is a
// Program, implemented in the package it belongs to.
package prog

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"src.jobu.sh/pkg/logutil"
)

// Flags keeps the command-line flags common to all subprograms.
type Flags struct {
	// File to write the debug log to.
	Log string
	// Config file to use instead of searching the config directory.
	Config string
}

// Program represents a subprogram.
type Program interface {
	// Command returns the cobra command of the subprogram. Its RunE may return
	// errors created by BadUsage and Exit.
	Command(fds [3]*os.File, f *Flags) *cobra.Command
}

// Run parses command-line arguments and runs the selected subprogram. The
// first program is also run when no subcommand is given. It returns the exit
// status of the program.
func Run(fds [3]*os.File, args []string, programs ...Program) int {
	f := &Flags{}
	root := &cobra.Command{
		Use:           "jobu",
		Short:         "A shell that hands line editing to an external engine",
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			if f.Log != "" {
				if err := logutil.SetOutputFile(f.Log, 0); err != nil {
					fmt.Fprintln(fds[2], "Warning: cannot open log file:", err)
				}
			}
			return nil
		},
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.SetArgs(args[1:])
	root.SetIn(fds[0])
	root.SetOut(fds[1])
	root.SetErr(fds[2])
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return BadUsage(err.Error())
	})
	root.PersistentFlags().StringVar(&f.Log, "log", "", "a file to write debug log to")
	root.PersistentFlags().StringVar(&f.Config, "config", "", "path to the config file")

	for i, p := range programs {
		cmd := p.Command(fds, f)
		root.AddCommand(cmd)
		if i == 0 {
			root.RunE = cmd.RunE
			root.Args = cmd.Args
			root.Flags().AddFlagSet(cmd.Flags())
			root.Flags().SetInterspersed(false)
		}
	}

	cmd, err := root.ExecuteC()
	if err == nil {
		return 0
	}
	if msg := err.Error(); msg != "" {
		fmt.Fprintln(fds[2], msg)
	}
	var badUsage badUsageError
	var exit exitError
	switch {
	case errors.As(err, &badUsage):
		fmt.Fprint(fds[2], cmd.UsageString())
	case errors.As(err, &exit):
		return exit.exit
	}
	return 2
}

// BadUsage returns a special error that may be returned by Program.Run. It
// causes the main function to print out a message, the usage information and
// exit with 2.
func BadUsage(msg string) error { return badUsageError{msg} }

type badUsageError struct{ msg string }

func (e badUsageError) Error() string { return e.msg }

// Exit returns a special error that may be returned by Program.Run. It causes
// the main function to exit with the given code without printing any error
// messages. Exit(0) returns nil.
func Exit(exit int) error {
	if exit == 0 {
		return nil
	}
	return exitError{exit}
}

type exitError struct{ exit int }

func (e exitError) Error() string { return "" }
