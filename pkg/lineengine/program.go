package lineengine

import (
	"os"

	"github.com/spf13/cobra"
	"src.jobu.sh/pkg/env"
	"src.jobu.sh/pkg/prog"
)

// Program is the subprogram running the engine.
type Program struct{}

func (Program) Command(fds [3]*os.File, _ *prog.Flags) *cobra.Command {
	var reqPath, respPath, ttyPath string
	cmd := &cobra.Command{
		Use:   "line-engine",
		Short: "Edit one line for a jobu shell",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			if reqPath == "" {
				reqPath = os.Getenv(env.JOBU_REQUEST_PIPE)
			}
			if respPath == "" {
				respPath = os.Getenv(env.JOBU_RESPONSE_PIPE)
			}
			if reqPath == "" || respPath == "" {
				return prog.BadUsage("request and response pipes are required")
			}
			exit, err := Run(reqPath, respPath, ttyPath)
			if err != nil {
				logger.Println(err)
				fds[2].WriteString("line-engine: " + err.Error() + "\n")
			}
			return prog.Exit(exit)
		},
	}
	cmd.Flags().StringVar(&reqPath, "request-pipe", "", "path of the request pipe; defaults to $JOBU_REQUEST_PIPE")
	cmd.Flags().StringVar(&respPath, "response-pipe", "", "path of the response pipe; defaults to $JOBU_RESPONSE_PIPE")
	cmd.Flags().StringVar(&ttyPath, "tty", DefaultTTY, "terminal to edit on")
	return cmd
}
