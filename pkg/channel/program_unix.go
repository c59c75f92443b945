//go:build unix

package channel

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"src.jobu.sh/pkg/env"
	"src.jobu.sh/pkg/prog"
)

// QueryProgram is a one-shot client of the channel, for engines written as
// scripts. It sends one request, writes the response body to stdout and exits
// with 1 when the status is not ok.
type QueryProgram struct{}

func (QueryProgram) Command(fds [3]*os.File, _ *prog.Flags) *cobra.Command {
	var reqPath, respPath string
	cmd := &cobra.Command{
		Use:   "query VERB [ARG...]",
		Short: "Send one query to the shell running the engine",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			if reqPath == "" {
				reqPath = os.Getenv(env.JOBU_REQUEST_PIPE)
			}
			if respPath == "" {
				respPath = os.Getenv(env.JOBU_RESPONSE_PIPE)
			}
			if reqPath == "" || respPath == "" {
				return prog.BadUsage("request and response pipes are required")
			}
			client, err := Dial(reqPath, respPath)
			if err != nil {
				return err
			}
			defer client.Close()
			resp, err := client.Do(Request{strings.ToUpper(args[0]), strings.Join(args[1:], " ")})
			if err != nil {
				return err
			}
			if resp.Status != StatusOK {
				fmt.Fprintln(fds[2], resp.Status+":", resp.Body)
				return prog.Exit(1)
			}
			if resp.Body != "" {
				fmt.Fprintln(fds[1], resp.Body)
			}
			return nil
		},
	}
	cmd.Flags().SetInterspersed(false)
	cmd.Flags().StringVar(&reqPath, "request-pipe", "", "path of the request pipe; defaults to $JOBU_REQUEST_PIPE")
	cmd.Flags().StringVar(&respPath, "response-pipe", "", "path of the response pipe; defaults to $JOBU_RESPONSE_PIPE")
	return cmd
}
