//go:build unix

package shell

import (
	"context"
	"os"
	"syscall"

	"src.jobu.sh/pkg/sys"
)

func ignoreSignal(sig os.Signal) bool {
	switch sig {
	// SIGURG is used internally by the Go runtime and occurs with great
	// frequency. SIGCHLD comes with every command.
	case syscall.SIGURG, syscall.SIGCHLD, sys.SIGWINCH:
		return true
	}
	return false
}

func handleSignals(ctx context.Context, sigCh <-chan os.Signal, intr *interrupter, hangup context.CancelFunc) {
	for {
		select {
		case <-ctx.Done():
			return
		case sig := <-sigCh:
			if ignoreSignal(sig) {
				continue
			}
			logger.Println("received", sys.SignalName(sig))
			switch sig {
			case syscall.SIGINT:
				intr.interrupt()
			case syscall.SIGHUP, syscall.SIGTERM:
				hangup()
			}
		}
	}
}
