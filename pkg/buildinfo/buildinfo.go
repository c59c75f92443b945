// Package buildinfo contains build information.
//
// Some of the information can be overridden when building jobu, by passing
// -ldflags "-X src.jobu.sh/pkg/buildinfo.VCSOverride=value" to "go build".
package buildinfo

import (
	"encoding/json"
	"fmt"
	"os"
	"runtime"
	"runtime/debug"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"src.jobu.sh/pkg/prog"
)

// VersionBase is the version of jobu. On development commits, it identifies
// the next release.
const VersionBase = "0.3.0"

// VCSOverride may be set during compilation to "time-commit" (e.g.
// "20220401235958-123456789012") to be used in the version of development
// builds in place of the VCS information recorded by the Go toolchain.
var VCSOverride string

// Type contains all the build information fields.
type Type struct {
	Version   string `json:"version"`
	GoVersion string `json:"goversion"`
}

// Value contains all the build information.
var Value = Type{
	Version:   devVersion(VersionBase, VCSOverride, debug.ReadBuildInfo),
	GoVersion: runtime.Version(),
}

func devVersion(next, vcsOverride string, f func() (*debug.BuildInfo, bool)) string {
	if vcsOverride != "" {
		return next + "-dev.0." + vcsOverride
	}
	fallback := next + "-dev.unknown"
	bi, ok := f()
	if !ok {
		return fallback
	}
	if v := bi.Main.Version; v != "" && v != "(devel)" {
		return strings.TrimPrefix(v, "v")
	}
	var vcsRevision, vcsTime string
	var vcsModified bool
	for _, setting := range bi.Settings {
		switch setting.Key {
		case "vcs.revision":
			vcsRevision = setting.Value
		case "vcs.time":
			vcsTime = setting.Value
		case "vcs.modified":
			vcsModified = setting.Value == "true"
		}
	}
	if vcsRevision == "" {
		return fallback
	}
	t, err := time.Parse(time.RFC3339Nano, vcsTime)
	if err != nil {
		return fallback
	}
	revision := vcsRevision
	if len(revision) > 12 {
		revision = revision[:12]
	}
	version := next + "-dev.0." + t.UTC().Format("20060102150405") + "-" + revision
	if vcsModified {
		version += "-dirty"
	}
	return version
}

// Program is the buildinfo subprogram.
type Program struct{}

func (Program) Command(fds [3]*os.File, _ *prog.Flags) *cobra.Command {
	var jsonOutput, versionOnly bool
	cmd := &cobra.Command{
		Use:   "buildinfo",
		Short: "Show information about this build of jobu",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			if versionOnly {
				if jsonOutput {
					fmt.Fprintln(fds[1], mustToJSON(Value.Version))
				} else {
					fmt.Fprintln(fds[1], Value.Version)
				}
				return nil
			}
			if jsonOutput {
				fmt.Fprintln(fds[1], mustToJSON(Value))
			} else {
				fmt.Fprintln(fds[1], "Version:", Value.Version)
				fmt.Fprintln(fds[1], "Go version:", Value.GoVersion)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output in JSON")
	cmd.Flags().BoolVar(&versionOnly, "version", false, "only show the version")
	return cmd
}

func mustToJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return string(b)
}
