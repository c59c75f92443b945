package shell

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"src.jobu.sh/pkg/config"
	"src.jobu.sh/pkg/engine"
	"src.jobu.sh/pkg/env"
	"src.jobu.sh/pkg/handoff"
	"src.jobu.sh/pkg/logutil"
	"src.jobu.sh/pkg/prog"
	"src.jobu.sh/pkg/store"
)

// Program is the shell subprogram.
type Program struct{}

type shellFlags struct {
	code   bool
	noRC   bool
	rc     string
	engine string
	db     string
}

func (Program) Command(fds [3]*os.File, f *prog.Flags) *cobra.Command {
	sf := &shellFlags{}
	cmd := &cobra.Command{
		Use:   "shell [-c CODE | SCRIPT] [ARG...]",
		Short: "Run the shell, interactively or on a script",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(f)
			if err != nil {
				return err
			}
			if sf.code && len(args) == 0 {
				return prog.BadUsage("-c requires an argument")
			}
			if len(args) > 0 {
				return prog.Exit(script(cmd.Context(), fds, args, sf.code))
			}
			return prog.Exit(interactive(cmd.Context(), fds, cfg, sf))
		},
	}
	cmd.Flags().BoolVarP(&sf.code, "command", "c", false, "take the first argument as code to run")
	cmd.Flags().BoolVar(&sf.noRC, "norc", false, "don't read the rc file")
	cmd.Flags().StringVar(&sf.rc, "rc", "", "path to the rc file")
	cmd.Flags().StringVar(&sf.engine, "engine", "", "path to the line-editing engine")
	cmd.Flags().StringVar(&sf.db, "db", "", "path to the history database")
	return cmd
}

// Loads the configuration named by --config, or the one in the config
// directory. The log file from the configuration is used unless --log is
// given.
func loadConfig(f *prog.Flags) (*config.Config, error) {
	var cfg *config.Config
	if f.Config != "" {
		var err error
		cfg, err = config.LoadFile(f.Config)
		if err != nil {
			return nil, err
		}
		cfg.ApplyEnv()
	} else {
		dir, err := config.Dir()
		if err != nil {
			logger.Println("no config directory:", err)
			cfg = config.Default()
			cfg.ApplyEnv()
		} else if cfg, _, err = config.Load(dir); err != nil {
			return nil, err
		}
	}
	if f.Log == "" && cfg.Log.File != "" {
		if err := logutil.SetOutputFile(cfg.Log.File, cfg.Log.MaxSizeMB); err != nil {
			logger.Println("cannot open log file:", err)
		}
	}
	return cfg, nil
}

// Runs a script, or code from -c. The remaining arguments become the
// positional parameters.
func script(ctx context.Context, fds [3]*os.File, args []string, isCode bool) int {
	sh, err := New(fds, Config{Params: args[1:]})
	if err != nil {
		fmt.Fprintln(fds[2], err)
		return 2
	}
	var status int
	if isCode {
		status, err = sh.RunScript(ctx, "code from -c", strings.NewReader(args[0]))
	} else {
		name, absErr := filepath.Abs(args[0])
		if absErr != nil {
			fmt.Fprintf(fds[2], "cannot get full path of script %q: %v\n", args[0], absErr)
			return 2
		}
		file, openErr := os.Open(name)
		if openErr != nil {
			fmt.Fprintf(fds[2], "cannot read script %q: %v\n", name, openErr)
			return 2
		}
		defer file.Close()
		status, err = sh.RunScript(ctx, name, file)
	}
	if err != nil {
		fmt.Fprintln(fds[2], err)
	}
	return status
}

func interactive(ctx context.Context, fds [3]*os.File, cfg *config.Config, sf *shellFlags) int {
	if sf.engine != "" {
		cfg.Engine.Path = sf.engine
	}
	if sf.db != "" {
		cfg.History.DB = sf.db
	}

	st := openStore(fds, cfg)
	if st != nil {
		defer st.Close()
	}
	sh, err := New(fds, Config{Interactive: true, Store: st})
	if err != nil {
		fmt.Fprintln(fds[2], err)
		return 2
	}

	icfg := &InteractConfig{}
	if !sf.noRC {
		icfg.RC = sf.rc
		if icfg.RC == "" {
			if dir, err := config.Dir(); err == nil {
				icfg.RC = filepath.Join(dir, "rc.sh")
			} else {
				fmt.Fprintln(fds[2], "Warning:", err)
			}
		}
	}
	launcher, err := newLauncher(cfg)
	if err != nil {
		fmt.Fprintln(fds[2], "Warning:", err)
		fmt.Fprintln(fds[2], "Using the basic line editor.")
	} else {
		icfg.Handoff = handoff.Config{
			Launcher:   launcher,
			AltScreen:  cfg.Handoff.AltScreen,
			SyncMode:   handoff.SyncMode(cfg.Handoff.Sync),
			AckTimeout: time.Duration(cfg.Handoff.AckTimeout),
		}
	}
	return Interact(ctx, fds, sh, icfg)
}

// Returns the engine launcher from the configuration. Without a configured
// engine, the reference engine in the jobu executable itself is used.
func newLauncher(cfg *config.Config) (*engine.Launcher, error) {
	l := &engine.Launcher{
		Path:        cfg.Engine.Path,
		Args:        cfg.Engine.Args,
		ResultMode:  engine.ResultMode(cfg.Engine.ResultMode),
		Timeout:     time.Duration(cfg.Engine.Timeout),
		SetCmdGrace: time.Duration(cfg.Engine.SetCmdGrace),
	}
	if l.Path == "" {
		exe, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("cannot find the reference engine: %w", err)
		}
		l.Path = exe
		l.Args = append([]string{"line-engine"}, engine.DefaultArgs...)
	}
	return l, nil
}

// Opens the history database and imports bash history into it. Failures are
// reported as warnings; the shell then keeps history in memory.
func openStore(fds [3]*os.File, cfg *config.Config) store.Store {
	dbPath, err := cfg.HistoryDB()
	if err == nil {
		err = os.MkdirAll(filepath.Dir(dbPath), 0700)
	}
	var st store.Store
	if err == nil {
		st, err = store.NewStore(dbPath)
	}
	if err != nil {
		fmt.Fprintln(fds[2], "Warning: cannot open history database:", err)
		fmt.Fprintln(fds[2], "History will not be saved.")
		return nil
	}
	if cfg.History.ImportBash {
		if path := bashHistoryPath(); path != "" {
			if _, err := importHistory(st, path); err != nil {
				logger.Println("import bash history:", err)
			}
		}
	}
	return st
}

// Returns $HISTFILE, or ~/.bash_history.
func bashHistoryPath() string {
	if path := os.Getenv(env.HISTFILE); path != "" {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".bash_history")
}

// Imports a bash history file. A missing file imports nothing.
func importHistory(st store.Store, path string) (int, error) {
	file, err := os.Open(path)
	if os.IsNotExist(err) {
		return 0, nil
	} else if err != nil {
		return 0, err
	}
	defer file.Close()
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	return st.ImportBashHistory(abs, file)
}

// HistoryProgram is the subprogram for working with the history database.
type HistoryProgram struct{}

func (HistoryProgram) Command(fds [3]*os.File, f *prog.Flags) *cobra.Command {
	var db string
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Work with the command history",
	}
	cmd.PersistentFlags().StringVar(&db, "db", "", "path to the history database")

	open := func() (store.Store, error) {
		cfg, err := loadConfig(f)
		if err != nil {
			return nil, err
		}
		if db != "" {
			cfg.History.DB = db
		}
		path, err := cfg.HistoryDB()
		if err != nil {
			return nil, err
		}
		if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
			return nil, err
		}
		return store.NewStore(path)
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "import [FILE]",
		Short: "Import a bash history file; defaults to $HISTFILE or ~/.bash_history",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			path := bashHistoryPath()
			if len(args) > 0 {
				path = args[0]
			}
			if path == "" {
				return prog.BadUsage("no history file to import")
			}
			st, err := open()
			if err != nil {
				return err
			}
			defer st.Close()
			n, err := importHistory(st, path)
			if err != nil {
				return err
			}
			fmt.Fprintf(fds[1], "imported %d commands\n", n)
			return nil
		},
	})

	var n int
	list := &cobra.Command{
		Use:   "list [PREFIX]",
		Short: "List recent commands, oldest first",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			prefix := ""
			if len(args) > 0 {
				prefix = args[0]
			}
			st, err := open()
			if err != nil {
				return err
			}
			defer st.Close()
			cmds, err := st.PrevCmds(prefix, n)
			if err != nil {
				return err
			}
			for i := len(cmds) - 1; i >= 0; i-- {
				fmt.Fprintf(fds[1], "%5d  %s\n", cmds[i].Seq, cmds[i].Text)
			}
			return nil
		},
	}
	list.Flags().IntVarP(&n, "number", "n", 20, "number of commands to list")
	cmd.AddCommand(list)
	return cmd
}
