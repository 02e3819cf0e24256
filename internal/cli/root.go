// Package cli implements the caretrack command tree.
package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mesh-intelligence/caretrack/internal/paths"
)

// Exit codes.
const (
	exitOK        = 0
	exitUserError = 1
	exitSysError  = 2
)

// codedError carries the process exit code for err.
type codedError struct {
	code int
	err  error
}

func (e *codedError) Error() string { return e.err.Error() }
func (e *codedError) Unwrap() error { return e.err }

// userError marks err as caused by bad input or configuration.
func userError(err error) error { return &codedError{code: exitUserError, err: err} }

// sysError marks err as a storage, network or other runtime failure.
func sysError(err error) error { return &codedError{code: exitSysError, err: err} }

type rootFlags struct {
	configDir string
	dataDir   string
	jsonMode  bool
}

// env is the state shared by every subcommand of one root command.
type env struct {
	flags rootFlags

	configDir string
	dataDir   string
	viper     *viper.Viper
	settings  Settings
	log       *logrus.Logger

	out    io.Writer
	errOut io.Writer
}

// skipLoad lists commands that run without reading configuration.
var skipLoad = map[string]bool{"version": true, "help": true, "completion": true}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	e := &env{}
	root := &cobra.Command{
		Use:   "caretrack",
		Short: "Offline-first compliance tracking for healthcare practices",
		Long: `caretrack keeps a local cache of practice records, queues writes made
while offline and replays them when the hosted backend is reachable. It
scores compliance over a date window and reports how the score moved
against a saved baseline.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			e.out = cmd.OutOrStdout()
			e.errOut = cmd.ErrOrStderr()
			if skipLoad[cmd.Name()] {
				return nil
			}
			return e.load()
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&e.flags.configDir, "config-dir", "", "configuration directory (default: platform config dir)")
	pf.StringVar(&e.flags.dataDir, "data-dir", "", "data directory (default: config data_dir or platform data dir)")
	pf.BoolVar(&e.flags.jsonMode, "json", false, "write machine-readable JSON output")

	root.AddCommand(
		newInitCmd(e),
		newVersionCmd(),
		newEnqueueCmd(e),
		newPendingCmd(e),
		newDrainCmd(e),
		newCacheCmd(e),
		newScoreCmd(e),
		newBaselineCmd(e),
		newDeltaCmd(e),
		newReportCmd(e),
		newServeCmd(e),
		newPurgeCmd(e),
	)
	return root
}

// load resolves directories, reads settings and configures logging.
func (e *env) load() error {
	configDir, err := paths.ResolveConfigDir(e.flags.configDir)
	if err != nil {
		return sysError(err)
	}
	v, s, err := loadSettings(configDir)
	if err != nil {
		return userError(err)
	}
	dataDir, err := paths.ResolveDataDir(e.flags.dataDir, s.DataDir)
	if err != nil {
		return sysError(err)
	}
	log, err := newLogger(s.Log, e.errOut)
	if err != nil {
		return userError(err)
	}

	e.configDir = configDir
	e.dataDir = dataDir
	e.viper = v
	e.settings = s
	e.log = log
	return nil
}

// Execute runs the root command and exits with its status code.
func Execute() {
	os.Exit(run(NewRootCmd(), os.Args[1:], os.Stderr))
}

// run executes root with args and returns the process exit code.
func run(root *cobra.Command, args []string, stderr io.Writer) int {
	root.SetArgs(args)
	err := root.Execute()
	if err == nil {
		return exitOK
	}
	fmt.Fprintln(stderr, "Error:", err)
	var ce *codedError
	if errors.As(err, &ce) {
		return ce.code
	}
	// Flag parsing and argument count errors come from cobra.
	return exitUserError
}
