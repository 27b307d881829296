package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/payperplay/easyservers/internal/failure"
	"github.com/payperplay/easyservers/internal/ops"
	"github.com/payperplay/easyservers/pkg/config"
	"github.com/payperplay/easyservers/pkg/logger"
)

// Exit codes for CLI commands.
const (
	ExitCodeSuccess = 0
	// ExitCodeError indicates a general error (command failed, invalid arguments).
	ExitCodeError = 1
	// ExitCodePrecondition indicates the request was refused before anything changed.
	ExitCodePrecondition = 2
	// ExitCodeConfiguration indicates the environment needs fixing (java, paths).
	ExitCodeConfiguration = 3
)

// ExitCode maps an error to the process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitCodeSuccess
	}
	switch failure.KindOf(err) {
	case failure.Precondition:
		return ExitCodePrecondition
	case failure.Configuration:
		return ExitCodeConfiguration
	default:
		return ExitCodeError
	}
}

// AppFactory builds the App on first use so that --help never touches disk. source tags
// the events the app publishes.
type AppFactory func(stdout io.Writer, source string) (*App, error)

type runner struct {
	factory AppFactory
	app     *App
}

func (r *runner) get(cmd *cobra.Command, source string) (*App, error) {
	if r.app == nil {
		app, err := r.factory(cmd.OutOrStdout(), source)
		if err != nil {
			return nil, err
		}
		r.app = app
	}
	return r.app, nil
}

// run executes req and renders the result.
func (r *runner) run(cmd *cobra.Command, req ops.Request) error {
	app, err := r.get(cmd, "cli")
	if err != nil {
		return err
	}
	res, err := app.Exec.Execute(cmd.Context(), req)
	if err != nil {
		return err
	}
	return render(cmd.OutOrStdout(), res)
}

// NewRootCommand builds the command tree.
func NewRootCommand(factory AppFactory) *cobra.Command {
	r := &runner{factory: factory}

	root := &cobra.Command{
		Use:   "easyservers",
		Short: "Create, run and customize Minecraft servers from reusable configs",
		Long: `easyservers manages configs (a mod-loader install plus mods, plugins, resource
packs and worlds shared by a server template and its clients) and the servers created
from them. Servers run as background processes and are probed over RCON.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newConfigCmd(r),
		newAssetCmd(r),
		newServerCmd(r),
		newServeCmd(r),
	)
	return root
}

// Execute runs the CLI and returns the exit code.
func Execute(args []string, stdout, stderr io.Writer) int {
	cfg := config.Load()
	closer := logger.Setup(logger.Options{
		Level:      cfg.LogLevel,
		JSON:       cfg.LogJSON,
		File:       cfg.LogFile,
		MaxSizeMB:  cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
		MaxAgeDays: cfg.LogMaxAgeDays,
	})
	defer closer.Close()

	var app *App
	root := NewRootCommand(func(out io.Writer, source string) (*App, error) {
		var err error
		app, err = NewApp(cfg, out, source)
		return app, err
	})
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.Execute()
	if app != nil {
		// Flushes event backends, failed operations included
		app.Close()
	}
	if err != nil {
		fmt.Fprintln(stderr, err.Error())
	}
	return ExitCode(err)
}

// Main is the entry point of the easyservers binary.
func Main() {
	os.Exit(Execute(os.Args[1:], os.Stdout, os.Stderr))
}

// usageError marks bad arguments; they are preconditions like any other refusal.
func usageError(format string, args ...interface{}) error {
	return failure.Preconditionf("", format, args...)
}
