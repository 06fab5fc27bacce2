// Package cli is the command-line presentation layer. Every command builds the
// client core, restores the persisted session, runs one operation and prints
// the result together with the notifications it produced.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"studygenie/internal/app"
	"studygenie/internal/platform/config"
	"studygenie/internal/platform/logger"
	dErrors "studygenie/pkg/domain-errors"
)

// runner carries the state shared by all commands.
type runner struct {
	envFile  string
	backend  string
	logLevel string
	noColor  bool

	out    io.Writer
	errOut io.Writer

	cfg     config.Config
	logger  *slog.Logger
	printer *Printer
}

// Execute runs the command tree and reports a failure that no notification
// already showed.
func Execute(ctx context.Context, args []string) error {
	return execute(ctx, os.Stdout, os.Stderr, args)
}

func execute(ctx context.Context, out, errOut io.Writer, args []string) error {
	r := &runner{out: out, errOut: errOut}
	root := r.rootCommand()
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	if err != nil {
		if r.printer == nil || !r.printer.reportedError() {
			fmt.Fprintf(errOut, "Error: %s\n", describe(err))
		}
	}
	return err
}

// NewRootCommand builds the studygenie command tree.
func NewRootCommand() *cobra.Command {
	r := &runner{out: os.Stdout, errOut: os.Stderr}
	return r.rootCommand()
}

func (r *runner) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "studygenie",
		Short: "Study assistant client",
		Long: `studygenie signs you in to the study backend and manages your materials,
quizzes, study sessions and progress.

Example usage:
  studygenie signup --email a@x.com --password secret --full-name "Ada"
  studygenie signin --email a@x.com --password secret
  studygenie materials upload notes.pdf --title "Cells" --type pdf
  studygenie study record --type read --duration 25m
  studygenie serve                # local API with a live event stream`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return r.init(cmd)
		},
	}
	root.SetOut(r.out)
	root.SetErr(r.errOut)

	flags := root.PersistentFlags()
	flags.StringVar(&r.envFile, "env-file", ".env", "environment file to load")
	flags.StringVar(&r.backend, "backend", "", "backend mode: memory, remote or disabled (overrides STUDYGENIE_BACKEND)")
	flags.StringVar(&r.logLevel, "log-level", "", "log level (overrides LOG_LEVEL)")
	flags.BoolVar(&r.noColor, "no-color", false, "disable colored output")

	root.AddCommand(
		r.serveCommand(),
		r.signUpCommand(),
		r.signInCommand(),
		r.signInProviderCommand(),
		r.signOutCommand(),
		r.whoamiCommand(),
		r.profileCommand(),
		r.materialsCommand(),
		r.contentCommand(),
		r.quizCommand(),
		r.studyCommand(),
		r.progressCommand(),
		r.analyticsCommand(),
		r.achievementsCommand(),
	)
	return root
}

func (r *runner) init(cmd *cobra.Command) error {
	if r.backend != "" {
		if err := os.Setenv("STUDYGENIE_BACKEND", r.backend); err != nil {
			return err
		}
	}
	cfg, err := config.FromEnv(r.envFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	level := cfg.Log.Level
	if r.logLevel != "" {
		level = r.logLevel
	}
	r.cfg = cfg
	r.logger = logger.New(r.errOut, level, cfg.Log.Format)
	r.printer = NewPrinter(cmd.OutOrStdout(), cmd.ErrOrStderr(), !r.noColor)
	return nil
}

// withApp builds the core with the console presenter, restores the session,
// runs fn and waits for the session events fn caused before shutting down.
func (r *runner) withApp(ctx context.Context, fn func(ctx context.Context, a *app.App) error) error {
	a, err := app.New(ctx, r.cfg, r.logger, app.WithPresenter(r.printer))
	if err != nil {
		return err
	}
	defer a.Close()
	if err := a.Start(ctx); err != nil {
		return err
	}
	runErr := fn(ctx, a)
	if err := a.Sessions.Settle(ctx); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

// describe prefers the user-facing message of coded errors.
func describe(err error) string {
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		return err.Error()
	}
	return dErrors.UserMessage(err)
}
