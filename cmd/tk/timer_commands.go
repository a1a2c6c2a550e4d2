package main

import (
	"fmt"
	"os"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	internalstrings "github.com/amonks/timekeep/internal/strings"
	"github.com/amonks/timekeep/internal/ui"
	"github.com/amonks/timekeep/lifecycle"
	"github.com/amonks/timekeep/tracking"
)

var startCmd = &cobra.Command{
	Use:   "start <subject-id>",
	Short: "Start a timer for a todo or case",
	Long: `Start a timer for a todo (default) or a case.

Without --detach the timer runs in the foreground until it is interrupted.
Interrupting or terminating tk stops every active timer for the user.`,
	Args: cobra.ExactArgs(1),
	RunE: runStart,
}

var stopCmd = &cobra.Command{
	Use:   "stop [entry-id]",
	Short: "Stop one active timer, or all of them",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runStop,
}

var (
	startCase        bool
	startDescription string
	startDetach      bool
)

func init() {
	rootCmd.AddCommand(startCmd, stopCmd)
	addEntryFlagAliases(startCmd)

	startCmd.Flags().BoolVar(&startCase, "case", false, "Track time against a case instead of a todo")
	startCmd.Flags().StringVarP(&startDescription, "description", "d", "", "Description")
	startCmd.Flags().BoolVar(&startDetach, "detach", false, "Leave the timer running on the backend and exit")
}

func subjectType(isCase bool) tracking.SubjectType {
	if isCase {
		return tracking.SubjectCase
	}
	return tracking.SubjectTodo
}

func runStart(cmd *cobra.Command, args []string) error {
	env, err := openCommandEnv()
	if err != nil {
		return err
	}
	defer env.Close()

	subject := tracking.Subject{Type: subjectType(startCase), ID: args[0]}
	description := internalstrings.NormalizeWhitespace(startDescription)
	entryID, err := env.manager.Start(cmd.Context(), subject, description)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if startDetach {
		fmt.Fprintf(out, "started %s for %s %s\n", entryID, subject.Type, subject.ID)
		return nil
	}
	fmt.Fprintf(out, "started %s for %s %s; interrupt to stop\n", entryID, subject.Type, subject.ID)

	signals := lifecycle.NewSignalSource()
	errOut := cmd.ErrOrStderr()
	signals.OnWarning = func(warning string) {
		fmt.Fprintln(errOut, ui.Warning(warning))
	}
	session := foregroundSession{
		manager:      env.manager,
		beacon:       env.newBeacon(),
		signals:      signals,
		clock:        clockwork.NewRealClock(),
		graceDelay:   env.cfg.Lifecycle.GraceDelay,
		flushTimeout: env.cfg.Lifecycle.FlushTimeout,
		out:          out,
		live:         term.IsTerminal(int(os.Stdout.Fd())),
		logger:       env.logger,
	}
	return session.run(cmd.Context())
}

func runStop(cmd *cobra.Command, args []string) error {
	env, err := openCommandEnv()
	if err != nil {
		return err
	}
	defer env.Close()

	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	if len(args) == 0 {
		if err := env.manager.StopAll(ctx); err != nil {
			return err
		}
		fmt.Fprintf(out, "stopped all timers for %s\n", env.userID)
		return nil
	}

	roster, err := env.manager.ReloadActive(ctx)
	if err != nil {
		return err
	}
	items := roster.Items()
	ids := make([]string, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ID)
	}
	entryID, err := ui.ResolveIDPrefix(args[0], ids)
	if err != nil {
		return err
	}
	item, _ := roster.Get(entryID)
	if err := env.manager.StopEntry(ctx, item.ID, item.SubjectType); err != nil {
		return err
	}
	fmt.Fprintf(out, "stopped %s (%s %s, %s)\n", item.ID, item.SubjectType, item.SubjectID, ui.FormatDurationShort(time.Since(item.StartedAt)))
	return nil
}
