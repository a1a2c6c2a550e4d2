package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"

	"github.com/amonks/timekeep/internal/state"
	"github.com/amonks/timekeep/lifecycle"
)

var loginCmd = &cobra.Command{
	Use:   "login <user>",
	Short: "Sign in as a user",
	Args:  cobra.ExactArgs(1),
	RunE:  runLogin,
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Stop every active timer and sign out",
	Args:  cobra.NoArgs,
	RunE:  runLogout,
}

func init() {
	rootCmd.AddCommand(loginCmd, logoutCmd)
}

func runLogin(cmd *cobra.Command, args []string) error {
	userID := strings.TrimSpace(args[0])
	if userID == "" {
		return fmt.Errorf("user id is required")
	}
	store, err := openSessionStore()
	if err != nil {
		return err
	}
	err = store.Update(func(st *state.State) error {
		st.Session = &state.Session{UserID: userID, SignedInAt: time.Now().UTC()}
		return nil
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "signed in as %s\n", userID)
	return nil
}

func runLogout(cmd *cobra.Command, _ []string) error {
	env, err := openCommandEnv()
	if err != nil {
		return err
	}
	defer env.Close()

	beacon := env.newBeacon()
	clock := clockwork.NewRealClock()
	coordinator, err := lifecycle.New(lifecycle.Options{
		Timers:       env.manager,
		Beacon:       beacon,
		Guard:        lifecycle.NewFlushGuard(clock),
		Clock:        clock,
		UserID:       env.userID,
		GraceDelay:   env.cfg.Lifecycle.GraceDelay,
		FlushTimeout: env.cfg.Lifecycle.FlushTimeout,
		Logger:       env.logger,
	})
	if err != nil {
		return err
	}
	defer func() { _ = beacon.Drain(context.Background()) }()

	err = coordinator.Logout(cmd.Context(), func(context.Context) error {
		return env.store.Update(func(st *state.State) error {
			st.Session = nil
			return nil
		})
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "signed out %s\n", env.userID)
	return nil
}
