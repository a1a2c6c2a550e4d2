package main

import (
	"fmt"

	"github.com/spf13/cobra"

	internalstrings "github.com/amonks/timekeep/internal/strings"
	"github.com/amonks/timekeep/internal/ui"
	"github.com/amonks/timekeep/tracking"
)

var addCmd = &cobra.Command{
	Use:   "add <subject-id>",
	Short: "Record time without a timer",
	Args:  cobra.ExactArgs(1),
	RunE:  runAdd,
}

var deleteCmd = &cobra.Command{
	Use:   "delete <entry-id>",
	Short: "Delete a time entry",
	Args:  cobra.ExactArgs(1),
	RunE:  runDelete,
}

var (
	addCase        bool
	addHours       int
	addMinutes     int
	addDate        string
	addDescription string
	deleteCase     bool
)

func init() {
	rootCmd.AddCommand(addCmd, deleteCmd)
	addEntryFlagAliases(addCmd)

	addCmd.Flags().BoolVar(&addCase, "case", false, "Record against a case instead of a todo")
	addCmd.Flags().IntVar(&addHours, "hours", 0, "Hours worked")
	addCmd.Flags().IntVar(&addMinutes, "minutes", 0, "Minutes worked (0-59)")
	addCmd.Flags().StringVar(&addDate, "date", "", "Day worked, YYYY-MM-DD (default: today)")
	addCmd.Flags().StringVarP(&addDescription, "description", "d", "", "Description")
	deleteCmd.Flags().BoolVar(&deleteCase, "case", false, "The entry belongs to a case")
}

func runAdd(cmd *cobra.Command, args []string) error {
	env, err := openCommandEnv()
	if err != nil {
		return err
	}
	defer env.Close()

	entry := tracking.ManualEntry{
		Subject:     tracking.Subject{Type: subjectType(addCase), ID: args[0]},
		Hours:       addHours,
		Minutes:     addMinutes,
		Date:        addDate,
		Description: internalstrings.NormalizeWhitespace(addDescription),
	}
	if err := env.manager.AddManualTime(cmd.Context(), entry); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "recorded %s against %s %s\n", ui.FormatElapsed(entry.Duration()), entry.Subject.Type, entry.Subject.ID)
	return nil
}

func runDelete(cmd *cobra.Command, args []string) error {
	env, err := openCommandEnv()
	if err != nil {
		return err
	}
	defer env.Close()

	if err := env.manager.DeleteEntry(cmd.Context(), args[0], subjectType(deleteCase)); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
	return nil
}
