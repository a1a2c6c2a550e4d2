package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/amonks/timekeep/internal/markdown"
	"github.com/amonks/timekeep/internal/ui"
	"github.com/amonks/timekeep/tracking"
)

const descriptionWidth = 80

var activeCmd = &cobra.Command{
	Use:   "active",
	Short: "List active timers",
	Args:  cobra.NoArgs,
	RunE:  runActive,
}

var (
	activeJSON bool
	activeLong bool
	activeType string
)

func init() {
	rootCmd.AddCommand(activeCmd)

	activeCmd.Flags().BoolVar(&activeJSON, "json", false, "Output as JSON")
	activeCmd.Flags().BoolVar(&activeLong, "long", false, "Show full descriptions")
	activeCmd.Flags().StringVar(&activeType, "type", "", "Only list timers for this subject type (case or todo)")
}

func runActive(cmd *cobra.Command, _ []string) error {
	env, err := openCommandEnv()
	if err != nil {
		return err
	}
	defer env.Close()

	var only tracking.SubjectType
	if activeType != "" {
		only, err = tracking.ParseSubjectType(activeType)
		if err != nil {
			return err
		}
	}

	roster, err := env.manager.ReloadActive(cmd.Context())
	if err != nil {
		return err
	}
	items := filterBySubjectType(roster.Items(), only)
	if activeJSON {
		return writeJSON(cmd.OutOrStdout(), items)
	}

	out := cmd.OutOrStdout()
	if len(items) == 0 {
		fmt.Fprintln(out, "no active timers")
		return nil
	}
	if activeLong {
		printActiveLong(out, items, time.Now())
		return nil
	}
	fmt.Fprint(out, formatActiveTable(items, time.Now()))
	return nil
}

func filterBySubjectType(items []tracking.ActiveTimer, only tracking.SubjectType) []tracking.ActiveTimer {
	if only == "" {
		return items
	}
	filtered := make([]tracking.ActiveTimer, 0, len(items))
	for _, item := range items {
		if item.SubjectType == only {
			filtered = append(filtered, item)
		}
	}
	return filtered
}

func formatActiveTable(items []tracking.ActiveTimer, now time.Time) string {
	ids := make([]string, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ID)
	}
	prefixes := ui.UniqueIDPrefixLengths(ids)

	builder := ui.NewTableBuilder([]string{"ID", "TYPE", "SUBJECT", "STARTED", "DESCRIPTION"}, len(items))
	for _, item := range items {
		builder.AddRow([]string{
			ui.HighlightID(item.ID, ui.PrefixLength(prefixes, item.ID)),
			string(item.SubjectType),
			item.SubjectID,
			ui.FormatTimeAgo(item.StartedAt, now),
			ui.TruncateTableCell(item.Description),
		})
	}
	return builder.String()
}

func printActiveLong(out io.Writer, items []tracking.ActiveTimer, now time.Time) {
	for i, item := range items {
		if i > 0 {
			fmt.Fprintln(out)
		}
		fmt.Fprintf(out, "%s  %s %s  started %s\n", item.ID, item.SubjectType, item.SubjectID, ui.FormatTimeAgo(item.StartedAt, now))
		if strings.TrimSpace(item.Description) == "" {
			continue
		}
		if rendered := markdown.SafeRender(descriptionWidth, 4, []byte(item.Description)); len(rendered) > 0 {
			fmt.Fprintln(out, string(rendered))
		}
	}
}
