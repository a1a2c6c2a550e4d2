package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"

	"github.com/amonks/timekeep/tracking"
)

func TestEntryAliasesSetCanonicalFlags(t *testing.T) {
	var description string
	var hours, minutes int
	cmd := &cobra.Command{Use: "record"}
	addEntryFlagAliases(cmd)
	cmd.Flags().StringVarP(&description, "description", "d", "", "Description")
	cmd.Flags().IntVar(&hours, "hours", 0, "Hours")
	cmd.Flags().IntVar(&minutes, "minutes", 0, "Minutes")

	if err := cmd.ParseFlags([]string{"--desc", "standup", "--hrs", "2", "--mins", "15"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	if description != "standup" || hours != 2 || minutes != 15 {
		t.Fatalf("got description=%q hours=%d minutes=%d", description, hours, minutes)
	}
	if !cmd.Flags().Changed("hours") {
		t.Fatal("expected --hrs to mark --hours as changed")
	}

	usage := cmd.Flags().FlagUsages()
	for _, alias := range []string{"--desc ", "--hrs", "--mins"} {
		if strings.Contains(usage, alias) {
			t.Fatalf("did not expect %q in usage, got %q", alias, usage)
		}
	}
}

func TestStartAndAddAcceptDescAlias(t *testing.T) {
	for _, cmd := range []*cobra.Command{startCmd, addCmd} {
		if flag := cmd.Flags().Lookup("desc"); flag == nil || flag.Name != "description" {
			t.Fatalf("%s: expected --desc to resolve to --description", cmd.Name())
		}
	}
	if flag := addCmd.Flags().Lookup("mins"); flag == nil || flag.Name != "minutes" {
		t.Fatal("add: expected --mins to resolve to --minutes")
	}
}

func TestWriteJSONIndentsActiveTimers(t *testing.T) {
	var out bytes.Buffer
	items := []tracking.ActiveTimer{{
		ID:          "E1",
		SubjectType: tracking.SubjectTodo,
		SubjectID:   "T1",
		StartedAt:   time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC),
	}}
	if err := writeJSON(&out, items); err != nil {
		t.Fatalf("write json: %v", err)
	}
	want := `[
  {
    "id": "E1",
    "subject_type": "todo",
    "subject_id": "T1",
    "started_at": "2026-03-14T12:00:00Z"
  }
]
`
	if out.String() != want {
		t.Fatalf("expected %q, got %q", want, out.String())
	}
}
