package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// entryFlagAliases are accepted spellings for the flags of commands that
// record time. Aliases stay out of --help.
var entryFlagAliases = map[string]string{
	"desc": "description",
	"hrs":  "hours",
	"mins": "minutes",
}

func addEntryFlagAliases(cmds ...*cobra.Command) {
	for _, cmd := range cmds {
		aliasFlags(cmd.Flags(), entryFlagAliases)
	}
}

func aliasFlags(flags *pflag.FlagSet, aliases map[string]string) {
	next := flags.GetNormalizeFunc()
	flags.SetNormalizeFunc(func(f *pflag.FlagSet, name string) pflag.NormalizedName {
		if canonical, ok := aliases[name]; ok {
			name = canonical
		}
		return next(f, name)
	})
}
