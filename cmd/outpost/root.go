package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "outpost",
		Short:         "Outpost drives an automation agent for a browser strategy game",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	a, err := newApp()
	if err != nil {
		fatalf("initialize: %v", err)
	}

	root.AddCommand(
		newAccountsCommand(a),
		newLoginCommand(a),
		newWatchCommand(a),
		newVersionCommand(),
	)
	return root
}

func run() int {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "outpost:", err)
		return 1
	}
	return 0
}
