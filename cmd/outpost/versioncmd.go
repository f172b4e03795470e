package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/outpostctl/outpost/internal/version"
)

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the outpost version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println(version.FullVersion())
			return nil
		},
	}
}
