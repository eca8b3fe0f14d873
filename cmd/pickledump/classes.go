package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var classesCmd = &cobra.Command{
	Use:   "classes",
	Short: "List the classes decoded to Go values",
	Long: `Classes lists every class with a registered constructor, including the
aliases and exceptions of the configured class map. Instances of any other
class decode to generic records.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := registry()
		if err != nil {
			return err
		}
		for _, cls := range r.Classes() {
			fmt.Fprintln(cmd.OutOrStdout(), cls)
		}
		return nil
	},
}
