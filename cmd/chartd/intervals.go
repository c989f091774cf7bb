package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"stockchart/internal/interval"
)

var intervalsCmd = &cobra.Command{
	Use:   "intervals",
	Short: "List the supported interval codes",
	RunE: func(cmd *cobra.Command, _ []string) error {
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "CODE\tLABEL\tBAR")
		for _, c := range interval.All() {
			kind := "ohlc"
			if c.IsTick() {
				kind = "tick"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\n", c, c.Label(), kind)
		}
		return w.Flush()
	},
}
