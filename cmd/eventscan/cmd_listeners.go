package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/star/starlisten/internal/listeners"
)

func newListenersCmd(stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "listeners",
		Short: "List the accepted listener specs",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			tw := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "SPEC\tSTATION\tDESCRIPTION") //nolint:errcheck // best-effort stdout
			for _, s := range listeners.Specs() {
				station := ""
				if s.NeedsStation {
					station = "yes"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\n", s.Spec, station, s.Description) //nolint:errcheck // best-effort stdout
			}
			return tw.Flush()
		},
	}
}
