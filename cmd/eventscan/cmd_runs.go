package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/star/starlisten/internal/eventlog"
)

func newRunsCmd(stdout io.Writer) *cobra.Command {
	var db string
	cmd := &cobra.Command{
		Use:   "runs [RUN_ID]",
		Short: "List recorded scan runs, or the events of one run",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			el, err := eventlog.Open(db)
			if err != nil {
				return err
			}
			defer el.Close()

			tw := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
			if len(args) == 1 {
				events, err := el.List(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Fprintln(tw, "DATE\tLISTENER\tINFO") //nolint:errcheck // best-effort stdout
				for _, ev := range events {
					fmt.Fprintf(tw, "%s\t%s\t%s\n", ev.Date.Format("2006-01-02T15:04:05.000Z"), ev.Listener, ev.Info) //nolint:errcheck // best-effort stdout
				}
				return tw.Flush()
			}

			runs, err := el.Runs(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(tw, "RUN\tSATELLITES\tEVENTS\tFIRST\tLAST") //nolint:errcheck // best-effort stdout
			for _, r := range runs {
				fmt.Fprintf(tw, "%s\t%d\t%d\t%s\t%s\n", r.RunID, r.Satellites, r.Events, //nolint:errcheck // best-effort stdout
					r.First.Format(time.RFC3339), r.Last.Format(time.RFC3339))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&db, "db", "", "SQLite event log")
	_ = cmd.MarkFlagRequired("db")
	return cmd
}
