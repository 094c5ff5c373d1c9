package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/star/starlisten/internal/passes"
	"github.com/star/starlisten/internal/tle"
)

func newPassesCmd(stdout, stderr io.Writer) *cobra.Command {
	var (
		tleFile   string
		norads    []int
		start     string
		lat, lon  float64
		alt, mask float64
		hours     float64
		maxPasses int
	)
	cmd := &cobra.Command{
		Use:   "passes",
		Short: "Predict station passes (AOS, MAX, LOS)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := newLogger(stderr)
			entries, err := tle.ParseFile(tleFile, logger)
			if err != nil {
				return err
			}
			if len(norads) > 0 {
				ds := tle.NewDataset(tleFile, time.Now(), entries)
				entries = entries[:0:0]
				for _, id := range norads {
					e, ok := ds.Find(id)
					if !ok {
						return fmt.Errorf("NORAD %d not in %s", id, tleFile)
					}
					entries = append(entries, e)
				}
			}

			from := time.Now().UTC().Truncate(time.Second)
			if start != "" {
				if from, err = time.Parse(time.RFC3339, start); err != nil {
					return fmt.Errorf("--start: %w", err)
				}
			}

			results, err := passes.Predict(cmd.Context(), passes.Request{
				Lat:          lat,
				Lon:          lon,
				AltM:         alt,
				Entries:      entries,
				Start:        from,
				HorizonHours: hours,
				MinElevation: mask,
				MaxPasses:    maxPasses,
			})
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "NORAD\tAOS\tMAX\tLOS\tMAX EL\tAZ AOS\tAZ LOS\tDURATION") //nolint:errcheck // best-effort stdout
			for _, sp := range results {
				if sp.Error != "" {
					fmt.Fprintf(stderr, "NORAD %d: %s\n", sp.NORADID, sp.Error) //nolint:errcheck // best-effort stderr
					continue
				}
				for _, p := range sp.Passes {
					fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%.1f\t%.0f\t%.0f\t%s\n", //nolint:errcheck // best-effort stdout
						sp.NORADID,
						p.StartTime.Format(time.RFC3339),
						p.MaxElevationTime.Format("15:04:05"),
						p.EndTime.Format("15:04:05"),
						p.MaxElevation,
						p.StartAzimuth,
						p.EndAzimuth,
						time.Duration(p.DurationSeconds*float64(time.Second)).Round(time.Second),
					)
				}
			}
			return tw.Flush()
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&tleFile, "tle", "", "TLE file")
	fl.IntSliceVar(&norads, "norad", nil, "NORAD catalog numbers (default: every satellite in --tle)")
	fl.StringVar(&start, "start", "", "window start, RFC 3339 (default: now)")
	fl.Float64Var(&hours, "hours", 24, "window length in hours")
	fl.Float64Var(&lat, "lat", 0, "station geodetic latitude, degrees")
	fl.Float64Var(&lon, "lon", 0, "station longitude, degrees east")
	fl.Float64Var(&alt, "alt", 0, "station altitude, meters")
	fl.Float64Var(&mask, "min-elevation", 0, "elevation mask, degrees")
	fl.IntVar(&maxPasses, "max-passes", 0, "stop after this many passes per satellite (0: no limit)")
	_ = cmd.MarkFlagRequired("tle")
	_ = cmd.MarkFlagRequired("lat")
	_ = cmd.MarkFlagRequired("lon")
	return cmd
}
