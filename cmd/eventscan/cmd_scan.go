package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/star/starlisten/internal/config"
	"github.com/star/starlisten/internal/eventlog"
	"github.com/star/starlisten/internal/orbit"
	"github.com/star/starlisten/internal/propagation"
	"github.com/star/starlisten/internal/scan"
	"github.com/star/starlisten/internal/tle"
)

// directionValue is a --direction flag checked at parse time.
type directionValue struct {
	raw string
}

var _ pflag.Value = (*directionValue)(nil)

func (d *directionValue) String() string { return d.raw }
func (d *directionValue) Type() string   { return "direction" }

func (d *directionValue) Set(s string) error {
	if _, err := orbit.ParseDirection(s); err != nil {
		return err
	}
	d.raw = s
	return nil
}

type scanFlags struct {
	tleFile    string
	configFile string
	db         string
	format     string
	norad      int

	start     string
	stop      string
	step      time.Duration
	source    string
	specs     string
	direction directionValue
	lat, lon  float64
	alt, mask float64
}

func newScanCmd(stdout, stderr io.Writer) *cobra.Command {
	var f scanFlags
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan one satellite for events",
		Long: `Scan one satellite of a TLE file for events.

The scan is described either by a TOML scenario (--config) or by flags.
Events are printed as they are found; with --db they are also recorded in
an SQLite event log under a fresh run ID.`,
		Example: `  eventscan scan --tle stations.txt --norad 25544 --config pass.toml
  eventscan scan --tle stations.txt --norad 25544 --start 2025-02-14T12:00:00Z \
      --stop 2025-02-15T12:00:00Z --listeners station,light --lat 39.74 --lon -104.99`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			return runScan(ctx, cmd.Flags(), f, stdout, stderr)
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&f.tleFile, "tle", "", "TLE file (two or three line format)")
	fl.IntVar(&f.norad, "norad", 0, "NORAD catalog number (default: the only satellite in --tle)")
	fl.StringVar(&f.configFile, "config", "", "TOML scenario file; replaces the scan flags below")
	fl.StringVar(&f.db, "db", "", "record events in this SQLite event log")
	fl.StringVar(&f.format, "format", "text", "output format: text or json")
	fl.StringVar(&f.start, "start", "", "scan start, RFC 3339 (default: the TLE epoch)")
	fl.StringVar(&f.stop, "stop", "", "scan stop, RFC 3339 (default: start + 24h)")
	fl.DurationVar(&f.step, "step", time.Minute, "sampling step")
	fl.StringVar(&f.source, "source", config.SourceSGP4, "trajectory source: sgp4, or ephem to scan a sampled table natively")
	fl.StringVar(&f.specs, "listeners", "node", "comma-separated listener specs (see eventscan listeners)")
	fl.Var(&f.direction, "direction", "keep only rising or falling crossings")
	fl.Float64Var(&f.lat, "lat", 0, "station geodetic latitude, degrees")
	fl.Float64Var(&f.lon, "lon", 0, "station longitude, degrees east")
	fl.Float64Var(&f.alt, "alt", 0, "station altitude, meters")
	fl.Float64Var(&f.mask, "mask", 0, "station elevation mask, degrees")
	_ = cmd.MarkFlagRequired("tle")
	return cmd
}

func runScan(ctx context.Context, fs *pflag.FlagSet, f scanFlags, stdout, stderr io.Writer) error {
	if f.format != "text" && f.format != "json" {
		return fmt.Errorf("unknown --format %q", f.format)
	}
	logger := newLogger(stderr)

	entry, err := loadEntry(f.tleFile, f.norad, logger)
	if err != nil {
		return err
	}

	var sc *config.Scenario
	if f.configFile != "" {
		sc, err = config.Load(f.configFile)
	} else {
		sc, err = scenarioFromFlags(fs, f, entry)
	}
	if err != nil {
		return err
	}

	prop, err := propagation.NewSGP4Propagator(entry.Line1, entry.Line2, entry.NORADID)
	if err != nil {
		return err
	}
	ls, err := sc.BuildListeners()
	if err != nil {
		return err
	}
	traj, driver, err := sc.Plan(ctx, prop)
	if err != nil {
		return err
	}

	runID := eventlog.NewRunID()
	logger.Debug("scan starting", "run_id", runID, "norad_id", entry.NORADID, "driver", driver.String(), "listeners", len(ls))

	enc := json.NewEncoder(stdout)
	var events []eventlog.Event
	it := scan.New(traj, ls, driver, append(sc.ScanOptions(), scan.WithContext(ctx), scan.WithLogger(logger))...)
	for it.Next() {
		s := it.State()
		if s.Event == nil {
			continue
		}
		ev := eventlog.FromState(runID, entry.NORADID, s)
		events = append(events, ev)
		if f.format == "json" {
			if err := enc.Encode(ev); err != nil {
				return err
			}
			continue
		}
		fmt.Fprintf(stdout, "%s  %-14s %s\n", ev.Date.Format("2006-01-02T15:04:05.000Z"), ev.Listener, ev.Info) //nolint:errcheck // best-effort stdout
	}
	if err := it.Err(); err != nil {
		return fmt.Errorf("scan %s: %w", driver, err)
	}

	if f.db != "" {
		if err := recordEvents(ctx, f.db, events); err != nil {
			return err
		}
	}
	fmt.Fprintf(stderr, "run %s: %d events for NORAD %d (%s)\n", runID, len(events), entry.NORADID, driver) //nolint:errcheck // best-effort stderr
	return nil
}

// loadEntry returns the TLE of noradID in path. noradID 0 selects the only
// entry of a single-satellite file.
func loadEntry(path string, noradID int, logger *slog.Logger) (tle.TLEEntry, error) {
	entries, err := tle.ParseFile(path, logger)
	if err != nil {
		return tle.TLEEntry{}, err
	}
	if len(entries) == 0 {
		return tle.TLEEntry{}, fmt.Errorf("%s: no valid TLE entries", path)
	}
	if noradID == 0 {
		if len(entries) > 1 {
			return tle.TLEEntry{}, fmt.Errorf("%s holds %d satellites; pick one with --norad", path, len(entries))
		}
		return entries[0], nil
	}
	ds := tle.NewDataset(path, time.Now(), entries)
	entry, ok := ds.Find(noradID)
	if !ok {
		return tle.TLEEntry{}, fmt.Errorf("NORAD %d not in %s", noradID, path)
	}
	return entry, nil
}

func scenarioFromFlags(fs *pflag.FlagSet, f scanFlags, entry tle.TLEEntry) (*config.Scenario, error) {
	start := entry.Epoch.UTC().Truncate(time.Second)
	if f.start != "" {
		t, err := time.Parse(time.RFC3339, f.start)
		if err != nil {
			return nil, fmt.Errorf("--start: %w", err)
		}
		start = t
	}
	stop := start.Add(24 * time.Hour)
	if f.stop != "" {
		t, err := time.Parse(time.RFC3339, f.stop)
		if err != nil {
			return nil, fmt.Errorf("--stop: %w", err)
		}
		stop = t
	}

	sc := &config.Scenario{
		Scan: config.Scan{
			Start:  start,
			Stop:   stop,
			Step:   config.Duration{Duration: f.step},
			Mode:   config.ModeRange,
			Source: f.source,
		},
	}
	if f.source == config.SourceEphem {
		sc.Scan.Mode = config.ModeNative
	}
	if fs.Changed("lat") || fs.Changed("lon") {
		sc.Station = &config.Station{Name: "station", Lat: f.lat, Lon: f.lon, AltM: f.alt, MaskDeg: f.mask}
	}
	for _, spec := range strings.Split(f.specs, ",") {
		if spec = strings.TrimSpace(spec); spec != "" {
			sc.Listeners = append(sc.Listeners, config.Listener{Spec: spec, Direction: f.direction.raw})
		}
	}
	if err := sc.Finalize(); err != nil {
		return nil, err
	}
	return sc, nil
}

func recordEvents(ctx context.Context, path string, events []eventlog.Event) error {
	el, err := eventlog.Open(path)
	if err != nil {
		return err
	}
	defer el.Close()
	if len(events) == 0 {
		return nil
	}
	return el.Record(ctx, events)
}
