package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/star/starlisten/internal/config"
	"github.com/star/starlisten/internal/eventlog"
	"github.com/star/starlisten/internal/listeners"
	"github.com/star/starlisten/internal/orbit"
	"github.com/star/starlisten/internal/passes"
	"github.com/star/starlisten/internal/propagation"
	"github.com/star/starlisten/internal/scan"
	"github.com/star/starlisten/internal/stream"
	"github.com/star/starlisten/internal/tle"
)

// batchBudgetFactor scales MaxSteps into the total step budget of a scan
// across the whole dataset.
const batchBudgetFactor = 100

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// errorStatus maps an error to its HTTP status. Errors not recognized here
// come from the scan itself (propagation or root finding).
func errorStatus(err error) int {
	var budget *budgetError
	switch {
	case errors.As(err, &budget),
		errors.Is(err, config.ErrInvalid),
		errors.Is(err, listeners.ErrInvalidConfig):
		return http.StatusBadRequest
	case errors.Is(err, propagation.ErrUnknownSatellite),
		errors.Is(err, eventlog.ErrUnknownRun):
		return http.StatusNotFound
	case errors.Is(err, propagation.ErrNoDataset),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusUnprocessableEntity
	}
}

func writeError(w http.ResponseWriter, err error) {
	body := map[string]any{"error": err.Error()}
	var budget *budgetError
	if errors.As(err, &budget) {
		body["max_steps"] = budget.max
	}
	writeJSON(w, errorStatus(err), body)
}

func listenersHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, listeners.Specs())
}

type tleMetadata struct {
	Source     string    `json:"source"`
	FetchedAt  time.Time `json:"fetched_at"`
	AgeSeconds float64   `json:"age_seconds"`
	Count      int       `json:"count"`
	EpochMin   time.Time `json:"epoch_min"`
	EpochMax   time.Time `json:"epoch_max"`
}

func newTLEMetadata(ds *tle.TLEDataset) tleMetadata {
	return tleMetadata{
		Source:     ds.Source,
		FetchedAt:  ds.FetchedAt.UTC(),
		AgeSeconds: time.Since(ds.FetchedAt).Seconds(),
		Count:      len(ds.Satellites),
		EpochMin:   ds.EpochRange.Min.UTC(),
		EpochMax:   ds.EpochRange.Max.UTC(),
	}
}

func tleMetadataHandler(store *tle.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ds := store.Get()
		if ds == nil {
			writeError(w, propagation.ErrNoDataset)
			return
		}
		writeJSON(w, http.StatusOK, newTLEMetadata(ds))
	}
}

func tleFetchHandler(logger *slog.Logger, deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Fetcher == nil {
			writeJSON(w, http.StatusForbidden, map[string]string{"error": "TLE fetch disabled"})
			return
		}
		ds, err := deps.Store.Refresh(r.Context(), deps.Fetcher, deps.Cache, logger)
		if err != nil {
			logger.Warn("TLE fetch failed", "source", deps.Fetcher.SourceURL(), "error", err)
			writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, newTLEMetadata(ds))
	}
}

// plan resolves the scenario against one satellite's trajectory.
func plan(ctx context.Context, sc *config.Scenario, traj orbit.Trajectory) (orbit.Trajectory, []orbit.Listener, scan.Driver, error) {
	ls, err := sc.BuildListeners()
	if err != nil {
		return nil, nil, nil, err
	}
	planned, driver, err := sc.Plan(ctx, traj)
	if err != nil {
		return nil, nil, nil, err
	}
	return planned, ls, driver, nil
}

func scanOptions(ctx context.Context, logger *slog.Logger, sc *config.Scenario) []scan.Option {
	return append(sc.ScanOptions(), scan.WithContext(ctx), scan.WithLogger(logger))
}

func record(ctx context.Context, logger *slog.Logger, el *eventlog.Log, runID string, events []eventlog.Event) {
	if el == nil || len(events) == 0 {
		return
	}
	if err := el.Record(ctx, events); err != nil {
		logger.Warn("event log write failed", "run_id", runID, "error", err)
	}
}

type eventsResponse struct {
	RunID   string           `json:"run_id"`
	NORADID int              `json:"norad_id"`
	Name    string           `json:"name"`
	Driver  string           `json:"driver"`
	Count   int              `json:"count"`
	Events  []eventlog.Event `json:"events"`
}

func eventsSingleHandler(logger *slog.Logger, deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := parseNORADID(r)
		if err != nil {
			writeError(w, err)
			return
		}
		sc, err := parseScenario(r.URL.Query(), deps.MaxSteps, time.Now())
		if err != nil {
			writeError(w, err)
			return
		}
		traj, entry, err := deps.Catalog.Trajectory(id)
		if err != nil {
			writeError(w, err)
			return
		}

		ctx := r.Context()
		planned, ls, driver, err := plan(ctx, sc, traj)
		if err != nil {
			writeError(w, err)
			return
		}
		states, err := scan.Events(planned, ls, driver, scanOptions(ctx, logger, sc)...)
		if err != nil {
			logger.Warn("event scan failed", "norad_id", id, "driver", driver.String(), "error", err)
			writeError(w, err)
			return
		}

		resp := eventsResponse{
			RunID:   eventlog.NewRunID(),
			NORADID: id,
			Name:    entry.Name,
			Driver:  driver.String(),
			Count:   len(states),
			Events:  make([]eventlog.Event, len(states)),
		}
		for i, s := range states {
			resp.Events[i] = eventlog.FromState(resp.RunID, id, s)
		}
		record(ctx, logger, deps.EventLog, resp.RunID, resp.Events)
		writeJSON(w, http.StatusOK, resp)
	}
}

type satelliteEvents struct {
	NORADID int              `json:"norad_id"`
	Name    string           `json:"name"`
	Events  []eventlog.Event `json:"events"`
	Error   string           `json:"error,omitempty"`
}

type batchResponse struct {
	RunID      string            `json:"run_id"`
	Count      int               `json:"count"`
	Satellites []satelliteEvents `json:"satellites"`
}

// eventsBatchHandler scans the satellites named by the norad parameter, or
// every satellite of the dataset when it is absent, on the worker pool.
func eventsBatchHandler(logger *slog.Logger, deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		ids, err := noradListParam(q, "norad")
		if err != nil {
			writeError(w, err)
			return
		}
		sc, err := parseScenario(q, deps.MaxSteps, time.Now())
		if err != nil {
			writeError(w, err)
			return
		}
		// Surface bad listener specs once rather than per satellite.
		if _, err := sc.BuildListeners(); err != nil {
			writeError(w, err)
			return
		}
		ds := deps.Store.Get()
		if ds == nil {
			writeError(w, propagation.ErrNoDataset)
			return
		}
		steps := int64(sc.Scan.Stop.Sub(sc.Scan.Start)/sc.Scan.Step.Duration) + 1
		budget := int64(deps.MaxSteps) * batchBudgetFactor
		count := len(ds.Satellites)
		if ids != nil {
			count = len(ids)
		}
		if total := steps * int64(count); total > budget {
			writeError(w, &budgetError{steps: total, max: budget})
			return
		}

		scanOne := func(ctx context.Context, traj orbit.Trajectory) ([]orbit.State, error) {
			planned, ls, driver, err := plan(ctx, sc, traj)
			if err != nil {
				return nil, err
			}
			return scan.Events(planned, ls, driver, scanOptions(ctx, logger, sc)...)
		}
		var results []propagation.ScanResult
		if ids != nil {
			results, err = deps.Catalog.ScanIDs(r.Context(), ids, scanOne)
		} else {
			results, err = deps.Catalog.ScanAll(r.Context(), scanOne)
		}
		if err != nil {
			writeError(w, err)
			return
		}

		resp := batchResponse{RunID: eventlog.NewRunID()}
		var all []eventlog.Event
		for _, res := range results {
			se := satelliteEvents{NORADID: res.NORADID, Name: res.Name, Events: []eventlog.Event{}}
			if res.Err != nil {
				se.Error = res.Err.Error()
			}
			for _, s := range res.Events {
				se.Events = append(se.Events, eventlog.FromState(resp.RunID, res.NORADID, s))
			}
			resp.Count += len(se.Events)
			all = append(all, se.Events...)
			resp.Satellites = append(resp.Satellites, se)
		}
		record(r.Context(), logger, deps.EventLog, resp.RunID, all)
		writeJSON(w, http.StatusOK, resp)
	}
}

func passesHandler(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := parseNORADID(r)
		if err != nil {
			writeError(w, err)
			return
		}
		q := r.URL.Query()
		st, err := parseStation(q, "min_elevation")
		if err != nil {
			writeError(w, err)
			return
		}
		if st == nil {
			writeError(w, badParam("lat", errors.New("lat and lon are required")))
			return
		}
		hours, err := floatParam(q, "hours", defaultHours)
		if err != nil {
			writeError(w, err)
			return
		}
		if hours <= 0 || hours > maxHours {
			writeError(w, badParam("hours", errors.New("out of range")))
			return
		}
		maxPasses, err := intParam(q, "max_passes", 0)
		if err != nil {
			writeError(w, err)
			return
		}
		if maxPasses < 0 {
			writeError(w, badParam("max_passes", errors.New("must not be negative")))
			return
		}
		start, err := timeParam(q, "start", time.Now().UTC().Truncate(time.Second))
		if err != nil {
			writeError(w, err)
			return
		}

		_, entry, err := deps.Catalog.Trajectory(id)
		if err != nil {
			writeError(w, err)
			return
		}

		results, err := passes.Predict(r.Context(), passes.Request{
			Lat:          st.Lat,
			Lon:          st.Lon,
			AltM:         st.AltM,
			Entries:      []tle.TLEEntry{entry},
			Start:        start,
			HorizonHours: hours,
			MinElevation: st.MaskDeg,
			MaxPasses:    maxPasses,
		})
		if err != nil {
			writeError(w, err)
			return
		}
		if results[0].Error != "" {
			writeJSON(w, http.StatusUnprocessableEntity, results[0])
			return
		}
		if results[0].Passes == nil {
			results[0].Passes = []passes.PassEvent{}
		}
		writeJSON(w, http.StatusOK, results[0])
	}
}

func streamEventsHandler(logger *slog.Logger, deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := parseNORADID(r)
		if err != nil {
			writeError(w, err)
			return
		}
		sc, err := parseScenario(r.URL.Query(), deps.MaxSteps, time.Now())
		if err != nil {
			writeError(w, err)
			return
		}
		traj, entry, err := deps.Catalog.Trajectory(id)
		if err != nil {
			writeError(w, err)
			return
		}
		planned, ls, driver, err := plan(r.Context(), sc, traj)
		if err != nil {
			writeError(w, err)
			return
		}

		var fetchedAt time.Time
		if ds := deps.Store.Get(); ds != nil {
			fetchedAt = ds.FetchedAt
		}
		deps.Stream.ServeScan(w, r, stream.Scan{
			RunID:      eventlog.NewRunID(),
			NORADID:    id,
			Name:       entry.Name,
			FetchedAt:  fetchedAt,
			Trajectory: planned,
			Listeners:  ls,
			Driver:     driver,
			Options:    sc.ScanOptions(),
		})
	}
}

func runsHandler(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.EventLog == nil {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "event log disabled"})
			return
		}
		runs, err := deps.EventLog.Runs(r.Context())
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		if runs == nil {
			runs = []eventlog.Run{}
		}
		writeJSON(w, http.StatusOK, runs)
	}
}

func runEventsHandler(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.EventLog == nil {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "event log disabled"})
			return
		}
		events, err := deps.EventLog.List(r.Context(), r.PathValue("run_id"))
		if err != nil {
			if errors.Is(err, eventlog.ErrUnknownRun) {
				writeError(w, err)
				return
			}
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, events)
	}
}
