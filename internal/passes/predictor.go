package passes

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/star/starlisten/internal/listeners"
	"github.com/star/starlisten/internal/orbit"
	"github.com/star/starlisten/internal/propagation"
	"github.com/star/starlisten/internal/scan"
	"github.com/star/starlisten/internal/tle"
	"github.com/star/starlisten/internal/transform"
)

// GroundTrackPoint is a sub-satellite position at a specific time during a pass.
type GroundTrackPoint struct {
	Time      time.Time `json:"time"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Altitude  float64   `json:"altitude"`
	Elevation float64   `json:"elevation"` // degrees above observer's horizon (0-90)
}

// PassEvent describes a single satellite pass over a station.
type PassEvent struct {
	StartTime        time.Time          `json:"start_time"`
	MaxElevationTime time.Time          `json:"max_elevation_time"`
	EndTime          time.Time          `json:"end_time"`
	DurationSeconds  float64            `json:"duration_seconds"`
	MaxElevation     float64            `json:"max_elevation"`
	AzimuthAtMax     float64            `json:"azimuth_at_max"`
	StartAzimuth     float64            `json:"start_azimuth"`
	EndAzimuth       float64            `json:"end_azimuth"`
	GroundTrack      []GroundTrackPoint `json:"ground_track"`
}

// SatellitePasses holds the predicted passes for one satellite.
type SatellitePasses struct {
	NORADID int         `json:"norad_id"`
	Passes  []PassEvent `json:"passes"`
	Error   string      `json:"error,omitempty"`
}

// Request holds the parameters for a pass prediction request.
type Request struct {
	Lat, Lon, AltM float64
	Entries        []tle.TLEEntry
	Start          time.Time
	HorizonHours   float64
	MinElevation   float64 // degrees, used as the station mask
	MaxPasses      int
}

const (
	scanStep        = 30 * time.Second
	groundTrackStep = 10 * time.Second
	minPassDur      = 10 * time.Second
)

// Predict computes satellite passes for the given request.
// Each satellite is processed in its own goroutine, bounded by a semaphore.
func Predict(ctx context.Context, req Request) ([]SatellitePasses, error) {
	st, err := listeners.NewStation("observer", req.Lat, req.Lon, req.AltM, req.MinElevation)
	if err != nil {
		return nil, err
	}

	results := make([]SatellitePasses, len(req.Entries))
	sem := make(chan struct{}, runtime.NumCPU())
	var wg sync.WaitGroup

	for i, entry := range req.Entries {
		wg.Add(1)
		go func(idx int, e tle.TLEEntry) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				results[idx] = SatellitePasses{
					NORADID: e.NORADID,
					Error:   "cancelled",
				}
				return
			}

			passes, err := predictSatellite(ctx, req, st, e)
			if err != nil {
				results[idx] = SatellitePasses{
					NORADID: e.NORADID,
					Error:   err.Error(),
				}
				return
			}
			results[idx] = SatellitePasses{
				NORADID: e.NORADID,
				Passes:  passes,
			}
		}(i, entry)
	}

	wg.Wait()
	return results, nil
}

// predictSatellite folds the AOS/MAX/LOS events of one satellite into passes.
// A satellite already above the mask at the start opens a pass there; one
// still above at the end closes it at the end of the window.
func predictSatellite(ctx context.Context, req Request, st listeners.Station, entry tle.TLEEntry) ([]PassEvent, error) {
	prop, err := propagation.NewSGP4Propagator(entry.Line1, entry.Line2, entry.NORADID)
	if err != nil {
		return nil, fmt.Errorf("sgp4 init: %w", err)
	}

	end := req.Start.Add(time.Duration(req.HorizonHours * float64(time.Hour)))
	it := scan.New(prop, listeners.StationListeners(st), scan.Range(req.Start, end, scanStep), scan.WithContext(ctx))

	var (
		passes []PassEvent
		open   *PassEvent
		last   orbit.State
		first  = true
	)
	for it.Next() {
		s := it.State()
		last = s
		if first {
			first = false
			if st.Visible(s) {
				open = startPass(st, s)
			}
		}
		if s.Event == nil {
			continue
		}

		switch s.Event.Info {
		case "AOS":
			open = startPass(st, s)
		case "MAX":
			if open != nil {
				look := st.Look(s)
				open.MaxElevation = look.ElevationDeg
				open.MaxElevationTime = s.Date
				open.AzimuthAtMax = look.AzimuthDeg
			}
		case "LOS":
			if open == nil {
				continue
			}
			if p, ok := closePass(prop, st, open, s); ok {
				passes = append(passes, p)
			}
			open = nil
			if req.MaxPasses > 0 && len(passes) >= req.MaxPasses {
				return passes, nil
			}
		}
	}
	if err := it.Err(); err != nil {
		if ctx.Err() != nil {
			return passes, nil
		}
		return passes, err
	}

	if open != nil && !last.Date.IsZero() {
		if p, ok := closePass(prop, st, open, last); ok {
			passes = append(passes, p)
		}
	}
	return passes, nil
}

func startPass(st listeners.Station, s orbit.State) *PassEvent {
	look := st.Look(s)
	return &PassEvent{
		StartTime:        s.Date,
		StartAzimuth:     look.AzimuthDeg,
		MaxElevation:     look.ElevationDeg,
		MaxElevationTime: s.Date,
		AzimuthAtMax:     look.AzimuthDeg,
	}
}

// closePass completes p at s and samples its ground track. Passes shorter
// than minPassDur are dropped.
func closePass(traj orbit.Trajectory, st listeners.Station, p *PassEvent, s orbit.State) (PassEvent, bool) {
	look := st.Look(s)
	p.EndTime = s.Date
	p.EndAzimuth = look.AzimuthDeg
	p.DurationSeconds = p.EndTime.Sub(p.StartTime).Seconds()
	if look.ElevationDeg > p.MaxElevation {
		p.MaxElevation = look.ElevationDeg
		p.MaxElevationTime = s.Date
		p.AzimuthAtMax = look.AzimuthDeg
	}
	if p.EndTime.Sub(p.StartTime) < minPassDur {
		return PassEvent{}, false
	}

	for t := p.StartTime; t.Before(p.EndTime); t = t.Add(groundTrackStep) {
		gs, err := traj.Propagate(t)
		if err != nil {
			continue
		}
		p.GroundTrack = append(p.GroundTrack, trackPoint(st, gs))
	}
	p.GroundTrack = append(p.GroundTrack, trackPoint(st, s))
	return *p, true
}

func trackPoint(st listeners.Station, s orbit.State) GroundTrackPoint {
	ecef, _ := transform.InertialToECEF(s.Position, s.Velocity, s.Date)
	geo := transform.Geodetic(ecef)
	el := st.Look(s).ElevationDeg
	if el < 0 {
		el = 0
	}
	return GroundTrackPoint{
		Time:      s.Date,
		Latitude:  geo.LatDeg,
		Longitude: geo.LonDeg,
		Altitude:  geo.AltKm * 1000,
		Elevation: el,
	}
}
