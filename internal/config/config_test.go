package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/star/starlisten/internal/ephem"
	"github.com/star/starlisten/internal/listeners"
	"github.com/star/starlisten/internal/orbit"
	"github.com/star/starlisten/internal/propagation"
	"github.com/star/starlisten/internal/scan"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const full = `
[scan]
start = 2025-02-14T12:00:00Z
stop  = 2025-02-14T18:00:00Z
step  = "60s"

[tolerance]
time = "10us"
max_iter = 80

[station]
name = "denver"
lat = 39.7392
lon = -104.9903
alt_m = 1609
mask_deg = 5

[[listener]]
spec = "station"

[[listener]]
spec = "node"
direction = "rising"

[[listener]]
spec = "anomaly:true:90"
`

func TestParseFull(t *testing.T) {
	sc, err := Parse([]byte(full))
	require.NoError(t, err)

	assert.Equal(t, ModeRange, sc.Scan.Mode)
	assert.Equal(t, SourceSGP4, sc.Scan.Source)
	assert.Equal(t, time.Minute, sc.Scan.Step.Duration)
	assert.True(t, sc.Scan.Start.Equal(time.Date(2025, 2, 14, 12, 0, 0, 0, time.UTC)))
	assert.Equal(t, 10*time.Microsecond, sc.Tolerance.Time.Duration)
	assert.Equal(t, DefaultMaxSteps, sc.Scan.MaxSteps)
	assert.Equal(t, ephem.DefaultOrder, sc.Ephemeris.Order)
	require.NotNil(t, sc.Station)
	assert.Equal(t, "denver", sc.Station.Name)

	ls, err := sc.BuildListeners()
	require.NoError(t, err)
	require.Len(t, ls, 4, "station expands to AOS/LOS and MAX")

	names := make([]string, len(ls))
	for i, l := range ls {
		names[i] = scan.ListenerName(l)
	}
	assert.Equal(t, []string{"station", "station-max", "node", "anomaly"}, names)
	assert.Equal(t, orbit.Rising, ls[2].Direction())
	assert.Equal(t, orbit.Rising, ls[3].Direction(), "anomaly defaults to rising")

	assert.Len(t, sc.ScanOptions(), 1)
}

func TestParseDatesMode(t *testing.T) {
	sc, err := Parse([]byte(`
[scan]
dates = [2025-02-14T12:00:00Z, 2025-02-14T12:01:00Z, 2025-02-14T12:02:00Z]

[[listener]]
spec = "node"
`))
	require.NoError(t, err)
	assert.Equal(t, ModeDates, sc.Scan.Mode)
	assert.Len(t, sc.Scan.Dates, 3)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		toml string
	}{
		{"no listeners", `
[scan]
start = 2025-02-14T12:00:00Z
stop  = 2025-02-14T13:00:00Z
step  = "60s"
`},
		{"stop before start", `
[scan]
start = 2025-02-14T13:00:00Z
stop  = 2025-02-14T12:00:00Z
step  = "60s"
[[listener]]
spec = "node"
`},
		{"missing step", `
[scan]
start = 2025-02-14T12:00:00Z
stop  = 2025-02-14T13:00:00Z
[[listener]]
spec = "node"
`},
		{"too many steps", `
[scan]
start = 2025-02-14T12:00:00Z
stop  = 2025-02-14T13:00:00Z
step  = "1s"
max_steps = 100
[[listener]]
spec = "node"
`},
		{"native on sgp4", `
[scan]
start = 2025-02-14T12:00:00Z
stop  = 2025-02-14T13:00:00Z
step  = "60s"
mode  = "native"
[[listener]]
spec = "node"
`},
		{"station listener without station", `
[scan]
start = 2025-02-14T12:00:00Z
stop  = 2025-02-14T13:00:00Z
step  = "60s"
[[listener]]
spec = "radial-sight"
`},
		{"bad direction", `
[scan]
start = 2025-02-14T12:00:00Z
stop  = 2025-02-14T13:00:00Z
step  = "60s"
[[listener]]
spec = "node"
direction = "up"
`},
		{"unknown key", `
[scan]
start = 2025-02-14T12:00:00Z
stop  = 2025-02-14T13:00:00Z
step  = "60s"
stpe  = "60s"
[[listener]]
spec = "node"
`},
		{"bad method", `
[scan]
start = 2025-02-14T12:00:00Z
stop  = 2025-02-14T13:00:00Z
step  = "60s"
source = "ephem"
[ephemeris]
method = "spline"
[[listener]]
spec = "node"
`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.toml))
			assert.ErrorIs(t, err, ErrInvalid)
		})
	}
}

func TestParseSyntaxError(t *testing.T) {
	_, err := Parse([]byte("[scan\nstart = "))
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrInvalid))
}

func TestBuildListenersBadStation(t *testing.T) {
	sc, err := Parse([]byte(`
[scan]
start = 2025-02-14T12:00:00Z
stop  = 2025-02-14T13:00:00Z
step  = "60s"
[station]
lat = 95
[[listener]]
spec = "station"
`))
	require.NoError(t, err)
	_, err = sc.BuildListeners()
	assert.ErrorIs(t, err, listeners.ErrInvalidConfig)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scenario.toml")
	require.NoError(t, os.WriteFile(path, []byte(full), 0o644))

	sc, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, sc.Listeners, 3)

	_, err = Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

func TestPlan(t *testing.T) {
	start := time.Date(2025, 2, 14, 12, 0, 0, 0, time.UTC)
	k, err := propagation.NewKepler(start, orbit.Elements{SemiMajorAxis: 7000, Inclination: 0.5})
	require.NoError(t, err)

	t.Run("sgp4 range scans the trajectory itself", func(t *testing.T) {
		sc, err := Parse([]byte(full))
		require.NoError(t, err)
		traj, d, err := sc.Plan(context.Background(), k)
		require.NoError(t, err)
		assert.Same(t, k, traj)
		assert.Contains(t, d.String(), "range")
	})

	t.Run("ephem native", func(t *testing.T) {
		sc, err := Parse([]byte(`
[scan]
start = 2025-02-14T12:00:00Z
stop  = 2025-02-14T14:00:00Z
step  = "60s"
mode = "native"
source = "ephem"
[ephemeris]
method = "linear"
[[listener]]
spec = "node"
`))
		require.NoError(t, err)

		traj, d, err := sc.Plan(context.Background(), k)
		require.NoError(t, err)
		eph, ok := traj.(*ephem.Ephem)
		require.True(t, ok, "got %T", traj)
		assert.Equal(t, ephem.Linear, eph.Method())
		assert.Equal(t, 121, eph.Len())

		ls, err := sc.BuildListeners()
		require.NoError(t, err)
		events, err := scan.Events(traj, ls, d)
		require.NoError(t, err)
		assert.NotEmpty(t, events)
	})

	t.Run("ephem native with stop off the step grid", func(t *testing.T) {
		sc, err := Parse([]byte(`
[scan]
start = 2025-02-14T12:00:00Z
stop  = 2025-02-14T12:10:30Z
step  = "60s"
mode = "native"
source = "ephem"
[[listener]]
spec = "node"
`))
		require.NoError(t, err)

		traj, d, err := sc.Plan(context.Background(), k)
		require.NoError(t, err)
		assert.Contains(t, d.String(), "12:10:00Z")

		ls, err := sc.BuildListeners()
		require.NoError(t, err)
		_, err = scan.Events(traj, ls, d)
		assert.NoError(t, err)
	})
}
