package propagation

import (
	"context"

	"github.com/star/starlisten/internal/orbit"
)

// PropConfig holds worker pool configuration loaded from environment variables.
type PropConfig struct {
	Workers int // Worker pool size (default: runtime.NumCPU())
}

// ScanFunc runs one single-threaded event scan over a satellite's trajectory
// and returns the event states it found.
type ScanFunc func(ctx context.Context, traj orbit.Trajectory) ([]orbit.State, error)

// ScanResult is the outcome of one satellite's scan in a batch.
type ScanResult struct {
	NORADID int
	Name    string
	Events  []orbit.State
	Err     error
}
