package growcut

import "fmt"

// InspectionState is the phase of the convergence protocol
type InspectionState int

const (
	// BatchInspecting reads the counter once every configured interval.
	BatchInspecting InspectionState = iota
	// FineInspecting reads the counter every iteration and counts the streak
	// of consecutive below-threshold ratios.
	FineInspecting
)

func (s InspectionState) String() string {
	switch s {
	case BatchInspecting:
		return "batch"
	case FineInspecting:
		return "fine"
	default:
		return fmt.Sprintf("InspectionState(%d)", int(s))
	}
}

// Inspector decides when the host reads back an update counter and when the
// run has stabilised. Transitions depend only on the observed ratios.
type Inspector struct {
	cfg           Inspection
	state         InspectionState
	interval      int
	streak        int
	lastInspected int
}

// NewInspector starts in BatchInspecting with the configured interval
func NewInspector(cfg Inspection) *Inspector {
	if cfg.Interval < 1 {
		cfg.Interval = 1
	}
	if cfg.BelowThresholdCycles < 1 {
		cfg.BelowThresholdCycles = 1
	}
	return &Inspector{cfg: cfg, state: BatchInspecting, interval: cfg.Interval}
}

// Due reports whether the counter of this iteration should be read.
// Iteration 0 only seeds strengths and is never inspected.
func (in *Inspector) Due(iteration int) bool {
	return iteration > 0 && iteration-in.lastInspected >= in.interval
}

// Observe records the updated/total ratio of an inspected iteration and
// reports whether the run should stop.
func (in *Inspector) Observe(iteration int, ratio float64) bool {
	in.lastInspected = iteration
	if ratio < in.cfg.Threshold {
		in.state = FineInspecting
		in.interval = 1
		in.streak++
		return in.streak >= in.cfg.BelowThresholdCycles
	}
	in.state = BatchInspecting
	in.interval = in.cfg.Interval
	in.streak = 0
	return false
}

// State returns the current phase
func (in *Inspector) State() InspectionState { return in.state }

// Interval returns the current number of iterations between reads
func (in *Inspector) Interval() int { return in.interval }

// Streak returns the number of consecutive below-threshold reads
func (in *Inspector) Streak() int { return in.streak }
