package growcut

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInspectorProtocol(t *testing.T) {
	in := NewInspector(Inspection{Interval: 5, BelowThresholdCycles: 3, Threshold: 1e-4})
	assert.Equal(t, BatchInspecting, in.State())

	for i := 0; i < 5; i++ {
		assert.False(t, in.Due(i), "iteration %d", i)
	}
	require.True(t, in.Due(5))
	assert.False(t, in.Observe(5, 0.5))
	assert.Equal(t, BatchInspecting, in.State())
	assert.Equal(t, 5, in.Interval())

	assert.False(t, in.Due(9))
	require.True(t, in.Due(10))
	assert.False(t, in.Observe(10, 1e-5))
	assert.Equal(t, FineInspecting, in.State())
	assert.Equal(t, 1, in.Interval())
	assert.Equal(t, 1, in.Streak())

	require.True(t, in.Due(11))
	assert.False(t, in.Observe(11, 5e-6))
	assert.Equal(t, 2, in.Streak())

	require.True(t, in.Due(12))
	assert.True(t, in.Observe(12, 0))
}

func TestInspectorResetsOnActivity(t *testing.T) {
	in := NewInspector(Inspection{Interval: 4, BelowThresholdCycles: 3, Threshold: 0.01})

	assert.False(t, in.Observe(4, 0.001))
	assert.False(t, in.Observe(5, 0.001))
	assert.Equal(t, 2, in.Streak())

	assert.False(t, in.Observe(6, 0.2))
	assert.Equal(t, BatchInspecting, in.State())
	assert.Equal(t, 0, in.Streak())
	assert.Equal(t, 4, in.Interval())
	assert.False(t, in.Due(9))
	assert.True(t, in.Due(10))
}

func TestInspectorStreakMonotonicOnDecreasingRatios(t *testing.T) {
	in := NewInspector(Inspection{Interval: 2, BelowThresholdCycles: 50, Threshold: 0.05})

	ratio := 0.4
	prev := 0
	started := false
	for i := 1; i < 200; i++ {
		if !in.Due(i) {
			continue
		}
		stop := in.Observe(i, ratio)
		if started {
			require.GreaterOrEqual(t, in.Streak(), prev, "streak reset at iteration %d", i)
		}
		if in.Streak() > 0 {
			started = true
		}
		prev = in.Streak()
		if stop {
			break
		}
		ratio *= 0.7
	}
	assert.Equal(t, 50, in.Streak())
}

func TestInspectorClampsConfiguration(t *testing.T) {
	in := NewInspector(Inspection{})
	assert.Equal(t, 1, in.Interval())
	assert.True(t, in.Due(1))
	assert.True(t, in.Observe(1, -1))
}

func TestInspectionStateString(t *testing.T) {
	assert.Equal(t, "batch", BatchInspecting.String())
	assert.Equal(t, "fine", FineInspecting.String())
	assert.Equal(t, "InspectionState(7)", InspectionState(7).String())
}
