package poolclock

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTdiffSign(t *testing.T) {
	assert.Equal(t, 5.0, Tdiff(10, 15))
	assert.Equal(t, -5.0, Tdiff(15, 10))
}

func TestSaneTdiffClampsToFloor(t *testing.T) {
	assert.Equal(t, 1e-3, SaneTdiff(10, 10))
	assert.Equal(t, 1e-3, SaneTdiff(10, 5)) // clock went backwards
	assert.InDelta(t, 2.0, SaneTdiff(10, 12), 1e-12)
}

func TestUsTvdiffCapsAtSixty(t *testing.T) {
	assert.Equal(t, 60.0, UsTvdiff(0, 1000))
	assert.Equal(t, 0.0, UsTvdiff(10, 5))
	assert.InDelta(t, 30.0, UsTvdiff(0, 30), 1e-12)
}

func TestMsTvdiffCapsAtOneHour(t *testing.T) {
	assert.Equal(t, 3600.0, MsTvdiff(0, 1_000_000))
	assert.Equal(t, 0.0, MsTvdiff(10, 5))
}

func TestDecayTimeNoOpOnNonPositiveSecs(t *testing.T) {
	assert.Equal(t, 1.5, DecayTime(1.5, 10, 0, 300))
	assert.Equal(t, 1.5, DecayTime(1.5, 10, -5, 300))
}

func TestDecayTimeConvergesTowardInputRate(t *testing.T) {
	acc := 0.0
	for i := 0; i < 5000; i++ {
		acc = DecayTime(acc, 2, 1, 300)
	}
	// a steady add=2 every 1s should converge acc toward the input rate of 2/s.
	assert.InDelta(t, 2.0, acc, 0.05)
}

func TestDecayTimeClampsExpOverflow(t *testing.T) {
	// secs/interval far beyond the clamp must not produce Inf/NaN.
	result := DecayTime(1.0, 1.0, 1e9, 1)
	assert.False(t, math.IsNaN(result))
	assert.False(t, math.IsInf(result, 0))
}

func TestDecayTimeFloorsTinyResultsToZero(t *testing.T) {
	result := DecayTime(0, 0, 1, 300)
	assert.Equal(t, 0.0, result)
}
