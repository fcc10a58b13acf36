package refclock

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestOffsetFilter_EmptyRequest(t *testing.T) {
	var f OffsetFilter
	offset, jitter, n := f.Request()
	assert.Zero(t, offset)
	assert.Zero(t, jitter)
	assert.Zero(t, n)
}

func TestOffsetFilter_ConstantSamplesYieldThatOffset(t *testing.T) {
	var f OffsetFilter
	for i := 0; i < 20; i++ {
		f.Push(0.25)
	}
	offset, _, n := f.Request()
	assert.Equal(t, 20, n)
	assert.InDelta(t, 0.25, offset, 1e-9)
}

func TestOffsetFilter_OverwritesOldestWhenFull(t *testing.T) {
	var f OffsetFilter
	for i := 0; i < OffsetFilterSlots+10; i++ {
		f.Push(float64(i))
	}
	_, _, n := f.Request()
	assert.Equal(t, OffsetFilterSlots-1, n)
}

func TestShellSortDbl_SortsAscending(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		in := rapid.SliceOfN(rapid.Float64Range(-1000, 1000), 0, 200).Draw(t, "in")
		out := append([]float64(nil), in...)
		shellSortDbl(out)
		for i := 1; i < len(out); i++ {
			assert.LessOrEqual(t, out[i-1], out[i])
		}
		assert.Equal(t, len(in), len(out))
	})
}

func TestOffsetFilter_RejectsOutlier(t *testing.T) {
	var f OffsetFilter
	for i := 0; i < 10; i++ {
		f.Push(1.0)
	}
	f.Push(1000.0) // gross outlier, should be trimmed from the 60% retained

	offset, _, n := f.Request()
	assert.Equal(t, 11, n)
	assert.True(t, math.Abs(offset-1.0) < math.Abs(offset-1000.0))
}
