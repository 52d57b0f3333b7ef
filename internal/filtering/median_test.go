package filtering

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReflectIndex(t *testing.T) {
	// d c b a | a b c d | d c b a
	n := 4
	assert.Equal(t, 0, reflectIndex(-1, n))
	assert.Equal(t, 1, reflectIndex(-2, n))
	assert.Equal(t, 3, reflectIndex(-4, n))
	assert.Equal(t, 3, reflectIndex(4, n))
	assert.Equal(t, 2, reflectIndex(5, n))
	assert.Equal(t, 0, reflectIndex(7, 1))
}

func TestMedianFilter_RemovesSpike(t *testing.T) {
	field := [][]float64{{1}, {1}, {9}, {1}, {1}}
	out := MedianFilter(field, Window{Height: 3, Time: 1})
	for h := range out {
		assert.InDelta(t, 1, out[h][0], 0, "height %d", h)
	}
}

func TestMedianFilter_EvenWindowTakesUpperMedian(t *testing.T) {
	// window offsets are -1..0, so each output sees itself and the bin below
	field := [][]float64{{1}, {2}, {3}}
	out := MedianFilter(field, Window{Height: 2, Time: 1})
	// h=0: {a (mirror), a} -> 1; h=1: {1,2} -> 2; h=2: {2,3} -> 3
	assert.Equal(t, [][]float64{{1}, {2}, {3}}, out)
}

func TestMedianFilter_TimeWindow(t *testing.T) {
	field := [][]float64{{0, 5, 0, 0}}
	out := MedianFilter(field, Window{Height: 1, Time: 3})
	assert.Equal(t, []float64{0, 0, 0, 0}, out[0])
}

func TestMedianMasked_PreservesNullMask(t *testing.T) {
	nan := math.NaN()
	field := [][]float64{{1, nan}, {nan, 2}, {3, 3}, {nan, nan}}
	out := medianMasked(field, 0, Window{Height: 3, Time: 1})
	for h := range field {
		for tt := range field[h] {
			assert.Equal(t, math.IsNaN(field[h][tt]), math.IsNaN(out[h][tt]), "cell %d,%d", h, tt)
		}
	}
}
