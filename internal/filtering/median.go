package filtering

import (
	"math"
	"slices"
)

// MedianFilter applies a 2-D median filter to a [height][time] grid. Borders
// are mirrored (d c b a | a b c d | d c b a). For even windows the upper of
// the two middle values is taken. The input must not contain NaN.
func MedianFilter(field [][]float64, win Window) [][]float64 {
	nh := len(field)
	if nh == 0 {
		return nil
	}
	nt := len(field[0])
	sh, st := max(win.Height, 1), max(win.Time, 1)
	oh, ot := sh/2, st/2

	out := make([][]float64, nh)
	buf := make([]float64, sh*st)
	for h := 0; h < nh; h++ {
		out[h] = make([]float64, nt)
		for t := 0; t < nt; t++ {
			k := 0
			for dh := -oh; dh < sh-oh; dh++ {
				row := field[reflectIndex(h+dh, nh)]
				for dt := -ot; dt < st-ot; dt++ {
					buf[k] = row[reflectIndex(t+dt, nt)]
					k++
				}
			}
			slices.Sort(buf)
			out[h][t] = buf[len(buf)/2]
		}
	}
	return out
}

func reflectIndex(i, n int) int {
	if n == 1 {
		return 0
	}
	for i < 0 || i >= n {
		if i < 0 {
			i = -i - 1
		}
		if i >= n {
			i = 2*n - i - 1
		}
	}
	return i
}

// medianMasked fills NaN with fill, filters, and restores NaN on the
// original null mask so missing cells stay missing.
func medianMasked(field [][]float64, fill float64, win Window) [][]float64 {
	filled := make([][]float64, len(field))
	for h, row := range field {
		filled[h] = make([]float64, len(row))
		for t, v := range row {
			if math.IsNaN(v) {
				v = fill
			}
			filled[h][t] = v
		}
	}
	out := MedianFilter(filled, win)
	for h, row := range out {
		for t, v := range row {
			if math.IsNaN(v) {
				row[t] = fill
			}
			if math.IsNaN(field[h][t]) {
				row[t] = math.NaN()
			}
		}
	}
	return out
}
