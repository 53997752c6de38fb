package processor

import "math"

// missingFraction 行内缺失值占比，没有日期列时为0
func missingFraction(row []float64) float64 {
	if len(row) == 0 {
		return 0
	}
	missing := 0
	for _, v := range row {
		if math.IsNaN(v) {
			missing++
		}
	}
	return float64(missing) / float64(len(row))
}

// interpolateRow 按列位置等间距线性插值，只填补两侧都有观测值的空缺
func interpolateRow(row []float64) {
	prev := -1
	for i, v := range row {
		if math.IsNaN(v) {
			continue
		}
		if prev >= 0 && i-prev > 1 {
			step := (v - row[prev]) / float64(i-prev)
			for j := prev + 1; j < i; j++ {
				row[j] = row[prev] + step*float64(j-prev)
			}
		}
		prev = i
	}
}

// forwardFill 用前一个观测值填补空缺
func forwardFill(row []float64) {
	last := math.NaN()
	for i, v := range row {
		if math.IsNaN(v) {
			row[i] = last
			continue
		}
		last = v
	}
}

// backwardFill 用后一个观测值填补空缺
func backwardFill(row []float64) {
	next := math.NaN()
	for i := len(row) - 1; i >= 0; i-- {
		if math.IsNaN(row[i]) {
			row[i] = next
			continue
		}
		next = row[i]
	}
}
