package transform

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/starford/autods/internal/frame"
)

// Outlier detection methods and handling actions.
const (
	OutlierIQR    = "iqr"
	OutlierZScore = "zscore"

	ActionRemove = "remove"
	ActionCap    = "cap"
	ActionMean   = "mean"
	ActionMedian = "median"
)

const (
	defaultIQRFactor  = 1.5
	defaultZThreshold = 3.0
)

// handleOutliers flags values of one numeric column as outliers and removes,
// caps or replaces them. Nulls are never outliers.
func handleOutliers(f *frame.Frame, p Params) (Result, error) {
	c, err := p.column(f)
	if err != nil {
		return Result{}, err
	}
	if !c.Kind().Numeric() {
		return Result{}, fmt.Errorf("column %q is %s, outliers need a numeric column", c.Name(), c.Kind())
	}
	method, err := p.str("method")
	if err != nil {
		return Result{}, err
	}
	if err := oneOf("method", method, OutlierIQR, OutlierZScore); err != nil {
		return Result{}, err
	}
	action, err := p.str("action")
	if err != nil {
		return Result{}, err
	}
	if err := oneOf("action", action, ActionRemove, ActionCap, ActionMean, ActionMedian); err != nil {
		return Result{}, err
	}

	var mask []bool
	switch method {
	case OutlierIQR:
		k, err := p.num("k", defaultIQRFactor)
		if err != nil {
			return Result{}, err
		}
		mask = iqrMask(c, k)
	case OutlierZScore:
		th, err := p.num("threshold", defaultZThreshold)
		if err != nil {
			return Result{}, err
		}
		mask = zscoreMask(c, th)
	}

	found := 0
	for _, m := range mask {
		if m {
			found++
		}
	}
	out := f
	if found > 0 {
		if action == ActionRemove {
			keep := make([]int, 0, f.NumRows()-found)
			for i, m := range mask {
				if !m {
					keep = append(keep, i)
				}
			}
			out = f.Take(keep)
		} else {
			nc, err := replaceOutliers(c, mask, action)
			if err != nil {
				return Result{}, err
			}
			if out, err = f.Replace(nc); err != nil {
				return Result{}, err
			}
		}
	}
	return Result{
		Frame:       out,
		Description: fmt.Sprintf("Handled %d outliers in '%s' using %s (%s)", found, c.Name(), method, action),
	}, nil
}

func iqrMask(c *frame.Column, k float64) []bool {
	mask := make([]bool, c.Len())
	nums := numbers(c)
	if len(nums) == 0 {
		return mask
	}
	sorted := append([]float64(nil), nums...)
	sort.Float64s(sorted)
	q1, q3 := quantile(sorted, 0.25), quantile(sorted, 0.75)
	lower, upper := q1-k*(q3-q1), q3+k*(q3-q1)
	for i := range mask {
		if x, ok := c.Float(i); ok {
			mask[i] = x < lower || x > upper
		}
	}
	return mask
}

func zscoreMask(c *frame.Column, threshold float64) []bool {
	mask := make([]bool, c.Len())
	nums := numbers(c)
	if len(nums) < 2 {
		return mask
	}
	m := mean(nums)
	var ss float64
	for _, x := range nums {
		ss += (x - m) * (x - m)
	}
	std := math.Sqrt(ss / float64(len(nums)-1))
	if std == 0 {
		return mask
	}
	for i := range mask {
		if x, ok := c.Float(i); ok {
			mask[i] = math.Abs((x-m)/std) > threshold
		}
	}
	return mask
}

// quantile interpolates linearly between the closest ranks of sorted.
func quantile(sorted []float64, q float64) float64 {
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	return sorted[lo] + (sorted[hi]-sorted[lo])*(pos-float64(lo))
}

func replaceOutliers(c *frame.Column, mask []bool, action string) (*frame.Column, error) {
	values := c.Values()
	kind := c.Kind()

	var valid []float64
	minIdx, maxIdx := -1, -1
	for i := range values {
		x, ok := c.Float(i)
		if !ok || mask[i] {
			continue
		}
		valid = append(valid, x)
		if minIdx < 0 || x < floatAt(c, minIdx) {
			minIdx = i
		}
		if maxIdx < 0 || x > floatAt(c, maxIdx) {
			maxIdx = i
		}
	}
	if len(valid) == 0 {
		return nil, errors.New("every value is an outlier")
	}

	switch action {
	case ActionCap:
		lo, hi := floatAt(c, minIdx), floatAt(c, maxIdx)
		for i, m := range mask {
			if !m {
				continue
			}
			if x, _ := c.Float(i); x < lo {
				values[i] = c.Value(minIdx)
			} else if x > hi {
				values[i] = c.Value(maxIdx)
			}
		}
	case ActionMean, ActionMedian:
		fill := mean(valid)
		if action == ActionMedian {
			fill = median(valid)
		}
		// int64 columns are replaced as float64, like fill_missing.
		kind = frame.KindFloat64
		for i, v := range values {
			switch {
			case mask[i]:
				values[i] = fill
			case v != nil:
				values[i], _ = c.Float(i)
			}
		}
	}
	return frame.NewColumn(c.Name(), kind, values)
}

func floatAt(c *frame.Column, i int) float64 {
	x, _ := c.Float(i)
	return x
}
