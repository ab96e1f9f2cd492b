package transform

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/starford/autods/internal/frame"
)

// Fill strategies.
const (
	StrategyMean     = "mean"
	StrategyMedian   = "median"
	StrategyMode     = "mode"
	StrategyConstant = "constant"
)

func fillMissing(f *frame.Frame, p Params) (Result, error) {
	strategy, err := p.str("strategy")
	if err != nil {
		return Result{}, err
	}
	cols, err := p.strs("columns")
	if err != nil {
		return Result{}, err
	}
	if len(cols) == 0 {
		for _, c := range f.Columns() {
			if c.NullCount() > 0 {
				cols = append(cols, c.Name())
			}
		}
	}
	if err := checkColumns(f, cols); err != nil {
		return Result{}, err
	}

	out := f
	filled := 0
	for _, name := range cols {
		c, _ := out.Column(name)
		if c.NullCount() == 0 {
			continue
		}
		nc, err := fillColumn(c, strategy, p["value"])
		if err != nil {
			return Result{}, fmt.Errorf("column %q: %w", name, err)
		}
		filled += c.NullCount() - nc.NullCount()
		if out, err = out.Replace(nc); err != nil {
			return Result{}, err
		}
	}
	return Result{
		Frame:       out,
		Description: fmt.Sprintf("Filled %d missing values in [%s] using %s", filled, strings.Join(cols, ", "), strategy),
	}, nil
}

func fillColumn(c *frame.Column, strategy string, value any) (*frame.Column, error) {
	var fill any
	kind := c.Kind()
	switch strategy {
	case StrategyMean, StrategyMedian:
		if !kind.Numeric() {
			return nil, fmt.Errorf("%s needs a numeric column, got %s", strategy, kind)
		}
		nums := numbers(c)
		if len(nums) == 0 {
			return c, nil
		}
		if strategy == StrategyMean {
			fill = mean(nums)
		} else {
			fill = median(nums)
		}
		// int64 columns are filled as float64.
		kind = frame.KindFloat64
	case StrategyMode:
		m, ok := mode(c)
		if !ok {
			return c, nil
		}
		fill = m
	case StrategyConstant:
		v, err := constant(kind, value)
		if err != nil {
			return nil, err
		}
		fill = v
	default:
		return nil, fmt.Errorf("unknown strategy %q (want mean, median, mode or constant)", strategy)
	}

	values := c.Values()
	for i, v := range values {
		if v == nil {
			values[i] = fill
		} else if kind != c.Kind() {
			x, _ := c.Float(i)
			values[i] = x
		}
	}
	return frame.NewColumn(c.Name(), kind, values)
}

func numbers(c *frame.Column) []float64 {
	out := make([]float64, 0, c.Len()-c.NullCount())
	for i := 0; i < c.Len(); i++ {
		if x, ok := c.Float(i); ok {
			out = append(out, x)
		}
	}
	return out
}

func mean(xs []float64) float64 {
	var s float64
	for _, x := range xs {
		s += x
	}
	return s / float64(len(xs))
}

func median(xs []float64) float64 {
	s := append([]float64(nil), xs...)
	sort.Float64s(s)
	n := len(s)
	if n%2 == 1 {
		return s[n/2]
	}
	return (s[n/2-1] + s[n/2]) / 2
}

// mode returns the most frequent non-null value; ties go to the smallest.
func mode(c *frame.Column) (any, bool) {
	key := func(v any) any {
		if t, ok := v.(time.Time); ok {
			return t.UnixMicro()
		}
		return v
	}
	counts := make(map[any]int)
	var distinct []any
	for _, v := range c.Values() {
		if v == nil {
			continue
		}
		k := key(v)
		if counts[k] == 0 {
			distinct = append(distinct, v)
		}
		counts[k]++
	}
	if len(distinct) == 0 {
		return nil, false
	}
	best := distinct[0]
	for _, v := range distinct[1:] {
		cv, cb := counts[key(v)], counts[key(best)]
		if cv > cb || (cv == cb && less(v, best)) {
			best = v
		}
	}
	return best, true
}

func less(a, b any) bool {
	switch x := a.(type) {
	case int64:
		return x < b.(int64)
	case float64:
		return x < b.(float64)
	case string:
		return x < b.(string)
	case bool:
		return !x && b.(bool)
	case time.Time:
		return x.Before(b.(time.Time))
	}
	return false
}
