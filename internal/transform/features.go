package transform

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/starford/autods/internal/frame"
)

// Scaling and encoding methods.
const (
	ScaleStandard = "standard"
	ScaleMinMax   = "minmax"

	EncodeLabel  = "label"
	EncodeOneHot = "onehot"
)

var kindAliases = map[string]frame.Kind{
	"int":      frame.KindInt64,
	"float":    frame.KindFloat64,
	"str":      frame.KindString,
	"text":     frame.KindString,
	"datetime": frame.KindTimestamp,
	"date":     frame.KindTimestamp,
}

func targetKind(s string) (frame.Kind, error) {
	if k, ok := kindAliases[strings.ToLower(s)]; ok {
		return k, nil
	}
	k, err := frame.ParseKind(strings.ToLower(s))
	if err != nil {
		return 0, fmt.Errorf("unknown type %q (want int64, float64, string, bool or timestamp)", s)
	}
	return k, nil
}

// convertType casts one column to another kind. Values that do not parse
// become null; conversions that make no sense for any value are errors.
func convertType(f *frame.Frame, p Params) (Result, error) {
	c, err := p.column(f)
	if err != nil {
		return Result{}, err
	}
	to, err := p.str("to")
	if err != nil {
		return Result{}, err
	}
	kind, err := targetKind(to)
	if err != nil {
		return Result{}, err
	}
	from := c.Kind()
	if from == frame.KindTimestamp && kind != frame.KindString && kind != frame.KindTimestamp {
		return Result{}, fmt.Errorf("cannot convert timestamp column %q to %s", c.Name(), kind)
	}
	if kind == frame.KindTimestamp && from != frame.KindString && from != frame.KindTimestamp {
		return Result{}, fmt.Errorf("cannot convert %s column %q to timestamp", from, c.Name())
	}

	values := make([]any, c.Len())
	lost := 0
	for i, v := range c.Values() {
		if v == nil {
			continue
		}
		cv, ok := convertCell(v, kind)
		if !ok {
			lost++
			continue
		}
		values[i] = cv
	}
	nc, err := frame.NewColumn(c.Name(), kind, values)
	if err != nil {
		return Result{}, err
	}
	out, err := f.Replace(nc)
	if err != nil {
		return Result{}, err
	}
	desc := fmt.Sprintf("Converted column '%s' from %s to %s", c.Name(), from, kind)
	if lost > 0 {
		desc += fmt.Sprintf(" (%d values could not be converted)", lost)
	}
	return Result{Frame: out, Description: desc}, nil
}

func convertCell(v any, to frame.Kind) (any, bool) {
	switch to {
	case frame.KindString:
		return frame.FormatCell(v), true
	case frame.KindFloat64:
		switch x := v.(type) {
		case int64:
			return float64(x), true
		case float64:
			return x, true
		case bool:
			return boolNum(x), true
		case string:
			f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
			return f, err == nil
		}
	case frame.KindInt64:
		switch x := v.(type) {
		case int64:
			return x, true
		case float64:
			if math.IsNaN(x) || math.IsInf(x, 0) || math.Abs(x) >= 1<<63 {
				return nil, false
			}
			return int64(x), true
		case bool:
			return int64(boolNum(x)), true
		case string:
			s := strings.TrimSpace(x)
			if n, err := strconv.ParseInt(s, 10, 64); err == nil {
				return n, true
			}
			if f, err := strconv.ParseFloat(s, 64); err == nil {
				return convertCell(f, to)
			}
		}
	case frame.KindBool:
		switch x := v.(type) {
		case bool:
			return x, true
		case int64:
			return x != 0, true
		case float64:
			return x != 0, true
		case string:
			b, err := strconv.ParseBool(strings.ToLower(strings.TrimSpace(x)))
			return b, err == nil
		}
	case frame.KindTimestamp:
		switch x := v.(type) {
		case time.Time:
			return x, true
		case string:
			t, ok := frame.ParseTime(strings.TrimSpace(x))
			return t, ok
		}
	}
	return nil, false
}

func boolNum(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// scale rescales numeric columns to float64: "standard" centres on the mean
// with unit population variance, "minmax" maps onto [0, 1]. A constant
// column becomes all zeros. Nulls stay null.
func scale(f *frame.Frame, p Params) (Result, error) {
	method, err := p.str("method")
	if err != nil {
		return Result{}, err
	}
	if err := oneOf("method", method, ScaleStandard, ScaleMinMax); err != nil {
		return Result{}, err
	}
	cols, err := p.strs("columns")
	if err != nil {
		return Result{}, err
	}
	if len(cols) == 0 {
		for _, c := range f.Columns() {
			if c.Kind().Numeric() {
				cols = append(cols, c.Name())
			}
		}
		if len(cols) == 0 {
			return Result{}, errors.New("no numeric columns to scale")
		}
	}
	if err := checkColumns(f, cols); err != nil {
		return Result{}, err
	}

	out := f
	for _, name := range cols {
		c, _ := out.Column(name)
		if !c.Kind().Numeric() {
			return Result{}, fmt.Errorf("column %q is %s, scaling needs a numeric column", name, c.Kind())
		}
		nums := numbers(c)
		if len(nums) == 0 {
			continue
		}
		var shift, div float64
		switch method {
		case ScaleStandard:
			shift = mean(nums)
			var ss float64
			for _, x := range nums {
				ss += (x - shift) * (x - shift)
			}
			div = math.Sqrt(ss / float64(len(nums)))
		case ScaleMinMax:
			lo, hi := nums[0], nums[0]
			for _, x := range nums {
				lo, hi = math.Min(lo, x), math.Max(hi, x)
			}
			shift, div = lo, hi-lo
		}
		if div == 0 {
			div = 1
		}
		values := make([]any, c.Len())
		for i := range values {
			if x, ok := c.Float(i); ok {
				values[i] = (x - shift) / div
			}
		}
		nc, err := frame.NewColumn(name, frame.KindFloat64, values)
		if err != nil {
			return Result{}, err
		}
		if out, err = out.Replace(nc); err != nil {
			return Result{}, err
		}
	}
	return Result{
		Frame:       out,
		Description: fmt.Sprintf("Scaled [%s] using %s scaling", strings.Join(cols, ", "), method),
	}, nil
}

// encode turns a categorical column into numbers. "label" replaces it with
// the int64 rank of each value among the sorted distinct values; "onehot"
// replaces it with one bool column per distinct value, named
// "{column}_{value}". Nulls stay null for label and are all false for onehot.
func encode(f *frame.Frame, p Params) (Result, error) {
	c, err := p.column(f)
	if err != nil {
		return Result{}, err
	}
	if c.Kind() != frame.KindString && c.Kind() != frame.KindBool {
		return Result{}, fmt.Errorf("column %q is %s, encoding needs a string or bool column", c.Name(), c.Kind())
	}
	method, err := p.str("method")
	if err != nil {
		return Result{}, err
	}
	if err := oneOf("method", method, EncodeLabel, EncodeOneHot); err != nil {
		return Result{}, err
	}

	labels := make([]string, c.Len())
	classes := map[string]int{}
	for i, v := range c.Values() {
		if v == nil {
			continue
		}
		labels[i] = frame.FormatCell(v)
		classes[labels[i]] = 0
	}
	sorted := make([]string, 0, len(classes))
	for k := range classes {
		sorted = append(sorted, k)
	}
	sort.Strings(sorted)
	for i, k := range sorted {
		classes[k] = i
	}

	var out *frame.Frame
	switch method {
	case EncodeLabel:
		values := make([]any, c.Len())
		for i, v := range c.Values() {
			if v != nil {
				values[i] = int64(classes[labels[i]])
			}
		}
		nc, err := frame.NewColumn(c.Name(), frame.KindInt64, values)
		if err != nil {
			return Result{}, err
		}
		if out, err = f.Replace(nc); err != nil {
			return Result{}, err
		}
	case EncodeOneHot:
		dummies := make([]*frame.Column, len(sorted))
		for j, class := range sorted {
			values := make([]any, c.Len())
			for i, v := range c.Values() {
				values[i] = v != nil && labels[i] == class
			}
			nc, err := frame.NewColumn(c.Name()+"_"+class, frame.KindBool, values)
			if err != nil {
				return Result{}, err
			}
			dummies[j] = nc
		}
		var cols []*frame.Column
		for _, col := range f.Columns() {
			if col.Name() == c.Name() {
				cols = append(cols, dummies...)
				continue
			}
			cols = append(cols, col)
		}
		if len(cols) == 0 {
			return Result{}, ErrNoColumnsLeft
		}
		if out, err = frame.New(cols...); err != nil {
			return Result{}, err
		}
	}
	return Result{
		Frame:       out,
		Description: fmt.Sprintf("Encoded '%s' using %s encoding (%d classes)", c.Name(), method, len(sorted)),
	}, nil
}
