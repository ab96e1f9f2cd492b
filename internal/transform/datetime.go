package transform

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/starford/autods/internal/frame"
)

// Date parts extract_datetime can derive. The new column is named
// "{column}_{Suffix}".
var dateParts = map[string]struct {
	suffix string
	kind   frame.Kind
	get    func(time.Time) any
}{
	"year":    {"Year", frame.KindInt64, func(t time.Time) any { return int64(t.Year()) }},
	"month":   {"Month", frame.KindInt64, func(t time.Time) any { return int64(t.Month()) }},
	"day":     {"Day", frame.KindInt64, func(t time.Time) any { return int64(t.Day()) }},
	"hour":    {"Hour", frame.KindInt64, func(t time.Time) any { return int64(t.Hour()) }},
	"minute":  {"Minute", frame.KindInt64, func(t time.Time) any { return int64(t.Minute()) }},
	"second":  {"Second", frame.KindInt64, func(t time.Time) any { return int64(t.Second()) }},
	"weekday": {"Weekday", frame.KindString, func(t time.Time) any { return t.Weekday().String() }},
}

func timestampColumn(f *frame.Frame, p Params) (*frame.Column, error) {
	c, err := p.column(f)
	if err != nil {
		return nil, err
	}
	if c.Kind() != frame.KindTimestamp {
		return nil, fmt.Errorf("column %q is %s, not a timestamp column", c.Name(), c.Kind())
	}
	return c, nil
}

// extractDatetime appends a column holding one calendar part of a
// timestamp column, read in UTC.
func extractDatetime(f *frame.Frame, p Params) (Result, error) {
	c, err := timestampColumn(f, p)
	if err != nil {
		return Result{}, err
	}
	part, err := p.str("part")
	if err != nil {
		return Result{}, err
	}
	dp, ok := dateParts[part]
	if !ok {
		return Result{}, oneOf("part", part, "year", "month", "day", "hour", "minute", "second", "weekday")
	}

	values := make([]any, c.Len())
	for i, v := range c.Values() {
		if t, ok := v.(time.Time); ok {
			values[i] = dp.get(t)
		}
	}
	name := c.Name() + "_" + dp.suffix
	nc, err := frame.NewColumn(name, dp.kind, values)
	if err != nil {
		return Result{}, err
	}
	out, err := frame.New(append(f.Columns(), nc)...)
	if err != nil {
		return Result{}, err
	}
	return Result{Frame: out, Description: fmt.Sprintf("Extracted %s from '%s' into '%s'", part, c.Name(), name)}, nil
}

func timeParam(p Params, key string) (time.Time, bool, error) {
	s, err := p.optStr(key, "")
	if err != nil || s == "" {
		return time.Time{}, false, err
	}
	t, ok := frame.ParseTime(s)
	if !ok {
		return time.Time{}, false, fmt.Errorf("parameter %q: cannot parse %q as a date", key, s)
	}
	return t.UTC(), true, nil
}

// filterDates keeps rows whose timestamp lies within [start, end]. Either
// bound may be omitted but not both. Rows with a null timestamp are dropped.
func filterDates(f *frame.Frame, p Params) (Result, error) {
	c, err := timestampColumn(f, p)
	if err != nil {
		return Result{}, err
	}
	start, hasStart, err := timeParam(p, "start")
	if err != nil {
		return Result{}, err
	}
	end, hasEnd, err := timeParam(p, "end")
	if err != nil {
		return Result{}, err
	}
	if !hasStart && !hasEnd {
		return Result{}, errors.New(`at least one of "start" and "end" is required`)
	}
	if hasStart && hasEnd && end.Before(start) {
		return Result{}, errors.New(`"end" is before "start"`)
	}

	var keep []int
	for i, v := range c.Values() {
		t, ok := v.(time.Time)
		if !ok || (hasStart && t.Before(start)) || (hasEnd && t.After(end)) {
			continue
		}
		keep = append(keep, i)
	}
	return Result{
		Frame:       f.Take(keep),
		Description: fmt.Sprintf("Filtered '%s' by date: kept %d of %d rows", c.Name(), len(keep), f.NumRows()),
	}, nil
}

// sortRows orders rows by one column. The sort is stable and nulls go last
// in either direction.
func sortRows(f *frame.Frame, p Params) (Result, error) {
	c, err := p.column(f)
	if err != nil {
		return Result{}, err
	}
	desc, err := p.flag("descending")
	if err != nil {
		return Result{}, err
	}

	idx := make([]int, f.NumRows())
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		va, vb := c.Value(idx[a]), c.Value(idx[b])
		switch {
		case va == nil:
			return false
		case vb == nil:
			return true
		case desc:
			return less(vb, va)
		}
		return less(va, vb)
	})
	order := "ascending"
	if desc {
		order = "descending"
	}
	return Result{Frame: f.Take(idx), Description: fmt.Sprintf("Sorted rows by '%s' (%s)", c.Name(), order)}, nil
}
