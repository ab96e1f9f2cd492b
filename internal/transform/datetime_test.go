package transform

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/autods/internal/frame"
)

func withDates(t *testing.T) *frame.Frame {
	t.Helper()
	ts, err := frame.NewColumn("ts", frame.KindTimestamp, []any{
		time.Date(2024, 3, 9, 14, 5, 7, 0, time.UTC),
		time.Date(2023, 12, 31, 23, 59, 59, 0, time.UTC),
		nil,
	})
	require.NoError(t, err)
	return frame.MustNew(ts, frame.Strings("s", "a", "b", "c"))
}

func TestExtractDatetime(t *testing.T) {
	res, err := Apply(withDates(t), "extract_datetime", Params{"column": "ts", "part": "year"})
	require.NoError(t, err)
	assert.Equal(t, []string{"ts", "s", "ts_Year"}, res.Frame.Names())
	c, _ := res.Frame.Column("ts_Year")
	assert.Equal(t, frame.KindInt64, c.Kind())
	assert.Equal(t, []any{int64(2024), int64(2023), nil}, c.Values())
	assert.Equal(t, "Extracted year from 'ts' into 'ts_Year'", res.Description)

	res, err = Apply(withDates(t), "extract_datetime", Params{"column": "ts", "part": "weekday"})
	require.NoError(t, err)
	c, _ = res.Frame.Column("ts_Weekday")
	assert.Equal(t, []any{"Saturday", "Sunday", nil}, c.Values())

	_, err = Apply(res.Frame, "extract_datetime", Params{"column": "ts", "part": "weekday"})
	assert.ErrorIs(t, err, frame.ErrDuplicateName)
}

func TestExtractDatetimeErrors(t *testing.T) {
	for name, p := range map[string]Params{
		"text column":  {"column": "s", "part": "year"},
		"unknown part": {"column": "ts", "part": "fortnight"},
		"missing part": {"column": "ts"},
	} {
		_, err := Apply(withDates(t), "extract_datetime", p)
		var te *Error
		assert.ErrorAs(t, err, &te, name)
	}
}

func TestFilterDates(t *testing.T) {
	res, err := Apply(withDates(t), "filter_dates", Params{"column": "ts", "start": "2024-01-01"})
	require.NoError(t, err)
	s, _ := res.Frame.Column("s")
	assert.Equal(t, []any{"a"}, s.Values())
	assert.Equal(t, "Filtered 'ts' by date: kept 1 of 3 rows", res.Description)

	res, err = Apply(withDates(t), "filter_dates", Params{
		"column": "ts", "start": "2023-12-31T23:59:59Z", "end": "2024-03-09T14:05:07Z",
	})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Frame.NumRows(), "bounds are inclusive")

	for name, p := range map[string]Params{
		"no bounds":      {"column": "ts"},
		"end before":     {"column": "ts", "start": "2024-01-01", "end": "2023-01-01"},
		"bad date":       {"column": "ts", "start": "yesterday"},
		"text column":    {"column": "s", "start": "2024-01-01"},
		"non-string end": {"column": "ts", "end": 2024.0},
	} {
		_, err := Apply(withDates(t), "filter_dates", p)
		var te *Error
		assert.ErrorAs(t, err, &te, name)
	}
}

func TestSortRows(t *testing.T) {
	n, err := frame.NewColumn("n", frame.KindInt64, []any{int64(3), nil, int64(1), int64(2)})
	require.NoError(t, err)
	f := frame.MustNew(n, frame.Strings("s", "c", "x", "a", "b"))

	res, err := Apply(f, "sort_rows", Params{"column": "n"})
	require.NoError(t, err)
	s, _ := res.Frame.Column("s")
	assert.Equal(t, []any{"a", "b", "c", "x"}, s.Values())
	assert.Equal(t, "Sorted rows by 'n' (ascending)", res.Description)

	res, err = Apply(f, "sort_rows", Params{"column": "n", "descending": true})
	require.NoError(t, err)
	s, _ = res.Frame.Column("s")
	assert.Equal(t, []any{"c", "b", "a", "x"}, s.Values(), "nulls stay last")

	_, err = Apply(f, "sort_rows", Params{"column": "n", "descending": "yes"})
	assert.Error(t, err)
}
