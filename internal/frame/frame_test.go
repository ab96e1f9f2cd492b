package frame

import (
	"bytes"
	"context"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func demoFrame() *Frame {
	return MustNew(Int64s("A", 1, 2, 3), Int64s("B", 4, 5, 6))
}

func mixedFrame(t *testing.T) *Frame {
	t.Helper()
	ts := time.Date(2024, 5, 1, 12, 30, 0, 123456000, time.UTC)
	nullableInts, err := NewColumn("n_int", KindInt64, []any{int64(7), nil, int64(-3)})
	require.NoError(t, err)
	nullableStr, err := NewColumn("n_str", KindString, []any{nil, "", "x"})
	require.NoError(t, err)
	nullableTS, err := NewColumn("n_ts", KindTimestamp, []any{ts, nil, ts.Add(time.Hour)})
	require.NoError(t, err)
	nullableBool, err := NewColumn("n_bool", KindBool, []any{true, false, nil})
	require.NoError(t, err)
	return MustNew(
		Float64s("f", 1.5, math.Inf(1), -0.25),
		nullableInts,
		nullableStr,
		nullableTS,
		nullableBool,
	)
}

func TestNewRejectsMismatchedLengths(t *testing.T) {
	_, err := New(Int64s("A", 1, 2), Int64s("B", 1))
	assert.ErrorIs(t, err, ErrLengthMismatch)
}

func TestNewRejectsDuplicateNames(t *testing.T) {
	_, err := New(Int64s("A", 1), Strings("A", "x"))
	assert.ErrorIs(t, err, ErrDuplicateName)
}

func TestNewColumnRejectsWrongType(t *testing.T) {
	_, err := NewColumn("A", KindInt64, []any{int64(1), "two"})
	assert.Error(t, err)
}

func TestNewColumnTruncatesTimestamps(t *testing.T) {
	ts := time.Date(2024, 1, 1, 0, 0, 0, 999, time.FixedZone("X", 3600))
	c, err := NewColumn("t", KindTimestamp, []any{ts})
	require.NoError(t, err)
	got := c.Value(0).(time.Time)
	assert.Equal(t, time.UTC, got.Location())
	assert.True(t, got.Equal(ts.Truncate(time.Microsecond)))
}

func TestDropLeavesOriginalIntact(t *testing.T) {
	f := demoFrame()
	dropped, err := f.Drop("B")
	require.NoError(t, err)

	assert.Equal(t, []string{"A"}, dropped.Names())
	assert.Equal(t, []string{"A", "B"}, f.Names())

	_, err = f.Drop("missing")
	assert.ErrorIs(t, err, ErrNoColumn)
}

func TestRenameAndReplace(t *testing.T) {
	f := demoFrame()
	r, err := f.Rename("A", "alpha")
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "B"}, r.Names())

	_, err = f.Rename("A", "B")
	assert.ErrorIs(t, err, ErrDuplicateName)

	rep, err := f.Replace(Int64s("B", 9, 9, 9))
	require.NoError(t, err)
	c, _ := rep.Column("B")
	assert.Equal(t, int64(9), c.Value(2))
}

func TestHeadAndTake(t *testing.T) {
	f := demoFrame()
	assert.Equal(t, 2, f.Head(2).NumRows())
	assert.Equal(t, 3, f.Head(10).NumRows())
	assert.Equal(t, 0, f.Head(-1).NumRows())

	tk := f.Take([]int{2, 0})
	assert.Equal(t, []any{int64(3), int64(6)}, tk.Row(0))
}

func TestParquetRoundTripDemo(t *testing.T) {
	f := demoFrame()
	var buf bytes.Buffer
	require.NoError(t, WriteParquet(&buf, f))

	got, err := ReadParquet(context.Background(), bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	assert.True(t, f.Equal(got), "round trip changed the frame")
	rows, cols := got.Shape()
	assert.Equal(t, 3, rows)
	assert.Equal(t, 2, cols)
}

func TestParquetRoundTripKindsAndNulls(t *testing.T) {
	f := mixedFrame(t)
	var buf bytes.Buffer
	require.NoError(t, WriteParquet(&buf, f))

	got, err := ReadParquet(context.Background(), bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	require.Equal(t, f.Names(), got.Names())
	for i, c := range f.Columns() {
		g := got.ColumnAt(i)
		assert.Equal(t, c.Kind(), g.Kind(), "kind of %s", c.Name())
		assert.Equal(t, c.NullCount(), g.NullCount(), "nulls of %s", c.Name())
	}
	assert.True(t, f.Equal(got))

	// The empty string is a value, not a null.
	s, _ := got.Column("n_str")
	assert.True(t, s.IsNull(0))
	assert.Equal(t, "", s.Value(1))
}

func TestParquetRoundTripZeroRows(t *testing.T) {
	f := MustNew(Int64s("A"), Strings("B"))
	var buf bytes.Buffer
	require.NoError(t, WriteParquet(&buf, f))
	got, err := ReadParquet(context.Background(), bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, 0, got.NumRows())
	assert.Equal(t, []string{"A", "B"}, got.Names())
}

func TestWriteParquetRejectsEmptyFrame(t *testing.T) {
	var buf bytes.Buffer
	assert.Error(t, WriteParquet(&buf, MustNew()))
}

func TestReadCSVInfersKinds(t *testing.T) {
	in := strings.Join([]string{
		"id;price;active;joined;city;score",
		"1;9.5;true;2024-01-02;Oslo;",
		"2;10;false;2024-02-03;Bergen;NA",
		"3;;TRUE;2024-03-04 10:00:00;Oslo;7",
	}, "\n")
	f, err := ReadCSV(strings.NewReader(in), CSVOptions{})
	require.NoError(t, err)

	kinds := map[string]Kind{}
	for _, c := range f.Columns() {
		kinds[c.Name()] = c.Kind()
	}
	assert.Equal(t, map[string]Kind{
		"id":     KindInt64,
		"price":  KindFloat64,
		"active": KindBool,
		"joined": KindTimestamp,
		"city":   KindString,
		"score":  KindInt64,
	}, kinds)

	price, _ := f.Column("price")
	assert.True(t, price.IsNull(2))
	score, _ := f.Column("score")
	assert.Equal(t, 2, score.NullCount())
}

func TestReadCSVNullTokensInEveryKind(t *testing.T) {
	in := "n,s,b\n1,Oslo,true\nNA,null,None\n3,N/A,false\n"
	f, err := ReadCSV(strings.NewReader(in), CSVOptions{})
	require.NoError(t, err)

	for _, c := range f.Columns() {
		assert.True(t, c.IsNull(1), "row 1 of %s", c.Name())
	}
	s, _ := f.Column("s")
	assert.Equal(t, KindString, s.Kind())
	assert.Equal(t, 2, s.NullCount())
	assert.Equal(t, "Oslo", s.Value(0))
}

func TestReadCSVDatetimeThreshold(t *testing.T) {
	// 4 of 5 values parse: 80% is not above the threshold, so it stays text.
	in := "d\n2024-01-01\n2024-01-02\n2024-01-03\n2024-01-04\nsoon\n"
	f, err := ReadCSV(strings.NewReader(in), CSVOptions{})
	require.NoError(t, err)
	assert.Equal(t, KindString, f.ColumnAt(0).Kind())

	// 5 of 6 parse: above the threshold, and the stray value becomes null.
	in = "d\n2024-01-01\n2024-01-02\n2024-01-03\n2024-01-04\n2024-01-05\nsoon\n"
	f, err = ReadCSV(strings.NewReader(in), CSVOptions{})
	require.NoError(t, err)
	c := f.ColumnAt(0)
	assert.Equal(t, KindTimestamp, c.Kind())
	assert.True(t, c.IsNull(5))
}

func TestReadCSVDuplicateAndBlankHeaders(t *testing.T) {
	f, err := ReadCSV(strings.NewReader("a,a,\n1,2,3\n"), CSVOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "a_1", "column_3"}, f.Names())
}

func TestReadCSVEmpty(t *testing.T) {
	_, err := ReadCSV(strings.NewReader(""), CSVOptions{})
	assert.Error(t, err)
}

func TestCSVExportThenImport(t *testing.T) {
	f := MustNew(Int64s("A", 1, 2, 3), Strings("B", "x", "y", "z"))
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, f))
	assert.Equal(t, "A,B\n1,x\n2,y\n3,z\n", buf.String())

	back, err := ReadCSV(&buf, CSVOptions{})
	require.NoError(t, err)
	assert.True(t, f.Equal(back))
}

func TestDescribe(t *testing.T) {
	f := mixedFrame(t)
	stats := Describe(f)
	require.Len(t, stats, 5)

	ints := stats[1]
	assert.Equal(t, "n_int", ints.Name)
	assert.Equal(t, 2, ints.NonNull)
	assert.Equal(t, 1, ints.Missing)
	require.NotNil(t, ints.Mean)
	assert.InDelta(t, 2.0, *ints.Mean, 1e-9)
	assert.InDelta(t, -3.0, *ints.Min, 1e-9)

	assert.Nil(t, stats[2].Mean, "string columns have no moments")
}

func TestMarkdownContext(t *testing.T) {
	md := Markdown("demo_v20240101_000000_raw", demoFrame(), 2)
	assert.Contains(t, md, "Shape: (3, 2)")
	assert.Contains(t, md, "A (int64), B (int64)")
	assert.Contains(t, md, "| 1 | 4 |")
	assert.NotContains(t, md, "| 3 | 6 |")
	assert.Contains(t, md, "Numeric Stats:")
}
