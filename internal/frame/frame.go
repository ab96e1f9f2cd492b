// Package frame implements the in-memory tabular payload of a snapshot: an
// ordered set of named, typed, nullable columns of equal length.
package frame

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/starford/autods/internal/models"
)

// Kind is the logical type of a column.
type Kind uint8

const (
	KindInt64 Kind = iota + 1
	KindFloat64
	KindString
	KindBool
	KindTimestamp
)

var kindNames = map[Kind]string{
	KindInt64:     "int64",
	KindFloat64:   "float64",
	KindString:    "string",
	KindBool:      "bool",
	KindTimestamp: "timestamp",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// ParseKind is the inverse of Kind.String.
func ParseKind(s string) (Kind, error) {
	for k, name := range kindNames {
		if name == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("frame: unknown kind %q", s)
}

// Numeric reports whether values of k convert to float64.
func (k Kind) Numeric() bool {
	return k == KindInt64 || k == KindFloat64
}

var (
	ErrLengthMismatch = errors.New("frame: column lengths differ")
	ErrDuplicateName  = errors.New("frame: duplicate column name")
	ErrNoColumn       = errors.New("frame: no such column")
)

// Column is an immutable named vector. A nil cell is null.
// Cells hold int64, float64, string, bool, or time.Time (UTC, microsecond
// precision) according to the column kind.
type Column struct {
	name   string
	kind   Kind
	values []any
}

// NewColumn validates values against kind and returns a column that owns a
// copy of them. Timestamps are normalised to UTC and truncated to
// microseconds.
func NewColumn(name string, kind Kind, values []any) (*Column, error) {
	if _, ok := kindNames[kind]; !ok {
		return nil, fmt.Errorf("frame: column %q: invalid kind %d", name, kind)
	}
	out := make([]any, len(values))
	for i, v := range values {
		if v == nil {
			continue
		}
		cv, ok := coerce(kind, v)
		if !ok {
			return nil, fmt.Errorf("frame: column %q row %d: %T is not %s", name, i, v, kind)
		}
		out[i] = cv
	}
	return &Column{name: name, kind: kind, values: out}, nil
}

func coerce(kind Kind, v any) (any, bool) {
	switch kind {
	case KindInt64:
		switch x := v.(type) {
		case int64:
			return x, true
		case int:
			return int64(x), true
		case int32:
			return int64(x), true
		}
	case KindFloat64:
		switch x := v.(type) {
		case float64:
			return x, true
		case float32:
			return float64(x), true
		}
	case KindString:
		if x, ok := v.(string); ok {
			return x, true
		}
	case KindBool:
		if x, ok := v.(bool); ok {
			return x, true
		}
	case KindTimestamp:
		if x, ok := v.(time.Time); ok {
			return x.UTC().Truncate(time.Microsecond), true
		}
	}
	return nil, false
}

// Int64s builds a non-null int64 column.
func Int64s(name string, vals ...int64) *Column {
	c := &Column{name: name, kind: KindInt64, values: make([]any, len(vals))}
	for i, v := range vals {
		c.values[i] = v
	}
	return c
}

// Float64s builds a non-null float64 column.
func Float64s(name string, vals ...float64) *Column {
	c := &Column{name: name, kind: KindFloat64, values: make([]any, len(vals))}
	for i, v := range vals {
		c.values[i] = v
	}
	return c
}

// Strings builds a non-null string column.
func Strings(name string, vals ...string) *Column {
	c := &Column{name: name, kind: KindString, values: make([]any, len(vals))}
	for i, v := range vals {
		c.values[i] = v
	}
	return c
}

// Bools builds a non-null bool column.
func Bools(name string, vals ...bool) *Column {
	c := &Column{name: name, kind: KindBool, values: make([]any, len(vals))}
	for i, v := range vals {
		c.values[i] = v
	}
	return c
}

// Timestamps builds a non-null timestamp column.
func Timestamps(name string, vals ...time.Time) *Column {
	c := &Column{name: name, kind: KindTimestamp, values: make([]any, len(vals))}
	for i, v := range vals {
		c.values[i] = v.UTC().Truncate(time.Microsecond)
	}
	return c
}

func (c *Column) Name() string { return c.name }
func (c *Column) Kind() Kind   { return c.kind }
func (c *Column) Len() int     { return len(c.values) }

// Value returns the cell at row i, or nil when it is null.
func (c *Column) Value(i int) any { return c.values[i] }

func (c *Column) IsNull(i int) bool { return c.values[i] == nil }

// Values returns a copy of the cells.
func (c *Column) Values() []any {
	out := make([]any, len(c.values))
	copy(out, c.values)
	return out
}

// NullCount returns the number of null cells.
func (c *Column) NullCount() int {
	n := 0
	for _, v := range c.values {
		if v == nil {
			n++
		}
	}
	return n
}

// Float returns the cell at row i as float64 for numeric columns.
func (c *Column) Float(i int) (float64, bool) {
	switch x := c.values[i].(type) {
	case int64:
		return float64(x), true
	case float64:
		return x, true
	}
	return 0, false
}

// Renamed returns a copy of c under a new name.
func (c *Column) Renamed(name string) *Column {
	return &Column{name: name, kind: c.kind, values: c.values}
}

// take returns a column holding the given rows in order.
func (c *Column) take(rows []int) *Column {
	out := make([]any, len(rows))
	for i, r := range rows {
		out[i] = c.values[r]
	}
	return &Column{name: c.name, kind: c.kind, values: out}
}

func cellEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	switch x := a.(type) {
	case time.Time:
		y, ok := b.(time.Time)
		return ok && x.Equal(y)
	case float64:
		y, ok := b.(float64)
		if !ok {
			return false
		}
		if math.IsNaN(x) && math.IsNaN(y) {
			return true
		}
		return x == y
	}
	return a == b
}

// Equal reports whether c and o have the same name, kind, and cells.
func (c *Column) Equal(o *Column) bool {
	if c.name != o.name || c.kind != o.kind || len(c.values) != len(o.values) {
		return false
	}
	for i := range c.values {
		if !cellEqual(c.values[i], o.values[i]) {
			return false
		}
	}
	return true
}

// Frame is an immutable ordered collection of equal-length columns.
type Frame struct {
	cols  []*Column
	index map[string]int
	rows  int
}

// New builds a frame from columns. Names must be unique and lengths equal.
func New(cols ...*Column) (*Frame, error) {
	f := &Frame{cols: make([]*Column, len(cols)), index: make(map[string]int, len(cols))}
	for i, c := range cols {
		if c == nil {
			return nil, fmt.Errorf("frame: column %d is nil", i)
		}
		if _, dup := f.index[c.name]; dup {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateName, c.name)
		}
		if i == 0 {
			f.rows = c.Len()
		} else if c.Len() != f.rows {
			return nil, fmt.Errorf("%w: %q has %d rows, want %d", ErrLengthMismatch, c.name, c.Len(), f.rows)
		}
		f.index[c.name] = i
		f.cols[i] = c
	}
	return f, nil
}

// MustNew is New for statically known inputs; it panics on error.
func MustNew(cols ...*Column) *Frame {
	f, err := New(cols...)
	if err != nil {
		panic(err)
	}
	return f
}

func (f *Frame) NumRows() int { return f.rows }
func (f *Frame) NumCols() int { return len(f.cols) }

// Shape returns (rows, columns).
func (f *Frame) Shape() (int, int) { return f.rows, len(f.cols) }

// Names returns column names in order.
func (f *Frame) Names() []string {
	out := make([]string, len(f.cols))
	for i, c := range f.cols {
		out[i] = c.name
	}
	return out
}

// Column looks a column up by name.
func (f *Frame) Column(name string) (*Column, bool) {
	i, ok := f.index[name]
	if !ok {
		return nil, false
	}
	return f.cols[i], true
}

// ColumnAt returns the i-th column.
func (f *Frame) ColumnAt(i int) *Column { return f.cols[i] }

// Columns returns the columns in order. The slice is a copy.
func (f *Frame) Columns() []*Column {
	out := make([]*Column, len(f.cols))
	copy(out, f.cols)
	return out
}

// Schema describes the columns for metadata records.
func (f *Frame) Schema() []models.Column {
	out := make([]models.Column, len(f.cols))
	for i, c := range f.cols {
		out[i] = models.Column{Name: c.name, Kind: c.kind.String()}
	}
	return out
}

// Drop returns a frame without the named columns.
func (f *Frame) Drop(names ...string) (*Frame, error) {
	drop := make(map[string]struct{}, len(names))
	for _, n := range names {
		if _, ok := f.index[n]; !ok {
			return nil, fmt.Errorf("%w: %q", ErrNoColumn, n)
		}
		drop[n] = struct{}{}
	}
	keep := make([]*Column, 0, len(f.cols))
	for _, c := range f.cols {
		if _, gone := drop[c.name]; !gone {
			keep = append(keep, c)
		}
	}
	return New(keep...)
}

// Replace returns a frame with the column of the same name swapped for c.
func (f *Frame) Replace(c *Column) (*Frame, error) {
	i, ok := f.index[c.name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNoColumn, c.name)
	}
	cols := f.Columns()
	cols[i] = c
	return New(cols...)
}

// Rename returns a frame with column from renamed to to.
func (f *Frame) Rename(from, to string) (*Frame, error) {
	i, ok := f.index[from]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNoColumn, from)
	}
	cols := f.Columns()
	cols[i] = cols[i].Renamed(to)
	return New(cols...)
}

// Take returns a frame holding the given rows in order.
func (f *Frame) Take(rows []int) *Frame {
	cols := make([]*Column, len(f.cols))
	for i, c := range f.cols {
		cols[i] = c.take(rows)
	}
	return &Frame{cols: cols, index: f.index, rows: len(rows)}
}

// Head returns the first n rows.
func (f *Frame) Head(n int) *Frame {
	if n > f.rows {
		n = f.rows
	}
	if n < 0 {
		n = 0
	}
	rows := make([]int, n)
	for i := range rows {
		rows[i] = i
	}
	return f.Take(rows)
}

// Row returns the cells of row i.
func (f *Frame) Row(i int) []any {
	out := make([]any, len(f.cols))
	for j, c := range f.cols {
		out[j] = c.values[i]
	}
	return out
}

// Equal reports whether both frames hold the same columns in the same order.
func (f *Frame) Equal(o *Frame) bool {
	if f == nil || o == nil {
		return f == o
	}
	if f.rows != o.rows || len(f.cols) != len(o.cols) {
		return false
	}
	for i := range f.cols {
		if !f.cols[i].Equal(o.cols[i]) {
			return false
		}
	}
	return true
}
