// Package transform holds the stateless dataset transformations the
// workbench can commit as new snapshots. Every operation returns a new
// frame and leaves its input untouched.
package transform

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/starford/autods/internal/frame"
)

// Params are the JSON-decoded arguments of an operation.
type Params map[string]any

// Error reports invalid parameters or a kind mismatch. The dataset state
// is unchanged when an operation returns one.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string { return "transform: " + e.Op + ": " + e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }

var (
	// ErrUnknownOp is wrapped by the Error returned for unregistered names.
	ErrUnknownOp = errors.New("unknown operation")
	// ErrNoColumnsLeft rejects a drop that would leave no columns.
	ErrNoColumnsLeft = errors.New("cannot drop every column")
)

// Result is the outcome of a successful operation.
type Result struct {
	Frame       *frame.Frame
	Description string
}

type opFunc func(f *frame.Frame, p Params) (Result, error)

var registry = map[string]opFunc{
	"drop_columns":      dropColumns,
	"rename_column":     renameColumn,
	"fill_missing":      fillMissing,
	"drop_missing_rows": dropMissingRows,
	"drop_duplicates":   dropDuplicates,
	"handle_outliers":   handleOutliers,
	"clean_text":        cleanText,
	"extract_datetime":  extractDatetime,
	"filter_dates":      filterDates,
	"sort_rows":         sortRows,
	"convert_type":      convertType,
	"scale":             scale,
	"encode":            encode,
}

// Names lists the registered operations in sorted order.
func Names() []string {
	out := make([]string, 0, len(registry))
	for name := range registry {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Apply runs the named operation on f. Any failure is an *Error.
func Apply(f *frame.Frame, op string, p Params) (Result, error) {
	fn, ok := registry[op]
	if !ok {
		return Result{}, &Error{Op: op, Err: ErrUnknownOp}
	}
	if f == nil {
		return Result{}, &Error{Op: op, Err: errors.New("no dataset")}
	}
	if p == nil {
		p = Params{}
	}
	res, err := fn(f, p)
	if err != nil {
		var te *Error
		if errors.As(err, &te) {
			return Result{}, te
		}
		return Result{}, &Error{Op: op, Err: err}
	}
	return res, nil
}

func (p Params) str(key string) (string, error) {
	v, ok := p[key]
	if !ok {
		return "", fmt.Errorf("missing parameter %q", key)
	}
	s, ok := v.(string)
	if !ok || strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("parameter %q must be a non-empty string", key)
	}
	return s, nil
}

// optStr reads an optional string, returning def when the key is absent.
func (p Params) optStr(key, def string) (string, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return def, nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("parameter %q must be a string", key)
	}
	return s, nil
}

// num reads an optional positive number, returning def when the key is absent.
func (p Params) num(key string, def float64) (float64, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return def, nil
	}
	var x float64
	switch n := v.(type) {
	case float64:
		x = n
	case int:
		x = float64(n)
	case string:
		var err error
		if x, err = strconv.ParseFloat(n, 64); err != nil {
			return 0, fmt.Errorf("parameter %q must be a number", key)
		}
	default:
		return 0, fmt.Errorf("parameter %q must be a number", key)
	}
	if x <= 0 {
		return 0, fmt.Errorf("parameter %q must be positive", key)
	}
	return x, nil
}

// flag reads an optional boolean.
func (p Params) flag(key string) (bool, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return false, nil
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("parameter %q must be true or false", key)
	}
	return b, nil
}

// column reads the "column" parameter and resolves it in f.
func (p Params) column(f *frame.Frame) (*frame.Column, error) {
	name, err := p.str("column")
	if err != nil {
		return nil, err
	}
	c, ok := f.Column(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", frame.ErrNoColumn, name)
	}
	return c, nil
}

func oneOf(key, v string, allowed ...string) error {
	for _, a := range allowed {
		if v == a {
			return nil
		}
	}
	return fmt.Errorf("unknown %s %q (want %s)", key, v, strings.Join(allowed, ", "))
}

// strs reads a list of strings. A missing key yields nil.
func (p Params) strs(key string) ([]string, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return nil, nil
	}
	switch x := v.(type) {
	case []string:
		return x, nil
	case string:
		return []string{x}, nil
	case []any:
		out := make([]string, len(x))
		for i, e := range x {
			s, ok := e.(string)
			if !ok {
				return nil, fmt.Errorf("parameter %q: element %d is not a string", key, i)
			}
			out[i] = s
		}
		return out, nil
	}
	return nil, fmt.Errorf("parameter %q must be a list of column names", key)
}

func checkColumns(f *frame.Frame, names []string) error {
	for _, n := range names {
		if _, ok := f.Column(n); !ok {
			return fmt.Errorf("%w: %q", frame.ErrNoColumn, n)
		}
	}
	return nil
}

func dropColumns(f *frame.Frame, p Params) (Result, error) {
	cols, err := p.strs("columns")
	if err != nil {
		return Result{}, err
	}
	if len(cols) == 0 {
		return Result{}, errors.New("no columns selected")
	}
	out, err := f.Drop(cols...)
	if err != nil {
		return Result{}, err
	}
	if out.NumCols() == 0 {
		return Result{}, ErrNoColumnsLeft
	}
	return Result{Frame: out, Description: "Dropped columns: " + strings.Join(cols, ", ")}, nil
}

func renameColumn(f *frame.Frame, p Params) (Result, error) {
	from, err := p.str("from")
	if err != nil {
		return Result{}, err
	}
	to, err := p.str("to")
	if err != nil {
		return Result{}, err
	}
	out, err := f.Rename(from, to)
	if err != nil {
		return Result{}, err
	}
	return Result{Frame: out, Description: fmt.Sprintf("Renamed column '%s' to '%s'", from, to)}, nil
}

func dropMissingRows(f *frame.Frame, p Params) (Result, error) {
	cols, err := p.strs("columns")
	if err != nil {
		return Result{}, err
	}
	if len(cols) == 0 {
		cols = f.Names()
	}
	if err := checkColumns(f, cols); err != nil {
		return Result{}, err
	}

	var keep []int
	for i := 0; i < f.NumRows(); i++ {
		ok := true
		for _, name := range cols {
			c, _ := f.Column(name)
			if c.IsNull(i) {
				ok = false
				break
			}
		}
		if ok {
			keep = append(keep, i)
		}
	}
	dropped := f.NumRows() - len(keep)
	return Result{
		Frame:       f.Take(keep),
		Description: fmt.Sprintf("Dropped %d rows with missing values", dropped),
	}, nil
}

func dropDuplicates(f *frame.Frame, p Params) (Result, error) {
	cols, err := p.strs("columns")
	if err != nil {
		return Result{}, err
	}
	if len(cols) == 0 {
		cols = f.Names()
	}
	if err := checkColumns(f, cols); err != nil {
		return Result{}, err
	}

	seen := make(map[string]struct{}, f.NumRows())
	var keep []int
	var key strings.Builder
	for i := 0; i < f.NumRows(); i++ {
		key.Reset()
		for _, name := range cols {
			c, _ := f.Column(name)
			if c.IsNull(i) {
				key.WriteString("\x00null")
			} else {
				key.WriteString(strconv.Quote(frame.FormatCell(c.Value(i))))
			}
			key.WriteByte('\x1f')
		}
		k := key.String()
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		keep = append(keep, i)
	}
	removed := f.NumRows() - len(keep)
	return Result{
		Frame:       f.Take(keep),
		Description: fmt.Sprintf("Removed %d duplicate rows", removed),
	}, nil
}

// constant converts a JSON-decoded value to a cell of kind k.
func constant(k frame.Kind, v any) (any, error) {
	if v == nil {
		return nil, errors.New("parameter \"value\" is required for strategy constant")
	}
	switch k {
	case frame.KindInt64:
		switch x := v.(type) {
		case float64:
			if x != float64(int64(x)) {
				return nil, fmt.Errorf("value %v is not an integer", x)
			}
			return int64(x), nil
		case string:
			return strconv.ParseInt(x, 10, 64)
		}
	case frame.KindFloat64:
		switch x := v.(type) {
		case float64:
			return x, nil
		case string:
			return strconv.ParseFloat(x, 64)
		}
	case frame.KindString:
		if s, ok := v.(string); ok {
			return s, nil
		}
		return frame.FormatCell(v), nil
	case frame.KindBool:
		switch x := v.(type) {
		case bool:
			return x, nil
		case string:
			return strconv.ParseBool(strings.ToLower(x))
		}
	case frame.KindTimestamp:
		if s, ok := v.(string); ok {
			t, err := time.Parse(time.RFC3339, s)
			if err != nil {
				return nil, err
			}
			return t.UTC().Truncate(time.Microsecond), nil
		}
	}
	return nil, fmt.Errorf("value %v does not fit a %s column", v, k)
}
