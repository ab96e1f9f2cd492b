package frame

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// DatetimeThreshold is the share of non-empty values that must parse as
// timestamps before a text column is converted. Values that fail to parse
// in a converted column become null.
const DatetimeThreshold = 0.8

var timeLayouts = []string{
	time.RFC3339Nano, time.RFC3339, "2006-01-02", "2006/01/02", "02/01/2006", "01/02/2006",
	"2006-01-02 15:04", "2006-01-02 15:04:05", "2006-01-02T15:04:05", "1/2/2006 15:04", "1/2/2006 15:04:05",
}

var nullTokens = map[string]struct{}{
	"": {}, "na": {}, "n/a": {}, "nan": {}, "null": {}, "none": {},
}

// CSVOptions controls CSV decoding.
type CSVOptions struct {
	// Delimiter; if 0, auto-detects among ',', ';', '\t' from the header line.
	Delimiter rune
	// MaxRows limits data rows read; 0 means unlimited.
	MaxRows int
}

// ReadCSV decodes a CSV stream with a header row and infers column kinds.
func ReadCSV(r io.Reader, opt CSVOptions) (*Frame, error) {
	br := bufio.NewReader(r)
	delim := opt.Delimiter
	if delim == 0 {
		head, _ := br.Peek(4096)
		delim = sniffDelimiter(head)
	}

	cr := csv.NewReader(br)
	cr.Comma = delim
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("frame: csv is empty")
		}
		return nil, fmt.Errorf("frame: read csv header: %w", err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}
	names := dedupeNames(header)

	raw := make([][]string, len(names))
	rows := 0
	for {
		if opt.MaxRows > 0 && rows >= opt.MaxRows {
			break
		}
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("frame: read csv row %d: %w", rows+1, err)
		}
		for j := range names {
			v := ""
			if j < len(rec) {
				v = strings.TrimSpace(rec[j])
			}
			raw[j] = append(raw[j], v)
		}
		rows++
	}

	cols := make([]*Column, len(names))
	for j, name := range names {
		cols[j] = inferColumn(name, raw[j])
	}
	return New(cols...)
}

func sniffDelimiter(head []byte) rune {
	line := head
	if i := bytes.IndexByte(head, '\n'); i >= 0 {
		line = head[:i]
	}
	best, bestN := ',', 0
	for _, d := range []rune{',', ';', '\t'} {
		if n := bytes.Count(line, []byte(string(d))); n > bestN {
			best, bestN = d, n
		}
	}
	return best
}

func dedupeNames(header []string) []string {
	seen := make(map[string]int, len(header))
	out := make([]string, len(header))
	for i, h := range header {
		name := strings.TrimSpace(h)
		if name == "" {
			name = fmt.Sprintf("column_%d", i+1)
		}
		if n := seen[name]; n > 0 {
			out[i] = fmt.Sprintf("%s_%d", name, n)
		} else {
			out[i] = name
		}
		seen[name]++
	}
	return out
}

func isNullToken(s string) bool {
	_, ok := nullTokens[strings.ToLower(s)]
	return ok
}

// ParseTime parses s with the layouts CSV import recognises.
func ParseTime(s string) (time.Time, bool) {
	for _, l := range timeLayouts {
		if t, err := time.Parse(l, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// inferColumn picks the narrowest kind that every non-null value fits:
// int64, then float64, then bool, then timestamp (by threshold), then string.
func inferColumn(name string, raw []string) *Column {
	nonNull := 0
	allInt, allFloat, allBool := true, true, true
	timeHits := 0
	for _, s := range raw {
		if isNullToken(s) {
			continue
		}
		nonNull++
		if allInt {
			if _, err := strconv.ParseInt(s, 10, 64); err != nil {
				allInt = false
			}
		}
		if allFloat {
			if _, err := strconv.ParseFloat(s, 64); err != nil {
				allFloat = false
			}
		}
		if allBool {
			if _, err := strconv.ParseBool(strings.ToLower(s)); err != nil || isDigits(s) {
				allBool = false
			}
		}
		if _, ok := ParseTime(s); ok {
			timeHits++
		}
	}

	kind := KindString
	switch {
	case nonNull == 0:
		kind = KindString
	case allInt:
		kind = KindInt64
	case allFloat:
		kind = KindFloat64
	case allBool:
		kind = KindBool
	case float64(timeHits)/float64(nonNull) > DatetimeThreshold:
		kind = KindTimestamp
	}

	values := make([]any, len(raw))
	for i, s := range raw {
		if isNullToken(s) {
			continue
		}
		switch kind {
		case KindInt64:
			v, _ := strconv.ParseInt(s, 10, 64)
			values[i] = v
		case KindFloat64:
			v, _ := strconv.ParseFloat(s, 64)
			values[i] = v
		case KindBool:
			v, _ := strconv.ParseBool(strings.ToLower(s))
			values[i] = v
		case KindTimestamp:
			if t, ok := ParseTime(s); ok {
				values[i] = t.UTC().Truncate(time.Microsecond)
			}
		default:
			values[i] = s
		}
	}
	return &Column{name: name, kind: kind, values: values}
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

// FormatCell renders a cell the way CSV export and previews show it.
func FormatCell(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	case time.Time:
		return x.Format(time.RFC3339Nano)
	case string:
		return x
	}
	return fmt.Sprint(v)
}

// WriteCSV encodes f with a header row. Nulls become empty fields.
func WriteCSV(w io.Writer, f *Frame) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(f.Names()); err != nil {
		return fmt.Errorf("frame: write csv header: %w", err)
	}
	rec := make([]string, f.NumCols())
	for i := 0; i < f.NumRows(); i++ {
		for j, c := range f.cols {
			rec[j] = FormatCell(c.values[i])
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("frame: write csv row %d: %w", i, err)
		}
	}
	cw.Flush()
	return cw.Error()
}
