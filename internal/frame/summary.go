package frame

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// ColumnStats summarises one column.
type ColumnStats struct {
	Name    string   `json:"name"`
	Kind    string   `json:"kind"`
	NonNull int      `json:"non_null"`
	Missing int      `json:"missing"`
	Unique  int      `json:"unique"`
	Min     *float64 `json:"min,omitempty"`
	Max     *float64 `json:"max,omitempty"`
	Mean    *float64 `json:"mean,omitempty"`
	Std     *float64 `json:"std,omitempty"`
	Example string   `json:"example,omitempty"`
}

// Describe computes per-column statistics. Numeric moments are only
// filled for int64 and float64 columns with at least one value.
func Describe(f *Frame) []ColumnStats {
	out := make([]ColumnStats, 0, f.NumCols())
	for _, c := range f.cols {
		st := ColumnStats{Name: c.name, Kind: c.kind.String()}
		uniq := make(map[string]struct{})
		var nums []float64
		for i, v := range c.values {
			if v == nil {
				st.Missing++
				continue
			}
			st.NonNull++
			s := FormatCell(v)
			uniq[s] = struct{}{}
			if st.Example == "" {
				st.Example = s
			}
			if x, ok := c.Float(i); ok && !math.IsNaN(x) {
				nums = append(nums, x)
			}
		}
		st.Unique = len(uniq)
		if c.kind.Numeric() && len(nums) > 0 {
			mn, mx, sum := nums[0], nums[0], 0.0
			for _, x := range nums {
				mn = math.Min(mn, x)
				mx = math.Max(mx, x)
				sum += x
			}
			mean := sum / float64(len(nums))
			var ss float64
			for _, x := range nums {
				ss += (x - mean) * (x - mean)
			}
			std := 0.0
			if len(nums) > 1 {
				std = math.Sqrt(ss / float64(len(nums)-1))
			}
			st.Min, st.Max, st.Mean, st.Std = &mn, &mx, &mean, &std
		}
		out = append(out, st)
	}
	return out
}

// Markdown renders a compact context block: shape, columns, the first
// sample rows, and numeric statistics.
func Markdown(name string, f *Frame, sampleRows int) string {
	var b strings.Builder
	rows, cols := f.Shape()
	fmt.Fprintf(&b, "Current Dataset: %s\n", name)
	fmt.Fprintf(&b, "Shape: (%d, %d)\n", rows, cols)

	kinds := make([]string, 0, cols)
	for _, c := range f.cols {
		kinds = append(kinds, fmt.Sprintf("%s (%s)", c.name, c.kind))
	}
	fmt.Fprintf(&b, "Columns: %s\n", strings.Join(kinds, ", "))

	if sampleRows > 0 && rows > 0 {
		fmt.Fprintf(&b, "Sample Data (first %d rows):\n", min(sampleRows, rows))
		b.WriteString("| " + strings.Join(f.Names(), " | ") + " |\n")
		b.WriteString("|" + strings.Repeat(" --- |", cols) + "\n")
		head := f.Head(sampleRows)
		for i := 0; i < head.NumRows(); i++ {
			cells := make([]string, cols)
			for j, v := range head.Row(i) {
				cells[j] = strings.ReplaceAll(FormatCell(v), "|", "/")
			}
			b.WriteString("| " + strings.Join(cells, " | ") + " |\n")
		}
	}

	stats := Describe(f)
	sort.SliceStable(stats, func(i, j int) bool { return stats[i].Name < stats[j].Name })
	wroteHeader := false
	for _, st := range stats {
		if st.Mean == nil {
			continue
		}
		if !wroteHeader {
			b.WriteString("Numeric Stats:\n| column | count | mean | std | min | max |\n| --- | --- | --- | --- | --- | --- |\n")
			wroteHeader = true
		}
		fmt.Fprintf(&b, "| %s | %d | %.4g | %.4g | %.4g | %.4g |\n", st.Name, st.NonNull, *st.Mean, *st.Std, *st.Min, *st.Max)
	}
	return b.String()
}
