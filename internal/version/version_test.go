package version

import (
	"regexp"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanBase(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"demo", "demo"},
		{"demo.csv", "demo"},
		{"sales.v2.csv", "sales"},
		{"uploads/2024/titanic.xlsx", "titanic"},
		{"  spaced.csv ", "spaced"},
		{"", "dataset"},
		{".hidden", "dataset"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, CleanBase(tt.in))
		})
	}
}

func TestNameFormat(t *testing.T) {
	ts := time.Date(2024, 3, 9, 14, 5, 7, 0, time.Local)
	got := Name("demo.csv", "raw", ts)
	assert.Equal(t, "demo_v20240309_140507_raw", got)
	assert.Regexp(t, regexp.MustCompile(`^demo_v\d{8}_\d{6}_raw$`), got)
}

func TestNameSortsChronologically(t *testing.T) {
	base := time.Date(2024, 12, 31, 23, 59, 58, 0, time.Local)
	var ids []string
	for i := 0; i < 5; i++ {
		ids = append(ids, Name("demo", "step", base.Add(time.Duration(i)*time.Second)))
	}
	shuffled := []string{ids[3], ids[0], ids[4], ids[1], ids[2]}
	sort.Strings(shuffled)
	assert.Equal(t, ids, shuffled)
}

func TestParseRoundTrip(t *testing.T) {
	ts := time.Date(2025, 1, 2, 3, 4, 5, 0, time.Local)
	id := Name("my_vendor_v2_data.csv", "col_op_drop", ts)

	parsed, ok := Parse(id)
	require.True(t, ok)
	assert.Equal(t, "my_vendor_v2_data", parsed.Base)
	assert.Equal(t, "col_op_drop", parsed.Note)
	assert.True(t, parsed.CreatedAt.Equal(ts))
	assert.Equal(t, id, parsed.String())
}

func TestParseNoteContainingStamp(t *testing.T) {
	// Notes are not sanitised. When one embeds a stamp, the last occurrence
	// is taken as the separator.
	id := "demo_v20240101_000000_copy_v20231231_235959_"
	parsed, ok := Parse(id)
	require.True(t, ok)
	assert.Equal(t, "demo_v20240101_000000_copy", parsed.Base)
	assert.Equal(t, "", parsed.Note)
}

func TestParseRejectsForeignNames(t *testing.T) {
	for _, in := range []string{"", "demo", "demo_v2024_raw", "demo_v20241301_000000_x"} {
		_, ok := Parse(in)
		assert.False(t, ok, "Parse(%q) should fail", in)
	}
}

func TestPrefix(t *testing.T) {
	assert.Equal(t, "demo_v", Prefix("demo.parquet"))
}

func TestBelongsTo(t *testing.T) {
	tests := []struct {
		id   string
		base string
		want bool
	}{
		{"sales_v20240101_000000_raw", "sales", true},
		{"sales_v20240101_000000_raw", "sales.csv", true},
		{"sales_v20240101_000000_x_v20240202_000000_y", "sales", true},
		{"sales_v2_v20240101_000000_raw", "sales", false},
		{"sales_v2_v20240101_000000_raw", "sales_v2", true},
		{"sales2_v20240101_000000_raw", "sales", false},
		{"sales_v2024_raw", "sales", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, BelongsTo(tt.id, tt.base), "BelongsTo(%q, %q)", tt.id, tt.base)
	}
}
