// Package explore runs ad-hoc read-only SQL over a snapshot file with an
// embedded DuckDB.
package explore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	duckdb "github.com/duckdb/duckdb-go/v2"
)

// ViewName is the table the snapshot is exposed as.
const ViewName = "snapshot"

// DefaultMaxRows caps result sets when no limit is configured.
const DefaultMaxRows = 500

// ErrNotReadOnly is returned for statements other than a single
// SELECT, WITH, SUMMARIZE, DESCRIBE or FROM query.
var ErrNotReadOnly = errors.New("explore: only a single read-only query is allowed")

var allowedLeads = []string{"select", "with", "summarize", "describe", "from"}

// Result is a query result with cells normalised for JSON.
type Result struct {
	Columns   []string `json:"columns"`
	Rows      [][]any  `json:"rows"`
	Truncated bool     `json:"truncated"`
}

// Explorer executes queries. It holds no state between calls.
type Explorer struct {
	maxRows int
	timeout time.Duration
}

// New returns an Explorer capping results at maxRows (DefaultMaxRows when
// <= 0) and each query at timeout (no limit when 0).
func New(maxRows int, timeout time.Duration) *Explorer {
	if maxRows <= 0 {
		maxRows = DefaultMaxRows
	}
	return &Explorer{maxRows: maxRows, timeout: timeout}
}

// CheckReadOnly validates query without running it.
func CheckReadOnly(query string) error {
	q := stripComments(query)
	q = strings.TrimSpace(strings.TrimRight(strings.TrimSpace(q), ";"))
	if q == "" || strings.Contains(q, ";") {
		return ErrNotReadOnly
	}
	lead := strings.ToLower(strings.Fields(q)[0])
	for _, ok := range allowedLeads {
		if lead == ok {
			return nil
		}
	}
	return ErrNotReadOnly
}

func stripComments(q string) string {
	var b strings.Builder
	for _, line := range strings.Split(q, "\n") {
		if i := strings.Index(line, "--"); i >= 0 {
			line = line[:i]
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return b.String()
}

// Query loads the Parquet file at path into a fresh in-memory database as
// table "snapshot", locks file access down, and runs query.
func (e *Explorer) Query(ctx context.Context, path, query string) (*Result, error) {
	if err := CheckReadOnly(query); err != nil {
		return nil, err
	}
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	connector, err := duckdb.NewConnector("", nil)
	if err != nil {
		return nil, fmt.Errorf("explore: open duckdb: %w", err)
	}
	db := sql.OpenDB(connector)
	defer db.Close()
	db.SetMaxOpenConns(1)

	load := fmt.Sprintf(`CREATE TABLE %s AS SELECT * FROM read_parquet('%s')`, ViewName, strings.ReplaceAll(path, "'", "''"))
	if _, err := db.ExecContext(ctx, load); err != nil {
		return nil, fmt.Errorf("explore: load snapshot: %w", err)
	}
	if _, err := db.ExecContext(ctx, `SET enable_external_access = false`); err != nil {
		return nil, fmt.Errorf("explore: restrict access: %w", err)
	}

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("explore: query: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("explore: columns: %w", err)
	}
	res := &Result{Columns: cols, Rows: [][]any{}}
	for rows.Next() {
		if len(res.Rows) >= e.maxRows {
			res.Truncated = true
			break
		}
		cells := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range cells {
			ptrs[i] = &cells[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("explore: scan: %w", err)
		}
		for i, v := range cells {
			cells[i] = normalise(v)
		}
		res.Rows = append(res.Rows, cells)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("explore: rows: %w", err)
	}
	return res, nil
}

// normalise maps driver values onto JSON-friendly types.
func normalise(v any) any {
	switch x := v.(type) {
	case nil, bool, string, int64, float64:
		return x
	case int8:
		return int64(x)
	case int16:
		return int64(x)
	case int32:
		return int64(x)
	case uint8:
		return int64(x)
	case uint16:
		return int64(x)
	case uint32:
		return int64(x)
	case uint64:
		return x
	case float32:
		return float64(x)
	case []byte:
		return string(x)
	case time.Time:
		return x.UTC().Format(time.RFC3339Nano)
	case *big.Int:
		return x.String()
	case duckdb.Decimal:
		return x.Float64()
	case fmt.Stringer:
		return x.String()
	}
	return fmt.Sprint(v)
}
