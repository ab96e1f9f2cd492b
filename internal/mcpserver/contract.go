package mcpserver

// StorageContract describes how snapshots are named and what the query
// tool accepts. It is served as a resource and a tool so LLM clients can
// read it before calling the others.
const StorageContract = `# AutoDS Snapshot Contract

Every saved dataset version is one Parquet file in the storage directory.

## Naming

` + "```" + `
{base}_v{YYYYMMDD_HHMMSS}_{note}.parquet
` + "```" + `

- **base** is the dataset name: the uploaded file name without extension.
- **YYYYMMDD_HHMMSS** is the local save time, second resolution.
- **note** says why the version exists: ` + "`" + `initial` + "`" + ` for imports, otherwise the
  transformation name (e.g. ` + "`" + `drop_columns` + "`" + `).

The snapshot id is the file name without ` + "`" + `.parquet` + "`" + `. Ids of one base sort
chronologically; ` + "`" + `latest_version` + "`" + ` returns the newest one.

## Querying

` + "`" + `query_snapshot` + "`" + ` loads one snapshot as the table ` + "`" + `snapshot` + "`" + ` in an in-memory
DuckDB database. Only a single read-only statement is accepted, starting with
SELECT, WITH, SUMMARIZE, DESCRIBE or FROM. Results are capped.

` + "```" + `sql
SELECT category, avg(price) FROM snapshot GROUP BY category
` + "```" + `

## Transformations

` + "`" + `transform_snapshot` + "`" + ` applies one operation and saves the result as a new version:

- ` + "`" + `drop_columns` + "`" + ` {"columns": [...]}
- ` + "`" + `rename_column` + "`" + ` {"from": "...", "to": "..."}
- ` + "`" + `fill_missing` + "`" + ` {"columns": [...], "strategy": "mean|median|mode|constant", "value": ...}
- ` + "`" + `drop_missing_rows` + "`" + ` {"columns": [...]}
- ` + "`" + `drop_duplicates` + "`" + ` {"columns": [...]}
- ` + "`" + `handle_outliers` + "`" + ` {"column": "...", "method": "iqr|zscore", "action": "remove|cap|mean|median", "k": 1.5, "threshold": 3}
- ` + "`" + `clean_text` + "`" + ` {"column": "...", "method": "strip|lower|upper|title|capitalize|collapse_spaces|remove_digits|keep_digits|remove_punctuation|remove_non_ascii|replace", "old": "...", "new": "..."}
- ` + "`" + `extract_datetime` + "`" + ` {"column": "...", "part": "year|month|day|hour|minute|second|weekday"}
- ` + "`" + `filter_dates` + "`" + ` {"column": "...", "start": "2024-01-01", "end": "2024-12-31"}
- ` + "`" + `sort_rows` + "`" + ` {"column": "...", "descending": false}
- ` + "`" + `convert_type` + "`" + ` {"column": "...", "to": "int64|float64|string|bool|timestamp"}
- ` + "`" + `scale` + "`" + ` {"columns": [...], "method": "standard|minmax"}
- ` + "`" + `encode` + "`" + ` {"column": "...", "method": "label|onehot"}

Existing versions are never modified.
`
