package api

import (
	"github.com/starford/autods/internal/models"
	"github.com/starford/autods/internal/session"
)

// SessionResponse is returned when a session starts.
type SessionResponse struct {
	ID string `json:"id" example:"0b5c9f2e-3c1d-4f7a-9d1e-2f6a8b7c4d3e" validate:"required"`
}

// SnapshotListResponse lists snapshot ids, newest first.
type SnapshotListResponse struct {
	Snapshots []string `json:"snapshots" validate:"required"`
}

// Preview is the head of a dataset.
type Preview struct {
	Columns   []models.Column `json:"columns" validate:"required"`
	Rows      [][]any         `json:"rows" validate:"required"`
	TotalRows int             `json:"total_rows" example:"1000"`
}

// SnapshotDetail is snapshot metadata plus preview rows.
type SnapshotDetail struct {
	models.SnapshotMeta
	Preview Preview `json:"preview"`
}

// DeleteResponse reports whether a snapshot was removed.
type DeleteResponse struct {
	Deleted bool `json:"deleted"`
}

// ActiveResponse describes the session's active dataset.
type ActiveResponse struct {
	Name     string   `json:"name" example:"sales" validate:"required"`
	ID       string   `json:"id" example:"sales_v20240309_140507_initial" validate:"required"`
	Datasets []string `json:"datasets"`
	Preview  Preview  `json:"preview"`
}

// SetActiveRequest loads a snapshot by id or selects a dataset by name.
type SetActiveRequest struct {
	ID   string `json:"id,omitempty" example:"sales_v20240309_140507_initial"`
	Name string `json:"name,omitempty" example:"sales"`
}

// TransformRequest names an operation and its parameters.
type TransformRequest struct {
	Op     string         `json:"op" example:"drop_columns" validate:"required"`
	Params map[string]any `json:"params"`
}

// TransformResponse is the saved version and the logged action.
type TransformResponse struct {
	Snapshot models.SnapshotMeta `json:"snapshot"`
	Action   string              `json:"action" example:"[14:05:07] Dropped columns: B"`
}

// ActionsResponse is the session's action log, oldest first.
type ActionsResponse struct {
	Actions []session.Action `json:"actions"`
}

// NavResponse is the current page and the back stack.
type NavResponse struct {
	Current string   `json:"current" example:"home"`
	History []string `json:"history"`
}

// PushRequest navigates to a page.
type PushRequest struct {
	Page string `json:"page" example:"explore" validate:"required"`
}

// ChatRequest is one question for the assistant.
type ChatRequest struct {
	Question string `json:"question" validate:"required"`
}

// ChatResponse carries the assistant reply or a visible warning.
type ChatResponse struct {
	Reply string `json:"reply"`
}

// InsightRequest is a one-off prompt about the active dataset.
type InsightRequest struct {
	Prompt string `json:"prompt" example:"Which columns look skewed?" validate:"required"`
}

// SessionsResponse lists live sessions, oldest first.
type SessionsResponse struct {
	Sessions []session.Info `json:"sessions"`
}

// VersionsResponse lists the catalogued snapshots of one dataset.
type VersionsResponse struct {
	Base      string                `json:"base"`
	Snapshots []models.SnapshotMeta `json:"snapshots"`
}

// QueryRequest is a read-only SQL statement over table "snapshot".
type QueryRequest struct {
	SQL string `json:"sql" example:"SELECT count(*) FROM snapshot" validate:"required"`
}

// DatasetsResponse lists catalog datasets by base name.
type DatasetsResponse struct {
	Datasets []models.DatasetSummary `json:"datasets"`
}

// SearchResponse wraps search results.
type SearchResponse struct {
	Results []models.SnapshotMeta `json:"results" validate:"required"`
}
