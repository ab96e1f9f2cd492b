// Package models defines the domain types shared by the store, catalog, and API.
package models

import "time"

// Column describes one column of a snapshot's schema.
type Column struct {
	Name string `json:"name"`
	Kind string `json:"kind"`
}

// SnapshotMeta is the metadata of one persisted snapshot.
type SnapshotMeta struct {
	ID        string    `json:"id"`
	Base      string    `json:"base"`
	Note      string    `json:"note"`
	CreatedAt time.Time `json:"created_at"`
	File      string    `json:"file"`
	Size      int64     `json:"size"`
	Checksum  string    `json:"checksum"`
	Rows      int       `json:"rows"`
	Columns   []Column  `json:"columns"`
}

// DatasetSummary groups the snapshots of one base name.
type DatasetSummary struct {
	Base      string    `json:"base"`
	Snapshots int       `json:"snapshots"`
	LatestID  string    `json:"latest_id"`
	UpdatedAt time.Time `json:"updated_at"`
}
