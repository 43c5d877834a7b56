package models

import "time"

const (
	ChartBar      = "bar"
	ChartLine     = "line"
	ChartPie      = "pie"
	ChartScatter  = "scatter"
	ChartQuadrant = "quadrant"
)

// Chart is created as a side effect of a createChart tool call and is
// immutable afterwards. Series holds the JSON-encoded []ChartSeries.
type Chart struct {
	ID        string    `gorm:"primaryKey" json:"id"`
	SessionID string    `gorm:"index" json:"sessionId"`
	Title     string    `json:"title"`
	Type      string    `json:"type"`
	XLabel    string    `json:"xLabel"`
	YLabel    string    `json:"yLabel"`
	Series    []byte    `json:"-"`
	CreatedAt time.Time `json:"createdAt"`
}

type ChartSeries struct {
	Name   string       `json:"name"`
	Points []ChartPoint `json:"points"`
}

// ChartPoint carries an optional per-point size and label, used by the
// scatter and quadrant chart types.
type ChartPoint struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Size  float64 `json:"size,omitempty"`
	Label string  `json:"label,omitempty"`
}

// CSVArtifact stores both the structured headers/rows and the escaped CSV
// serialization so the download path never re-derives it.
type CSVArtifact struct {
	ID        string    `gorm:"primaryKey" json:"id"`
	SessionID string    `gorm:"index" json:"sessionId"`
	Title     string    `json:"title"`
	Headers   []byte    `json:"-"` // JSON-encoded []string
	Rows      []byte    `json:"-"` // JSON-encoded [][]string
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}
