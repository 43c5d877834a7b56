package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"patent_explorer_go_backend/internal/llm"
	"patent_explorer_go_backend/internal/models"

	"github.com/google/uuid"
)

// CreateChartTool validates a chart specification, persists it and returns
// the inline markdown reference that renders it.
type CreateChartTool struct {
	artifacts ArtifactSaver
}

func NewCreateChartTool(artifacts ArtifactSaver) *CreateChartTool {
	return &CreateChartTool{artifacts: artifacts}
}

type chartArgs struct {
	Title  string               `json:"title"`
	Type   string               `json:"type"`
	XLabel string               `json:"xLabel"`
	YLabel string               `json:"yLabel"`
	Series []models.ChartSeries `json:"series"`
}

func (t *CreateChartTool) Definition() llm.ToolDefinition {
	point := &llm.Schema{
		Type: "object",
		Properties: map[string]*llm.Schema{
			"x":     {Type: "number"},
			"y":     {Type: "number"},
			"size":  {Type: "number", Description: "Point size, scatter and quadrant charts only"},
			"label": {Type: "string", Description: "Point label, scatter and quadrant charts only"},
		},
		Required: []string{"x", "y"},
	}
	return llm.ToolDefinition{
		Name:        "createChart",
		Description: "Create a chart from data and get back a markdown image reference to embed in the answer.",
		Parameters: &llm.Schema{
			Type: "object",
			Properties: map[string]*llm.Schema{
				"title":  {Type: "string"},
				"type":   {Type: "string", Enum: []string{models.ChartBar, models.ChartLine, models.ChartPie, models.ChartScatter, models.ChartQuadrant}},
				"xLabel": {Type: "string", Description: "X axis label"},
				"yLabel": {Type: "string", Description: "Y axis label"},
				"series": {
					Type: "array",
					Items: &llm.Schema{
						Type: "object",
						Properties: map[string]*llm.Schema{
							"name":   {Type: "string"},
							"points": {Type: "array", Items: point},
						},
						Required: []string{"name", "points"},
					},
				},
			},
			Required: []string{"title", "type", "series"},
		},
	}
}

func validChartType(t string) bool {
	switch t {
	case models.ChartBar, models.ChartLine, models.ChartPie, models.ChartScatter, models.ChartQuadrant:
		return true
	}
	return false
}

func (t *CreateChartTool) Execute(ctx context.Context, call Call) (map[string]interface{}, error) {
	var args chartArgs
	if err := decodeArgs(call.Args, &args); err != nil {
		return nil, err
	}
	if args.Title == "" {
		return nil, &ValidationError{Message: "title is required"}
	}
	if !validChartType(args.Type) {
		return nil, &ValidationError{Message: fmt.Sprintf("unknown chart type %q", args.Type)}
	}
	if len(args.Series) == 0 {
		return nil, &ValidationError{Message: "at least one data series is required"}
	}
	allowPointMeta := args.Type == models.ChartScatter || args.Type == models.ChartQuadrant
	for i, s := range args.Series {
		if s.Name == "" {
			return nil, &ValidationError{Message: fmt.Sprintf("series %d has no name", i)}
		}
		if len(s.Points) == 0 {
			return nil, &ValidationError{Message: fmt.Sprintf("series %q has no points", s.Name)}
		}
		if !allowPointMeta {
			for _, p := range s.Points {
				if p.Size != 0 || p.Label != "" {
					return nil, &ValidationError{Message: fmt.Sprintf("per-point size/label is only valid for %s and %s charts", models.ChartScatter, models.ChartQuadrant)}
				}
			}
		}
	}

	seriesJSON, err := json.Marshal(args.Series)
	if err != nil {
		return nil, fmt.Errorf("failed to encode series: %w", err)
	}

	chart := &models.Chart{
		ID:        uuid.New().String(),
		SessionID: call.SessionID,
		Title:     args.Title,
		Type:      args.Type,
		XLabel:    args.XLabel,
		YLabel:    args.YLabel,
		Series:    seriesJSON,
	}
	if err := t.artifacts.SaveChart(chart); err != nil {
		return nil, fmt.Errorf("failed to save chart: %w", err)
	}

	return map[string]interface{}{
		"type":    "chart_created",
		"chartId": chart.ID,
		"display": fmt.Sprintf("![%s](/api/charts/%s/image)", chart.Title, chart.ID),
		"message": "Chart created. Embed the display value as markdown in your answer.",
	}, nil
}
