package tools

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strings"

	"patent_explorer_go_backend/internal/llm"
	"patent_explorer_go_backend/internal/models"

	"github.com/google/uuid"
)

// CreateCSVTool validates tabular data, serializes it to escaped CSV text
// and persists it for inline rendering via the csv:<id> marker.
type CreateCSVTool struct {
	artifacts ArtifactSaver
}

func NewCreateCSVTool(artifacts ArtifactSaver) *CreateCSVTool {
	return &CreateCSVTool{artifacts: artifacts}
}

type csvArgs struct {
	Title   string     `json:"title"`
	Headers []string   `json:"headers"`
	Rows    [][]string `json:"rows"`
}

func (t *CreateCSVTool) Definition() llm.ToolDefinition {
	return llm.ToolDefinition{
		Name:        "createCSV",
		Description: "Create a CSV table from headers and rows and get back an inline marker that renders it as a table.",
		Parameters: &llm.Schema{
			Type: "object",
			Properties: map[string]*llm.Schema{
				"title":   {Type: "string"},
				"headers": {Type: "array", Items: &llm.Schema{Type: "string"}},
				"rows": {
					Type:  "array",
					Items: &llm.Schema{Type: "array", Items: &llm.Schema{Type: "string"}},
				},
			},
			Required: []string{"title", "headers", "rows"},
		},
	}
}

func (t *CreateCSVTool) Execute(ctx context.Context, call Call) (map[string]interface{}, error) {
	var args csvArgs
	if err := decodeArgs(call.Args, &args); err != nil {
		return nil, err
	}
	if args.Title == "" {
		return nil, &ValidationError{Message: "title is required"}
	}
	if len(args.Headers) == 0 {
		return nil, &ValidationError{Message: "headers must not be empty"}
	}
	for i, row := range args.Rows {
		if len(row) != len(args.Headers) {
			return nil, &ValidationError{
				Message: fmt.Sprintf("row %d has %d columns but there are %d headers", i, len(row), len(args.Headers)),
			}
		}
	}

	content, err := SerializeCSV(args.Headers, args.Rows)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize CSV: %w", err)
	}

	headersJSON, _ := json.Marshal(args.Headers)
	rowsJSON, _ := json.Marshal(args.Rows)
	artifact := &models.CSVArtifact{
		ID:        uuid.New().String(),
		SessionID: call.SessionID,
		Title:     args.Title,
		Headers:   headersJSON,
		Rows:      rowsJSON,
		Content:   content,
	}
	if err := t.artifacts.SaveCSV(artifact); err != nil {
		return nil, fmt.Errorf("failed to save CSV: %w", err)
	}

	return map[string]interface{}{
		"type":     "csv_created",
		"csvId":    artifact.ID,
		"rowCount": len(args.Rows),
		"display":  fmt.Sprintf("![csv](csv:%s)", artifact.ID),
		"message":  "CSV created. Embed the display value as markdown in your answer.",
	}, nil
}

// SerializeCSV produces RFC 4180 escaped CSV text without a trailing
// newline.
func SerializeCSV(headers []string, rows [][]string) (string, error) {
	var buf strings.Builder
	w := csv.NewWriter(&buf)
	if err := w.Write(headers); err != nil {
		return "", err
	}
	for _, row := range rows {
		if err := w.Write(row); err != nil {
			return "", err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", err
	}
	return strings.TrimRight(buf.String(), "\n"), nil
}
