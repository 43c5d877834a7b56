package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"patent_explorer_go_backend/internal/llm"
	"patent_explorer_go_backend/internal/models"
	"patent_explorer_go_backend/internal/search"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Call carries the request-scoped context a tool needs besides its arguments.
type Call struct {
	SessionID string
	UserID    *uuid.UUID
	Args      map[string]interface{}
}

type Tool interface {
	Definition() llm.ToolDefinition
	Execute(ctx context.Context, call Call) (map[string]interface{}, error)
}

// ValidationError marks malformed tool arguments. The registry turns it into
// a structured payload that instructs the model to correct itself and retry.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// Consumer-side views of the services the tools depend on.
type ArtifactSaver interface {
	SaveChart(chart *models.Chart) error
	SaveCSV(artifact *models.CSVArtifact) error
}

type UsageReporter interface {
	ReportToolCost(userID *uuid.UUID, sessionID, tool string, dollars float64)
}

type Searcher interface {
	Search(ctx context.Context, req search.Request) (*search.Response, error)
}

type Registry struct {
	order  []string
	byName map[string]Tool
}

func NewRegistry(tools ...Tool) *Registry {
	r := &Registry{byName: make(map[string]Tool, len(tools))}
	for _, t := range tools {
		name := t.Definition().Name
		r.order = append(r.order, name)
		r.byName[name] = t
	}
	return r
}

func (r *Registry) Definitions() []llm.ToolDefinition {
	defs := make([]llm.ToolDefinition, 0, len(r.order))
	for _, name := range r.order {
		defs = append(defs, r.byName[name].Definition())
	}
	return defs
}

// Execute runs a tool and always produces a payload: upstream failures come
// back as a user-visible error message and validation failures as a
// structured self-correction instruction, so a failed call never aborts the
// conversation.
func (r *Registry) Execute(ctx context.Context, name string, call Call) map[string]interface{} {
	tool, ok := r.byName[name]
	if !ok {
		return map[string]interface{}{
			"error": fmt.Sprintf("unknown tool %q", name),
		}
	}

	payload, err := tool.Execute(ctx, call)
	if err == nil {
		return payload
	}

	if vErr, ok := err.(*ValidationError); ok {
		log.Warn().Str("tool", name).Str("session", call.SessionID).Err(vErr).Msg("Tool arguments rejected")
		return map[string]interface{}{
			"type":      "validation_error",
			"error":     vErr.Message,
			"retryable": true,
			"message":   "The arguments were invalid. Correct them and call the tool again.",
		}
	}

	log.Error().Str("tool", name).Str("session", call.SessionID).Err(err).Msg("Tool execution failed")
	return map[string]interface{}{
		"error": fmt.Sprintf("The %s tool failed: %v", name, err),
	}
}

// decodeArgs round-trips the loosely typed argument map into a tool's typed
// argument struct.
func decodeArgs(args map[string]interface{}, out interface{}) error {
	raw, err := json.Marshal(args)
	if err != nil {
		return &ValidationError{Message: fmt.Sprintf("unreadable arguments: %v", err)}
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &ValidationError{Message: fmt.Sprintf("malformed arguments: %v", err)}
	}
	return nil
}

// clampResults applies a tool's default and maximum result count.
func clampResults(requested, fallback, max int) int {
	if requested <= 0 {
		return fallback
	}
	if requested > max {
		return max
	}
	return requested
}
