package llm

import "context"

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Turn is one entry of a model conversation: user text, an assistant step
// (text and/or tool calls), or the tool results answering those calls.
type Turn struct {
	Role        string
	Text        string
	ToolCalls   []ToolCall
	ToolResults []ToolResult
}

type ToolCall struct {
	ID   string
	Name string
	Args map[string]interface{}
}

type ToolResult struct {
	ID      string
	Name    string
	Payload map[string]interface{}
}

type Usage struct {
	InputTokens  int32
	OutputTokens int32
}

type EventType string

const (
	EventText     EventType = "text"
	EventToolCall EventType = "tool_call"
	EventUsage    EventType = "usage"
)

// Event is one increment of a streamed model response.
type Event struct {
	Type     EventType
	Text     string
	ToolCall *ToolCall
	Usage    *Usage
}

// Schema describes tool parameters in a provider-neutral way; each provider
// converts it to its own wire representation.
type Schema struct {
	Type        string // object, string, integer, number, boolean or array
	Description string
	Properties  map[string]*Schema
	Items       *Schema
	Required    []string
	Enum        []string
}

type ToolDefinition struct {
	Name        string
	Description string
	Parameters  *Schema
}

type TurnRequest struct {
	System  string
	History []Turn
	Tools   []ToolDefinition
}

// Provider streams one assistant step. Incremental content is pushed through
// emit; the aggregated step is returned so the caller can persist it and
// decide whether tool results warrant another step.
type Provider interface {
	Name() string
	StreamTurn(ctx context.Context, req TurnRequest, emit func(Event)) (*Turn, error)
}

// JSONMap renders the schema as a JSON-schema-shaped map, the format the
// OpenAI-compatible wire protocol expects.
func (s *Schema) JSONMap() map[string]interface{} {
	if s == nil {
		return nil
	}
	m := map[string]interface{}{"type": s.Type}
	if s.Description != "" {
		m["description"] = s.Description
	}
	if len(s.Properties) > 0 {
		props := make(map[string]interface{}, len(s.Properties))
		for name, p := range s.Properties {
			props[name] = p.JSONMap()
		}
		m["properties"] = props
	}
	if s.Items != nil {
		m["items"] = s.Items.JSONMap()
	}
	if len(s.Required) > 0 {
		m["required"] = s.Required
	}
	if len(s.Enum) > 0 {
		m["enum"] = s.Enum
	}
	return m
}
