package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"
)

// GeminiProvider serves the direct-vendor path through the Google AI SDK.
type GeminiProvider struct {
	client *genai.Client
	model  string
}

func NewGeminiProvider(client *genai.Client, model string) *GeminiProvider {
	return &GeminiProvider{client: client, model: model}
}

func (p *GeminiProvider) Name() string {
	return "gemini/" + p.model
}

func (p *GeminiProvider) StreamTurn(ctx context.Context, req TurnRequest, emit func(Event)) (*Turn, error) {
	if len(req.History) == 0 {
		return nil, errors.New("empty conversation history")
	}

	model := p.client.GenerativeModel(p.model)
	if req.System != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(req.System)}}
	}
	if len(req.Tools) > 0 {
		model.Tools = geminiTools(req.Tools)
	}

	cs := model.StartChat()
	cs.History = geminiHistory(req.History[:len(req.History)-1])

	parts := geminiParts(req.History[len(req.History)-1])
	if len(parts) == 0 {
		return nil, errors.New("last history entry has no content")
	}

	out := &Turn{Role: RoleAssistant}
	iter := cs.SendMessageStream(ctx, parts...)
	for {
		resp, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("gemini stream: %w", err)
		}
		if resp.UsageMetadata != nil {
			emit(Event{Type: EventUsage, Usage: &Usage{
				InputTokens:  resp.UsageMetadata.PromptTokenCount,
				OutputTokens: resp.UsageMetadata.CandidatesTokenCount,
			}})
		}
		if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
			continue
		}
		for _, part := range resp.Candidates[0].Content.Parts {
			switch v := part.(type) {
			case genai.Text:
				out.Text += string(v)
				emit(Event{Type: EventText, Text: string(v)})
			case genai.FunctionCall:
				// The SDK carries no call identifier; mint one so tool
				// results can be correlated in the transcript.
				call := ToolCall{ID: uuid.New().String(), Name: v.Name, Args: v.Args}
				out.ToolCalls = append(out.ToolCalls, call)
				emit(Event{Type: EventToolCall, ToolCall: &call})
			}
		}
	}
	return out, nil
}

func geminiTools(defs []ToolDefinition) []*genai.Tool {
	decls := make([]*genai.FunctionDeclaration, 0, len(defs))
	for _, def := range defs {
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        def.Name,
			Description: def.Description,
			Parameters:  geminiSchema(def.Parameters),
		})
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}

func geminiSchema(s *Schema) *genai.Schema {
	if s == nil {
		return nil
	}
	out := &genai.Schema{
		Type:        geminiType(s.Type),
		Description: s.Description,
		Required:    s.Required,
		Enum:        s.Enum,
	}
	if len(s.Properties) > 0 {
		out.Properties = make(map[string]*genai.Schema, len(s.Properties))
		for name, p := range s.Properties {
			out.Properties[name] = geminiSchema(p)
		}
	}
	if s.Items != nil {
		out.Items = geminiSchema(s.Items)
	}
	return out
}

func geminiType(t string) genai.Type {
	switch t {
	case "string":
		return genai.TypeString
	case "integer":
		return genai.TypeInteger
	case "number":
		return genai.TypeNumber
	case "boolean":
		return genai.TypeBoolean
	case "array":
		return genai.TypeArray
	default:
		return genai.TypeObject
	}
}

func geminiHistory(turns []Turn) []*genai.Content {
	contents := make([]*genai.Content, 0, len(turns))
	for _, turn := range turns {
		parts := geminiParts(turn)
		if len(parts) == 0 {
			continue
		}
		role := "user"
		switch turn.Role {
		case RoleAssistant:
			role = "model"
		case RoleTool:
			role = "function"
		}
		contents = append(contents, &genai.Content{Role: role, Parts: parts})
	}
	return contents
}

func geminiParts(turn Turn) []genai.Part {
	var parts []genai.Part
	if turn.Text != "" {
		parts = append(parts, genai.Text(turn.Text))
	}
	for _, call := range turn.ToolCalls {
		parts = append(parts, genai.FunctionCall{Name: call.Name, Args: call.Args})
	}
	for _, res := range turn.ToolResults {
		parts = append(parts, genai.FunctionResponse{Name: res.Name, Response: res.Payload})
	}
	return parts
}
