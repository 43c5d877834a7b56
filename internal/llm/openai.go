package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// OpenAIProvider talks to any OpenAI-compatible chat-completions endpoint:
// the hosted gateway in production, LM Studio or Ollama in development.
type OpenAIProvider struct {
	label   string
	baseURL string
	apiKey  string
	model   string
	httpc   *http.Client
}

func NewOpenAIProvider(label, baseURL, apiKey, model string) *OpenAIProvider {
	return &OpenAIProvider{
		label:   label,
		baseURL: normalizeBaseURL(baseURL),
		apiKey:  apiKey,
		model:   model,
		httpc:   &http.Client{Timeout: 5 * time.Minute},
	}
}

func (p *OpenAIProvider) Name() string {
	return p.label + "/" + p.model
}

func normalizeBaseURL(raw string) string {
	u := strings.TrimRight(strings.TrimSpace(raw), "/")
	u = strings.TrimSuffix(u, "/v1")
	return strings.TrimRight(u, "/")
}

type oaMessage struct {
	Role       string       `json:"role"`
	Content    string       `json:"content"`
	ToolCalls  []oaToolCall `json:"tool_calls,omitempty"`
	ToolCallID string       `json:"tool_call_id,omitempty"`
}

type oaToolCall struct {
	Index    *int   `json:"index,omitempty"`
	ID       string `json:"id,omitempty"`
	Type     string `json:"type,omitempty"`
	Function struct {
		Name      string `json:"name,omitempty"`
		Arguments string `json:"arguments,omitempty"`
	} `json:"function"`
}

type oaTool struct {
	Type     string `json:"type"`
	Function struct {
		Name        string                 `json:"name"`
		Description string                 `json:"description,omitempty"`
		Parameters  map[string]interface{} `json:"parameters,omitempty"`
	} `json:"function"`
}

type oaRequest struct {
	Model         string      `json:"model"`
	Messages      []oaMessage `json:"messages"`
	Tools         []oaTool    `json:"tools,omitempty"`
	Stream        bool        `json:"stream"`
	StreamOptions *struct {
		IncludeUsage bool `json:"include_usage"`
	} `json:"stream_options,omitempty"`
}

type oaChunk struct {
	Choices []struct {
		Delta struct {
			Content   string       `json:"content"`
			ToolCalls []oaToolCall `json:"tool_calls"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int32 `json:"prompt_tokens"`
		CompletionTokens int32 `json:"completion_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (p *OpenAIProvider) StreamTurn(ctx context.Context, req TurnRequest, emit func(Event)) (*Turn, error) {
	body, err := json.Marshal(p.buildRequest(req))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal chat request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", p.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.httpc.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("chat request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("chat HTTP %d: %s", resp.StatusCode, string(raw))
	}

	return p.consumeStream(resp.Body, emit)
}

func (p *OpenAIProvider) buildRequest(req TurnRequest) oaRequest {
	msgs := make([]oaMessage, 0, len(req.History)+1)
	if req.System != "" {
		msgs = append(msgs, oaMessage{Role: "system", Content: req.System})
	}
	for _, turn := range req.History {
		switch turn.Role {
		case RoleAssistant:
			m := oaMessage{Role: "assistant", Content: turn.Text}
			for _, call := range turn.ToolCalls {
				tc := oaToolCall{ID: call.ID, Type: "function"}
				tc.Function.Name = call.Name
				args, _ := json.Marshal(call.Args)
				tc.Function.Arguments = string(args)
				m.ToolCalls = append(m.ToolCalls, tc)
			}
			msgs = append(msgs, m)
		case RoleTool:
			for _, res := range turn.ToolResults {
				payload, _ := json.Marshal(res.Payload)
				msgs = append(msgs, oaMessage{Role: "tool", ToolCallID: res.ID, Content: string(payload)})
			}
		default:
			msgs = append(msgs, oaMessage{Role: "user", Content: turn.Text})
		}
	}

	out := oaRequest{Model: p.model, Messages: msgs, Stream: true}
	out.StreamOptions = &struct {
		IncludeUsage bool `json:"include_usage"`
	}{IncludeUsage: true}
	for _, def := range req.Tools {
		t := oaTool{Type: "function"}
		t.Function.Name = def.Name
		t.Function.Description = def.Description
		t.Function.Parameters = def.Parameters.JSONMap()
		out.Tools = append(out.Tools, t)
	}
	return out
}

// consumeStream reads the SSE body, emitting text deltas as they arrive and
// accumulating tool-call argument fragments by index until the stream ends.
func (p *OpenAIProvider) consumeStream(body io.Reader, emit func(Event)) (*Turn, error) {
	out := &Turn{Role: RoleAssistant}
	pending := map[int]*oaToolCall{}

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 1024*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")
		if data == "[DONE]" {
			break
		}
		var chunk oaChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			continue
		}
		if chunk.Error != nil {
			return nil, fmt.Errorf("chat stream error: %s", chunk.Error.Message)
		}
		if chunk.Usage != nil {
			emit(Event{Type: EventUsage, Usage: &Usage{
				InputTokens:  chunk.Usage.PromptTokens,
				OutputTokens: chunk.Usage.CompletionTokens,
			}})
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta
		if delta.Content != "" {
			out.Text += delta.Content
			emit(Event{Type: EventText, Text: delta.Content})
		}
		for _, frag := range delta.ToolCalls {
			idx := 0
			if frag.Index != nil {
				idx = *frag.Index
			}
			call, ok := pending[idx]
			if !ok {
				call = &oaToolCall{}
				pending[idx] = call
			}
			if frag.ID != "" {
				call.ID = frag.ID
			}
			if frag.Function.Name != "" {
				call.Function.Name = frag.Function.Name
			}
			call.Function.Arguments += frag.Function.Arguments
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("chat stream read: %w", err)
	}

	indexes := make([]int, 0, len(pending))
	for idx := range pending {
		indexes = append(indexes, idx)
	}
	sort.Ints(indexes)
	for _, idx := range indexes {
		raw := pending[idx]
		if raw.ID == "" {
			raw.ID = uuid.New().String()
		}
		args := map[string]interface{}{}
		if raw.Function.Arguments != "" {
			if err := json.Unmarshal([]byte(raw.Function.Arguments), &args); err != nil {
				return nil, fmt.Errorf("tool call %q has malformed arguments: %w", raw.Function.Name, err)
			}
		}
		call := ToolCall{ID: raw.ID, Name: raw.Function.Name, Args: args}
		out.ToolCalls = append(out.ToolCalls, call)
		emit(Event{Type: EventToolCall, ToolCall: &call})
	}
	return out, nil
}
